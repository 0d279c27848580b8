package uploads

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TicketIssuer is what the upload client needs from the presign side.
type TicketIssuer interface {
	Issue(ctx context.Context, filename, contentType string) (*Ticket, error)
}

// WriteError is a non-2xx response from the storage backend on the direct
// PUT. Retryable by the caller; the client itself never retries.
type WriteError struct {
	StatusCode int
	Message    string
}

func (e *WriteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("storage write failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("storage write failed: status %d: %s", e.StatusCode, e.Message)
}

const (
	issueTimeout  = 30 * time.Second
	uploadTimeout = 60 * time.Second
)

// Client performs presigned direct-to-bucket uploads: request a ticket, one
// PUT with the declared content type, return the permanent URL. A failed PUT
// leaves no partial state; the ticket is simply abandoned.
type Client struct {
	issuer     TicketIssuer
	httpClient *http.Client
}

func NewClient(issuer TicketIssuer) *Client {
	return &Client{
		issuer:     issuer,
		httpClient: &http.Client{Timeout: uploadTimeout},
	}
}

func (c *Client) Upload(ctx context.Context, payload []byte, contentType, pathHint string) (string, error) {
	issueCtx, cancel := context.WithTimeout(ctx, issueTimeout)
	defer cancel()

	ticket, err := c.issuer.Issue(issueCtx, pathHint, contentType)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, ticket.UploadURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	// Must match the type bound into the signature or the bucket rejects
	// the write.
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(payload))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading to storage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &WriteError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	}

	return ticket.PublicURL, nil
}
