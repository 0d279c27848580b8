package uploads

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// fakeBucket accepts a PUT only when the Content-Type header matches the
// type the ticket was issued for, mimicking the signature check a real
// bucket performs.
type fakeBucket struct {
	expectedType string
	status       int
	body         string

	puts    atomic.Int32
	lastKey string
	stored  []byte
}

func (b *fakeBucket) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		b.puts.Add(1)
		if b.expectedType != "" && r.Header.Get("Content-Type") != b.expectedType {
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, "SignatureDoesNotMatch")
			return
		}
		if b.status != 0 {
			w.WriteHeader(b.status)
			io.WriteString(w, b.body)
			return
		}
		b.lastKey = r.URL.Path
		b.stored, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}
}

type fakeIssuer struct {
	uploadURL string
	publicURL string
	key       string
	err       error
	calls     int
}

func (f *fakeIssuer) Issue(ctx context.Context, filename, contentType string) (*Ticket, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Ticket{UploadURL: f.uploadURL, PublicURL: f.publicURL, Key: f.key}, nil
}

func TestUploadPutsPayloadAndReturnsPublicURL(t *testing.T) {
	bucket := &fakeBucket{expectedType: "image/png"}
	server := httptest.NewServer(bucket.handler())
	defer server.Close()

	issuer := &fakeIssuer{
		uploadURL: server.URL + "/club-media/hero-1.png",
		publicURL: "https://media.club.example/hero-1.png",
		key:       "hero-1.png",
	}
	client := NewClient(issuer)

	payload := []byte{0x89, 'P', 'N', 'G'}
	url, err := client.Upload(context.Background(), payload, "image/png", "hero-1.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://media.club.example/hero-1.png" {
		t.Errorf("expected permanent URL, got %s", url)
	}
	if !bytes.Equal(bucket.stored, payload) {
		t.Errorf("bucket received %v, want %v", bucket.stored, payload)
	}
	if bucket.puts.Load() != 1 {
		t.Errorf("expected exactly one PUT, got %d", bucket.puts.Load())
	}
}

func TestUploadContentTypeMismatchFails(t *testing.T) {
	// The ticket was scoped to image/png; writing anything else is refused.
	bucket := &fakeBucket{expectedType: "image/png"}
	server := httptest.NewServer(bucket.handler())
	defer server.Close()

	issuer := &fakeIssuer{uploadURL: server.URL + "/club-media/x", publicURL: "https://media.club.example/x"}
	client := NewClient(issuer)

	_, err := client.Upload(context.Background(), []byte("gif"), "image/gif", "x.gif")
	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected WriteError, got %v", err)
	}
	if writeErr.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", writeErr.StatusCode)
	}
}

func TestUploadNon2xxIsWriteError(t *testing.T) {
	bucket := &fakeBucket{status: http.StatusInternalServerError, body: "InternalError"}
	server := httptest.NewServer(bucket.handler())
	defer server.Close()

	issuer := &fakeIssuer{uploadURL: server.URL + "/club-media/x", publicURL: "https://media.club.example/x"}
	client := NewClient(issuer)

	_, err := client.Upload(context.Background(), []byte("data"), "image/png", "x.png")
	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected WriteError, got %v", err)
	}
	if writeErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", writeErr.StatusCode)
	}
	if writeErr.Message != "InternalError" {
		t.Errorf("expected body snippet in message, got %q", writeErr.Message)
	}
}

func TestUploadSkipsPutWhenIssueFails(t *testing.T) {
	bucket := &fakeBucket{}
	server := httptest.NewServer(bucket.handler())
	defer server.Close()

	issuer := &fakeIssuer{err: ErrNotConfigured}
	client := NewClient(issuer)

	_, err := client.Upload(context.Background(), []byte("data"), "image/png", "x.png")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected issuer error to surface, got %v", err)
	}
	if bucket.puts.Load() != 0 {
		t.Errorf("no PUT should happen when no ticket was issued, got %d", bucket.puts.Load())
	}
}

func TestUploadRespectsContextCancellation(t *testing.T) {
	bucket := &fakeBucket{}
	server := httptest.NewServer(bucket.handler())
	defer server.Close()

	issuer := &fakeIssuer{uploadURL: server.URL + "/club-media/x", publicURL: "https://media.club.example/x"}
	client := NewClient(issuer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Upload(ctx, []byte("data"), "image/png", "x.png"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestWriteErrorMessage(t *testing.T) {
	err := &WriteError{StatusCode: 403}
	if err.Error() != "storage write failed: status 403" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	err = &WriteError{StatusCode: 403, Message: "SignatureDoesNotMatch"}
	if err.Error() != "storage write failed: status 403: SignatureDoesNotMatch" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
