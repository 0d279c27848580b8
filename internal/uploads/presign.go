package uploads

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/campusfin/clubsite/internal/config"
)

var (
	// ErrInvalidInput marks a presign request missing its filename or
	// content type. Caller bug, never retried.
	ErrInvalidInput = errors.New("filename and content type are required")
	// ErrNotConfigured means the storage backend cannot mint presigned
	// URLs (local method, or no public URL set). Surfaced loudly.
	ErrNotConfigured = errors.New("presigned uploads are not configured")
)

// PutPresigner is the slice of Storage the issuer needs. Only the S3
// backend provides it.
type PutPresigner interface {
	PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
}

// Ticket is the ephemeral authorization handed to an uploader: a time-boxed
// write URL plus the permanent address the object will have. Nothing durable
// records issued tickets; an unused one simply expires.
type Ticket struct {
	UploadURL string `json:"uploadUrl"`
	PublicURL string `json:"publicUrl"`
	Key       string `json:"key"`
}

// Issuer mints upload tickets. Keys are generated server-side only: a
// client-supplied filename contributes its sanitized stem and extension,
// never the full key.
type Issuer struct {
	storage Storage
	cfg     config.UploadsConfig
	now     func() time.Time
}

func NewIssuer(storage Storage, cfg config.UploadsConfig) *Issuer {
	return &Issuer{
		storage: storage,
		cfg:     cfg,
		now:     time.Now,
	}
}

var keyStemPattern = regexp.MustCompile(`[^a-z0-9-]+`)

// Issue validates the request, generates a collision-resistant key
// (millisecond timestamp plus random suffix) and returns the signed ticket.
// No object is created yet; a failed or abandoned upload leaves nothing
// behind.
func (i *Issuer) Issue(ctx context.Context, filename, contentType string) (*Ticket, error) {
	if strings.TrimSpace(filename) == "" || strings.TrimSpace(contentType) == "" {
		return nil, ErrInvalidInput
	}

	presigner, ok := i.storage.(PutPresigner)
	if !ok {
		return nil, ErrNotConfigured
	}
	if _, ok := PublicURL(i.cfg, ""); !ok {
		return nil, ErrNotConfigured
	}

	key, err := i.generateKey(filename)
	if err != nil {
		return nil, fmt.Errorf("generating storage key: %w", err)
	}

	expiry := i.cfg.S3.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	uploadURL, err := presigner.PresignPut(ctx, key, contentType, expiry)
	if err != nil {
		return nil, err
	}

	publicURL, _ := PublicURL(i.cfg, key)
	return &Ticket{
		UploadURL: uploadURL,
		PublicURL: publicURL,
		Key:       key,
	}, nil
}

// Store writes the payload through the storage backend directly, bypassing
// the presign flow. This is the write path for the local method, where the
// server itself holds the bytes; it works against any backend. The generated
// key is returned for the caller to build a display URL with.
func (i *Issuer) Store(ctx context.Context, filename, contentType string, body io.Reader) (string, error) {
	if strings.TrimSpace(filename) == "" || strings.TrimSpace(contentType) == "" {
		return "", ErrInvalidInput
	}

	key, err := i.generateKey(filename)
	if err != nil {
		return "", fmt.Errorf("generating storage key: %w", err)
	}

	if err := i.storage.Save(ctx, key, body); err != nil {
		return "", fmt.Errorf("saving %s: %w", key, err)
	}
	return key, nil
}

// generateKey builds "{stem}-{unixMillis}-{random}{ext}". Timestamp plus
// four random bytes keep concurrent requests for the same filename from
// colliding; no read-before-write check is performed.
func (i *Issuer) generateKey(filename string) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	stem := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	stem = keyStemPattern.ReplaceAllString(strings.ToLower(stem), "-")
	stem = strings.Trim(stem, "-")
	if len(stem) > 64 {
		stem = stem[:64]
	}

	buffer := make([]byte, 4)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	suffix := hex.EncodeToString(buffer)

	millis := i.now().UnixMilli()
	if stem == "" {
		return fmt.Sprintf("%d-%s%s", millis, suffix, ext), nil
	}
	return fmt.Sprintf("%s-%d-%s%s", stem, millis, suffix, ext), nil
}
