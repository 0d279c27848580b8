package media

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/campusfin/clubsite/internal/models"
)

// Kind enumerates the three representations an image field can hold.
type Kind int

const (
	// KindExternal is a fully-qualified URL to a third-party host.
	KindExternal Kind = iota
	// KindInline is a self-contained data URI stored in the field itself.
	KindInline
	// KindManaged is a key into the object-storage bucket this system controls.
	KindManaged
)

const dataURIPrefix = "data:"

// Reference is the decoded form of a persisted image field. Decoding happens
// once at the repository read boundary; the rest of the code never has to
// sniff raw strings again.
type Reference struct {
	Kind  Kind
	Value string
}

// Decode maps the stored (image_url, media_key, storage_provider) triple to
// its active representation.
func Decode(legacyValue string, mediaKey, providerTag *string) Reference {
	if providerTag != nil && *providerTag == models.StorageProviderR2 &&
		mediaKey != nil && *mediaKey != "" {
		return Reference{Kind: KindManaged, Value: *mediaKey}
	}
	if IsInline(legacyValue) {
		return Reference{Kind: KindInline, Value: legacyValue}
	}
	return Reference{Kind: KindExternal, Value: legacyValue}
}

// URL computes the address shown to readers. Managed keys resolve under the
// public base; inline and external values pass through verbatim.
func (r Reference) URL(publicBase string) string {
	if r.Kind == KindManaged {
		return strings.TrimRight(publicBase, "/") + "/" + strings.TrimLeft(r.Value, "/")
	}
	return r.Value
}

// Resolve is the per-row display URL function. It is total: any triple maps
// to a string, and malformed legacy values are returned untouched for the
// caller to render or fall back on.
func Resolve(legacyValue string, mediaKey, providerTag *string, publicBase string) string {
	return Decode(legacyValue, mediaKey, providerTag).URL(publicBase)
}

// IsInline reports whether the stored value is a self-describing data URI.
// This is the migration's detection predicate: rows rewritten to managed or
// external URLs no longer match, which is what makes re-runs no-ops.
func IsInline(value string) bool {
	return strings.HasPrefix(value, dataURIPrefix)
}

// DecodeDataURI splits an inline-encoded image into its raw bytes and MIME
// type. Only base64 payloads are accepted; the club's editors never produced
// percent-encoded data URIs.
func DecodeDataURI(value string) (data []byte, contentType string, err error) {
	if !IsInline(value) {
		return nil, "", fmt.Errorf("not a data URI")
	}

	rest := value[len(dataURIPrefix):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return nil, "", fmt.Errorf("malformed data URI: missing comma")
	}

	meta := rest[:comma]
	payload := rest[comma+1:]

	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("unsupported data URI encoding")
	}
	contentType = strings.TrimSuffix(meta, ";base64")
	if contentType == "" {
		contentType = "text/plain"
	}

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decoding data URI payload: %w", err)
	}
	return data, contentType, nil
}

// ExtensionForContentType returns the file extension used in storage keys.
// Unknown image types fall back to .bin rather than guessing.
func ExtensionForContentType(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "image/avif":
		return ".avif"
	default:
		return ".bin"
	}
}
