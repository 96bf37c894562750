// Package upload stores user-supplied files (avatars) and returns the public
// URL they can be fetched from.
package upload

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/rs/xid"
)

// SniffLen is how many leading bytes DetectImageType looks at.
const SniffLen = 512

// imageExtensions lists the avatar formats that are accepted, with the
// extension each is stored under. SVG is not listed: it can carry script.
var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DetectImageType sniffs the content type of head, the first bytes of a file.
// ok is false unless it is one of the accepted raster image formats; a
// client-declared type is never consulted.
func DetectImageType(head []byte) (contentType string, ok bool) {
	contentType = http.DetectContentType(head)
	_, ok = imageExtensions[contentType]
	return contentType, ok
}

// IsImageType reports whether contentType is an accepted avatar format.
func IsImageType(contentType string) bool {
	_, ok := imageExtensions[contentType]
	return ok
}

// isImageExtension reports whether ext (with its dot) belongs to an accepted
// avatar format.
func isImageExtension(ext string) bool {
	for _, e := range imageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Uploader stores body under key and returns the URL it is served from.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}

// AvatarKey builds the storage key for a new avatar of username. Every upload
// gets a fresh key, so browsers and CDNs never serve a stale cached image.
// The extension follows contentType, never the uploaded file name, and is
// empty for a type that is not an accepted image.
func AvatarKey(username, contentType string) string {
	return "avatars/" + sanitize(username) + "/" + xid.New().String() + imageExtensions[contentType]
}

// sanitize keeps a username usable as a single path segment.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
