// Package files stores the original uploaded bytes of documents.
package files

import (
	"context"
	"errors"
	"path"
	"regexp"
	"strings"
)

// ErrNotFound is returned when no object exists under a name.
var ErrNotFound = errors.New("file not found")

// Store keeps uploaded files by object name.
type Store interface {
	Save(ctx context.Context, name, contentType string, data []byte) error
	Open(ctx context.Context, name string) ([]byte, error)
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectName builds the stored name of a document's original file:
// "<documentID>/<sanitized filename>".
func ObjectName(documentID, originalFilename string) string {
	base := path.Base(strings.ReplaceAll(originalFilename, `\`, "/"))
	base = strings.Trim(unsafeNameChars.ReplaceAllString(base, "_"), "_.")
	if base == "" {
		base = "upload"
	}
	const maxLength = 100
	if len(base) > maxLength {
		base = base[len(base)-maxLength:]
	}
	return documentID + "/" + base
}

// DocumentIDFromObject is the inverse of ObjectName for the ID part.
func DocumentIDFromObject(name string) (string, bool) {
	id, _, ok := strings.Cut(name, "/")
	return id, ok && id != ""
}
