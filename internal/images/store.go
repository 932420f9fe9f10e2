// Package images stores recipe images and fetches external ones. Stored
// images are addressed by a flat file name and served under /uploads/.
package images

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// URLPrefix is the public path stored images are served from.
const URLPrefix = "/uploads/"

var (
	ErrNotFound        = errors.New("image not found")
	ErrInvalidName     = errors.New("invalid image name")
	ErrUnsupportedType = errors.New("only image files are allowed")
	ErrTooLarge        = errors.New("image too large")
	ErrInvalidURL      = errors.New("invalid image url")
	ErrUpstream        = errors.New("image fetch failed")
)

// Store persists image bytes under a flat name.
type Store interface {
	Save(ctx context.Context, name, contentType string, r io.Reader, size int64) error
	Open(ctx context.Context, name string) (io.ReadCloser, string, error)
	Exists(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) error
}

// PublicURL is the URL a stored image is served at.
func PublicURL(name string) string {
	return URLPrefix + name
}

// NameFromURL returns the stored name behind a /uploads/ URL.
func NameFromURL(u string) (string, bool) {
	if !strings.HasPrefix(u, URLPrefix) {
		return "", false
	}
	name := path.Base(u)
	if validName(name) != nil {
		return "", false
	}
	return name, true
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	return nil
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
	".avif": "image/avif",
}

func contentTypeFor(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}
