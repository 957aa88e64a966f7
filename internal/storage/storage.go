// Package storage defines the interface for object storage operations.
// The MinIO implementation works with any S3-compatible provider; the S3
// implementation uses the AWS SDK and also accepts a custom endpoint.
package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidKey is returned when a URL does not end in a usable object key.
var ErrInvalidKey = errors.New("url has no object key")

// Object describes a stored object as reported by List.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Storage is the interface for uploading, deleting and enumerating objects.
type Storage interface {
	// Upload streams data to the store under the given key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// Delete removes an object identified by key.
	Delete(ctx context.Context, key string) error
	// List returns every object in the bucket.
	List(ctx context.Context) ([]Object, error)
	// PublicURL constructs the browser-accessible URL for a given key.
	PublicURL(key string) string
}

// KeyFromURL returns the trailing path segment of rawURL, which is the key
// the object was stored under. Query strings and fragments are ignored.
func KeyFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Join(ErrInvalidKey, err)
	}
	p := u.Path
	key := p[strings.LastIndex(p, "/")+1:]
	if key == "" {
		return "", ErrInvalidKey
	}
	return key, nil
}
