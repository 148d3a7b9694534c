// Package storage defines the Storage interface every document backend implements
// and the BlobStore the records services write PDFs through.
//
// Backends register themselves with the factory from an init() function in their
// own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// cmd/server blank-imports each backend package so the registration runs.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Get and Stat when no object exists at the key
var ErrNotFound = errors.New("object not found")

// Storage is the contract a document backend fulfils. Keys are slash-separated
// paths such as "eos/3f2c....pdf".
type Storage interface {
	// Put writes the object at key, replacing any existing object
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*Object, error)

	// Get opens the object for reading
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// SignedURL returns a download URL. Cloud backends sign it for ttl; the
	// local backend returns a link into the server's file route.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Exists reports whether an object is present at key
	Exists(ctx context.Context, key string) (bool, error)

	// Stat returns object metadata without reading the content
	Stat(ctx context.Context, key string) (*Object, error)

	// Ping verifies the backend is reachable (bucket, container or directory)
	Ping(ctx context.Context) error
}

// Object describes a stored document
type Object struct {
	Key         string
	Size        int64
	SHA256      string
	ContentType string
	ModifiedAt  time.Time
}
