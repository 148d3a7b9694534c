package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/lgu-records/issuance-registry/internal/telemetry"
)

// PDFContentType is the only document type the registry stores
const PDFContentType = "application/pdf"

// BlobStore is the document store the services use. It names objects, counts
// operations per backend and hides TTL handling from callers.
type BlobStore struct {
	backend Storage
	name    string
	ttl     time.Duration
	newKey  func(folder string) string
}

// NewBlobStore wraps backend. name labels metrics; ttl bounds signed URLs.
func NewBlobStore(backend Storage, name string, ttl time.Duration) *BlobStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &BlobStore{
		backend: backend,
		name:    name,
		ttl:     ttl,
		newKey: func(folder string) string {
			return path.Join(folder, uuid.NewString()+".pdf")
		},
	}
}

// Backend returns the backend name
func (b *BlobStore) Backend() string {
	return b.name
}

// Store writes a PDF into folder under a fresh name and returns its key
func (b *BlobStore) Store(ctx context.Context, folder string, r io.Reader, size int64) (string, error) {
	key := b.newKey(folder)
	_, err := b.backend.Put(ctx, key, r, size, PDFContentType)
	telemetry.ObserveStorage(b.name, "put", err)
	if err != nil {
		return "", fmt.Errorf("failed to store document in %s: %w", folder, err)
	}
	return key, nil
}

// Delete removes key. It reports false without touching the backend when key
// is empty.
func (b *BlobStore) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	err := b.backend.Delete(ctx, key)
	telemetry.ObserveStorage(b.name, "delete", err)
	if err != nil {
		return false, err
	}
	return true, nil
}

// URLFor returns a download URL for key, or "" when key is empty
func (b *BlobStore) URLFor(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	url, err := b.backend.SignedURL(ctx, key, b.ttl)
	telemetry.ObserveStorage(b.name, "url", err)
	return url, err
}

// Exists reports whether key is stored
func (b *BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	ok, err := b.backend.Exists(ctx, key)
	telemetry.ObserveStorage(b.name, "exists", err)
	return ok, err
}

// Open streams the document at key
func (b *BlobStore) Open(ctx context.Context, key string) (io.ReadCloser, *Object, error) {
	info, err := b.backend.Stat(ctx, key)
	if err != nil {
		telemetry.ObserveStorage(b.name, "get", err)
		return nil, nil, err
	}
	rc, err := b.backend.Get(ctx, key)
	telemetry.ObserveStorage(b.name, "get", err)
	if err != nil {
		return nil, nil, err
	}
	return rc, info, nil
}

// Ping checks the backend is reachable
func (b *BlobStore) Ping(ctx context.Context) error {
	err := b.backend.Ping(ctx)
	telemetry.ObserveStorage(b.name, "ping", err)
	return err
}
