// Package checksum computes the SHA-256 digests recorded for stored
// documents. Every storage backend reports the same hex encoding so the
// X-Checksum-SHA256 header is comparable regardless of where a PDF lives.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Sum returns the hex SHA-256 digest of data
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CalculateSHA256 calculates the SHA256 checksum of data from a reader
func CalculateSHA256(reader io.Reader) (string, error) {
	h := NewHasher()
	if _, err := io.Copy(h, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return h.Hex(), nil
}

// Hasher is an io.Writer that digests everything written through it, for
// hashing a document while it streams to disk.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns an empty Hasher
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Hex returns the digest of the bytes written so far
func (h *Hasher) Hex() string {
	return hex.EncodeToString(h.h.Sum(nil))
}
