// Package local implements the filesystem document backend. It suits a single
// municipal server; documents are served back through the registry's /files route.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lgu-records/issuance-registry/internal/config"
	"github.com/lgu-records/issuance-registry/internal/storage"
	"github.com/lgu-records/issuance-registry/pkg/checksum"
)

func init() {
	storage.Register("local", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Local, cfg.Server.BaseURL)
	})
}

// LocalStorage stores documents below a base directory
type LocalStorage struct {
	basePath     string
	baseURL      string
	publicPrefix string
}

// New creates the backend, creating the base directory if needed
func New(cfg *config.LocalStorageConfig, serverBaseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	prefix := cfg.PublicPrefix
	if prefix == "" {
		prefix = "/files"
	}
	return &LocalStorage{
		basePath:     cfg.BasePath,
		baseURL:      strings.TrimRight(serverBaseURL, "/"),
		publicPrefix: "/" + strings.Trim(prefix, "/"),
	}, nil
}

// resolve maps key to a path below basePath, refusing traversal
func (s *LocalStorage) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return filepath.Join(s.basePath, clean), nil
}

// Put writes the document, hashing it on the way to disk
func (s *LocalStorage) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*storage.Object, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	hasher := checksum.NewHasher()
	written, err := io.Copy(io.MultiWriter(file, hasher), reader)
	if err != nil {
		_ = os.Remove(fullPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if size > 0 && written != size {
		_ = os.Remove(fullPath)
		return nil, fmt.Errorf("short write: wrote %d of %d bytes", written, size)
	}

	return &storage.Object{
		Key:         key,
		Size:        written,
		SHA256:      hasher.Hex(),
		ContentType: contentType,
		ModifiedAt:  time.Now(),
	}, nil
}

// Get opens the document
func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes the document and prunes empty folders up to the base path
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	base := filepath.Clean(s.basePath)
	for dir := filepath.Dir(fullPath); dir != base && strings.HasPrefix(dir, base); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

// SignedURL links into the server's file route. Local links do not expire.
func (s *LocalStorage) SignedURL(ctx context.Context, key string, _ time.Duration) (string, error) {
	if _, err := s.resolve(key); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s/%s", s.baseURL, s.publicPrefix, strings.TrimLeft(key, "/")), nil
}

// Exists reports whether the document is on disk
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}

// Stat returns size and modification time. The hash is not computed.
func (s *LocalStorage) Stat(ctx context.Context, key string) (*storage.Object, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return &storage.Object{
		Key:         key,
		Size:        info.Size(),
		ContentType: storage.PDFContentType,
		ModifiedAt:  info.ModTime(),
	}, nil
}

// Ping checks the base directory is still a directory
func (s *LocalStorage) Ping(ctx context.Context) error {
	info, err := os.Stat(s.basePath)
	if err != nil {
		return fmt.Errorf("storage directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage path %s is not a directory", s.basePath)
	}
	return nil
}
