// Package gcs implements the Google Cloud Storage document backend. Downloads are
// V4 signed URLs. Credentials come from ADC, a service account key, Workload
// Identity or, for emulators, no authentication at all.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/lgu-records/issuance-registry/internal/config"
	appstorage "github.com/lgu-records/issuance-registry/internal/storage"
	"github.com/lgu-records/issuance-registry/pkg/checksum"
)

func init() {
	appstorage.Register("gcs", func(cfg *appconfig.Config) (appstorage.Storage, error) {
		return New(&cfg.Storage.GCS)
	})
}

const checksumMetaKey = "sha256"

// GCSStorage stores documents in one bucket
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// New creates the backend.
//
// Authentication methods:
//   - "default" or empty: Application Default Credentials
//   - "service_account": a key file or inline JSON key
//   - "workload_identity": ADC through Workload Identity Federation
//   - "none": unauthenticated, for emulators behind a custom endpoint
func New(cfg *appconfig.GCSStorageConfig) (*GCSStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	authMethod := cfg.AuthMethod
	if authMethod == "" {
		if cfg.CredentialsFile != "" || cfg.CredentialsJSON != "" {
			authMethod = "service_account"
		} else {
			authMethod = "default"
		}
	}

	switch authMethod {
	case "service_account":
		switch {
		case cfg.CredentialsJSON != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		case cfg.CredentialsFile != "":
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		default:
			return nil, fmt.Errorf("credentials_file or credentials_json is required for service_account auth")
		}
	case "none":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("auth_method none requires a custom endpoint")
		}
		opts = append(opts, option.WithoutAuthentication())
	case "workload_identity", "default":
	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'service_account', 'workload_identity', or 'none')", authMethod)
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStorage{client: client, bucket: cfg.Bucket}, nil
}

// Close releases the client
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

func (s *GCSStorage) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(key)
}

// Put uploads the document with its SHA-256 in object metadata
func (s *GCSStorage) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*appstorage.Object, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	digest := checksum.Sum(data)

	writer := s.object(key).NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = map[string]string{checksumMetaKey: digest}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	return &appstorage.Object{
		Key:         key,
		Size:        int64(len(data)),
		SHA256:      digest,
		ContentType: contentType,
		ModifiedAt:  time.Now(),
	}, nil
}

// Get streams the object
func (s *GCSStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", appstorage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read from GCS: %w", err)
	}
	return reader, nil
}

// Delete removes the object, ignoring a missing one
func (s *GCSStorage) Delete(ctx context.Context, key string) error {
	if err := s.object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

// SignedURL returns a V4 signed GET URL. The identity needs signBlob rights.
func (s *GCSStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return url, nil
}

// Exists reads object attributes
func (s *GCSStorage) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := s.Stat(ctx, key); err != nil {
		if errors.Is(err, appstorage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Stat returns size, content type and the stored checksum
func (s *GCSStorage) Stat(ctx context.Context, key string) (*appstorage.Object, error) {
	attrs, err := s.object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", appstorage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object metadata: %w", err)
	}
	return &appstorage.Object{
		Key:         key,
		Size:        attrs.Size,
		SHA256:      attrs.Metadata[checksumMetaKey],
		ContentType: attrs.ContentType,
		ModifiedAt:  attrs.Updated,
	}, nil
}

// Ping reads the bucket attributes
func (s *GCSStorage) Ping(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("gcs bucket %s unavailable: %w", s.bucket, err)
	}
	return nil
}
