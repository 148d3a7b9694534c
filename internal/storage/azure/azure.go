// Package azure implements the Azure Blob Storage document backend. Downloads are
// handed out as short-lived SAS URLs, or as CDN links when a CDN fronts the container.
package azure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/lgu-records/issuance-registry/internal/config"
	"github.com/lgu-records/issuance-registry/internal/storage"
	"github.com/lgu-records/issuance-registry/pkg/checksum"
)

func init() {
	storage.Register("azure", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Azure)
	})
}

const checksumMetaKey = "sha256"

// AzureStorage stores documents in one blob container
type AzureStorage struct {
	container  *container.Client
	credential *azblob.SharedKeyCredential
	cdnURL     string
}

// New creates the backend with shared key credentials
func New(cfg *config.AzureStorageConfig) (*AzureStorage, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure storage account key is required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure storage container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return &AzureStorage{
		container:  client.ServiceClient().NewContainerClient(cfg.ContainerName),
		credential: credential,
		cdnURL:     strings.TrimRight(cfg.CDNURL, "/"),
	}, nil
}

func isNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// Put uploads the document with its SHA-256 in blob metadata
func (s *AzureStorage) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*storage.Object, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	digest := checksum.Sum(data)

	_, err = s.container.NewBlockBlobClient(key).Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), &blockblob.UploadOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		Metadata:    map[string]*string{checksumMetaKey: &digest},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}

	return &storage.Object{
		Key:         key,
		Size:        int64(len(data)),
		SHA256:      digest,
		ContentType: contentType,
		ModifiedAt:  time.Now(),
	}, nil
}

// Get streams the blob
func (s *AzureStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.container.NewBlobClient(key).DownloadStream(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download from Azure Blob: %w", err)
	}
	return resp.Body, nil
}

// Delete removes the blob, ignoring a missing one
func (s *AzureStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.container.NewBlobClient(key).Delete(ctx, nil); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete from Azure Blob: %w", err)
	}
	return nil
}

// SignedURL returns a CDN link when configured, otherwise a read-only SAS URL
func (s *AzureStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.cdnURL != "" {
		return fmt.Sprintf("%s/%s", s.cdnURL, key), nil
	}

	now := time.Now().UTC()
	params, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPSandHTTP,
		StartTime:     now.Add(-5 * time.Minute), // clock skew
		ExpiryTime:    now.Add(ttl),
		Permissions:   (&sas.BlobPermissions{Read: true}).String(),
		ContainerName: s.containerName(),
		BlobName:      key,
	}.SignWithSharedKey(s.credential)
	if err != nil {
		return "", fmt.Errorf("failed to generate SAS token: %w", err)
	}
	return s.container.NewBlobClient(key).URL() + "?" + params.Encode(), nil
}

func (s *AzureStorage) containerName() string {
	u := strings.TrimRight(s.container.URL(), "/")
	return u[strings.LastIndex(u, "/")+1:]
}

// Exists reads blob properties
func (s *AzureStorage) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := s.Stat(ctx, key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Stat returns size, content type and the stored checksum
func (s *AzureStorage) Stat(ctx context.Context, key string) (*storage.Object, error) {
	props, err := s.container.NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get blob properties: %w", err)
	}

	obj := &storage.Object{Key: key}
	if props.ContentLength != nil {
		obj.Size = *props.ContentLength
	}
	if props.ContentType != nil {
		obj.ContentType = *props.ContentType
	}
	if props.LastModified != nil {
		obj.ModifiedAt = *props.LastModified
	}
	// header canonicalisation changes the key's case
	for k, v := range props.Metadata {
		if strings.EqualFold(k, checksumMetaKey) && v != nil {
			obj.SHA256 = *v
		}
	}
	return obj, nil
}

// Ping reads the container properties
func (s *AzureStorage) Ping(ctx context.Context) error {
	if _, err := s.container.GetProperties(ctx, nil); err != nil {
		return fmt.Errorf("azure container %s unavailable: %w", s.containerName(), err)
	}
	return nil
}
