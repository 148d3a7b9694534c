package public

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lgu-records/issuance-registry/internal/storage"
)

// Documents is the read side of the blob store the file route needs
type Documents interface {
	Backend() string
	Open(ctx context.Context, key string) (io.ReadCloser, *storage.Object, error)
	URLFor(ctx context.Context, key string) (string, error)
}

// ServeFileHandler handles document downloads.
// Implements: GET /files/*filepath
// Local documents are streamed; cloud documents redirect to a signed URL.
func ServeFileHandler(docs Documents) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := cleanKey(c.Param("filepath"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File path is required"})
			return
		}

		if docs.Backend() != "local" {
			url, err := docs.URLFor(c.Request.Context(), key)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign download URL"})
				return
			}
			c.Redirect(http.StatusFound, url)
			return
		}

		reader, obj, err := docs.Open(c.Request.Context(), key)
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
			return
		}
		defer reader.Close()

		contentType := obj.ContentType
		if contentType == "" {
			contentType = storage.PDFContentType
		}
		headers := map[string]string{
			"Content-Disposition": `inline; filename="` + path.Base(key) + `"`,
		}
		if obj.SHA256 != "" {
			headers["X-Checksum-SHA256"] = obj.SHA256
		}
		c.DataFromReader(http.StatusOK, obj.Size, contentType, reader, headers)
	}
}

// cleanKey strips the leading slash and rejects paths that escape the store
func cleanKey(raw string) (string, bool) {
	key := strings.TrimPrefix(raw, "/")
	if key == "" {
		return "", false
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." || path.IsAbs(cleaned) {
		return "", false
	}
	return cleaned, true
}
