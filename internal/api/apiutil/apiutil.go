// Package apiutil holds the request parsing and error rendering shared by the
// HTTP handler packages.
package apiutil

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lgu-records/issuance-registry/internal/db/models"
	"github.com/lgu-records/issuance-registry/internal/lineage"
	"github.com/lgu-records/issuance-registry/internal/services"
)

const maxPerPage = 100

// Pagination is a parsed page/per_page pair
type Pagination struct {
	Page    int
	PerPage int
}

// ParsePagination reads page and per_page. Out-of-range values fall back to
// page 1 and defaultPerPage.
func ParsePagination(c *gin.Context, defaultPerPage int) Pagination {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}
	return Pagination{Page: page, PerPage: perPage}
}

// Offset is the row offset of the page
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// JSON renders the pagination block of a list response
func (p Pagination) JSON(total int) gin.H {
	lastPage := (total + p.PerPage - 1) / p.PerPage
	if lastPage < 1 {
		lastPage = 1
	}
	return gin.H{
		"page":      p.Page,
		"per_page":  p.PerPage,
		"total":     total,
		"last_page": lastPage,
	}
}

// ParseID reads a positive integer path parameter, answering 400 otherwise
func ParseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// OptionalInt64 reads a positive integer query parameter
func OptionalInt64(c *gin.Context, name string) *int64 {
	v, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

var kindSegments = map[string]models.Kind{
	"executive-orders": models.KindExecutiveOrder,
	"ordinances":       models.KindOrdinance,
}

// KindFromSegment maps a URL segment such as "executive-orders" to its kind
func KindFromSegment(segment string) (models.Kind, bool) {
	kind, ok := kindSegments[segment]
	return kind, ok
}

// KindParam reads the :kind path parameter, answering 404 for unknown kinds
func KindParam(c *gin.Context) (models.Kind, bool) {
	kind, ok := KindFromSegment(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown record type"})
		return "", false
	}
	return kind, true
}

// RespondError renders err. Validation failures become 422 with one message
// per field; missing records become 404; anything else is logged and
// reported as fallback with a 500.
func RespondError(c *gin.Context, err error, fallback string) {
	var verr *services.ValidationError
	var cerr *lineage.ConfigurationError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "The given data was invalid.",
			"errors": verr.Fields,
		})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
	case errors.As(err, &cerr):
		slog.Error("registry misconfigured", "error", err, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, gin.H{"error": cerr.Error()})
	default:
		slog.Error(fallback, "error", err, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
