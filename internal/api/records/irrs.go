package records

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lgu-records/issuance-registry/internal/api/apiutil"
	"github.com/lgu-records/issuance-registry/internal/db/models"
	"github.com/lgu-records/issuance-registry/internal/db/repositories"
	"github.com/lgu-records/issuance-registry/internal/services"
)

// IRRHandlers serves implementing rules and regulations
type IRRHandlers struct {
	irrs    *services.IRRService
	perPage int
}

// NewIRRHandlers creates the IRR handlers
func NewIRRHandlers(irrs *services.IRRService, perPage int) *IRRHandlers {
	return &IRRHandlers{irrs: irrs, perPage: perPage}
}

// List returns IRRs across all records, filtered by ?status= and ?kind=
func (h *IRRHandlers) List(c *gin.Context) {
	var filters repositories.IRRFilters
	if raw := c.Query("status"); raw != "" {
		status := models.IRRStatus(raw)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown IRR status"})
			return
		}
		filters.Status = &status
	}
	if raw := c.Query("kind"); raw != "" {
		kind, ok := apiutil.KindFromSegment(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown record type"})
			return
		}
		filters.Kind = &kind
	}
	p := apiutil.ParsePagination(c, h.perPage)

	page, err := h.irrs.List(c.Request.Context(), filters, p.PerPage, p.Offset())
	if err != nil {
		apiutil.RespondError(c, err, "Failed to list IRRs")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":      page.Items,
		"pagination": p.JSON(page.Total),
	})
}

// Create encodes an IRR. The PDF file part is required.
func (h *IRRHandlers) Create(c *gin.Context) {
	in, done, err := bindIRR(c)
	defer done()
	if err != nil {
		apiutil.RespondError(c, err, "Failed to read request")
		return
	}

	irr, err := h.irrs.Create(c.Request.Context(), in)
	if err != nil {
		apiutil.RespondError(c, err, "Failed to save IRR")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "IRR encoded successfully.", "irr": irr})
}

// Update rewrites an IRR; the file part is optional
func (h *IRRHandlers) Update(c *gin.Context) {
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}

	in, done, err := bindIRR(c)
	defer done()
	if err != nil {
		apiutil.RespondError(c, err, "Failed to read request")
		return
	}

	irr, err := h.irrs.Update(c.Request.Context(), id, in)
	if err != nil {
		apiutil.RespondError(c, err, "Failed to update IRR")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "IRR updated successfully.", "irr": irr})
}

// Delete removes an IRR and its document
func (h *IRRHandlers) Delete(c *gin.Context) {
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.irrs.Delete(c.Request.Context(), id); err != nil {
		apiutil.RespondError(c, err, "Failed to delete IRR")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "IRR deleted successfully."})
}
