// Package records serves the administrative record endpoints: executive
// orders and ordinances under /api/v1/records/:kind, and their IRRs under
// /api/v1/irrs. Every write runs through the services layer so lineage
// cascades and audit entries happen in the same transaction as the edit.
package records

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lgu-records/issuance-registry/internal/api/apiutil"
	"github.com/lgu-records/issuance-registry/internal/db/repositories"
	"github.com/lgu-records/issuance-registry/internal/services"
)

// IssuanceHandlers serves executive order and ordinance administration
type IssuanceHandlers struct {
	issuances *services.IssuanceService
	irrs      *services.IRRService
	perPage   int
}

// NewIssuanceHandlers creates the issuance handlers. perPage is the default
// admin page size.
func NewIssuanceHandlers(issuances *services.IssuanceService, irrs *services.IRRService, perPage int) *IssuanceHandlers {
	return &IssuanceHandlers{issuances: issuances, irrs: irrs, perPage: perPage}
}

// @Summary      List records
// @Description  Paginated executive orders or ordinances, newest official date first, with optional number/title search.
// @Tags         Records
// @Security     Bearer
// @Produce      json
// @Param        kind      path   string  true   "executive-orders or ordinances"
// @Param        search    query  string  false  "Number or title substring"
// @Param        page      query  int     false  "Page number (default 1)"
// @Param        per_page  query  int     false  "Items per page"
// @Success      200  {object}  map[string]interface{}  "items, pagination"
// @Router       /api/v1/records/{kind} [get]
func (h *IssuanceHandlers) List(c *gin.Context) {
	kind, ok := apiutil.KindParam(c)
	if !ok {
		return
	}
	p := apiutil.ParsePagination(c, h.perPage)

	page, err := h.issuances.List(c.Request.Context(), kind, repositories.IssuanceFilter{
		Search: strings.TrimSpace(c.Query("search")),
		Limit:  p.PerPage,
		Offset: p.Offset(),
	})
	if err != nil {
		apiutil.RespondError(c, err, "Failed to list records")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":      page.Items,
		"pagination": p.JSON(page.Total),
	})
}

// Options returns (id, number, title) triples for parent pickers
func (h *IssuanceHandlers) Options(c *gin.Context) {
	kind, ok := apiutil.KindParam(c)
	if !ok {
		return
	}
	options, err := h.issuances.Options(c.Request.Context(), kind)
	if err != nil {
		apiutil.RespondError(c, err, "Failed to list record options")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": options})
}

// @Summary      Get record
// @Description  One executive order or ordinance with departments, children, IRRs, document URL and timeline.
// @Tags         Records
// @Security     Bearer
// @Produce      json
// @Param        kind  path  string  true  "executive-orders or ordinances"
// @Param        id    path  int     true  "Record ID"
// @Success      200  {object}  services.IssuanceDetail
// @Failure      404  {object}  map[string]interface{}  "Record not found"
// @Router       /api/v1/records/{kind}/{id} [get]
func (h *IssuanceHandlers) Get(c *gin.Context) {
	kind, ok := apiutil.KindParam(c)
	if !ok {
		return
	}
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}

	detail, err := h.issuances.Get(c.Request.Context(), kind, id)
	if err != nil {
		apiutil.RespondError(c, err, "Failed to load record")
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": detail})
}

// @Summary      Encode record
// @Description  Multipart create. The PDF "file" part is required. A parent with a relationship type cascades the parent's status.
// @Tags         Records
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Param        kind  path  string  true  "executive-orders or ordinances"
// @Success      201  {object}  map[string]interface{}  "message, record"
// @Failure      422  {object}  map[string]interface{}  "error, errors"
// @Router       /api/v1/records/{kind} [post]
func (h *IssuanceHandlers) Create(c *gin.Context) {
	kind, ok := apiutil.KindParam(c)
	if !ok {
		return
	}

	in, done, err := bindIssuance(c, kind)
	defer done()
	if err != nil {
		apiutil.RespondError(c, err, "Failed to read request")
		return
	}

	issuance, err := h.issuances.Create(c.Request.Context(), kind, in)
	if err != nil {
		apiutil.RespondError(c, err, "Failed to save record")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": kind.Info().Label + " encoded successfully.",
		"record":  issuance,
	})
}

// Update rewrites a record. The file part is optional; a new document
// replaces the stored one.
func (h *IssuanceHandlers) Update(c *gin.Context) {
	kind, ok := apiutil.KindParam(c)
	if !ok {
		return
	}
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}

	in, done, err := bindIssuance(c, kind)
	defer done()
	if err != nil {
		apiutil.RespondError(c, err, "Failed to read request")
		return
	}

	issuance, err := h.issuances.Update(c.Request.Context(), kind, id, in)
	if err != nil {
		apiutil.RespondError(c, err, "Failed to update record")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": kind.Info().Label + " updated successfully.",
		"record":  issuance,
	})
}

// ToggleActive flips is_active
func (h *IssuanceHandlers) ToggleActive(c *gin.Context) {
	kind, ok := apiutil.KindParam(c)
	if !ok {
		return
	}
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}

	issuance, err := h.issuances.ToggleActive(c.Request.Context(), kind, id)
	if err != nil {
		apiutil.RespondError(c, err, "Failed to update record")
		return
	}

	state := "inactive"
	if issuance.IsActive {
		state = "active"
	}
	c.JSON(http.StatusOK, gin.H{
		"message": kind.Info().Label + " marked as " + state + ".",
		"record":  issuance,
	})
}

// Delete removes a record and its document
func (h *IssuanceHandlers) Delete(c *gin.Context) {
	kind, ok := apiutil.KindParam(c)
	if !ok {
		return
	}
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.issuances.Delete(c.Request.Context(), kind, id); err != nil {
		apiutil.RespondError(c, err, "Failed to delete record")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": kind.Info().Label + " deleted successfully."})
}

// IRRs lists the IRRs implementing one record
func (h *IssuanceHandlers) IRRs(c *gin.Context) {
	kind, ok := apiutil.KindParam(c)
	if !ok {
		return
	}
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}

	irrs, err := h.irrs.ListForIssuance(c.Request.Context(), kind, id)
	if err != nil {
		apiutil.RespondError(c, err, "Failed to list IRRs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": irrs})
}
