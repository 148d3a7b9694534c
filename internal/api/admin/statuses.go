// statuses.go implements handlers for legal status CRUD.
package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/lgu-records/issuance-registry/internal/api/apiutil"
	"github.com/lgu-records/issuance-registry/internal/db/models"
	"github.com/lgu-records/issuance-registry/internal/db/repositories"
	"github.com/lgu-records/issuance-registry/internal/services"
	"github.com/lgu-records/issuance-registry/internal/validation"
)

const statusNameMax = 50

// StatusHandlers handles legal status management endpoints
type StatusHandlers struct {
	statusRepo *repositories.StatusRepository
	perPage    int
}

// NewStatusHandlers creates a new StatusHandlers instance
func NewStatusHandlers(db *sqlx.DB, perPage int) *StatusHandlers {
	return &StatusHandlers{
		statusRepo: repositories.NewStatusRepository(db),
		perPage:    perPage,
	}
}

type statusRequest struct {
	Name string `json:"name" form:"name"`
}

// @Summary      List statuses
// @Description  Paginated legal statuses ordered by id, optionally filtered by name.
// @Tags         Statuses
// @Security     Bearer
// @Produce      json
// @Param        search    query  string  false  "Name substring"
// @Param        page      query  int     false  "Page number (default 1)"
// @Param        per_page  query  int     false  "Items per page, max 100"
// @Success      200  {object}  map[string]interface{}  "items: []models.Status, pagination"
// @Router       /api/v1/admin/statuses [get]
// ListStatusesHandler lists statuses with pagination
// GET /api/v1/admin/statuses?search=&page=1
func (h *StatusHandlers) ListStatusesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := apiutil.ParsePagination(c, h.perPage)

		statuses, total, err := h.statusRepo.List(c.Request.Context(), c.Query("search"), p.PerPage, p.Offset())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list statuses"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"items":      statuses,
			"pagination": p.JSON(total),
		})
	}
}

// AllStatusesHandler lists every status for form pickers
// GET /api/v1/admin/statuses/all
func (h *StatusHandlers) AllStatusesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		statuses, err := h.statusRepo.All(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list statuses"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": statuses})
	}
}

// @Summary      Create status
// @Tags         Statuses
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      201  {object}  map[string]interface{}  "message, status"
// @Failure      422  {object}  map[string]interface{}  "error, errors"
// @Router       /api/v1/admin/statuses [post]
// CreateStatusHandler creates a status
// POST /api/v1/admin/statuses
func (h *StatusHandlers) CreateStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statusRequest
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		status := &models.Status{Name: strings.TrimSpace(req.Name)}
		if err := h.validate(c, status); err != nil {
			apiutil.RespondError(c, err, "Failed to validate status")
			return
		}
		if err := h.statusRepo.Create(c.Request.Context(), status); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create status"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message": "Status created.",
			"status":  status,
		})
	}
}

// UpdateStatusHandler renames a status
// PUT /api/v1/admin/statuses/:id
func (h *StatusHandlers) UpdateStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.ParseID(c, "id")
		if !ok {
			return
		}
		var req statusRequest
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		existing, err := h.statusRepo.GetByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve status"})
			return
		}
		if existing == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Status not found"})
			return
		}

		existing.Name = strings.TrimSpace(req.Name)
		if err := h.validate(c, existing); err != nil {
			apiutil.RespondError(c, err, "Failed to validate status")
			return
		}
		if err := h.statusRepo.Update(c.Request.Context(), existing); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Status updated.",
			"status":  existing,
		})
	}
}

// DeleteStatusHandler removes a status that no record references
// DELETE /api/v1/admin/statuses/:id
func (h *StatusHandlers) DeleteStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.ParseID(c, "id")
		if !ok {
			return
		}

		inUse, err := h.statusRepo.InUse(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check status usage"})
			return
		}
		if inUse {
			c.JSON(http.StatusConflict, gin.H{"error": "Status is assigned to existing records and cannot be deleted."})
			return
		}

		err = h.statusRepo.Delete(c.Request.Context(), id)
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Status not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete status"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Status deleted."})
	}
}

func (h *StatusHandlers) validate(c *gin.Context, status *models.Status) error {
	errs := validation.Errors{}
	if errs.Required("name", status.Name) {
		errs.MaxLength("name", status.Name, statusNameMax)
	}
	if !errs.Has("name") {
		taken, err := h.statusRepo.NameTaken(c.Request.Context(), status.Name, status.ID)
		if err != nil {
			return err
		}
		if taken {
			errs.Add("name", "The name has already been taken.")
		}
	}
	if len(errs) > 0 {
		return &services.ValidationError{Fields: errs}
	}
	return nil
}
