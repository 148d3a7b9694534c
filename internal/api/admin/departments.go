// departments.go implements the read-only department endpoints.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/lgu-records/issuance-registry/internal/api/apiutil"
	"github.com/lgu-records/issuance-registry/internal/db/repositories"
)

// DepartmentHandlers serves the city office reference list
type DepartmentHandlers struct {
	deptRepo *repositories.DepartmentRepository
}

// NewDepartmentHandlers creates a new DepartmentHandlers instance
func NewDepartmentHandlers(db *sqlx.DB) *DepartmentHandlers {
	return &DepartmentHandlers{deptRepo: repositories.NewDepartmentRepository(db)}
}

// @Summary      List departments
// @Description  Every city office ordered by name, optionally filtered by code or name.
// @Tags         Departments
// @Security     Bearer
// @Produce      json
// @Param        search  query  string  false  "Code or name substring"
// @Success      200  {object}  map[string]interface{}  "items: []models.Department"
// @Router       /api/v1/admin/departments [get]
// ListDepartmentsHandler lists departments
func (h *DepartmentHandlers) ListDepartmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		depts, err := h.deptRepo.List(c.Request.Context(), c.Query("search"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list departments"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": depts})
	}
}

// GetDepartmentHandler returns one department
// GET /api/v1/admin/departments/:id
func (h *DepartmentHandlers) GetDepartmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.ParseID(c, "id")
		if !ok {
			return
		}
		dept, err := h.deptRepo.GetByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve department"})
			return
		}
		if dept == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Department not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"department": dept})
	}
}
