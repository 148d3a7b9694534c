// audit_logs.go implements the audit trail browsing endpoints.
package admin

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/lgu-records/issuance-registry/internal/api/apiutil"
	"github.com/lgu-records/issuance-registry/internal/db/models"
	"github.com/lgu-records/issuance-registry/internal/db/repositories"
	"github.com/lgu-records/issuance-registry/internal/validation"
)

// AuditLogHandlers serves the read side of audit_logs
type AuditLogHandlers struct {
	auditRepo *repositories.AuditRepository
	perPage   int
}

// NewAuditLogHandlers creates a new AuditLogHandlers instance
func NewAuditLogHandlers(db *sqlx.DB, perPage int) *AuditLogHandlers {
	return &AuditLogHandlers{
		auditRepo: repositories.NewAuditRepository(db),
		perPage:   perPage,
	}
}

// @Summary      List audit logs
// @Description  Audit entries newest first. Every filter is optional.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        user_id         query  string  false  "Actor id"
// @Param        action          query  string  false  "Created, Updated or Deleted"
// @Param        auditable_type  query  string  false  "ExecutiveOrder, Ordinance or ImplementingRuleAndRegulation"
// @Param        auditable_id    query  int     false  "Subject id"
// @Param        start_date      query  string  false  "YYYY-MM-DD, inclusive"
// @Param        end_date        query  string  false  "YYYY-MM-DD, inclusive"
// @Success      200  {object}  map[string]interface{}  "items: []models.AuditLog, pagination"
// @Failure      400  {object}  map[string]interface{}  "Invalid filter"
// @Router       /api/v1/admin/audit-logs [get]
// ListAuditLogsHandler lists audit entries
func (h *AuditLogHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := apiutil.ParsePagination(c, h.perPage)

		filters, msg := parseAuditFilters(c)
		if msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		logs, total, err := h.auditRepo.List(c.Request.Context(), filters, p.PerPage, p.Offset())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit logs"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"items":      logs,
			"pagination": p.JSON(total),
		})
	}
}

// GetAuditLogHandler returns one audit entry
// GET /api/v1/admin/audit-logs/:id
func (h *AuditLogHandlers) GetAuditLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.ParseID(c, "id")
		if !ok {
			return
		}
		entry, err := h.auditRepo.Get(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve audit log"})
			return
		}
		if entry == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Audit log not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"audit_log": entry})
	}
}

func auditableTypes() map[string]bool {
	types := map[string]bool{models.IRRAuditableType: true}
	for _, kind := range models.Kinds() {
		types[kind.Info().AuditableType] = true
	}
	return types
}

// parseAuditFilters reads the query filters. A non-empty message means the
// request is malformed.
func parseAuditFilters(c *gin.Context) (repositories.AuditFilters, string) {
	var f repositories.AuditFilters

	if v := strings.TrimSpace(c.Query("user_id")); v != "" {
		f.UserID = &v
	}
	if v := strings.TrimSpace(c.Query("action")); v != "" {
		switch models.AuditAction(v) {
		case models.AuditCreated, models.AuditUpdated, models.AuditDeleted:
			f.Action = &v
		default:
			return f, "Invalid action"
		}
	}
	if v := strings.TrimSpace(c.Query("auditable_type")); v != "" {
		if !auditableTypes()[v] {
			return f, "Invalid auditable_type"
		}
		f.AuditableType = &v
	}
	if raw := c.Query("auditable_id"); raw != "" {
		id := apiutil.OptionalInt64(c, "auditable_id")
		if id == nil {
			return f, "Invalid auditable_id"
		}
		f.AuditableID = id
	}
	if raw := c.Query("start_date"); raw != "" {
		t, err := validation.ParseDate(raw)
		if err != nil {
			return f, "Invalid start_date"
		}
		f.StartDate = &t
	}
	if raw := c.Query("end_date"); raw != "" {
		t, err := validation.ParseDate(raw)
		if err != nil {
			return f, "Invalid end_date"
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		f.EndDate = &end
	}
	return f, ""
}
