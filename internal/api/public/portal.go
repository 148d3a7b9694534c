// Package public serves the unauthenticated portal: record listings with
// search and year filters, single record views with their timeline, and the
// document download route.
package public

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lgu-records/issuance-registry/internal/api/apiutil"
	"github.com/lgu-records/issuance-registry/internal/db/repositories"
	"github.com/lgu-records/issuance-registry/internal/services"
)

// PortalHandlers serves the public record listing
type PortalHandlers struct {
	issuances *services.IssuanceService
	perPage   int
}

// NewPortalHandlers creates the portal handlers with a fixed page size
func NewPortalHandlers(issuances *services.IssuanceService, perPage int) *PortalHandlers {
	return &PortalHandlers{issuances: issuances, perPage: perPage}
}

// @Summary      Browse records
// @Description  Public listing of executive orders or ordinances, newest first, filtered by number/title search and year. Includes the years that have records.
// @Tags         Public
// @Produce      json
// @Param        kind    path   string  true   "executive-orders or ordinances"
// @Param        search  query  string  false  "Number or title substring"
// @Param        year    query  int     false  "Official date year"
// @Param        page    query  int     false  "Page number (default 1)"
// @Success      200  {object}  map[string]interface{}  "items, pagination, years, filters"
// @Router       /api/v1/public/{kind} [get]
func (h *PortalHandlers) List(c *gin.Context) {
	kind, ok := apiutil.KindParam(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	p := apiutil.Pagination{Page: page, PerPage: h.perPage}

	search := strings.TrimSpace(c.Query("search"))
	year, _ := strconv.Atoi(c.Query("year"))
	if year < 0 {
		year = 0
	}

	ctx := c.Request.Context()
	result, err := h.issuances.List(ctx, kind, repositories.IssuanceFilter{
		Search: search,
		Year:   year,
		Limit:  p.PerPage,
		Offset: p.Offset(),
	})
	if err != nil {
		apiutil.RespondError(c, err, "Failed to list records")
		return
	}
	years, err := h.issuances.Years(ctx, kind)
	if err != nil {
		apiutil.RespondError(c, err, "Failed to list years")
		return
	}

	filters := gin.H{"search": search, "year": nil}
	if year > 0 {
		filters["year"] = year
	}
	c.JSON(http.StatusOK, gin.H{
		"items":      result.Items,
		"pagination": p.JSON(result.Total),
		"years":      years,
		"filters":    filters,
	})
}

// Get returns one record with its departments, amendments, IRRs and timeline
func (h *PortalHandlers) Get(c *gin.Context) {
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
