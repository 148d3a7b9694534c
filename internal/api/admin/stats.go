// stats.go implements the admin dashboard: record counts, the monthly issuance
// chart and the most recently touched executive orders.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/lgu-records/issuance-registry/internal/db/models"
)

// StatsHandler handles dashboard API requests
type StatsHandler struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(database *sqlx.DB) *StatsHandler {
	return &StatsHandler{
		db:  database,
		now: time.Now,
	}
}

// DashboardCounts are the headline cards of the dashboard
type DashboardCounts struct {
	TotalEOs      int64 `json:"total_eos"`
	EOsThisYear   int64 `json:"eos_this_year"`
	PendingIRRs   int64 `json:"pending_irrs"`
	ActiveOffices int64 `json:"active_offices"`
}

// DashboardChart holds one executive order count per month of Year, January first
type DashboardChart struct {
	Data []int64 `json:"data"`
	Year int     `json:"year"`
}

// RecentActivityEntry is one recently updated executive order
type RecentActivityEntry struct {
	ID        int64     `db:"id" json:"id"`
	EONumber  string    `db:"eo_number" json:"eo_number"`
	Title     string    `db:"title" json:"title"`
	Status    string    `db:"status" json:"status"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DashboardStats represents the response for dashboard statistics
type DashboardStats struct {
	Stats          DashboardCounts       `json:"stats"`
	Chart          DashboardChart        `json:"chart"`
	RecentActivity []RecentActivityEntry `json:"recent_activity"`
}

const recentActivityLimit = 5

// @Summary      Get dashboard statistics
// @Description  Executive order totals, pending IRRs, active lead offices, a monthly chart for the current year and the five most recently updated executive orders.
// @Tags         Dashboard
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  DashboardStats
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/dashboard [get]
// GetDashboardStats returns dashboard statistics. The cards come from a single
// database round-trip.
func (h *StatsHandler) GetDashboardStats(c *gin.Context) {
	ctx := c.Request.Context()
	year := h.now().Year()

	query := `
		SELECT
			(SELECT COUNT(*) FROM executive_orders) AS total_eos,
			(SELECT COUNT(*) FROM executive_orders WHERE EXTRACT(YEAR FROM date_issued) = $1) AS eos_this_year,
			(SELECT COUNT(*) FROM implementing_rule_and_regulations WHERE status IN ($2, $3)) AS pending_irrs,
			(SELECT COUNT(DISTINCT department_id) FROM eo_department WHERE role = $4) AS active_offices
	`

	var stats DashboardStats
	err := h.db.QueryRowContext(ctx, query,
		year, string(models.IRRStatusDrafting), string(models.IRRStatusPendingApproval), string(models.RoleLead),
	).Scan(
		&stats.Stats.TotalEOs,
		&stats.Stats.EOsThisYear,
		&stats.Stats.PendingIRRs,
		&stats.Stats.ActiveOffices,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load dashboard statistics"})
		return
	}

	stats.Chart = DashboardChart{Data: make([]int64, 12), Year: year}
	rows, err := h.db.QueryContext(ctx, `
		SELECT EXTRACT(MONTH FROM date_issued)::int AS month, COUNT(*) AS count
		FROM executive_orders
		WHERE EXTRACT(YEAR FROM date_issued) = $1
		GROUP BY month
		ORDER BY month
	`, year)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load dashboard chart"})
		return
	}
	defer rows.Close()
	for rows.Next() {
		var month int
		var count int64
		if err := rows.Scan(&month, &count); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load dashboard chart"})
			return
		}
		if month >= 1 && month <= 12 {
			stats.Chart.Data[month-1] = count
		}
	}
	if err := rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load dashboard chart"})
		return
	}

	stats.RecentActivity = []RecentActivityEntry{}
	err = h.db.SelectContext(ctx, &stats.RecentActivity, `
		SELECT e.id, e.eo_number, e.title, s.name AS status, e.updated_at
		FROM executive_orders e
		JOIN statuses s ON s.id = e.status_id
		ORDER BY e.updated_at DESC, e.id DESC
		LIMIT $1
	`, recentActivityLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load recent activity"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
