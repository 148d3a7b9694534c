package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
)

// ---------------------------------------------------------------------------
// Router helper
// ---------------------------------------------------------------------------

func newStatsRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock := newMockDB(t)
	h := NewStatsHandler(db)
	h.now = func() time.Time { return time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC) }

	r := gin.New()
	r.GET("/dashboard", h.GetDashboardStats)
	return mock, r
}

var countCols = []string{"total_eos", "eos_this_year", "pending_irrs", "active_offices"}

// ---------------------------------------------------------------------------
// GetDashboardStats tests
// ---------------------------------------------------------------------------

func TestGetDashboardStats_Success(t *testing.T) {
	mock, r := newStatsRouter(t)

	mock.ExpectQuery("total_eos").
		WithArgs(2026, "Drafting", "Pending Approval", "lead").
		WillReturnRows(sqlmock.NewRows(countCols).AddRow(int64(42), int64(7), int64(3), int64(5)))
	mock.ExpectQuery(`EXTRACT\(MONTH FROM date_issued\)`).
		WithArgs(2026).
		WillReturnRows(sqlmock.NewRows([]string{"month", "count"}).AddRow(1, int64(2)).AddRow(5, int64(4)))
	mock.ExpectQuery(`FROM executive_orders e JOIN statuses s`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "eo_number", "title", "status", "updated_at"}).
			AddRow(int64(9), "EO-2026-014", "Creating the Task Force on Flood Control", "Active", time.Now()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)

	stats := resp["stats"].(map[string]interface{})
	if stats["total_eos"] != float64(42) || stats["pending_irrs"] != float64(3) || stats["active_offices"] != float64(5) {
		t.Errorf("stats = %v", stats)
	}

	chart := resp["chart"].(map[string]interface{})
	data := chart["data"].([]interface{})
	if len(data) != 12 {
		t.Fatalf("chart has %d months, want 12", len(data))
	}
	if data[0] != float64(2) || data[4] != float64(4) || data[11] != float64(0) {
		t.Errorf("chart data = %v", data)
	}
	if chart["year"] != float64(2026) {
		t.Errorf("chart year = %v", chart["year"])
	}

	recent := resp["recent_activity"].([]interface{})
	if len(recent) != 1 || recent[0].(map[string]interface{})["eo_number"] != "EO-2026-014" {
		t.Errorf("recent_activity = %v", recent)
	}
	expectationsMet(t, mock)
}

func TestGetDashboardStats_EmptyRegistry(t *testing.T) {
	mock, r := newStatsRouter(t)

	mock.ExpectQuery("total_eos").
		WillReturnRows(sqlmock.NewRows(countCols).AddRow(int64(0), int64(0), int64(0), int64(0)))
	mock.ExpectQuery(`EXTRACT\(MONTH FROM date_issued\)`).
		WillReturnRows(sqlmock.NewRows([]string{"month", "count"}))
	mock.ExpectQuery(`FROM executive_orders e JOIN statuses s`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "eo_number", "title", "status", "updated_at"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := getJSON(w)
	if recent, ok := resp["recent_activity"].([]interface{}); !ok || len(recent) != 0 {
		t.Errorf("recent_activity = %v, want empty list", resp["recent_activity"])
	}
}

func TestGetDashboardStats_CountsFail(t *testing.T) {
	mock, r := newStatsRouter(t)
	mock.ExpectQuery("total_eos").WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestGetDashboardStats_ChartFails(t *testing.T) {
	mock, r := newStatsRouter(t)
	mock.ExpectQuery("total_eos").
		WillReturnRows(sqlmock.NewRows(countCols).AddRow(int64(1), int64(1), int64(0), int64(1)))
	mock.ExpectQuery(`EXTRACT\(MONTH FROM date_issued\)`).WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
