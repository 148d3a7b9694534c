package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lgu-records/issuance-registry/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var auditCols = []string{
	"id", "user_id", "action", "auditable_type", "auditable_id",
	"old_values", "new_values", "ip_address", "created_at",
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newAuditRepo(t *testing.T) (*AuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewAuditRepository(db), mock
}

func sampleAuditRow() *sqlmock.Rows {
	return sqlmock.NewRows(auditCols).
		AddRow(int64(1), "clerk@city.gov", "Updated", "ExecutiveOrder", int64(7),
			[]byte(`{"status_id":1}`), []byte(`{"status_id":2}`), "10.0.0.5", time.Now())
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestAuditCreate_Success(t *testing.T) {
	repo, mock := newAuditRepo(t)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO audit_logs").
		WithArgs("clerk@city.gov", "Created", "Ordinance", int64(3), nil, sqlmock.AnyArg(), "10.0.0.5").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), now))

	newValues, _ := models.EncodeValues(map[string]any{"title": "Tricycle Franchising Code"})
	log := &models.AuditLog{
		UserID:        "clerk@city.gov",
		Action:        models.AuditCreated,
		AuditableType: "Ordinance",
		AuditableID:   3,
		NewValues:     newValues,
		IPAddress:     strPtr("10.0.0.5"),
	}
	if err := repo.Create(context.Background(), log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log.ID != 42 {
		t.Errorf("ID = %d, want 42", log.ID)
	}
	if !log.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", log.CreatedAt, now)
	}
	expectationsMet(t, mock)
}

func TestAuditCreate_DBError(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("INSERT INTO audit_logs").WillReturnError(errDB)

	log := &models.AuditLog{Action: models.AuditDeleted, AuditableType: "Ordinance", AuditableID: 1}
	if err := repo.Create(context.Background(), log); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// ListForSubject
// ---------------------------------------------------------------------------

func TestAuditListForSubject(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT id.*FROM audit_logs.*WHERE auditable_type = \\$1 AND auditable_id = \\$2.*ORDER BY created_at DESC").
		WithArgs("ExecutiveOrder", int64(7)).
		WillReturnRows(sampleAuditRow())

	logs, err := repo.ListForSubject(context.Background(), "ExecutiveOrder", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("len(logs) = %d, want 1", len(logs))
	}
	if logs[0].Action != models.AuditUpdated {
		t.Errorf("Action = %q, want Updated", logs[0].Action)
	}
	vals, err := logs[0].NewValueMap()
	if err != nil {
		t.Fatalf("NewValueMap: %v", err)
	}
	if vals["status_id"] != float64(2) {
		t.Errorf("new status_id = %v, want 2", vals["status_id"])
	}
}

func TestAuditListForSubject_Error(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT id.*FROM audit_logs").WillReturnError(errDB)

	if _, err := repo.ListForSubject(context.Background(), "Ordinance", 1); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestAuditList_NoFilters(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id.*FROM audit_logs").
		WithArgs(10, 0).
		WillReturnRows(sampleAuditRow())

	logs, total, err := repo.List(context.Background(), AuditFilters{}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
	if len(logs) != 1 {
		t.Errorf("len(logs) = %d, want 1", len(logs))
	}
}

func TestAuditList_WithFilters(t *testing.T) {
	repo, mock := newAuditRepo(t)
	userID := "clerk@city.gov"
	action := "Deleted"
	auditableType := "Ordinance"

	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs WHERE 1=1 AND user_id = \\$1 AND action = \\$2 AND auditable_type = \\$3 AND auditable_id = \\$4").
		WithArgs(userID, action, auditableType, int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT id.*FROM audit_logs.*LIMIT \\$5 OFFSET \\$6").
		WithArgs(userID, action, auditableType, int64(9), 25, 50).
		WillReturnRows(sqlmock.NewRows(auditCols))

	logs, total, err := repo.List(context.Background(), AuditFilters{
		UserID:        &userID,
		Action:        &action,
		AuditableType: &auditableType,
		AuditableID:   int64Ptr(9),
	}, 25, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || len(logs) != 0 {
		t.Errorf("got %d logs, total %d; want none", len(logs), total)
	}
	expectationsMet(t, mock)
}

func TestAuditList_CountError(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs").WillReturnError(errDB)

	if _, _, err := repo.List(context.Background(), AuditFilters{}, 10, 0); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestAuditList_QueryError(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id.*FROM audit_logs").WillReturnError(errDB)

	if _, _, err := repo.List(context.Background(), AuditFilters{}, 10, 0); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestAuditGet_Found(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT id.*FROM audit_logs WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(sampleAuditRow())

	log, err := repo.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log == nil || log.ID != 1 {
		t.Fatalf("Get() = %+v, want id 1", log)
	}
	if log.IPAddress == nil || *log.IPAddress != "10.0.0.5" {
		t.Errorf("IPAddress = %v", log.IPAddress)
	}
}

func TestAuditGet_NotFound(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT id.*FROM audit_logs WHERE id").
		WillReturnRows(sqlmock.NewRows(auditCols))

	log, err := repo.Get(context.Background(), 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log != nil {
		t.Errorf("expected nil, got %v", log)
	}
}
