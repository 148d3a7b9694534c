package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/lgu-records/issuance-registry/internal/db/models"
	"github.com/lgu-records/issuance-registry/internal/db/repositories"
)

var issuanceCols = []string{
	"id", "number", "title", "legal_basis", "issuing_authority", "committee_details",
	"date_approved", "attested_by", "approved_by", "official_date", "effectivity_date",
	"status_id", "status_name", "is_active", "file_path", "parent_id", "parent_number",
	"relationship_type", "remarks", "created_at", "updated_at",
}

func ordinanceRow(statusID int64, active bool) *sqlmock.Rows {
	d := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(issuanceCols).AddRow(
		int64(4), "ORD-2025-004", "Anti-Littering Code", nil, nil, nil,
		nil, nil, nil, d, nil,
		statusID, "Active", active, "ordinances/a.pdf", nil, nil,
		nil, nil, d, d)
}

func newAuditedIssuances(t *testing.T) (*Issuances, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	rec := NewRecorder(repositories.NewAuditRepository(sqlxDB))
	return NewIssuances(repositories.NewIssuanceRepository(sqlxDB), rec), mock
}

// ---------------------------------------------------------------------------
// Decorated mutations
// ---------------------------------------------------------------------------

func TestIssuances_UpdateStatusIsAudited(t *testing.T) {
	repo, mock := newAuditedIssuances(t)
	mock.ExpectQuery("SELECT i.id").WithArgs(int64(4)).WillReturnRows(ordinanceRow(1, true))
	mock.ExpectExec("UPDATE ordinances SET status_id").WithArgs(int64(3), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO audit_logs").
		WithArgs("clerk-7", "Updated", "Ordinance", int64(4), []byte(`{"status_id":1}`), []byte(`{"status_id":3}`), "192.168.1.20").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	if err := repo.UpdateStatus(actorCtx(), models.KindOrdinance, 4, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if len(repo.Recorder().Recorded()) != 1 {
		t.Error("status change not remembered for shipping")
	}
}

func TestIssuances_SetActiveIsAudited(t *testing.T) {
	repo, mock := newAuditedIssuances(t)
	mock.ExpectQuery("SELECT i.id").WillReturnRows(ordinanceRow(1, true))
	mock.ExpectExec("UPDATE ordinances SET is_active").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO audit_logs").
		WithArgs("clerk-7", "Updated", "Ordinance", int64(4), []byte(`{"is_active":true}`), []byte(`{"is_active":false}`), "192.168.1.20").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(2), time.Now()))

	if err := repo.SetActive(actorCtx(), models.KindOrdinance, 4, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestIssuances_UnchangedStatusNotAudited(t *testing.T) {
	repo, mock := newAuditedIssuances(t)
	mock.ExpectQuery("SELECT i.id").WillReturnRows(ordinanceRow(1, true))
	mock.ExpectExec("UPDATE ordinances SET status_id").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(actorCtx(), models.KindOrdinance, 4, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestIssuances_DeleteRecordsSnapshot(t *testing.T) {
	repo, mock := newAuditedIssuances(t)
	mock.ExpectQuery("SELECT i.id").WillReturnRows(ordinanceRow(1, true))
	mock.ExpectExec("DELETE FROM ordinances").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO audit_logs").
		WithArgs("clerk-7", "Deleted", "Ordinance", int64(4), sqlmock.AnyArg(), nil, "192.168.1.20").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(3), time.Now()))

	if err := repo.Delete(actorCtx(), models.KindOrdinance, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	recorded := repo.Recorder().Recorded()
	old, _ := recorded[0].OldValueMap()
	if old["ordinance_number"] != "ORD-2025-004" || old["file_path"] != "ordinances/a.pdf" {
		t.Errorf("deleted snapshot = %v", old)
	}
}

func TestIssuances_UpdateMissingRow(t *testing.T) {
	repo, mock := newAuditedIssuances(t)
	mock.ExpectQuery("SELECT i.id").WillReturnRows(sqlmock.NewRows(issuanceCols))

	err := repo.Update(actorCtx(), &models.Issuance{ID: 4, Kind: models.KindOrdinance})
	if !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestIssuances_CreateWithoutActorSkipsAudit(t *testing.T) {
	repo, mock := newAuditedIssuances(t)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO executive_orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(1), now, now))

	eo := &models.Issuance{Kind: models.KindExecutiveOrder, Number: "EO-1", OfficialDate: now}
	if err := repo.Create(context.Background(), eo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
