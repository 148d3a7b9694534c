package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/lgu-records/issuance-registry/internal/audit"
	"github.com/lgu-records/issuance-registry/internal/config"
	"github.com/lgu-records/issuance-registry/internal/db/models"
)

var errDB = errors.New("db error")

func int64Ptr(i int64) *int64 { return &i }

var testRecords = config.RecordsConfig{
	MaxUploadSizeMB:          10,
	MaxOrdinanceUploadSizeMB: 20,
	RejectLineageCycles:      true,
	AdminPageSize:            10,
	PublicPageSize:           12,
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func actorCtx() context.Context {
	return audit.WithActor(context.Background(), audit.Actor{ID: "clerk-7", IP: "10.1.2.3"})
}

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeBlobs treats every key as present unless listed in missing
type fakeBlobs struct {
	stored    map[string][]byte
	deleted   []string
	missing   map[string]bool
	storeErr  error
	deleteErr error
	existsErr error
	n         int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{stored: map[string][]byte{}, missing: map[string]bool{}}
}

func (f *fakeBlobs) Exists(_ context.Context, key string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return !f.missing[key], nil
}

func (f *fakeBlobs) Store(_ context.Context, folder string, r io.Reader, _ int64) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.n++
	key := fmt.Sprintf("%s/doc-%d.pdf", folder, f.n)
	f.stored[key] = data
	return key, nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) (bool, error) {
	f.deleted = append(f.deleted, key)
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	return true, nil
}

func (f *fakeBlobs) URLFor(_ context.Context, key string) (string, error) {
	return "/files/" + key, nil
}

type fakeForwarder struct {
	logs []*models.AuditLog
}

func (f *fakeForwarder) Enqueue(logs ...*models.AuditLog) {
	f.logs = append(f.logs, logs...)
}

func pdfUpload() *Upload {
	body := []byte("%PDF-1.7\n1 0 obj << /Type /Catalog >> endobj\n%%EOF")
	return &Upload{Name: "eo.pdf", Size: int64(len(body)), Content: bytes.NewReader(body)}
}

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

var issuanceCols = []string{
	"id", "number", "title", "legal_basis", "issuing_authority", "committee_details",
	"date_approved", "attested_by", "approved_by", "official_date", "effectivity_date",
	"status_id", "status_name", "is_active", "file_path", "parent_id", "parent_number",
	"relationship_type", "remarks", "created_at", "updated_at",
}

var (
	issued2025 = time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	issued2026 = time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
)

type eoFixture struct {
	id         int64
	number     string
	title      string
	statusID   int64
	statusName string
	active     bool
	filePath   interface{}
	parentID   interface{}
	rel        interface{}
	issued     time.Time
}

func eoRows(fixtures ...eoFixture) *sqlmock.Rows {
	rows := sqlmock.NewRows(issuanceCols)
	for _, f := range fixtures {
		created := f.issued.Add(9 * time.Hour)
		rows.AddRow(f.id, f.number, f.title, nil, "City Mayor", nil,
			nil, nil, nil, f.issued, nil,
			f.statusID, f.statusName, f.active, f.filePath, f.parentID, nil,
			f.rel, nil, created, created)
	}
	return rows
}

func parentEO() eoFixture {
	return eoFixture{id: 1, number: "EO-2025-001", title: "Creating the City Traffic Board",
		statusID: 1, statusName: "Active", active: true, filePath: "eos/parent.pdf", issued: issued2025}
}

func childEO() eoFixture {
	return eoFixture{id: 2, number: "EO-2026-001", title: "Amending the City Traffic Board",
		statusID: 1, statusName: "Active", active: true, filePath: "eos/child.pdf",
		parentID: int64(1), rel: "Amends", issued: issued2026}
}

// ---------------------------------------------------------------------------
// Query expectations
// ---------------------------------------------------------------------------

func boolRow(v bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"exists"}).AddRow(v)
}

func expectNumberTaken(mock sqlmock.Sqlmock, table, column string, taken bool) {
	mock.ExpectQuery(fmt.Sprintf(`SELECT EXISTS\(SELECT 1 FROM %s WHERE %s = \$1 AND id <> \$2\)`, table, column)).
		WillReturnRows(boolRow(taken))
}

func expectStatus(mock sqlmock.Sqlmock, id int64, name string) {
	mock.ExpectQuery(`SELECT id, name, created_at, updated_at FROM statuses WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}).AddRow(id, name, time.Now(), time.Now()))
}

func expectParentExists(mock sqlmock.Sqlmock, table string, id int64, exists bool) {
	mock.ExpectQuery(fmt.Sprintf(`SELECT EXISTS\(SELECT 1 FROM %s WHERE id = \$1\)`, table)).
		WithArgs(id).
		WillReturnRows(boolRow(exists))
}

func expectDepartments(mock sqlmock.Sqlmock, found ...int64) {
	rows := sqlmock.NewRows([]string{"id"})
	for _, id := range found {
		rows.AddRow(id)
	}
	mock.ExpectQuery(`SELECT id FROM departments WHERE id IN`).WillReturnRows(rows)
}

func expectFindEO(mock sqlmock.Sqlmock, f eoFixture) {
	mock.ExpectQuery(`FROM executive_orders i .*WHERE i.id = \$1`).
		WithArgs(f.id).
		WillReturnRows(eoRows(f))
}

func expectAuditInsert(mock sqlmock.Sqlmock, id int64) {
	mock.ExpectQuery(`INSERT INTO audit_logs`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(id, time.Now()))
}
