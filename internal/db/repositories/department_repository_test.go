package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var departmentCols = []string{"id", "code", "name", "created_at", "updated_at"}

func newDepartmentRepo(t *testing.T) (*DepartmentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewDepartmentRepository(db), mock
}

func TestDepartmentList(t *testing.T) {
	repo, mock := newDepartmentRepo(t)
	now := time.Now()
	mock.ExpectQuery("SELECT id, code, name.*FROM departments ORDER BY name").
		WillReturnRows(sqlmock.NewRows(departmentCols).
			AddRow(int64(1), "CADM", "City Administrator's Office", now, now).
			AddRow(int64(2), "CBO", "City Budget Office", now, now))

	depts, err := repo.List(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(depts) != 2 {
		t.Errorf("len(depts) = %d, want 2", len(depts))
	}
}

func TestDepartmentList_Search(t *testing.T) {
	repo, mock := newDepartmentRepo(t)
	mock.ExpectQuery("WHERE code ILIKE \\$1 OR name ILIKE \\$1 ORDER BY name").
		WithArgs("%budget%").
		WillReturnRows(sqlmock.NewRows(departmentCols))

	if _, err := repo.List(context.Background(), "budget"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectationsMet(t, mock)
}

func TestDepartmentGetByID_NotFound(t *testing.T) {
	repo, mock := newDepartmentRepo(t)
	mock.ExpectQuery("FROM departments WHERE id = \\$1").WillReturnRows(sqlmock.NewRows(departmentCols))

	d, err := repo.GetByID(context.Background(), 500)
	if err != nil || d != nil {
		t.Errorf("GetByID() = %v, %v; want nil, nil", d, err)
	}
}

func TestDepartmentMissingIDs(t *testing.T) {
	repo, mock := newDepartmentRepo(t)
	mock.ExpectQuery("SELECT id FROM departments WHERE id IN \\(\\$1, \\$2, \\$3\\)").
		WithArgs(int64(1), int64(2), int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))

	missing, err := repo.MissingIDs(context.Background(), []int64{1, 2, 99})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(missing) != 1 || missing[0] != 99 {
		t.Errorf("missing = %v, want [99]", missing)
	}
}

func TestDepartmentMissingIDs_Empty(t *testing.T) {
	repo, mock := newDepartmentRepo(t)
	missing, err := repo.MissingIDs(context.Background(), nil)
	if err != nil || len(missing) != 0 {
		t.Errorf("MissingIDs(nil) = %v, %v", missing, err)
	}
	expectationsMet(t, mock)
}
