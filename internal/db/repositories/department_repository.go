// department_repository.go implements DepartmentRepository. Departments are seeded reference
// data and are read-only at runtime.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lgu-records/issuance-registry/internal/db/models"
)

// DepartmentRepository handles department lookups
type DepartmentRepository struct {
	db DBTX
}

// NewDepartmentRepository creates a new DepartmentRepository
func NewDepartmentRepository(db DBTX) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// GetByID returns a department or nil when it does not exist
func (r *DepartmentRepository) GetByID(ctx context.Context, id int64) (*models.Department, error) {
	dept := &models.Department{}
	err := r.db.GetContext(ctx, dept, `SELECT id, code, name, created_at, updated_at FROM departments WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dept, nil
}

// List returns departments ordered by name, optionally filtered by code or name
func (r *DepartmentRepository) List(ctx context.Context, search string) ([]*models.Department, error) {
	query := `SELECT id, code, name, created_at, updated_at FROM departments`
	args := []interface{}{}
	if s := strings.TrimSpace(search); s != "" {
		query += ` WHERE code ILIKE $1 OR name ILIKE $1`
		args = append(args, "%"+s+"%")
	}
	query += ` ORDER BY name`

	depts := []*models.Department{}
	if err := r.db.SelectContext(ctx, &depts, query, args...); err != nil {
		return nil, err
	}
	return depts, nil
}

// MissingIDs returns the subset of ids that have no department row, in input order
func (r *DepartmentRepository) MissingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id FROM departments WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}

	found := []int64{}
	if err := r.db.SelectContext(ctx, &found, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to check departments: %w", err)
	}
	present := make(map[int64]bool, len(found))
	for _, id := range found {
		present[id] = true
	}

	var missing []int64
	for _, id := range ids {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
