// status_repository.go implements StatusRepository for the legal status reference table.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lgu-records/issuance-registry/internal/db/models"
)

// StatusRepository handles legal status persistence
type StatusRepository struct {
	db DBTX
}

// NewStatusRepository creates a new StatusRepository
func NewStatusRepository(db DBTX) *StatusRepository {
	return &StatusRepository{db: db}
}

// FindIDByName resolves a status by exact name. ok is false when no row matches.
func (r *StatusRepository) FindIDByName(ctx context.Context, name string) (id int64, ok bool, err error) {
	err = r.db.GetContext(ctx, &id, `SELECT id FROM statuses WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve status %q: %w", name, err)
	}
	return id, true, nil
}

// GetByID returns a status or nil when it does not exist
func (r *StatusRepository) GetByID(ctx context.Context, id int64) (*models.Status, error) {
	status := &models.Status{}
	err := r.db.GetContext(ctx, status, `SELECT id, name, created_at, updated_at FROM statuses WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return status, nil
}

// List returns a page of statuses ordered by id, optionally filtered by name
func (r *StatusRepository) List(ctx context.Context, search string, limit, offset int) ([]*models.Status, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if s := strings.TrimSpace(search); s != "" {
		args = append(args, "%"+s+"%")
		where += ` AND name ILIKE $1`
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM statuses`+where, args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, name, created_at, updated_at FROM statuses` + where +
		fmt.Sprintf(` ORDER BY id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	statuses := []*models.Status{}
	if err := r.db.SelectContext(ctx, &statuses, query, args...); err != nil {
		return nil, 0, err
	}
	return statuses, total, nil
}

// All returns every status ordered by name, for form pickers
func (r *StatusRepository) All(ctx context.Context) ([]*models.Status, error) {
	statuses := []*models.Status{}
	if err := r.db.SelectContext(ctx, &statuses, `SELECT id, name, created_at, updated_at FROM statuses ORDER BY name`); err != nil {
		return nil, err
	}
	return statuses, nil
}

// NameTaken reports whether another status already uses name
func (r *StatusRepository) NameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	var taken bool
	err := r.db.GetContext(ctx, &taken, `SELECT EXISTS(SELECT 1 FROM statuses WHERE name = $1 AND id <> $2)`, name, excludeID)
	return taken, err
}

// InUse reports whether any executive order or ordinance references the status
func (r *StatusRepository) InUse(ctx context.Context, id int64) (bool, error) {
	var used bool
	err := r.db.GetContext(ctx, &used, `
		SELECT EXISTS(SELECT 1 FROM executive_orders WHERE status_id = $1)
		    OR EXISTS(SELECT 1 FROM ordinances WHERE status_id = $1)`, id)
	return used, err
}

// Create inserts a status
func (r *StatusRepository) Create(ctx context.Context, status *models.Status) error {
	return r.db.QueryRowxContext(ctx,
		`INSERT INTO statuses (name) VALUES ($1) RETURNING id, created_at, updated_at`, status.Name,
	).Scan(&status.ID, &status.CreatedAt, &status.UpdatedAt)
}

// Update renames a status
func (r *StatusRepository) Update(ctx context.Context, status *models.Status) error {
	err := r.db.QueryRowxContext(ctx,
		`UPDATE statuses SET name = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`, status.Name, status.ID,
	).Scan(&status.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Delete removes a status
func (r *StatusRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM statuses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
