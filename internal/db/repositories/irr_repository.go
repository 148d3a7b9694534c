// irr_repository.go implements IRRRepository for implementing rules and regulations.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lgu-records/issuance-registry/internal/db/models"
)

const irrSelect = `
	SELECT r.id, r.executive_order_id, r.ordinance_id, r.lead_office_id, d.name AS lead_office_name,
		r.status, r.file_path, r.created_at, r.updated_at
	FROM implementing_rule_and_regulations r
	JOIN departments d ON d.id = r.lead_office_id`

// IRRRepository handles IRR persistence
type IRRRepository struct {
	db DBTX
}

// NewIRRRepository creates a new IRRRepository
func NewIRRRepository(db DBTX) *IRRRepository {
	return &IRRRepository{db: db}
}

// IRRFilters narrows List results
type IRRFilters struct {
	Status *models.IRRStatus
	Kind   *models.Kind
}

// GetByID returns an IRR or nil when it does not exist
func (r *IRRRepository) GetByID(ctx context.Context, id int64) (*models.ImplementingRule, error) {
	irr := &models.ImplementingRule{}
	err := r.db.GetContext(ctx, irr, irrSelect+` WHERE r.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return irr, nil
}

// ListForIssuance returns the IRRs attached to one issuance, newest first
func (r *IRRRepository) ListForIssuance(ctx context.Context, kind models.Kind, id int64) ([]*models.ImplementingRule, error) {
	column := "executive_order_id"
	if kind == models.KindOrdinance {
		column = "ordinance_id"
	}
	irrs := []*models.ImplementingRule{}
	query := irrSelect + fmt.Sprintf(` WHERE r.%s = $1 ORDER BY r.created_at DESC, r.id DESC`, column)
	if err := r.db.SelectContext(ctx, &irrs, query, id); err != nil {
		return nil, fmt.Errorf("failed to list IRRs of %s %d: %w", kind, id, err)
	}
	return irrs, nil
}

// List retrieves IRRs with optional filters and pagination
func (r *IRRRepository) List(ctx context.Context, filters IRRFilters, limit, offset int) ([]*models.ImplementingRule, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if filters.Status != nil {
		args = append(args, string(*filters.Status))
		where += fmt.Sprintf(` AND r.status = $%d`, len(args))
	}
	if filters.Kind != nil {
		switch *filters.Kind {
		case models.KindExecutiveOrder:
			where += ` AND r.executive_order_id IS NOT NULL`
		case models.KindOrdinance:
			where += ` AND r.ordinance_id IS NOT NULL`
		}
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM implementing_rule_and_regulations r`+where, args...); err != nil {
		return nil, 0, err
	}

	query := irrSelect + where + fmt.Sprintf(` ORDER BY r.updated_at DESC, r.id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	irrs := []*models.ImplementingRule{}
	if err := r.db.SelectContext(ctx, &irrs, query, args...); err != nil {
		return nil, 0, err
	}
	return irrs, total, nil
}

// Create inserts an IRR
func (r *IRRRepository) Create(ctx context.Context, irr *models.ImplementingRule) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO implementing_rule_and_regulations (executive_order_id, ordinance_id, lead_office_id, status, file_path)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		irr.ExecutiveOrderID, irr.OrdinanceID, irr.LeadOfficeID, string(irr.Status), irr.FilePath,
	).Scan(&irr.ID, &irr.CreatedAt, &irr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create IRR: %w", err)
	}
	return nil
}

// Update rewrites an IRR
func (r *IRRRepository) Update(ctx context.Context, irr *models.ImplementingRule) error {
	err := r.db.QueryRowxContext(ctx, `
		UPDATE implementing_rule_and_regulations
		SET executive_order_id = $1, ordinance_id = $2, lead_office_id = $3, status = $4, file_path = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`,
		irr.ExecutiveOrderID, irr.OrdinanceID, irr.LeadOfficeID, string(irr.Status), irr.FilePath, irr.ID,
	).Scan(&irr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update IRR %d: %w", irr.ID, err)
	}
	return nil
}

// Delete removes an IRR
func (r *IRRRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM implementing_rule_and_regulations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
