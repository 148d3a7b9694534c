// audit_repository.go implements AuditRepository, providing database queries for writing
// and retrieving audit log entries with support for filtered queries across actors and subjects.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lgu-records/issuance-registry/internal/db/models"
)

const auditColumns = `id, user_id, action, auditable_type, auditable_id, old_values, new_values, ip_address, created_at`

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db DBTX
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit logs
type AuditFilters struct {
	UserID        *string
	Action        *string
	AuditableType *string
	AuditableID   *int64
	StartDate     *time.Time
	EndDate       *time.Time
}

// Create appends an audit entry and fills in its id and timestamp
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (user_id, action, auditable_type, auditable_id, old_values, new_values, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	return r.db.QueryRowxContext(ctx, query,
		log.UserID,
		string(log.Action),
		log.AuditableType,
		log.AuditableID,
		log.OldValues,
		log.NewValues,
		log.IPAddress,
	).Scan(&log.ID, &log.CreatedAt)
}

// ListForSubject returns every entry for one subject, newest first
func (r *AuditRepository) ListForSubject(ctx context.Context, auditableType string, auditableID int64) ([]*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + `
		FROM audit_logs
		WHERE auditable_type = $1 AND auditable_id = $2
		ORDER BY created_at DESC, id DESC`

	logs := []*models.AuditLog{}
	if err := r.db.SelectContext(ctx, &logs, query, auditableType, auditableID); err != nil {
		return nil, fmt.Errorf("failed to load audit trail for %s %d: %w", auditableType, auditableID, err)
	}
	return logs, nil
}

// List retrieves audit logs with optional filters and pagination
func (r *AuditRepository) List(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	paramIndex := 1

	add := func(clause string, value interface{}) {
		where += fmt.Sprintf(clause, paramIndex)
		args = append(args, value)
		paramIndex++
	}

	if filters.UserID != nil {
		add(` AND user_id = $%d`, *filters.UserID)
	}
	if filters.Action != nil {
		add(` AND action = $%d`, *filters.Action)
	}
	if filters.AuditableType != nil {
		add(` AND auditable_type = $%d`, *filters.AuditableType)
	}
	if filters.AuditableID != nil {
		add(` AND auditable_id = $%d`, *filters.AuditableID)
	}
	if filters.StartDate != nil {
		add(` AND created_at >= $%d`, *filters.StartDate)
	}
	if filters.EndDate != nil {
		add(` AND created_at <= $%d`, *filters.EndDate)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_logs`+where, args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + auditColumns + ` FROM audit_logs` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	logs := []*models.AuditLog{}
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// Get retrieves a single audit log entry by ID
func (r *AuditRepository) Get(ctx context.Context, id int64) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	err := r.db.GetContext(ctx, log, `SELECT `+auditColumns+` FROM audit_logs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}
