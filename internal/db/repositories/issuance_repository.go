// issuance_repository.go implements IssuanceRepository, the persistence layer for executive
// orders and ordinances. Both kinds share one model; the per-kind table and column names
// come from models.KindInfo and are aliased to common names on read.
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

// maxLineageDepth bounds ancestor walks so a pre-existing loop cannot spin forever
const maxLineageDepth = 256

// IssuanceRepository handles executive order and ordinance persistence
type IssuanceRepository struct {
	db DBTX
}

// NewIssuanceRepository creates a new IssuanceRepository
func NewIssuanceRepository(db DBTX) *IssuanceRepository {
	return &IssuanceRepository{db: db}
}

// IssuanceFilter narrows List results
type IssuanceFilter struct {
	// Search matches number or title, case-insensitive substring
	Search string
	// Year restricts to records whose official date falls in that year
	Year   int
	Limit  int
	Offset int
}

// selectIssuance builds the SELECT/FROM clause for kind with columns aliased to
// the shared Issuance field names. Alias "i" is the issuance table.
func selectIssuance(kind models.Kind) string {
	info := kind.Info()
	var kindCols string
	switch kind {
	case models.KindExecutiveOrder:
		kindCols = `i.legal_basis, i.issuing_authority, i.committee_details,
			NULL::date AS date_approved, NULL::text AS attested_by, NULL::text AS approved_by`
	default:
		kindCols = `NULL::text AS legal_basis, NULL::text AS issuing_authority, NULL::jsonb AS committee_details,
			i.date_approved, i.attested_by, i.approved_by`
	}
	return fmt.Sprintf(`
		SELECT i.id, i.%[2]s AS number, i.title, %[5]s,
			i.%[3]s AS official_date, i.effectivity_date,
			i.status_id, s.name AS status_name, i.is_active, i.file_path,
			i.%[4]s AS parent_id, p.%[2]s AS parent_number, i.relationship_type, i.remarks,
			i.created_at, i.updated_at
		FROM %[1]s i
		JOIN statuses s ON s.id = i.status_id
		LEFT JOIN %[1]s p ON p.id = i.%[4]s`,
		info.Table, info.NumberColumn, info.DateColumn, info.ParentColumn, kindCols)
}

func stampKind(kind models.Kind, items []*models.Issuance) {
	for _, it := range items {
		it.Kind = kind
	}
}

// FindByID returns the issuance of kind with id, or nil when it does not exist
func (r *IssuanceRepository) FindByID(ctx context.Context, kind models.Kind, id int64) (*models.Issuance, error) {
	var issuance models.Issuance
	err := r.db.GetContext(ctx, &issuance, selectIssuance(kind)+` WHERE i.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %d: %w", kind, id, err)
	}
	issuance.Kind = kind
	return &issuance, nil
}

// Exists reports whether an issuance of kind with id exists
func (r *IssuanceRepository) Exists(ctx context.Context, kind models.Kind, id int64) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, kind.Info().Table)
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return false, err
	}
	return exists, nil
}

// NumberTaken reports whether number is used by another issuance of kind.
// excludeID is ignored when zero.
func (r *IssuanceRepository) NumberTaken(ctx context.Context, kind models.Kind, number string, excludeID int64) (bool, error) {
	info := kind.Info()
	var taken bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1 AND id <> $2)`, info.Table, info.NumberColumn)
	if err := r.db.GetContext(ctx, &taken, query, number, excludeID); err != nil {
		return false, err
	}
	return taken, nil
}

// IsAncestor reports whether candidateID is id itself or appears anywhere on
// id's parent chain.
func (r *IssuanceRepository) IsAncestor(ctx context.Context, kind models.Kind, candidateID, id int64) (bool, error) {
	info := kind.Info()
	query := fmt.Sprintf(`
		WITH RECURSIVE chain(id, parent_id, depth) AS (
			SELECT id, %[2]s, 0 FROM %[1]s WHERE id = $1
			UNION ALL
			SELECT t.id, t.%[2]s, chain.depth + 1
			FROM %[1]s t
			JOIN chain ON t.id = chain.parent_id
			WHERE chain.depth < $3
		)
		SELECT EXISTS(SELECT 1 FROM chain WHERE id = $2)`, info.Table, info.ParentColumn)

	var found bool
	if err := r.db.GetContext(ctx, &found, query, id, candidateID, maxLineageDepth); err != nil {
		return false, err
	}
	return found, nil
}

// Create inserts issuance and fills in its id and timestamps
func (r *IssuanceRepository) Create(ctx context.Context, issuance *models.Issuance) error {
	cols := issuance.Columns()
	names := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = c.Value
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING id, created_at, updated_at`,
		issuance.Kind.Info().Table, strings.Join(names, ", "), strings.Join(placeholders, ", "))

	err := r.db.QueryRowxContext(ctx, query, args...).Scan(&issuance.ID, &issuance.CreatedAt, &issuance.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", issuance.Kind, err)
	}
	return nil
}

// Update rewrites every writable column of issuance and refreshes UpdatedAt
func (r *IssuanceRepository) Update(ctx context.Context, issuance *models.Issuance) error {
	cols := issuance.Columns()
	sets := make([]string, len(cols))
	args := make([]interface{}, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c.Name, i+1)
		args = append(args, c.Value)
	}
	args = append(args, issuance.ID)

	query := fmt.Sprintf(`UPDATE %s SET %s, updated_at = NOW() WHERE id = $%d RETURNING updated_at`,
		issuance.Kind.Info().Table, strings.Join(sets, ", "), len(args))

	err := r.db.QueryRowxContext(ctx, query, args...).Scan(&issuance.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update %s %d: %w", issuance.Kind, issuance.ID, err)
	}
	return nil
}

// UpdateStatus sets the legal status of a single issuance
func (r *IssuanceRepository) UpdateStatus(ctx context.Context, kind models.Kind, id, statusID int64) error {
	query := fmt.Sprintf(`UPDATE %s SET status_id = $1, updated_at = NOW() WHERE id = $2`, kind.Info().Table)
	res, err := r.db.ExecContext(ctx, query, statusID, id)
	if err != nil {
		return fmt.Errorf("failed to update status of %s %d: %w", kind, id, err)
	}
	return requireRow(res)
}

// SetActive toggles the effectiveness flag of a single issuance
func (r *IssuanceRepository) SetActive(ctx context.Context, kind models.Kind, id int64, active bool) error {
	query := fmt.Sprintf(`UPDATE %s SET is_active = $1, updated_at = NOW() WHERE id = $2`, kind.Info().Table)
	res, err := r.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("failed to toggle %s %d: %w", kind, id, err)
	}
	return requireRow(res)
}

// Delete removes an issuance. Children keep existing with a nulled parent
// pointer and department associations cascade away.
func (r *IssuanceRepository) Delete(ctx context.Context, kind models.Kind, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, kind.Info().Table)
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", kind, id, err)
	}
	return requireRow(res)
}

// AttachDepartments inserts one association row per assignment
func (r *IssuanceRepository) AttachDepartments(ctx context.Context, kind models.Kind, id int64, assignments []models.DepartmentAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	info := kind.Info()
	values := make([]string, len(assignments))
	args := make([]interface{}, 0, len(assignments)*3)
	for i, a := range assignments {
		values[i] = fmt.Sprintf("($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3)
		args = append(args, id, a.DepartmentID, string(a.Role))
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s, department_id, role) VALUES %s`,
		info.PivotTable, info.PivotKey, strings.Join(values, ", "))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to attach departments to %s %d: %w", kind, id, err)
	}
	return nil
}

// DetachAllDepartments removes every association of an issuance
func (r *IssuanceRepository) DetachAllDepartments(ctx context.Context, kind models.Kind, id int64) error {
	info := kind.Info()
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, info.PivotTable, info.PivotKey)
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to detach departments from %s %d: %w", kind, id, err)
	}
	return nil
}

// ListDepartments returns the departments attached to an issuance, primary role first
func (r *IssuanceRepository) ListDepartments(ctx context.Context, kind models.Kind, id int64) ([]models.IssuanceDepartment, error) {
	info := kind.Info()
	query := fmt.Sprintf(`
		SELECT d.id AS department_id, d.code, d.name, x.role
		FROM %s x
		JOIN departments d ON d.id = x.department_id
		WHERE x.%s = $1
		ORDER BY CASE WHEN x.role = $2 THEN 0 ELSE 1 END, d.name`, info.PivotTable, info.PivotKey)

	depts := []models.IssuanceDepartment{}
	if err := r.db.SelectContext(ctx, &depts, query, id, string(info.PrimaryRole)); err != nil {
		return nil, fmt.Errorf("failed to list departments of %s %d: %w", kind, id, err)
	}
	return depts, nil
}

// ListDepartmentsFor returns the departments of each of ids in one query,
// ordered the same way as ListDepartments. ids without departments are absent.
func (r *IssuanceRepository) ListDepartmentsFor(ctx context.Context, kind models.Kind, ids []int64) (map[int64][]models.IssuanceDepartment, error) {
	byID := make(map[int64][]models.IssuanceDepartment, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	info := kind.Info()
	query, args, err := sqlx.In(fmt.Sprintf(`
		SELECT x.%[2]s AS owner_id, d.id AS department_id, d.code, d.name, x.role
		FROM %[1]s x
		JOIN departments d ON d.id = x.department_id
		WHERE x.%[2]s IN (?)
		ORDER BY x.%[2]s, CASE WHEN x.role = ? THEN 0 ELSE 1 END, d.name`, info.PivotTable, info.PivotKey),
		ids, string(info.PrimaryRole))
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments of %s: %w", kind, err)
	}
	defer rows.Close()
	for rows.Next() {
		var row struct {
			OwnerID int64 `db:"owner_id"`
			models.IssuanceDepartment
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		byID[row.OwnerID] = append(byID[row.OwnerID], row.IssuanceDepartment)
	}
	return byID, rows.Err()
}

// ListChildren returns every issuance whose parent pointer targets parentID
func (r *IssuanceRepository) ListChildren(ctx context.Context, kind models.Kind, parentID int64) ([]*models.Issuance, error) {
	info := kind.Info()
	query := selectIssuance(kind) + fmt.Sprintf(` WHERE i.%s = $1 ORDER BY i.%s, i.id`, info.ParentColumn, info.DateColumn)

	children := []*models.Issuance{}
	if err := r.db.SelectContext(ctx, &children, query, parentID); err != nil {
		return nil, fmt.Errorf("failed to list children of %s %d: %w", kind, parentID, err)
	}
	stampKind(kind, children)
	return children, nil
}

func (f IssuanceFilter) where(info models.KindInfo) (string, []interface{}) {
	clauses := []string{"1=1"}
	args := []interface{}{}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		clauses = append(clauses, fmt.Sprintf("(i.%s ILIKE $%d OR i.title ILIKE $%d)", info.NumberColumn, len(args), len(args)))
	}
	if f.Year > 0 {
		args = append(args, f.Year)
		clauses = append(clauses, fmt.Sprintf("EXTRACT(YEAR FROM i.%s) = $%d", info.DateColumn, len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

// List returns a page of issuances of kind, newest official date first, and the
// total matching count
func (r *IssuanceRepository) List(ctx context.Context, kind models.Kind, filter IssuanceFilter) ([]*models.Issuance, int, error) {
	info := kind.Info()
	where, args := filter.where(info)

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s i WHERE %s`, info.Table, where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count %s records: %w", kind, err)
	}

	query := selectIssuance(kind) + fmt.Sprintf(` WHERE %s ORDER BY i.%s DESC, i.id DESC LIMIT $%d OFFSET $%d`,
		where, info.DateColumn, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	items := []*models.Issuance{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list %s records: %w", kind, err)
	}
	stampKind(kind, items)
	return items, total, nil
}

// Years returns the distinct official-date years present for kind, newest first
func (r *IssuanceRepository) Years(ctx context.Context, kind models.Kind) ([]int, error) {
	info := kind.Info()
	query := fmt.Sprintf(`SELECT DISTINCT EXTRACT(YEAR FROM %s)::int AS year FROM %s ORDER BY year DESC`, info.DateColumn, info.Table)
	years := []int{}
	if err := r.db.SelectContext(ctx, &years, query); err != nil {
		return nil, err
	}
	return years, nil
}

// Options returns (id, number, title) for every issuance of kind, ordered by
// number descending, for parent pickers
func (r *IssuanceRepository) Options(ctx context.Context, kind models.Kind) ([]models.IssuanceSummary, error) {
	info := kind.Info()
	query := fmt.Sprintf(`SELECT id, %[2]s AS number, title FROM %[1]s ORDER BY %[2]s DESC`, info.Table, info.NumberColumn)
	opts := []models.IssuanceSummary{}
	if err := r.db.SelectContext(ctx, &opts, query); err != nil {
		return nil, err
	}
	return opts, nil
}

// CountChildren returns how many issuances point at each of ids
func (r *IssuanceRepository) CountChildren(ctx context.Context, kind models.Kind, ids []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}
	info := kind.Info()
	query, args, err := sqlx.In(fmt.Sprintf(`SELECT %[2]s AS parent_id, COUNT(*) AS n FROM %[1]s WHERE %[2]s IN (?) GROUP BY %[2]s`,
		info.Table, info.ParentColumn), ids)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count children: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var parentID int64
		var n int
		if err := rows.Scan(&parentID, &n); err != nil {
			return nil, err
		}
		counts[parentID] = n
	}
	return counts, rows.Err()
}
