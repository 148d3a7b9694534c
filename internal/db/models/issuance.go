// Package models - issuance.go defines the Issuance model shared by executive orders and
// ordinances, the closed relationship vocabularies of each kind, and the column layout
// used for persistence and audit snapshots.
package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Kind identifies which issuance table a record lives in
type Kind string

const (
	KindExecutiveOrder Kind = "executive_order"
	KindOrdinance      Kind = "ordinance"
)

// RelationshipType is the lineage relation a child declares toward its parent
type RelationshipType string

const (
	RelationshipAmends      RelationshipType = "Amends"
	RelationshipRepeals     RelationshipType = "Repeals"
	RelationshipSupplements RelationshipType = "Supplements" // executive orders only
	RelationshipSupersedes  RelationshipType = "Supersedes"  // ordinances only
)

// DepartmentRole tags a department's part in an issuance. The role lives on
// the association, not on the department.
type DepartmentRole string

const (
	RoleLead         DepartmentRole = "lead"
	RoleSupport      DepartmentRole = "support"
	RoleSponsor      DepartmentRole = "sponsor"
	RoleImplementing DepartmentRole = "implementing"
)

// DateLayout is the wire and snapshot format for date-only columns
const DateLayout = "2006-01-02"

// KindInfo carries the per-kind vocabulary and table layout
type KindInfo struct {
	Kind          Kind
	Label         string // human label used in messages
	AuditableType string // audit_logs.auditable_type discriminator
	Folder        string // blob store folder

	Table        string
	NumberColumn string
	DateColumn   string
	ParentColumn string
	PivotTable   string
	PivotKey     string

	Relationships []RelationshipType
	PrimaryRole   DepartmentRole
	SecondaryRole DepartmentRole
}

var kinds = map[Kind]KindInfo{
	KindExecutiveOrder: {
		Kind:          KindExecutiveOrder,
		Label:         "Executive Order",
		AuditableType: "ExecutiveOrder",
		Folder:        "eos",
		Table:         "executive_orders",
		NumberColumn:  "eo_number",
		DateColumn:    "date_issued",
		ParentColumn:  "amends_eo_id",
		PivotTable:    "eo_department",
		PivotKey:      "executive_order_id",
		Relationships: []RelationshipType{RelationshipAmends, RelationshipRepeals, RelationshipSupplements},
		PrimaryRole:   RoleLead,
		SecondaryRole: RoleSupport,
	},
	KindOrdinance: {
		Kind:          KindOrdinance,
		Label:         "Ordinance",
		AuditableType: "Ordinance",
		Folder:        "ordinances",
		Table:         "ordinances",
		NumberColumn:  "ordinance_number",
		DateColumn:    "date_enacted",
		ParentColumn:  "amends_ordinance_id",
		PivotTable:    "ordinance_department",
		PivotKey:      "ordinance_id",
		Relationships: []RelationshipType{RelationshipAmends, RelationshipRepeals, RelationshipSupersedes},
		PrimaryRole:   RoleSponsor,
		SecondaryRole: RoleImplementing,
	},
}

// Kinds returns every issuance kind in a stable order
func Kinds() []Kind {
	return []Kind{KindExecutiveOrder, KindOrdinance}
}

// Valid reports whether k is a known issuance kind
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Info returns the vocabulary for k. It panics on an unknown kind; callers
// validate kinds at the routing boundary.
func (k Kind) Info() KindInfo {
	info, ok := kinds[k]
	if !ok {
		panic("models: unknown issuance kind " + string(k))
	}
	return info
}

// AllowsRelationship reports whether r belongs to the closed set of k
func (k Kind) AllowsRelationship(r RelationshipType) bool {
	for _, allowed := range k.Info().Relationships {
		if allowed == r {
			return true
		}
	}
	return false
}

// KindForAuditableType maps an audit discriminator back to its issuance kind
func KindForAuditableType(t string) (Kind, bool) {
	for k, info := range kinds {
		if info.AuditableType == t {
			return k, true
		}
	}
	return "", false
}

// Issuance is an executive order or an ordinance. Kind-specific fields are nil
// on the other kind.
type Issuance struct {
	ID     int64  `db:"id" json:"id"`
	Kind   Kind   `db:"-" json:"kind"`
	Number string `db:"number" json:"number"`
	Title  string `db:"title" json:"title"`

	// Executive order only
	LegalBasis       *string            `db:"legal_basis" json:"legal_basis,omitempty"`
	IssuingAuthority *string            `db:"issuing_authority" json:"issuing_authority,omitempty"`
	CommitteeDetails types.NullJSONText `db:"committee_details" json:"committee_details,omitempty"`

	// Ordinance only
	DateApproved *time.Time `db:"date_approved" json:"date_approved,omitempty"`
	AttestedBy   *string    `db:"attested_by" json:"attested_by,omitempty"`
	ApprovedBy   *string    `db:"approved_by" json:"approved_by,omitempty"`

	OfficialDate    time.Time  `db:"official_date" json:"official_date"`
	EffectivityDate *time.Time `db:"effectivity_date" json:"effectivity_date,omitempty"`

	StatusID   int64   `db:"status_id" json:"status_id"`
	StatusName string  `db:"status_name" json:"status_name"`
	IsActive   bool    `db:"is_active" json:"is_active"`
	FilePath   *string `db:"file_path" json:"file_path,omitempty"`

	ParentID         *int64            `db:"parent_id" json:"parent_id,omitempty"`
	ParentNumber     *string           `db:"parent_number" json:"parent_number,omitempty"`
	RelationshipType *RelationshipType `db:"relationship_type" json:"relationship_type,omitempty"`
	Remarks          *string           `db:"remarks" json:"remarks,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EventDate is the date an issuance appears at in a timeline: the official
// date, falling back to the creation timestamp.
func (i *Issuance) EventDate() time.Time {
	if !i.OfficialDate.IsZero() {
		return i.OfficialDate
	}
	return i.CreatedAt
}

// HasLineage reports whether both halves of the lineage pointer are set
func (i *Issuance) HasLineage() bool {
	return i.ParentID != nil && i.RelationshipType != nil && *i.RelationshipType != ""
}

// Column is one writable column with its driver value
type Column struct {
	Name  string
	Value any
}

// Columns returns the writable columns of i in insert order, named as they are
// in i's table.
func (i *Issuance) Columns() []Column {
	info := i.Kind.Info()
	var relationship *string
	if i.RelationshipType != nil {
		s := string(*i.RelationshipType)
		relationship = &s
	}

	cols := []Column{
		{info.NumberColumn, i.Number},
		{"title", i.Title},
	}
	switch i.Kind {
	case KindExecutiveOrder:
		authority := i.IssuingAuthority
		if authority == nil {
			defaultAuthority := "City Mayor"
			authority = &defaultAuthority
		}
		cols = append(cols,
			Column{"legal_basis", i.LegalBasis},
			Column{"issuing_authority", *authority},
			Column{"committee_details", i.CommitteeDetails},
			Column{info.DateColumn, i.OfficialDate},
		)
	case KindOrdinance:
		cols = append(cols,
			Column{info.DateColumn, i.OfficialDate},
			Column{"date_approved", i.DateApproved},
			Column{"attested_by", i.AttestedBy},
			Column{"approved_by", i.ApprovedBy},
		)
	}
	return append(cols,
		Column{"effectivity_date", i.EffectivityDate},
		Column{"status_id", i.StatusID},
		Column{"is_active", i.IsActive},
		Column{"file_path", i.FilePath},
		Column{info.ParentColumn, i.ParentID},
		Column{"relationship_type", relationship},
		Column{"remarks", i.Remarks},
	)
}

// Snapshot renders i as a JSON-friendly map keyed by column name, the shape
// stored in audit_logs.old_values / new_values.
func (i *Issuance) Snapshot() map[string]any {
	snap := map[string]any{"id": i.ID}
	for _, c := range i.Columns() {
		snap[c.Name] = snapshotValue(c.Value)
	}
	if !i.CreatedAt.IsZero() {
		snap["created_at"] = i.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !i.UpdatedAt.IsZero() {
		snap["updated_at"] = i.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return snap
}

func snapshotValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.Format(DateLayout)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.Format(DateLayout)
	case *string:
		if val == nil {
			return nil
		}
		return *val
	case *int64:
		if val == nil {
			return nil
		}
		return *val
	case types.NullJSONText:
		if !val.Valid || len(val.JSONText) == 0 {
			return nil
		}
		var decoded any
		if err := json.Unmarshal(val.JSONText, &decoded); err != nil {
			return string(val.JSONText)
		}
		return decoded
	default:
		return v
	}
}

// timestampColumns never count as a change on their own
var timestampColumns = map[string]bool{"id": true, "created_at": true, "updated_at": true}

// Diff compares two snapshots and returns the prior and new values of the
// columns that changed. Both maps are empty when nothing changed.
func Diff(before, after map[string]any) (oldValues, newValues map[string]any) {
	oldValues = map[string]any{}
	newValues = map[string]any{}
	for key, next := range after {
		if timestampColumns[key] {
			continue
		}
		prev, existed := before[key]
		if existed && equalSnapshotValues(prev, next) {
			continue
		}
		oldValues[key] = prev
		newValues[key] = next
	}
	return oldValues, newValues
}

func equalSnapshotValues(a, b any) bool {
	// Snapshots built from the database and from request input can disagree
	// on numeric width, so compare through their JSON encoding.
	if reflect.DeepEqual(a, b) {
		return true
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return strings.TrimSpace(string(ja)) == strings.TrimSpace(string(jb))
}

// IssuanceDepartment is a department attached to an issuance with its role
type IssuanceDepartment struct {
	DepartmentID int64          `db:"department_id" json:"department_id"`
	Code         string         `db:"code" json:"code"`
	Name         string         `db:"name" json:"name"`
	Role         DepartmentRole `db:"role" json:"role"`
}

// DepartmentAssignment is one (department, role) pair to attach
type DepartmentAssignment struct {
	DepartmentID int64
	Role         DepartmentRole
}

// IssuanceSummary is the lightweight projection used for parent pickers and
// lineage references
type IssuanceSummary struct {
	ID     int64  `db:"id" json:"id"`
	Number string `db:"number" json:"number"`
	Title  string `db:"title" json:"title"`
}
