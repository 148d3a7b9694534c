// Package models - audit_log.go defines the AuditLog model: an append-only record of a
// create, update or delete against a polymorphic subject (auditable_type + auditable_id).
package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AuditAction is the lifecycle transition an audit entry records
type AuditAction string

const (
	AuditCreated AuditAction = "Created"
	AuditUpdated AuditAction = "Updated"
	AuditDeleted AuditAction = "Deleted"
)

// AuditLog represents one recorded change. OldValues is null on Created,
// NewValues is null on Deleted, and on Updated both hold only changed columns.
type AuditLog struct {
	ID            int64              `db:"id" json:"id"`
	UserID        string             `db:"user_id" json:"user_id"`
	Action        AuditAction        `db:"action" json:"action"`
	AuditableType string             `db:"auditable_type" json:"auditable_type"`
	AuditableID   int64              `db:"auditable_id" json:"auditable_id"`
	OldValues     types.NullJSONText `db:"old_values" json:"old_values"`
	NewValues     types.NullJSONText `db:"new_values" json:"new_values"`
	IPAddress     *string            `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
}

// NewValueMap decodes NewValues. A null column yields an empty map.
func (a *AuditLog) NewValueMap() (map[string]any, error) {
	return decodeValues(a.NewValues)
}

// OldValueMap decodes OldValues. A null column yields an empty map.
func (a *AuditLog) OldValueMap() (map[string]any, error) {
	return decodeValues(a.OldValues)
}

func decodeValues(raw types.NullJSONText) (map[string]any, error) {
	out := map[string]any{}
	if !raw.Valid || len(raw.JSONText) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw.JSONText, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// EncodeValues marshals a snapshot for storage; nil stays SQL NULL
func EncodeValues(values map[string]any) (types.NullJSONText, error) {
	if values == nil {
		return types.NullJSONText{}, nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return types.NullJSONText{}, err
	}
	return types.NullJSONText{JSONText: types.JSONText(raw), Valid: true}, nil
}
