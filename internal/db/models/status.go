// Package models - status.go defines the legal Status reference row and the names the
// lineage cascade resolves by exact match.
package models

import "time"

// Status names the lineage cascade depends on. They are seeded by migration
// and looked up by exact name.
const (
	StatusActive     = "Active"
	StatusAmended    = "Amended"
	StatusSuperseded = "Superseded"
	StatusRepealed   = "Repealed"
	StatusSuspended  = "Suspended"
)

// Status is a named legal status an issuance can hold
type Status struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
