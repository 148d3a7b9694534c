// Package models - irr.go defines the Implementing Rules and Regulations model and its
// rollout status vocabulary, which is independent of the parent issuance's legal status.
package models

import "time"

// IRRStatus tracks the operational rollout of an IRR
type IRRStatus string

const (
	IRRStatusDrafting        IRRStatus = "Drafting"
	IRRStatusPendingApproval IRRStatus = "Pending Approval"
	IRRStatusApproved        IRRStatus = "Approved"
	IRRStatusImplemented     IRRStatus = "Implemented"
	IRRStatusDelayed         IRRStatus = "Delayed"
)

// IRRStatuses lists the closed IRR status set in workflow order
func IRRStatuses() []IRRStatus {
	return []IRRStatus{
		IRRStatusDrafting,
		IRRStatusPendingApproval,
		IRRStatusApproved,
		IRRStatusImplemented,
		IRRStatusDelayed,
	}
}

// Valid reports whether s is a member of the closed IRR status set
func (s IRRStatus) Valid() bool {
	for _, known := range IRRStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// Pending reports whether the IRR is still awaiting approval
func (s IRRStatus) Pending() bool {
	return s == IRRStatusDrafting || s == IRRStatusPendingApproval
}

// IRRAuditableType is the audit_logs discriminator for IRRs
const IRRAuditableType = "ImplementingRuleAndRegulation"

// IRRFolder is the blob store folder IRR documents are written to
const IRRFolder = "irrs"

// ImplementingRule belongs to exactly one executive order or ordinance
type ImplementingRule struct {
	ID               int64     `db:"id" json:"id"`
	ExecutiveOrderID *int64    `db:"executive_order_id" json:"executive_order_id,omitempty"`
	OrdinanceID      *int64    `db:"ordinance_id" json:"ordinance_id,omitempty"`
	LeadOfficeID     int64     `db:"lead_office_id" json:"lead_office_id"`
	LeadOfficeName   string    `db:"lead_office_name" json:"lead_office_name"`
	Status           IRRStatus `db:"status" json:"status"`
	FilePath         *string   `db:"file_path" json:"file_path,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Parent returns the kind and id of the issuance the IRR belongs to
func (r *ImplementingRule) Parent() (Kind, int64, bool) {
	switch {
	case r.ExecutiveOrderID != nil && r.OrdinanceID == nil:
		return KindExecutiveOrder, *r.ExecutiveOrderID, true
	case r.OrdinanceID != nil && r.ExecutiveOrderID == nil:
		return KindOrdinance, *r.OrdinanceID, true
	}
	return "", 0, false
}

// Snapshot renders the IRR as a JSON-friendly map keyed by column name
func (r *ImplementingRule) Snapshot() map[string]any {
	snap := map[string]any{
		"id":                 r.ID,
		"executive_order_id": snapshotValue(r.ExecutiveOrderID),
		"ordinance_id":       snapshotValue(r.OrdinanceID),
		"lead_office_id":     r.LeadOfficeID,
		"status":             string(r.Status),
		"file_path":          snapshotValue(r.FilePath),
	}
	if !r.CreatedAt.IsZero() {
		snap["created_at"] = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !r.UpdatedAt.IsZero() {
		snap["updated_at"] = r.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return snap
}
