// Package lineage applies the parent status cascade when an issuance declares an
// Amends, Repeals, Supplements or Supersedes relationship to an earlier issuance of
// the same kind.
package lineage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lgu-records/issuance-registry/internal/db/models"
	"github.com/lgu-records/issuance-registry/internal/telemetry"
)

// Issuances is the slice of issuance persistence the engine reads and writes.
// Implementations are expected to be bound to the caller's transaction.
type Issuances interface {
	FindByID(ctx context.Context, kind models.Kind, id int64) (*models.Issuance, error)
	Exists(ctx context.Context, kind models.Kind, id int64) (bool, error)
	IsAncestor(ctx context.Context, kind models.Kind, candidateID, id int64) (bool, error)
	UpdateStatus(ctx context.Context, kind models.Kind, id, statusID int64) error
}

// Statuses resolves status rows by exact name
type Statuses interface {
	FindIDByName(ctx context.Context, name string) (int64, bool, error)
}

// Engine decides and applies parent status cascades
type Engine struct {
	issuances    Issuances
	statuses     Statuses
	rejectCycles bool
}

// Option configures an Engine
type Option func(*Engine)

// WithCycleCheck makes ValidateParent reject parents that would close a loop
// in the lineage chain.
func WithCycleCheck(enabled bool) Option {
	return func(e *Engine) { e.rejectCycles = enabled }
}

// NewEngine creates an Engine over tx-bound stores
func NewEngine(issuances Issuances, statuses Statuses, opts ...Option) *Engine {
	e := &Engine{issuances: issuances, statuses: statuses}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result describes what a cascade did
type Result struct {
	Outcome  string // one of the telemetry.Cascade* values, or "" when no lineage was declared
	ParentID int64
	Status   string // target status name when applied
}

// Applied reports whether the parent's status was written
func (r Result) Applied() bool { return r.Outcome == telemetry.CascadeApplied }

// targetStatus maps a relationship to the parent status it forces. For EO
// Supplements the target is Active and the write is skipped when the parent
// already holds it.
func targetStatus(kind models.Kind, rel models.RelationshipType) (string, bool) {
	if !kind.AllowsRelationship(rel) {
		return "", false
	}
	switch rel {
	case models.RelationshipAmends:
		return models.StatusAmended, true
	case models.RelationshipRepeals:
		return models.StatusRepealed, true
	case models.RelationshipSupplements:
		return models.StatusActive, true
	case models.RelationshipSupersedes:
		return models.StatusSuperseded, true
	}
	return "", false
}

// lineageChanged reports whether child's lineage pointer differs from previous
func lineageChanged(child, previous *models.Issuance) bool {
	if previous == nil {
		return true
	}
	if !sameID(child.ParentID, previous.ParentID) {
		return true
	}
	return relationshipOf(child) != relationshipOf(previous)
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func relationshipOf(i *models.Issuance) models.RelationshipType {
	if i.RelationshipType == nil {
		return ""
	}
	return *i.RelationshipType
}

// Apply runs the cascade for child. previous is the stored state before an
// edit and nil on create. Only the immediate parent is touched.
//
// A missing parent id, missing relationship or unresolvable parent is a no-op.
// On edit the cascade fires only when the parent id or relationship changed.
// A target status that is not seeded returns a *ConfigurationError.
func (e *Engine) Apply(ctx context.Context, child, previous *models.Issuance) (Result, error) {
	if !child.HasLineage() {
		return Result{}, nil
	}
	kind := child.Kind
	rel := *child.RelationshipType
	parentID := *child.ParentID
	res := Result{ParentID: parentID}

	observe := func(outcome string) {
		res.Outcome = outcome
		telemetry.LineageCascadesTotal.WithLabelValues(string(kind), string(rel), outcome).Inc()
	}

	if !lineageChanged(child, previous) {
		observe(telemetry.CascadeSuppressed)
		return res, nil
	}

	target, ok := targetStatus(kind, rel)
	if !ok {
		return Result{}, nil
	}

	parent, err := e.issuances.FindByID(ctx, kind, parentID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load parent %s %d: %w", kind, parentID, err)
	}
	if parent == nil {
		observe(telemetry.CascadeNoParent)
		return res, nil
	}

	statusID, found, err := e.statuses.FindIDByName(ctx, target)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{}, &ConfigurationError{Status: target}
	}

	if rel == models.RelationshipSupplements && parent.StatusID == statusID {
		observe(telemetry.CascadeUnchanged)
		return res, nil
	}

	if err := e.issuances.UpdateStatus(ctx, kind, parentID, statusID); err != nil {
		return Result{}, fmt.Errorf("failed to cascade status to %s %d: %w", kind, parentID, err)
	}
	res.Status = target
	observe(telemetry.CascadeApplied)

	slog.Info("lineage cascade applied",
		"kind", kind, "parent_id", parentID, "relationship", rel, "status", target)
	return res, nil
}

// ValidateParent checks a proposed parent reference. childID is zero on create.
// It returns ErrSelfReference, ErrParentNotFound or, when the cycle check is
// enabled, ErrCycle.
func (e *Engine) ValidateParent(ctx context.Context, kind models.Kind, childID, parentID int64) error {
	if childID != 0 && childID == parentID {
		return ErrSelfReference
	}
	exists, err := e.issuances.Exists(ctx, kind, parentID)
	if err != nil {
		return fmt.Errorf("failed to check parent %s %d: %w", kind, parentID, err)
	}
	if !exists {
		return ErrParentNotFound
	}
	if !e.rejectCycles || childID == 0 {
		return nil
	}

	// The new edge child -> parent closes a loop iff child already sits on
	// parent's ancestor chain.
	loops, err := e.issuances.IsAncestor(ctx, kind, childID, parentID)
	if err != nil {
		return fmt.Errorf("failed to walk lineage of %s %d: %w", kind, parentID, err)
	}
	if loops {
		return ErrCycle
	}
	return nil
}
