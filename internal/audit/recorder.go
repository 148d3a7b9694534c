// Package audit records a structured change history for issuances and IRRs and
// optionally forwards committed entries to external sinks.
//
// Rows are written to audit_logs through a Recorder bound to the caller's
// transaction, so an entry exists iff the mutation it describes committed.
// Shipping to files or webhooks happens after commit and never fails the
// originating request.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lgu-records/issuance-registry/internal/db/models"
	"github.com/lgu-records/issuance-registry/internal/telemetry"
)

// Sink persists audit rows
type Sink interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// Recorder writes audit rows for the actor found on the request context and
// remembers what it wrote so the caller can ship the entries after commit.
type Recorder struct {
	sink Sink

	mu       sync.Mutex
	recorded []*models.AuditLog
}

// NewRecorder creates a Recorder over sink
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Record persists one entry. Without an actor on ctx it does nothing and
// returns nil.
func (r *Recorder) Record(ctx context.Context, action models.AuditAction, auditableType string, id int64, oldValues, newValues map[string]any) error {
	actor, ok := ActorFrom(ctx)
	if !ok {
		slog.Debug("audit skipped: no actor on context",
			"action", action, "auditable_type", auditableType, "auditable_id", id)
		return nil
	}

	oldJSON, err := models.EncodeValues(oldValues)
	if err != nil {
		return fmt.Errorf("failed to encode old values: %w", err)
	}
	newJSON, err := models.EncodeValues(newValues)
	if err != nil {
		return fmt.Errorf("failed to encode new values: %w", err)
	}

	entry := &models.AuditLog{
		UserID:        actor.ID,
		Action:        action,
		AuditableType: auditableType,
		AuditableID:   id,
		OldValues:     oldJSON,
		NewValues:     newJSON,
	}
	if actor.IP != "" {
		ip := actor.IP
		entry.IPAddress = &ip
	}

	if err := r.sink.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to record %s audit for %s %d: %w", action, auditableType, id, err)
	}
	telemetry.AuditRecordsTotal.WithLabelValues(string(action), auditableType).Inc()

	r.mu.Lock()
	r.recorded = append(r.recorded, entry)
	r.mu.Unlock()
	return nil
}

// Created records a full snapshot of a new subject
func (r *Recorder) Created(ctx context.Context, auditableType string, id int64, snapshot map[string]any) error {
	return r.Record(ctx, models.AuditCreated, auditableType, id, nil, snapshot)
}

// Updated records the columns that differ between before and after. Nothing
// is written when no column changed.
func (r *Recorder) Updated(ctx context.Context, auditableType string, id int64, before, after map[string]any) error {
	oldValues, newValues := models.Diff(before, after)
	if len(newValues) == 0 {
		return nil
	}
	return r.Record(ctx, models.AuditUpdated, auditableType, id, oldValues, newValues)
}

// Deleted records the last snapshot of a removed subject
func (r *Recorder) Deleted(ctx context.Context, auditableType string, id int64, snapshot map[string]any) error {
	return r.Record(ctx, models.AuditDeleted, auditableType, id, snapshot, nil)
}

// Recorded returns the entries written so far, oldest first
func (r *Recorder) Recorded() []*models.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.AuditLog, len(r.recorded))
	copy(out, r.recorded)
	return out
}
