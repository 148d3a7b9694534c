// Package services implements the record workflows that coordinate several repositories,
// the lineage engine, the audit recorder and the document store inside one transaction.
// Handlers call services; services never see HTTP types.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/lgu-records/issuance-registry/internal/audit"
	"github.com/lgu-records/issuance-registry/internal/db/models"
	"github.com/lgu-records/issuance-registry/internal/db/repositories"
	"github.com/lgu-records/issuance-registry/internal/lineage"
	"github.com/lgu-records/issuance-registry/internal/validation"
)

// Blobs is the document store the services write through
type Blobs interface {
	Store(ctx context.Context, folder string, r io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	URLFor(ctx context.Context, key string) (string, error)
}

// AuditForwarder receives audit entries once their transaction committed
type AuditForwarder interface {
	Enqueue(logs ...*models.AuditLog)
}

// Upload is a document supplied with a create or update
type Upload struct {
	Name    string
	Size    int64
	Content io.Reader
}

// writers are the transaction-bound stores one workflow mutates through.
// Issuance and IRR writes go through the audit decorators, including the cascade.
type writers struct {
	rec       *audit.Recorder
	issuances *audit.Issuances
	irrs      *audit.IRRs
	engine    *lineage.Engine
}

func newWriters(tx *sqlx.Tx, rejectCycles bool) *writers {
	rec := audit.NewRecorder(repositories.NewAuditRepository(tx))
	issuances := audit.NewIssuances(repositories.NewIssuanceRepository(tx), rec)
	return &writers{
		rec:       rec,
		issuances: issuances,
		irrs:      audit.NewIRRs(repositories.NewIRRRepository(tx), rec),
		engine:    lineage.NewEngine(issuances, repositories.NewStatusRepository(tx), lineage.WithCycleCheck(rejectCycles)),
	}
}

// runInTx runs fn in one transaction and returns the audit entries it recorded.
// Nothing fn wrote survives an error.
func runInTx(ctx context.Context, db *sqlx.DB, rejectCycles bool, fn func(w *writers) error) ([]*models.AuditLog, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	w := newWriters(tx, rejectCycles)
	if err := fn(w); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return w.rec.Recorded(), nil
}

// storeDocument writes a validated upload. Content that outgrows its limit
// while streaming is reported as a field error.
func storeDocument(ctx context.Context, blobs Blobs, folder string, content io.Reader, size int64) (string, error) {
	key, err := blobs.Store(ctx, folder, content, size)
	var tooLarge *validation.TooLargeError
	if errors.As(err, &tooLarge) {
		return "", fieldError("file", documentMessage(err))
	}
	return key, err
}

func forward(f AuditForwarder, logs []*models.AuditLog) {
	if f != nil && len(logs) > 0 {
		f.Enqueue(logs...)
	}
}

// discard deletes a document that is no longer referenced, if it is still
// stored. Failures leave an orphaned blob and are only logged.
func discard(ctx context.Context, blobs Blobs, key *string) {
	if key == nil || *key == "" {
		return
	}
	exists, err := blobs.Exists(ctx, *key)
	if err != nil {
		slog.Warn("failed to check replaced document", "path", *key, "error", err)
		return
	}
	if !exists {
		slog.Debug("replaced document already gone", "path", *key)
		return
	}
	if _, err := blobs.Delete(ctx, *key); err != nil {
		slog.Warn("failed to delete replaced document", "path", *key, "error", err)
	}
}

// fileURL resolves a stored path to a download URL, or nil when there is none
func fileURL(ctx context.Context, blobs Blobs, key *string) *string {
	if key == nil || *key == "" {
		return nil
	}
	url, err := blobs.URLFor(ctx, *key)
	if err != nil {
		slog.Warn("failed to resolve document url", "path", *key, "error", err)
		return nil
	}
	if url == "" {
		return nil
	}
	return &url
}
