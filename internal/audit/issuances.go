package audit

import (
	"context"

	"github.com/lgu-records/issuance-registry/internal/db/models"
	"github.com/lgu-records/issuance-registry/internal/db/repositories"
)

// Issuances wraps an IssuanceRepository so every mutation leaves an audit
// row. Reads pass straight through to the embedded repository.
type Issuances struct {
	*repositories.IssuanceRepository
	rec *Recorder
}

// NewIssuances decorates repo with rec
func NewIssuances(repo *repositories.IssuanceRepository, rec *Recorder) *Issuances {
	return &Issuances{IssuanceRepository: repo, rec: rec}
}

// Recorder returns the recorder the decorator writes through
func (a *Issuances) Recorder() *Recorder { return a.rec }

func (a *Issuances) current(ctx context.Context, kind models.Kind, id int64) (*models.Issuance, error) {
	before, err := a.IssuanceRepository.FindByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if before == nil {
		return nil, repositories.ErrNotFound
	}
	return before, nil
}

// Create inserts issuance and records a Created entry
func (a *Issuances) Create(ctx context.Context, issuance *models.Issuance) error {
	if err := a.IssuanceRepository.Create(ctx, issuance); err != nil {
		return err
	}
	return a.rec.Created(ctx, issuance.Kind.Info().AuditableType, issuance.ID, issuance.Snapshot())
}

// Update rewrites issuance and records the changed columns
func (a *Issuances) Update(ctx context.Context, issuance *models.Issuance) error {
	before, err := a.current(ctx, issuance.Kind, issuance.ID)
	if err != nil {
		return err
	}
	if err := a.IssuanceRepository.Update(ctx, issuance); err != nil {
		return err
	}
	return a.rec.Updated(ctx, issuance.Kind.Info().AuditableType, issuance.ID, before.Snapshot(), issuance.Snapshot())
}

// UpdateStatus sets the status of one issuance and records the change
func (a *Issuances) UpdateStatus(ctx context.Context, kind models.Kind, id, statusID int64) error {
	before, err := a.current(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := a.IssuanceRepository.UpdateStatus(ctx, kind, id, statusID); err != nil {
		return err
	}
	after := *before
	after.StatusID = statusID
	return a.rec.Updated(ctx, kind.Info().AuditableType, id, before.Snapshot(), after.Snapshot())
}

// SetActive toggles the effectiveness flag and records the change
func (a *Issuances) SetActive(ctx context.Context, kind models.Kind, id int64, active bool) error {
	before, err := a.current(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := a.IssuanceRepository.SetActive(ctx, kind, id, active); err != nil {
		return err
	}
	after := *before
	after.IsActive = active
	return a.rec.Updated(ctx, kind.Info().AuditableType, id, before.Snapshot(), after.Snapshot())
}

// Delete removes an issuance and records its final snapshot
func (a *Issuances) Delete(ctx context.Context, kind models.Kind, id int64) error {
	before, err := a.current(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := a.IssuanceRepository.Delete(ctx, kind, id); err != nil {
		return err
	}
	return a.rec.Deleted(ctx, kind.Info().AuditableType, id, before.Snapshot())
}
