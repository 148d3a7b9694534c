package audit

import (
	"context"

	"github.com/lgu-records/issuance-registry/internal/db/models"
	"github.com/lgu-records/issuance-registry/internal/db/repositories"
)

// IRRs wraps an IRRRepository so every mutation leaves an audit row under
// the IRR discriminator.
type IRRs struct {
	*repositories.IRRRepository
	rec *Recorder
}

// NewIRRs decorates repo with rec
func NewIRRs(repo *repositories.IRRRepository, rec *Recorder) *IRRs {
	return &IRRs{IRRRepository: repo, rec: rec}
}

func (a *IRRs) current(ctx context.Context, id int64) (*models.ImplementingRule, error) {
	before, err := a.IRRRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if before == nil {
		return nil, repositories.ErrNotFound
	}
	return before, nil
}

// Create inserts irr and records a Created entry
func (a *IRRs) Create(ctx context.Context, irr *models.ImplementingRule) error {
	if err := a.IRRRepository.Create(ctx, irr); err != nil {
		return err
	}
	return a.rec.Created(ctx, models.IRRAuditableType, irr.ID, irr.Snapshot())
}

// Update rewrites irr and records the changed columns
func (a *IRRs) Update(ctx context.Context, irr *models.ImplementingRule) error {
	before, err := a.current(ctx, irr.ID)
	if err != nil {
		return err
	}
	if err := a.IRRRepository.Update(ctx, irr); err != nil {
		return err
	}
	return a.rec.Updated(ctx, models.IRRAuditableType, irr.ID, before.Snapshot(), irr.Snapshot())
}

// Delete removes an IRR, records its final snapshot and returns the removed row
func (a *IRRs) Delete(ctx context.Context, id int64) (*models.ImplementingRule, error) {
	before, err := a.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.IRRRepository.Delete(ctx, id); err != nil {
		return nil, err
	}
	if err := a.rec.Deleted(ctx, models.IRRAuditableType, id, before.Snapshot()); err != nil {
		return nil, err
	}
	return before, nil
}
