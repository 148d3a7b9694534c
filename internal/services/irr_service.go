package services

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/lgu-records/issuance-registry/internal/config"
	"github.com/lgu-records/issuance-registry/internal/db/models"
	"github.com/lgu-records/issuance-registry/internal/db/repositories"
	"github.com/lgu-records/issuance-registry/internal/validation"
)

// IRRInput is a create or update request for an IRR
type IRRInput struct {
	ExecutiveOrderID *int64
	OrdinanceID      *int64
	LeadOfficeID     int64
	Status           string
	Document         *Upload
}

// IRRView is an IRR with its download URL resolved
type IRRView struct {
	*models.ImplementingRule
	FileURL *string `json:"file_url"`
}

// IRRPage is one page of an IRR listing
type IRRPage struct {
	Items []IRRView `json:"items"`
	Total int       `json:"total"`
}

func irrViews(ctx context.Context, blobs Blobs, irrs []*models.ImplementingRule) []IRRView {
	views := make([]IRRView, 0, len(irrs))
	for _, irr := range irrs {
		views = append(views, IRRView{ImplementingRule: irr, FileURL: fileURL(ctx, blobs, irr.FilePath)})
	}
	return views
}

// IRRService runs the IRR workflows. IRR writes are audited under their own
// discriminator and never touch the parent's legal status.
type IRRService struct {
	db        *sqlx.DB
	blobs     Blobs
	forwarder AuditForwarder
	records   config.RecordsConfig
}

// NewIRRService creates an IRRService. forwarder may be nil.
func NewIRRService(db *sqlx.DB, blobs Blobs, forwarder AuditForwarder, records config.RecordsConfig) *IRRService {
	return &IRRService{db: db, blobs: blobs, forwarder: forwarder, records: records}
}

// Create validates in, stores its document and inserts the IRR
func (s *IRRService) Create(ctx context.Context, in *IRRInput) (*models.ImplementingRule, error) {
	irr, content, err := s.prepare(ctx, in, nil)
	if err != nil {
		return nil, err
	}

	recorded, err := runInTx(ctx, s.db, s.records.RejectLineageCycles, func(w *writers) error {
		key, err := storeDocument(ctx, s.blobs, models.IRRFolder, content, in.Document.Size)
		if err != nil {
			return err
		}
		irr.FilePath = &key
		return w.irrs.Create(ctx, irr)
	})
	if err != nil {
		return nil, err
	}
	forward(s.forwarder, recorded)
	return irr, nil
}

// Update rewrites an IRR. A supplied document replaces the stored one, which
// is deleted after commit.
func (s *IRRService) Update(ctx context.Context, id int64, in *IRRInput) (*models.ImplementingRule, error) {
	previous, err := repositories.NewIRRRepository(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if previous == nil {
		return nil, ErrNotFound
	}

	irr, content, err := s.prepare(ctx, in, previous)
	if err != nil {
		return nil, err
	}

	var replaced *string
	recorded, err := runInTx(ctx, s.db, s.records.RejectLineageCycles, func(w *writers) error {
		if content != nil {
			key, err := storeDocument(ctx, s.blobs, models.IRRFolder, content, in.Document.Size)
			if err != nil {
				return err
			}
			replaced = previous.FilePath
			irr.FilePath = &key
		}
		if err := w.irrs.Update(ctx, irr); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	discard(ctx, s.blobs, replaced)
	forward(s.forwarder, recorded)
	return irr, nil
}

// Delete removes an IRR and, after commit, its document
func (s *IRRService) Delete(ctx context.Context, id int64) error {
	var filePath *string
	recorded, err := runInTx(ctx, s.db, s.records.RejectLineageCycles, func(w *writers) error {
		removed, err := w.irrs.Delete(ctx, id)
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		filePath = removed.FilePath
		return nil
	})
	if err != nil {
		return err
	}
	discard(ctx, s.blobs, filePath)
	forward(s.forwarder, recorded)
	return nil
}

// ListForIssuance returns the IRRs of one issuance, newest first
func (s *IRRService) ListForIssuance(ctx context.Context, kind models.Kind, id int64) ([]IRRView, error) {
	exists, err := repositories.NewIssuanceRepository(s.db).Exists(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	irrs, err := repositories.NewIRRRepository(s.db).ListForIssuance(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return irrViews(ctx, s.blobs, irrs), nil
}

// List returns one page of IRRs across all issuances
func (s *IRRService) List(ctx context.Context, filters repositories.IRRFilters, limit, offset int) (*IRRPage, error) {
	irrs, total, err := repositories.NewIRRRepository(s.db).List(ctx, filters, limit, offset)
	if err != nil {
		return nil, err
	}
	return &IRRPage{Items: irrViews(ctx, s.blobs, irrs), Total: total}, nil
}

func (s *IRRService) prepare(ctx context.Context, in *IRRInput, previous *models.ImplementingRule) (*models.ImplementingRule, io.Reader, error) {
	errs := validation.Errors{}

	irr := &models.ImplementingRule{
		ExecutiveOrderID: in.ExecutiveOrderID,
		OrdinanceID:      in.OrdinanceID,
		LeadOfficeID:     in.LeadOfficeID,
		Status:           models.IRRStatus(strings.TrimSpace(in.Status)),
	}
	if previous != nil {
		irr.ID = previous.ID
		irr.FilePath = previous.FilePath
		irr.CreatedAt = previous.CreatedAt
	}

	kind, parentID, ok := irr.Parent()
	switch {
	case ok:
		exists, err := repositories.NewIssuanceRepository(s.db).Exists(ctx, kind, parentID)
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			field := "executive_order_id"
			if kind == models.KindOrdinance {
				field = "ordinance_id"
			}
			errs.Add(field, "The selected "+strings.ToLower(kind.Info().Label)+" is invalid.")
		}
	case in.ExecutiveOrderID == nil && in.OrdinanceID == nil:
		errs.Add("executive_order_id", "Select the executive order or ordinance this IRR implements.")
	default:
		errs.Add("executive_order_id", "An IRR belongs to either an executive order or an ordinance, not both.")
	}

	if in.LeadOfficeID <= 0 {
		errs.Add("lead_office_id", "The lead office field is required.")
	} else {
		dept, err := repositories.NewDepartmentRepository(s.db).GetByID(ctx, in.LeadOfficeID)
		if err != nil {
			return nil, nil, err
		}
		if dept == nil {
			errs.Add("lead_office_id", "The selected lead office is invalid.")
		} else {
			irr.LeadOfficeName = dept.Name
		}
	}

	if errs.Required("status", string(irr.Status)) && !irr.Status.Valid() {
		errs.Add("status", "The selected status is invalid.")
	}

	var content io.Reader
	switch {
	case in.Document != nil:
		r, err := validation.ValidateDocument(in.Document.Content, in.Document.Size, s.records.MaxUploadBytes())
		if err != nil {
			errs.Add("file", documentMessage(err))
		}
		content = r
	case previous == nil:
		errs.Add("file", "The file field is required.")
	}

	if err := invalid(errs); err != nil {
		return nil, nil, err
	}
	return irr, content, nil
}
