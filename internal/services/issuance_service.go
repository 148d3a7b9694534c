// issuance_service.go implements the executive order and ordinance workflows: validation,
// the lineage cascade, document replacement, department role sync and the read models
// served to admin and public handlers.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/lgu-records/issuance-registry/internal/config"
	"github.com/lgu-records/issuance-registry/internal/db/models"
	"github.com/lgu-records/issuance-registry/internal/db/repositories"
	"github.com/lgu-records/issuance-registry/internal/lineage"
	"github.com/lgu-records/issuance-registry/internal/timeline"
	"github.com/lgu-records/issuance-registry/internal/validation"
)

var departmentFields = map[models.Kind][2]string{
	models.KindExecutiveOrder: {"lead_office_id", "support_office_ids"},
	models.KindOrdinance:      {"sponsor_department_ids", "implementing_department_ids"},
}

// DepartmentFields returns the input field names of kind's primary and
// secondary department lists. Field errors are keyed by these names.
func DepartmentFields(kind models.Kind) (primary, secondary string) {
	f := departmentFields[kind]
	return f[0], f[1]
}

var titleLimits = map[models.Kind]int{
	models.KindExecutiveOrder: 500,
	models.KindOrdinance:      1000,
}

// IssuanceInput is a create or update request for either kind. Date fields are
// YYYY-MM-DD strings; blank optional text fields are stored as NULL.
type IssuanceInput struct {
	Number          string
	Title           string
	OfficialDate    string
	EffectivityDate string
	Remarks         string

	// Executive order only
	LegalBasis       string
	CommitteeDetails json.RawMessage

	// Ordinance only
	DateApproved string
	AttestedBy   string
	ApprovedBy   string

	StatusID         int64
	ParentID         *int64
	RelationshipType string

	// Lead office (exactly one) for executive orders, sponsors for ordinances
	PrimaryDepartmentIDs []int64
	// Support offices for executive orders, implementing offices for ordinances
	SecondaryDepartmentIDs []int64

	Document *Upload
}

// IssuanceView is an issuance with its derived fields resolved for display
type IssuanceView struct {
	*models.Issuance
	FileURL     *string                     `json:"file_url"`
	Departments []models.IssuanceDepartment `json:"departments"`
	ChildCount  int                         `json:"child_count"`
}

// IssuanceDetail is the full read model of one issuance
type IssuanceDetail struct {
	IssuanceView
	Children []IssuanceView   `json:"children"`
	IRRs     []IRRView        `json:"irrs"`
	Timeline []timeline.Event `json:"timeline"`
}

// IssuancePage is one page of a listing
type IssuancePage struct {
	Items []IssuanceView `json:"items"`
	Total int            `json:"total"`
}

// IssuanceService runs executive order and ordinance workflows
type IssuanceService struct {
	db        *sqlx.DB
	blobs     Blobs
	forwarder AuditForwarder
	records   config.RecordsConfig
	timeline  *timeline.Builder
}

// NewIssuanceService creates an IssuanceService. forwarder may be nil.
func NewIssuanceService(db *sqlx.DB, blobs Blobs, forwarder AuditForwarder, records config.RecordsConfig) *IssuanceService {
	return &IssuanceService{
		db:        db,
		blobs:     blobs,
		forwarder: forwarder,
		records:   records,
		timeline: timeline.NewBuilder(
			repositories.NewAuditRepository(db),
			repositories.NewIssuanceRepository(db),
			repositories.NewStatusRepository(db),
			blobs,
		),
	}
}

func (s *IssuanceService) maxUpload(kind models.Kind) int64 {
	if kind == models.KindOrdinance {
		return s.records.MaxOrdinanceUploadBytes()
	}
	return s.records.MaxUploadBytes()
}

// Create validates in, cascades the parent status, stores the document,
// inserts the record and attaches its departments in one transaction.
func (s *IssuanceService) Create(ctx context.Context, kind models.Kind, in *IssuanceInput) (*models.Issuance, error) {
	issuance, content, err := s.prepare(ctx, kind, in, nil)
	if err != nil {
		return nil, err
	}

	recorded, err := runInTx(ctx, s.db, s.records.RejectLineageCycles, func(w *writers) error {
		if _, err := w.engine.Apply(ctx, issuance, nil); err != nil {
			return err
		}
		key, err := storeDocument(ctx, s.blobs, kind.Info().Folder, content, in.Document.Size)
		if err != nil {
			return err
		}
		issuance.FilePath = &key
		if err := w.issuances.Create(ctx, issuance); err != nil {
			return err
		}
		return w.issuances.AttachDepartments(ctx, kind, issuance.ID, assignments(kind, in))
	})
	if err != nil {
		return nil, err
	}
	forward(s.forwarder, recorded)
	return issuance, nil
}

// Update applies in to an existing record. The cascade fires only when the
// parent or relationship changed, a supplied document replaces the stored one,
// and the department set is replaced wholesale.
func (s *IssuanceService) Update(ctx context.Context, kind models.Kind, id int64, in *IssuanceInput) (*models.Issuance, error) {
	previous, err := repositories.NewIssuanceRepository(s.db).FindByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if previous == nil {
		return nil, ErrNotFound
	}

	issuance, content, err := s.prepare(ctx, kind, in, previous)
	if err != nil {
		return nil, err
	}

	var replaced *string
	recorded, err := runInTx(ctx, s.db, s.records.RejectLineageCycles, func(w *writers) error {
		if _, err := w.engine.Apply(ctx, issuance, previous); err != nil {
			return err
		}
		if content != nil {
			key, err := storeDocument(ctx, s.blobs, kind.Info().Folder, content, in.Document.Size)
			if err != nil {
				return err
			}
			replaced = previous.FilePath
			issuance.FilePath = &key
		}
		if err := w.issuances.Update(ctx, issuance); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := w.issuances.DetachAllDepartments(ctx, kind, issuance.ID); err != nil {
			return err
		}
		return w.issuances.AttachDepartments(ctx, kind, issuance.ID, assignments(kind, in))
	})
	if err != nil {
		return nil, err
	}

	discard(ctx, s.blobs, replaced)
	forward(s.forwarder, recorded)
	return issuance, nil
}

// ToggleActive flips the effectiveness flag and returns the updated record
func (s *IssuanceService) ToggleActive(ctx context.Context, kind models.Kind, id int64) (*models.Issuance, error) {
	var issuance *models.Issuance
	recorded, err := runInTx(ctx, s.db, s.records.RejectLineageCycles, func(w *writers) error {
		current, err := w.issuances.FindByID(ctx, kind, id)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrNotFound
		}
		if err := w.issuances.SetActive(ctx, kind, id, !current.IsActive); err != nil {
			return err
		}
		current.IsActive = !current.IsActive
		issuance = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	forward(s.forwarder, recorded)
	return issuance, nil
}

// Delete removes a record. Children keep existing with their parent pointer
// cleared by the database; the document is removed after commit.
func (s *IssuanceService) Delete(ctx context.Context, kind models.Kind, id int64) error {
	var filePath *string
	recorded, err := runInTx(ctx, s.db, s.records.RejectLineageCycles, func(w *writers) error {
		current, err := w.issuances.FindByID(ctx, kind, id)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrNotFound
		}
		filePath = current.FilePath
		return w.issuances.Delete(ctx, kind, id)
	})
	if err != nil {
		return err
	}
	discard(ctx, s.blobs, filePath)
	forward(s.forwarder, recorded)
	return nil
}

// Get returns the full read model of one record, including its timeline
func (s *IssuanceService) Get(ctx context.Context, kind models.Kind, id int64) (*IssuanceDetail, error) {
	repo := repositories.NewIssuanceRepository(s.db)
	issuance, err := repo.FindByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if issuance == nil {
		return nil, ErrNotFound
	}

	depts, err := repo.ListDepartments(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	children, err := repo.ListChildren(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	irrs, err := repositories.NewIRRRepository(s.db).ListForIssuance(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	events, err := s.timeline.For(ctx, issuance)
	if err != nil {
		return nil, fmt.Errorf("failed to build timeline: %w", err)
	}

	detail := &IssuanceDetail{
		IssuanceView: IssuanceView{
			Issuance:    issuance,
			FileURL:     fileURL(ctx, s.blobs, issuance.FilePath),
			Departments: depts,
			ChildCount:  len(children),
		},
		Children: make([]IssuanceView, 0, len(children)),
		IRRs:     irrViews(ctx, s.blobs, irrs),
		Timeline: events,
	}
	for _, child := range children {
		detail.Children = append(detail.Children, IssuanceView{
			Issuance:    child,
			FileURL:     fileURL(ctx, s.blobs, child.FilePath),
			Departments: []models.IssuanceDepartment{},
		})
	}
	return detail, nil
}

// List returns one page of records matching filter, newest first
func (s *IssuanceService) List(ctx context.Context, kind models.Kind, filter repositories.IssuanceFilter) (*IssuancePage, error) {
	repo := repositories.NewIssuanceRepository(s.db)
	items, total, err := repo.List(ctx, kind, filter)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	counts, err := repo.CountChildren(ctx, kind, ids)
	if err != nil {
		return nil, err
	}

	departments, err := repo.ListDepartmentsFor(ctx, kind, ids)
	if err != nil {
		return nil, err
	}

	page := &IssuancePage{Items: make([]IssuanceView, 0, len(items)), Total: total}
	for _, it := range items {
		depts := departments[it.ID]
		if depts == nil {
			depts = []models.IssuanceDepartment{}
		}
		page.Items = append(page.Items, IssuanceView{
			Issuance:    it,
			FileURL:     fileURL(ctx, s.blobs, it.FilePath),
			Departments: depts,
			ChildCount:  counts[it.ID],
		})
	}
	return page, nil
}

// Options lists (id, number, title) of every record of kind for parent pickers
func (s *IssuanceService) Options(ctx context.Context, kind models.Kind) ([]models.IssuanceSummary, error) {
	return repositories.NewIssuanceRepository(s.db).Options(ctx, kind)
}

// Years lists the years that have at least one record of kind
func (s *IssuanceService) Years(ctx context.Context, kind models.Kind) ([]int, error) {
	return repositories.NewIssuanceRepository(s.db).Years(ctx, kind)
}

// prepare validates in against the pool and builds the record to write.
// previous is nil on create. The returned reader is nil when no document was
// supplied.
func (s *IssuanceService) prepare(ctx context.Context, kind models.Kind, in *IssuanceInput, previous *models.Issuance) (*models.Issuance, io.Reader, error) {
	info := kind.Info()
	errs := validation.Errors{}
	issuances := repositories.NewIssuanceRepository(s.db)
	statuses := repositories.NewStatusRepository(s.db)

	var selfID int64
	if previous != nil {
		selfID = previous.ID
	}

	number := strings.TrimSpace(in.Number)
	if errs.Required(info.NumberColumn, number) {
		taken, err := issuances.NumberTaken(ctx, kind, number, selfID)
		if err != nil {
			return nil, nil, err
		}
		if taken {
			errs.Add(info.NumberColumn, fmt.Sprintf("The %s number has already been taken.", strings.ToLower(info.Label)))
		}
	}

	title := strings.TrimSpace(in.Title)
	if errs.Required("title", title) {
		errs.MaxLength("title", title, titleLimits[kind])
	}

	official := errs.Date(info.DateColumn, in.OfficialDate)
	effectivity := errs.OptionalDate("effectivity_date", in.EffectivityDate)

	if in.StatusID <= 0 {
		errs.Add("status_id", "The status field is required.")
	} else {
		status, err := statuses.GetByID(ctx, in.StatusID)
		if err != nil {
			return nil, nil, err
		}
		if status == nil {
			errs.Add("status_id", "The selected status is invalid.")
		}
	}

	var relationship *models.RelationshipType
	if r := strings.TrimSpace(in.RelationshipType); r != "" {
		rel := models.RelationshipType(r)
		if kind.AllowsRelationship(rel) {
			relationship = &rel
		} else {
			errs.Add("relationship_type", "The selected relationship type is invalid.")
		}
	}

	if in.ParentID != nil {
		engine := lineage.NewEngine(issuances, statuses, lineage.WithCycleCheck(s.records.RejectLineageCycles))
		err := engine.ValidateParent(ctx, kind, selfID, *in.ParentID)
		switch {
		case err == nil:
		case errors.Is(err, lineage.ErrSelfReference):
			errs.Add(info.ParentColumn, fmt.Sprintf("An %s cannot reference itself.", strings.ToLower(info.Label)))
		case errors.Is(err, lineage.ErrParentNotFound):
			errs.Add(info.ParentColumn, "The selected parent record is invalid.")
		case errors.Is(err, lineage.ErrCycle):
			errs.Add(info.ParentColumn, "The selected parent record would create a circular lineage.")
		default:
			return nil, nil, err
		}
	}

	if err := s.validateDepartments(ctx, kind, in, errs); err != nil {
		return nil, nil, err
	}

	issuance := &models.Issuance{
		Kind:             kind,
		Number:           number,
		Title:            title,
		OfficialDate:     official,
		EffectivityDate:  effectivity,
		StatusID:         in.StatusID,
		IsActive:         true,
		ParentID:         in.ParentID,
		RelationshipType: relationship,
		Remarks:          validation.OptionalString(in.Remarks),
	}
	if previous != nil {
		issuance.ID = previous.ID
		issuance.IsActive = previous.IsActive
		issuance.FilePath = previous.FilePath
		issuance.IssuingAuthority = previous.IssuingAuthority
		issuance.CommitteeDetails = previous.CommitteeDetails
		issuance.CreatedAt = previous.CreatedAt
	}

	switch kind {
	case models.KindExecutiveOrder:
		issuance.LegalBasis = validation.OptionalString(in.LegalBasis)
		if len(in.CommitteeDetails) > 0 && string(in.CommitteeDetails) != "null" {
			var details map[string]any
			if err := json.Unmarshal(in.CommitteeDetails, &details); err != nil {
				errs.Add("committee_details", "The committee details field must be a JSON object.")
			} else {
				issuance.CommitteeDetails = types.NullJSONText{JSONText: types.JSONText(in.CommitteeDetails), Valid: true}
			}
		}
	case models.KindOrdinance:
		issuance.DateApproved = errs.OptionalDate("date_approved", in.DateApproved)
		issuance.AttestedBy = validation.OptionalString(in.AttestedBy)
		issuance.ApprovedBy = validation.OptionalString(in.ApprovedBy)
	}

	var content io.Reader
	switch {
	case in.Document != nil:
		r, err := validation.ValidateDocument(in.Document.Content, in.Document.Size, s.maxUpload(kind))
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
	return issuance, content, nil
}

// validateDepartments checks the department lists of in. Executive orders need
// exactly one lead office.
func (s *IssuanceService) validateDepartments(ctx context.Context, kind models.Kind, in *IssuanceInput, errs validation.Errors) error {
	fields := departmentFields[kind]
	if kind == models.KindExecutiveOrder {
		switch len(in.PrimaryDepartmentIDs) {
		case 0:
			errs.Add(fields[0], "The lead office field is required.")
		case 1:
		default:
			errs.Add(fields[0], "Only one lead office may be selected.")
		}
	}

	ids := uniqueIDs(in.PrimaryDepartmentIDs, in.SecondaryDepartmentIDs)
	if len(ids) == 0 {
		return nil
	}
	missing, err := repositories.NewDepartmentRepository(s.db).MissingIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range missing {
		if containsID(in.PrimaryDepartmentIDs, id) {
			errs.Add(fields[0], "The selected office is invalid.")
		}
		if containsID(in.SecondaryDepartmentIDs, id) {
			errs.Add(fields[1], "The selected office is invalid.")
		}
	}
	return nil
}

// assignments builds the role-tagged department rows for in. An id listed in
// both lists keeps the primary role; duplicates collapse to one row.
func assignments(kind models.Kind, in *IssuanceInput) []models.DepartmentAssignment {
	info := kind.Info()
	seen := map[int64]bool{}
	var out []models.DepartmentAssignment
	add := func(ids []int64, role models.DepartmentRole) {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, models.DepartmentAssignment{DepartmentID: id, Role: role})
		}
	}
	add(in.PrimaryDepartmentIDs, info.PrimaryRole)
	add(in.SecondaryDepartmentIDs, info.SecondaryRole)
	return out
}

func uniqueIDs(lists ...[]int64) []int64 {
	seen := map[int64]bool{}
	var out []int64
	for _, list := range lists {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func documentMessage(err error) string {
	var tooLarge *validation.TooLargeError
	switch {
	case errors.As(err, &tooLarge):
		return fmt.Sprintf("The file field must not be greater than %d kilobytes.", tooLarge.Limit/1024)
	case errors.Is(err, validation.ErrNotPDF):
		return "The file field must be a file of type: pdf."
	case errors.Is(err, validation.ErrEmptyDocument):
		return "The file field must not be empty."
	}
	return "The file failed to upload."
}
