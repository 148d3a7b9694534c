package records

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lgu-records/issuance-registry/internal/db/models"
	"github.com/lgu-records/issuance-registry/internal/services"
	"github.com/lgu-records/issuance-registry/internal/validation"
)

// form reads multipart or urlencoded fields and collects parse errors
type form struct {
	c    *gin.Context
	errs validation.Errors
}

func newForm(c *gin.Context) *form {
	return &form{c: c, errs: validation.Errors{}}
}

func (f *form) str(name string) string {
	return f.c.PostForm(name)
}

// id reads an optional positive integer. Blank means absent.
func (f *form) id(name string) *int64 {
	raw := strings.TrimSpace(f.c.PostForm(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		f.errs.Add(name, "The "+strings.ReplaceAll(strings.TrimSuffix(name, "_id"), "_", " ")+" field must be an integer.")
		return nil
	}
	return &v
}

// ids reads a repeated integer field, accepting both name and name[]
func (f *form) ids(name string) []int64 {
	values := append(f.c.PostFormArray(name), f.c.PostFormArray(name+"[]")...)
	var out []int64
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v, err := strconv.ParseInt(part, 10, 64)
			if err != nil || v <= 0 {
				f.errs.Add(name, "The selected office is invalid.")
				continue
			}
			out = append(out, v)
		}
	}
	return out
}

// upload opens the "file" part. A request without one yields nil.
func (f *form) upload() (*services.Upload, func(), error) {
	header, err := f.c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, err
	}
	file, err := header.Open()
	if err != nil {
		return nil, func() {}, err
	}
	return &services.Upload{Name: header.Filename, Size: header.Size, Content: file}, closer(file), nil
}

func closer(file multipart.File) func() {
	return func() { _ = file.Close() }
}

func (f *form) err() error {
	if len(f.errs) == 0 {
		return nil
	}
	return &services.ValidationError{Fields: f.errs}
}

// bindIssuance reads an issuance create or update request of kind
func bindIssuance(c *gin.Context, kind models.Kind) (*services.IssuanceInput, func(), error) {
	info := kind.Info()
	primary, secondary := services.DepartmentFields(kind)
	f := newForm(c)

	in := &services.IssuanceInput{
		Number:                 f.str(info.NumberColumn),
		Title:                  f.str("title"),
		OfficialDate:           f.str(info.DateColumn),
		EffectivityDate:        f.str("effectivity_date"),
		Remarks:                f.str("remarks"),
		ParentID:               f.id(info.ParentColumn),
		RelationshipType:       f.str("relationship_type"),
		PrimaryDepartmentIDs:   f.ids(primary),
		SecondaryDepartmentIDs: f.ids(secondary),
	}
	if status := f.id("status_id"); status != nil {
		in.StatusID = *status
	}

	switch kind {
	case models.KindExecutiveOrder:
		in.LegalBasis = f.str("legal_basis")
		if raw := strings.TrimSpace(f.str("committee_details")); raw != "" {
			if !json.Valid([]byte(raw)) {
				f.errs.Add("committee_details", "The committee details field must be a JSON object.")
			} else {
				in.CommitteeDetails = json.RawMessage(raw)
			}
		}
	case models.KindOrdinance:
		in.DateApproved = f.str("date_approved")
		in.AttestedBy = f.str("attested_by")
		in.ApprovedBy = f.str("approved_by")
	}

	if err := f.err(); err != nil {
		return nil, func() {}, err
	}

	upload, done, err := f.upload()
	if err != nil {
		return nil, done, err
	}
	in.Document = upload
	return in, done, nil
}

// bindIRR reads an IRR create or update request
func bindIRR(c *gin.Context) (*services.IRRInput, func(), error) {
	f := newForm(c)
	in := &services.IRRInput{
		ExecutiveOrderID: f.id("executive_order_id"),
		OrdinanceID:      f.id("ordinance_id"),
		Status:           f.str("status"),
	}
	if lead := f.id("lead_office_id"); lead != nil {
		in.LeadOfficeID = *lead
	}
	if err := f.err(); err != nil {
		return nil, func() {}, err
	}

	upload, done, err := f.upload()
	if err != nil {
		return nil, done, err
	}
	in.Document = upload
	return in, done, nil
}
