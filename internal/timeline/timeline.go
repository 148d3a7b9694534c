// Package timeline reconstructs the public history of an issuance by merging its
// publication date, its audit trail and the later issuances that point at it.
package timeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lgu-records/issuance-registry/internal/db/models"
)

const (
	displayDate = "Jan 02, 2006"
	displayTime = "03:04 PM"
)

// Event actions
const (
	ActionPublished       = "Record Published"
	ActionDocumentUpdated = "Document Updated"
	ActionStatusUpdated   = "Status Updated"
	ActionMarkedActive    = "Marked as Active"
	ActionMarkedInactive  = "Marked as Inactive"
	amendedByPrefix       = "Amended by "
)

// Detail is one line of text under an event
type Detail struct {
	Text   string `json:"text"`
	IsBold bool   `json:"is_bold,omitempty"`
}

// Event is one entry in a record's public timeline
type Event struct {
	Date        time.Time `json:"date"`
	DateDisplay string    `json:"date_display"`
	Time        string    `json:"time"`
	Action      string    `json:"action"`
	Details     []Detail  `json:"details"`
	FileURL     *string   `json:"file_url"`
	FileName    string    `json:"file_name,omitempty"`
}

// Sources carries everything Build merges besides the subject itself
type Sources struct {
	// Audits for the subject in any order; Created entries are ignored
	Audits []*models.AuditLog
	// Children are the issuances whose parent pointer targets the subject
	Children []*models.Issuance
	// FileURL turns a blob path into a download URL; "" means no link
	FileURL func(path string) string
	// StatusName resolves a status id for display; "" means unknown
	StatusName func(id int64) string
}

func dateOnly(t time.Time) Event {
	return Event{Date: t, DateDisplay: t.Format(displayDate)}
}

func timed(t time.Time) Event {
	e := dateOnly(t)
	e.Time = t.Format(displayTime)
	return e
}

// Build merges the genesis event, audit-derived events and amendment links
// of subject, newest first. Events on the same instant keep the order
// genesis, audits, amendments.
func Build(subject *models.Issuance, src Sources) []Event {
	events := []Event{genesis(subject)}

	for _, log := range src.Audits {
		if ev, ok := fromAudit(log, src.StatusName); ok {
			events = append(events, ev)
		}
	}
	for _, child := range src.Children {
		events = append(events, amendment(subject.Kind, child, src.FileURL))
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.After(events[j].Date)
	})
	return events
}

func genesis(subject *models.Issuance) Event {
	ev := dateOnly(subject.EventDate())
	ev.Action = ActionPublished
	ev.Details = []Detail{{Text: "Original issuance date."}}
	return ev
}

// present mirrors "key set and not null" on decoded audit values
func present(values map[string]any, key string) (any, bool) {
	v, ok := values[key]
	return v, ok && v != nil
}

// fromAudit maps an audit entry to an event by the first known column it
// changed: file_path, then status_id, then is_active. Anything else is dropped.
func fromAudit(log *models.AuditLog, statusName func(int64) string) (Event, bool) {
	if log.Action == models.AuditCreated {
		return Event{}, false
	}
	values, err := log.NewValueMap()
	if err != nil {
		return Event{}, false
	}

	ev := timed(log.CreatedAt)
	if _, ok := present(values, "file_path"); ok {
		ev.Action = ActionDocumentUpdated
		ev.Details = []Detail{{Text: "A new PDF version was uploaded."}}
		return ev, true
	}
	if raw, ok := present(values, "status_id"); ok {
		ev.Action = ActionStatusUpdated
		ev.Details = []Detail{{Text: statusDetail(raw, statusName)}}
		return ev, true
	}
	if raw, ok := present(values, "is_active"); ok {
		active, isBool := raw.(bool)
		if !isBool {
			return Event{}, false
		}
		if active {
			ev.Action = ActionMarkedActive
			ev.Details = []Detail{{Text: "Record is now in effect."}}
		} else {
			ev.Action = ActionMarkedInactive
			ev.Details = []Detail{{Text: "Record is no longer in effect."}}
		}
		return ev, true
	}
	return Event{}, false
}

func statusDetail(raw any, statusName func(int64) string) string {
	// JSON numbers decode as float64
	if n, ok := raw.(float64); ok && statusName != nil {
		if name := statusName(int64(n)); name != "" {
			return fmt.Sprintf("Status changed to %s.", name)
		}
	}
	return "Legal status changed."
}

func amendment(kind models.Kind, child *models.Issuance, fileURL func(string) string) Event {
	ev := dateOnly(child.EventDate())
	ev.Action = amendedByPrefix + child.Number
	ev.Details = []Detail{{Text: child.Title, IsBold: true}}

	if child.FilePath != nil && *child.FilePath != "" && fileURL != nil {
		if url := fileURL(*child.FilePath); url != "" {
			ev.FileURL = &url
		}
	}
	if kind == models.KindExecutiveOrder {
		ev.FileName = "Download " + child.Number
	} else {
		ev.FileName = "Download Record"
	}
	return ev
}

// AuditSource lists the audit trail of one subject
type AuditSource interface {
	ListForSubject(ctx context.Context, auditableType string, id int64) ([]*models.AuditLog, error)
}

// ChildSource lists the issuances pointing at a parent
type ChildSource interface {
	ListChildren(ctx context.Context, kind models.Kind, parentID int64) ([]*models.Issuance, error)
}

// StatusSource lists every status
type StatusSource interface {
	All(ctx context.Context) ([]*models.Status, error)
}

// URLSource produces download URLs for blob paths
type URLSource interface {
	URLFor(ctx context.Context, path string) (string, error)
}

// Builder loads the sources of a timeline and builds it
type Builder struct {
	audits   AuditSource
	children ChildSource
	statuses StatusSource
	urls     URLSource
}

// NewBuilder creates a Builder. statuses and urls may be nil.
func NewBuilder(audits AuditSource, children ChildSource, statuses StatusSource, urls URLSource) *Builder {
	return &Builder{audits: audits, children: children, statuses: statuses, urls: urls}
}

// For builds the timeline of subject. It recomputes on every call.
func (b *Builder) For(ctx context.Context, subject *models.Issuance) ([]Event, error) {
	logs, err := b.audits.ListForSubject(ctx, subject.Kind.Info().AuditableType, subject.ID)
	if err != nil {
		return nil, err
	}
	children, err := b.children.ListChildren(ctx, subject.Kind, subject.ID)
	if err != nil {
		return nil, err
	}

	src := Sources{Audits: logs, Children: children}
	if b.statuses != nil {
		statuses, err := b.statuses.All(ctx)
		if err != nil {
			return nil, err
		}
		names := make(map[int64]string, len(statuses))
		for _, s := range statuses {
			names[s.ID] = s.Name
		}
		src.StatusName = func(id int64) string { return names[id] }
	}
	if b.urls != nil {
		src.FileURL = func(path string) string {
			url, err := b.urls.URLFor(ctx, path)
			if err != nil {
				return ""
			}
			return url
		}
	}
	return Build(subject, src), nil
}
