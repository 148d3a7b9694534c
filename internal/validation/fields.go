package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the accepted wire format for date fields
const DateLayout = "2006-01-02"

// Errors collects the first failure message per field
type Errors map[string]string

// Add records msg for field unless the field already failed
func (e Errors) Add(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

// Has reports whether field already failed
func (e Errors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// Required adds an error when value is blank and reports whether it was present
func (e Errors) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		e.Add(field, fmt.Sprintf("The %s field is required.", humanize(field)))
		return false
	}
	return true
}

// MaxLength adds an error when value has more than max characters
func (e Errors) MaxLength(field, value string, max int) {
	if utf8.RuneCountInString(value) > max {
		e.Add(field, fmt.Sprintf("The %s field must not be greater than %d characters.", humanize(field), max))
	}
}

// Date parses a required YYYY-MM-DD value
func (e Errors) Date(field, value string) time.Time {
	if !e.Required(field, value) {
		return time.Time{}
	}
	t, err := ParseDate(value)
	if err != nil {
		e.Add(field, fmt.Sprintf("The %s field must be a valid date.", humanize(field)))
	}
	return t
}

// OptionalDate parses a YYYY-MM-DD value, returning nil when blank
func (e Errors) OptionalDate(field, value string) *time.Time {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	t, err := ParseDate(value)
	if err != nil {
		e.Add(field, fmt.Sprintf("The %s field must be a valid date.", humanize(field)))
		return nil
	}
	return &t
}

// ParseDate parses a date-only value in UTC
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
}

// OptionalString trims value and returns nil when it is blank
func OptionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}

func humanize(field string) string {
	field = strings.TrimSuffix(field, "_id")
	return strings.ReplaceAll(field, "_", " ")
}
