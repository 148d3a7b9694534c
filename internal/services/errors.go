package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lgu-records/issuance-registry/internal/validation"
)

// ErrNotFound is returned when the record an operation targets does not exist
var ErrNotFound = errors.New("record not found")

// ValidationError carries one message per rejected input field
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// invalid returns a *ValidationError when errs is non-empty, nil otherwise
func invalid(errs validation.Errors) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Fields: errs}
}

// fieldError builds a single-field ValidationError
func fieldError(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
