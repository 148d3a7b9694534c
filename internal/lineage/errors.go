package lineage

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks failures caused by missing seed data rather than by
// caller input. It is never safe to swallow.
var ErrConfiguration = errors.New("lineage configuration error")

// Parent validation failures. Callers surface them as field errors on the
// parent reference.
var (
	ErrSelfReference  = errors.New("an issuance cannot reference itself")
	ErrParentNotFound = errors.New("parent issuance does not exist")
	ErrCycle          = errors.New("parent would create a lineage cycle")
)

// ConfigurationError reports a cascade target status that is not seeded
type ConfigurationError struct {
	Status string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("status %q is not configured: seed the statuses table", e.Status)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }
