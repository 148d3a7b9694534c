// factory.go maps backend names (local, s3, azure, gcs) to constructors and
// builds the configured one.
package storage

import (
	"fmt"
	"sort"

	"github.com/lgu-records/issuance-registry/internal/config"
)

// FactoryFunc builds a backend from the application configuration
type FactoryFunc func(*config.Config) (Storage, error)

var factories = make(map[string]FactoryFunc)

// Register makes a backend available under name
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// Registered lists the registered backend names in sorted order
func Registered() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStorage creates the backend named by storage.default_backend
func NewStorage(cfg *config.Config) (Storage, error) {
	factory, ok := factories[cfg.Storage.DefaultBackend]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %s (registered: %v)", cfg.Storage.DefaultBackend, Registered())
	}
	return factory(cfg)
}
