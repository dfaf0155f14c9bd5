package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"places-cache/internal/common/errors"
)

// Registry maps durable tier names to their factories. Backends add
// themselves from init, so a backend is available only when its package is
// imported.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]StorageFactory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]StorageFactory),
	}
}

// Register panics when storageType is taken, like database/sql.Register.
func (r *Registry) Register(storageType string, factory StorageFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if factory == nil {
		panic("storage: Register factory is nil for " + storageType)
	}
	if _, dup := r.factories[storageType]; dup {
		panic("storage: Register called twice for " + storageType)
	}
	r.factories[storageType] = factory
}

// Create validates config and builds the tier
func (r *Registry) Create(storageType string, config StorageConfig) (DurableTier, error) {
	r.mu.RLock()
	factory, exists := r.factories[storageType]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.ConfigError(fmt.Sprintf("durable tier %q is not registered (available: %s)",
			storageType, strings.Join(r.GetAvailableTypes(), ", ")))
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid %s configuration: %v", storageType, err))
	}

	return factory.Create(config)
}

// GetAvailableTypes returns the registered storage types in sorted order
func (r *Registry) GetAvailableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for storageType := range r.factories {
		types = append(types, storageType)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) IsRegistered(storageType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[storageType]
	return exists
}

var DefaultRegistry = NewRegistry()

func Register(storageType string, factory StorageFactory) {
	DefaultRegistry.Register(storageType, factory)
}

func Create(storageType string, config StorageConfig) (DurableTier, error) {
	return DefaultRegistry.Create(storageType, config)
}

func GetAvailableTypes() []string {
	return DefaultRegistry.GetAvailableTypes()
}
