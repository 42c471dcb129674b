// Package registry maps backend type names to the factories that open
// table readers against them. Backend packages register themselves from
// init, so a binary supports exactly the backends it imports.
package registry

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tablepool/pkg/config"
	"github.com/ajitpratap0/tablepool/pkg/logger"
	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

// BackendFactory builds a table.ReaderFactory from a backend configuration.
// It should validate cfg and may check connectivity, but must not keep a
// reader open.
type BackendFactory func(ctx context.Context, cfg *config.BackendConfig) (table.ReaderFactory, error)

// BackendInfo describes a registered backend.
type BackendInfo struct {
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	// Required lists the BackendConfig fields the backend needs
	Required []string `json:"required" yaml:"required"`
}

// Registry manages backend registration and instantiation
type Registry struct {
	backends map[string]BackendFactory
	infos    map[string]*BackendInfo
	mu       sync.RWMutex
	logger   *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new backend registry
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]BackendFactory),
		infos:    make(map[string]*BackendInfo),
		logger:   logger.Get().With(zap.String("component", "backend_registry")),
	}
}

// Register registers a backend factory under info.Name.
func (r *Registry) Register(info *BackendInfo, factory BackendFactory) error {
	if info == nil || info.Name == "" || factory == nil {
		return poolerrors.New(poolerrors.ErrorTypeConfig, "backend name and factory are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[info.Name]; exists {
		return poolerrors.Newf(poolerrors.ErrorTypeConfig, "backend %s already registered", info.Name)
	}

	r.backends[info.Name] = factory
	r.infos[info.Name] = info
	r.logger.Debug("backend registered", zap.String("name", info.Name))
	return nil
}

// Open builds the reader factory for cfg.Type.
func (r *Registry) Open(ctx context.Context, cfg *config.BackendConfig) (table.ReaderFactory, error) {
	r.mu.RLock()
	factory, exists := r.backends[cfg.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, poolerrors.Newf(poolerrors.ErrorTypeNotFound, "backend %s not found", cfg.Type).
			WithDetail("available", r.List())
	}

	readers, err := factory(ctx, cfg)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to open backend").
			WithDetail("backend", cfg.Type).
			WithDetail("table", cfg.Table)
	}
	return readers, nil
}

// List returns the registered backend names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns the description of a registered backend.
func (r *Registry) Info(name string) (*BackendInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.infos[name]
	return info, ok
}

// Has checks if a backend is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.backends[name]
	return exists
}

// Global registry functions

// Register registers a backend in the global registry
func Register(info *BackendInfo, factory BackendFactory) error {
	return globalRegistry.Register(info, factory)
}

// Open builds a reader factory from the global registry
func Open(ctx context.Context, cfg *config.BackendConfig) (table.ReaderFactory, error) {
	return globalRegistry.Open(ctx, cfg)
}

// List returns backends registered in the global registry
func List() []string {
	return globalRegistry.List()
}

// Info describes a backend registered in the global registry
func Info(name string) (*BackendInfo, bool) {
	return globalRegistry.Info(name)
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
