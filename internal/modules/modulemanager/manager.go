// Package modulemanager wires feature modules into the application
// lifecycle: registration at import time, migration and init at startup,
// route registration, and ordered shutdown.
package modulemanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mantonx/framepulse/internal/logger"
)

// Module is the contract every feature module implements
type Module interface {
	ID() string
	Name() string
	Core() bool
	Migrate(db *gorm.DB) error
	Init() error
}

// RouteRegistrar is an optional interface for modules exposing HTTP routes
type RouteRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// Shutdownable is an optional interface for modules holding resources that
// need an ordered teardown
type Shutdownable interface {
	Shutdown(ctx context.Context) error
}

// ModuleRegistry manages module registration and initialization
type ModuleRegistry struct {
	mu          sync.RWMutex
	modules     map[string]Module
	order       []string
	initialized bool
}

// Registry is the global module registry
var Registry = &ModuleRegistry{
	modules: make(map[string]Module),
}

// Register adds a module to the global registry
func Register(m Module) {
	Registry.Register(m)
}

// Register adds a module to the registry
func (r *ModuleRegistry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Root().Warn("module registered after initialization", "module", m.ID())
	}
	if _, exists := r.modules[m.ID()]; exists {
		logger.Root().Warn("module registered twice, keeping first registration", "module", m.ID())
		return
	}

	r.modules[m.ID()] = m
	r.order = append(r.order, m.ID())
	logger.Root().Debug("module registered", "module", m.ID(), "name", m.Name())
}

// LoadAll migrates and initializes all registered modules
func LoadAll(db *gorm.DB) error {
	return Registry.LoadAll(db)
}

// LoadAll migrates and initializes modules in registration order
func (r *ModuleRegistry) LoadAll(db *gorm.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Root().Warn("module system already initialized")
		return nil
	}

	logger.Root().Info("loading modules", "count", len(r.order))

	for _, id := range r.order {
		m := r.modules[id]
		if db != nil {
			if err := m.Migrate(db); err != nil {
				return fmt.Errorf("failed to migrate module %s: %w", id, err)
			}
		}
		if err := m.Init(); err != nil {
			if m.Core() {
				return fmt.Errorf("failed to initialize core module %s: %w", id, err)
			}
			logger.Root().Warn("module failed to initialize", "module", id, "error", err)
			continue
		}
		logger.Root().Info("module initialized", "module", id)
	}

	r.initialized = true
	return nil
}

// RegisterRoutes registers routes for all modules implementing RouteRegistrar
func RegisterRoutes(router *gin.Engine) {
	Registry.RegisterRoutes(router)
}

// RegisterRoutes registers routes in registration order
func (r *ModuleRegistry) RegisterRoutes(router *gin.Engine) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if registrar, ok := r.modules[id].(RouteRegistrar); ok {
			registrar.RegisterRoutes(router)
			logger.Root().Debug("routes registered", "module", id)
		}
	}
}

// Shutdown tears modules down in reverse registration order
func Shutdown(ctx context.Context) {
	Registry.Shutdown(ctx)
}

// Shutdown tears modules down in reverse registration order
func (r *ModuleRegistry) Shutdown(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		id := r.order[i]
		if s, ok := r.modules[id].(Shutdownable); ok {
			if err := s.Shutdown(ctx); err != nil {
				logger.Root().Warn("module shutdown error", "module", id, "error", err)
			}
		}
	}
}

// Get returns a registered module by ID
func (r *ModuleRegistry) Get(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// Get returns a registered module by ID from the global registry
func Get(id string) (Module, bool) {
	return Registry.Get(id)
}

// ListModules returns all registered modules in registration order
func ListModules() []Module {
	return Registry.ListModules()
}

// ListModules returns all registered modules in registration order
func (r *ModuleRegistry) ListModules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Module, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.modules[id])
	}
	return out
}
