// Package playbackmodule provides real-time video playback: an adaptive
// multi-position decoder pool, scrub detection, a paced frame pump, and
// session tracking with history persistence.
package playbackmodule

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mantonx/framepulse/internal/config"
	"github.com/mantonx/framepulse/internal/database"
	"github.com/mantonx/framepulse/internal/events"
	"github.com/mantonx/framepulse/internal/logger"
)

// Module wires the playback engine into the module system
type Module struct {
	logger hclog.Logger
	db     *gorm.DB
	deps   Dependencies

	manager *Manager
	handler *APIHandler
	stream  *EventStreamHandler
}

// NewModule creates the playback module with injected media capabilities
func NewModule(logger hclog.Logger, deps Dependencies) *Module {
	return &Module{logger: logger, deps: deps}
}

// ID returns the module identifier
func (m *Module) ID() string {
	return "playback"
}

// Name returns the human-readable module name
func (m *Module) Name() string {
	return "Playback Module"
}

// Core returns whether this is a core module
func (m *Module) Core() bool {
	return true
}

// SetDependencies replaces the media capabilities before Init
func (m *Module) SetDependencies(deps Dependencies) {
	m.deps = deps
}

// Migrate performs database migrations for the module
func (m *Module) Migrate(db *gorm.DB) error {
	m.db = db
	if db == nil {
		return nil
	}
	if err := db.AutoMigrate(&database.PlaybackHistory{}, &database.ResumePosition{}); err != nil {
		return fmt.Errorf("failed to migrate playback tables: %w", err)
	}
	return nil
}

// Init builds the manager from global configuration and the global event
// bus. Dependencies default to the simulator when none were injected.
func (m *Module) Init() error {
	if m.logger == nil {
		m.logger = logger.Root()
	}

	cfg := config.Get()
	bus := events.GetGlobalEventBus()

	if m.deps.Decoders == nil {
		m.deps.Decoders = SimulatedDecoderFactory(SimulatorConfig{})
	}
	if m.deps.Renderer == nil {
		m.deps.Renderer = SimulatedRendererFactory(m.logger)
	}

	m.manager = NewManager(m.logger, cfg, m.db, bus, m.deps)
	m.handler = NewAPIHandler(m.manager)
	m.stream = NewEventStreamHandler(m.logger, bus)

	return nil
}

// Manager returns the playback manager. Only valid after Init.
func (m *Module) Manager() *Manager {
	return m.manager
}

// RegisterRoutes mounts the playback HTTP API
func (m *Module) RegisterRoutes(router *gin.Engine) {
	if m.handler == nil {
		return
	}
	RegisterRoutes(router, m.handler, m.stream)
}

// Shutdown stops sessions and releases engine resources
func (m *Module) Shutdown(ctx context.Context) error {
	if m.manager == nil {
		return nil
	}
	return m.manager.Shutdown(ctx)
}
