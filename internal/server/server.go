// Package server assembles the HTTP surface: router setup, shared
// middleware, and the subsystems modules need before they initialize.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/framepulse/internal/config"
	"github.com/mantonx/framepulse/internal/database"
	"github.com/mantonx/framepulse/internal/events"
	"github.com/mantonx/framepulse/internal/logger"
	"github.com/mantonx/framepulse/internal/modules/modulemanager"

	// Import modules to trigger their registration
	_ "github.com/mantonx/framepulse/internal/modules/playbackmodule"
)

var (
	systemEventBus    events.EventBus
	moduleInitialized bool
)

// SetupRouter initializes the event bus and module system, then returns the
// configured router
func SetupRouter(cfg *config.Config) (*gin.Engine, error) {
	r := gin.Default()

	if cfg.Server.EnableCORS {
		r.Use(corsMiddleware())
	}

	if err := initializeEventBus(); err != nil {
		return nil, err
	}
	if err := initializeModules(); err != nil {
		return nil, err
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/api/events/recent", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"events": systemEventBus.GetRecentEvents(50)})
	})

	modulemanager.RegisterRoutes(r)

	return r, nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func initializeEventBus() error {
	if systemEventBus != nil {
		return nil
	}

	bus := events.NewEventBus(events.DefaultEventBusConfig(), nil)
	if err := bus.Start(context.Background()); err != nil {
		return err
	}

	systemEventBus = bus
	events.SetGlobalEventBus(bus)
	logger.Root().Info("event bus started")
	return nil
}

func initializeModules() error {
	if moduleInitialized {
		return nil
	}

	if err := modulemanager.LoadAll(database.GetDB()); err != nil {
		return err
	}

	moduleInitialized = true
	logger.Root().Info("module system initialized", "modules", len(modulemanager.ListModules()))
	return nil
}

// Shutdown tears down modules and stops the event bus
func Shutdown(ctx context.Context) {
	modulemanager.Shutdown(ctx)
	if systemEventBus != nil {
		if err := systemEventBus.Stop(ctx); err != nil {
			logger.Root().Warn("event bus stop error", "error", err)
		}
	}
}
