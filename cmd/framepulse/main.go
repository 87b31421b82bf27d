// Command framepulse runs the playback engine with its HTTP API.
//
// Usage:
//
//	framepulse [-config config.yaml] [-project project.yaml]
//
// With -project the engine loads the project at startup and immediately
// begins a simulated playback run, which is handy for smoke testing the
// decoder pool without a real media backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mantonx/framepulse/internal/config"
	"github.com/mantonx/framepulse/internal/database"
	"github.com/mantonx/framepulse/internal/logger"
	"github.com/mantonx/framepulse/internal/modules/modulemanager"
	"github.com/mantonx/framepulse/internal/modules/playbackmodule"
	"github.com/mantonx/framepulse/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to engine configuration file")
	projectPath := flag.String("project", "", "project file to load and play at startup")
	autoplay := flag.Bool("autoplay", true, "start playback after loading -project")
	flag.Parse()

	if *configPath != "" {
		if err := config.Load(*configPath); err != nil {
			logger.Root().Error("failed to load configuration", "error", err)
			os.Exit(1)
		}
	}
	cfg := config.Get()

	if err := database.Initialize(cfg.Database.Path, cfg.Database.LogQueries); err != nil {
		logger.Root().Error("failed to initialize database", "error", err)
		os.Exit(1)
	}

	router, err := server.SetupRouter(cfg)
	if err != nil {
		logger.Root().Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if *projectPath != "" {
		if err := startProject(*projectPath, *autoplay); err != nil {
			logger.Root().Error("failed to start project playback", "error", err)
			os.Exit(1)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Root().Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Root().Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Root().Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	server.Shutdown(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		logger.Root().Warn("server shutdown error", "error", err)
	}
}

// startProject loads a project into the playback module and optionally
// kicks off a run against the simulated media backend
func startProject(path string, autoplay bool) error {
	mod, ok := modulemanager.Get("playback")
	if !ok {
		return fmt.Errorf("playback module not registered")
	}
	playback, ok := mod.(*playbackmodule.Module)
	if !ok {
		return fmt.Errorf("unexpected playback module type %T", mod)
	}

	manager := playback.Manager()
	if err := manager.LoadProject(path); err != nil {
		return err
	}
	if !autoplay {
		return nil
	}

	session, err := manager.StartPlayback(context.Background(), playbackmodule.StartRequest{Resume: true})
	if err != nil {
		return err
	}
	logger.Root().Info("autoplay session started", "session_id", session.ID)
	return nil
}
