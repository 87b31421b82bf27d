// Package logger builds the process-wide hclog root logger. Modules derive
// named children from it so every log line carries its subsystem.
package logger

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	once sync.Once
	root hclog.Logger
)

// Root returns the shared root logger, creating it on first use. Level comes
// from LOG_LEVEL (default info), format from LOG_FORMAT (json or text).
func Root() hclog.Logger {
	once.Do(func() {
		root = New("framepulse")
	})
	return root
}

// Named returns a child of the root logger
func Named(name string) hclog.Logger {
	return Root().Named(name)
}

// New builds a standalone logger configured from the environment
func New(name string) hclog.Logger {
	level := hclog.LevelFromString(os.Getenv("LOG_LEVEL"))
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		JSONFormat: os.Getenv("LOG_FORMAT") == "json",
		Output:     os.Stderr,
	})
}
