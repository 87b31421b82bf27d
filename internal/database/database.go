// Package database provides the playback history store.
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var db *gorm.DB

// Initialize opens the global history database at the given path and
// migrates the schema
func Initialize(path string, logQueries bool) error {
	conn, err := Open(path, logQueries)
	if err != nil {
		return err
	}
	db = conn
	return nil
}

// Open opens a history database without touching the global handle. Use
// ":memory:" for an in-memory database (tests).
func Open(path string, logQueries bool) (*gorm.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	logMode := gormlogger.Silent
	if logQueries {
		logMode = gormlogger.Info
	}

	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if err := conn.AutoMigrate(&PlaybackHistory{}, &ResumePosition{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return conn, nil
}

// GetDB returns the database instance, nil before Initialize
func GetDB() *gorm.DB {
	return db
}
