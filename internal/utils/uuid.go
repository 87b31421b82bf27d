// Package utils provides shared helpers for all modules.
package utils

import (
	"github.com/google/uuid"
)

// GenerateUUID returns a random v4 UUID string, used for session and event
// identifiers.
func GenerateUUID() string {
	return uuid.New().String()
}
