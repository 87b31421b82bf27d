package events

import (
	"sync"
)

// The process-wide bus lets playback modules publish lifecycle events
// without threading a bus handle through every constructor. It is set
// once during server startup, before any module registers handlers.
var (
	globalBus     EventBus
	globalBusLock sync.RWMutex
)

// SetGlobalEventBus installs the bus shared across playback modules.
func SetGlobalEventBus(bus EventBus) {
	globalBusLock.Lock()
	defer globalBusLock.Unlock()
	globalBus = bus
}

// GetGlobalEventBus returns the shared bus, or nil before startup wiring.
func GetGlobalEventBus() EventBus {
	globalBusLock.RLock()
	defer globalBusLock.RUnlock()
	return globalBus
}
