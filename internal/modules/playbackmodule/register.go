package playbackmodule

import (
	"github.com/mantonx/framepulse/internal/modules/modulemanager"
)

// Auto-register the module when imported
func init() {
	Register()
}

// Register registers the playback module with the module system
func Register() {
	modulemanager.Register(&Module{})
}
