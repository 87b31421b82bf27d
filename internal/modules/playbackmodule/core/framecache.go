package core

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultFrameCacheSize holds three seconds of frames at 30 fps
const DefaultFrameCacheSize = 90

// FrameCache is a bounded LRU of decoded frames keyed by output frame
// number. It keeps short backward scrubs and replays from hitting the
// decoders again.
type FrameCache struct {
	cache *lru.Cache[uint32, *DecodedFrames]
}

// NewFrameCache creates a cache holding up to size frames
func NewFrameCache(size int) (*FrameCache, error) {
	if size <= 0 {
		size = DefaultFrameCacheSize
	}
	cache, err := lru.New[uint32, *DecodedFrames](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame cache: %w", err)
	}
	return &FrameCache{cache: cache}, nil
}

// Get returns the cached frames for a frame number, if present
func (c *FrameCache) Get(frameNumber uint32) (*DecodedFrames, bool) {
	return c.cache.Get(frameNumber)
}

// Add stores frames for a frame number, evicting the least recently used
// entry when full
func (c *FrameCache) Add(frameNumber uint32, frames *DecodedFrames) {
	c.cache.Add(frameNumber, frames)
}

// Len returns the current entry count
func (c *FrameCache) Len() int {
	return c.cache.Len()
}

// Purge drops every entry, used when the project is edited under playback
func (c *FrameCache) Purge() {
	c.cache.Purge()
}
