package core

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	// scrubRateSmoothing is the EMA weight kept from the previous rate
	scrubRateSmoothing = 0.7

	defaultScrubRateThreshold = 5.0
	defaultScrubCooldown      = 150 * time.Millisecond

	// minRequestElapsed floors the inter-request gap so the instantaneous
	// rate stays finite when two requests share a clock tick
	minRequestElapsed = time.Millisecond
)

// ScrubDetectorConfig tunes scrub detection. Zero values select defaults.
type ScrubDetectorConfig struct {
	// RateThreshold is the smoothed request rate in requests/sec above
	// which non-sequential access counts as scrubbing
	RateThreshold float64
	// Cooldown is how long after the last qualifying request scrub mode
	// persists
	Cooldown time.Duration
	// Clock overrides time.Now, for tests
	Clock func() time.Time
}

// ScrubDetector classifies frame request patterns as normal playback or
// scrubbing. Scrubbing means a high smoothed request rate combined with
// non-sequential frame jumps; consumers use it to trade quality for
// latency while the user drags the playhead.
//
// Safe for concurrent use.
type ScrubDetector struct {
	logger hclog.Logger

	mu              sync.Mutex
	lastRequestTime time.Time
	lastFrame       uint32
	hasRequest      bool
	requestRate     float64
	lastFrameDelta  int64
	scrubbing       bool
	scrubStart      time.Time

	rateThreshold float64
	cooldown      time.Duration
	now           func() time.Time
}

// NewScrubDetector creates a detector in the not-scrubbing state
func NewScrubDetector(logger hclog.Logger, cfg ScrubDetectorConfig) *ScrubDetector {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	threshold := cfg.RateThreshold
	if threshold <= 0 {
		threshold = defaultScrubRateThreshold
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = defaultScrubCooldown
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &ScrubDetector{
		logger:        logger.Named("scrub-detector"),
		rateThreshold: threshold,
		cooldown:      cooldown,
		now:           clock,
	}
}

// RecordRequest feeds one frame request into the detector and returns
// whether it is now in scrub mode. The first request only seeds state.
func (d *ScrubDetector) RecordRequest(frame uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	if !d.hasRequest {
		d.hasRequest = true
		d.lastRequestTime = now
		d.lastFrame = frame
		return d.scrubbing
	}

	elapsed := now.Sub(d.lastRequestTime)
	if elapsed < minRequestElapsed {
		elapsed = minRequestElapsed
	}

	delta := int64(frame) - int64(d.lastFrame)
	if delta < 0 {
		delta = -delta
	}
	d.lastFrameDelta = delta

	instantRate := float64(delta) / elapsed.Seconds()
	d.requestRate = scrubRateSmoothing*d.requestRate + (1-scrubRateSmoothing)*instantRate

	if d.requestRate > d.rateThreshold && delta > 1 {
		if !d.scrubbing {
			d.scrubbing = true
			d.scrubStart = now
			d.logger.Debug("scrub started", "rate", d.requestRate, "frame_delta", delta)
		}
	} else if d.scrubbing && elapsed > d.cooldown {
		d.scrubbing = false
		d.logger.Debug("scrub stopped", "duration", now.Sub(d.scrubStart).String())
	}

	d.lastRequestTime = now
	d.lastFrame = frame
	return d.scrubbingLocked(now)
}

// IsScrubbing reports the current mode without recording a request.
// Scrub mode lapses on its own once the cooldown passes with no further
// requests.
func (d *ScrubDetector) IsScrubbing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scrubbingLocked(d.now())
}

func (d *ScrubDetector) scrubbingLocked(now time.Time) bool {
	return d.scrubbing && now.Sub(d.lastRequestTime) <= d.cooldown
}

// RequestRate returns the smoothed request rate in requests/sec
func (d *ScrubDetector) RequestRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requestRate
}

// LastFrameDelta returns the absolute frame jump of the latest request
func (d *ScrubDetector) LastFrameDelta() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastFrameDelta
}

// ScrubDuration returns how long the current scrub has been running, or
// false when not scrubbing
func (d *ScrubDetector) ScrubDuration() (time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if !d.scrubbingLocked(now) {
		return 0, false
	}
	return now.Sub(d.scrubStart), true
}
