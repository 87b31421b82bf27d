package core

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// BaseDecoderPoolSize is the slot count for short media
	BaseDecoderPoolSize = 3
	// MaxDecoderPoolSize caps the slot count regardless of duration
	MaxDecoderPoolSize = 8

	// BaseRepositionThresholdSecs is how far ahead of a decoder's position a
	// request may land before sequential decoding is considered cheaper than
	// a seek
	BaseRepositionThresholdSecs float32 = 5.0

	longMediaSecs     = 600.0
	veryLongMediaSecs = 1800.0

	defaultRebalanceInterval = 100
	defaultAccessHistorySize = 4096
)

// KeyframeIndex supplies seek-friendly positions for initial slot placement.
// Implementations typically read a container's keyframe table.
type KeyframeIndex interface {
	// StrategicPositions returns up to n positions in seconds, spread to
	// cover the areas a scrubbing user is likely to hit
	StrategicPositions(n int) []float64
}

// DecoderPosition tracks where one pooled decoder currently sits in the
// media and how recently it was used.
type DecoderPosition struct {
	ID             int
	PositionSecs   float32
	LastAccessTime time.Time
	AccessCount    uint64
}

func (p *DecoderPosition) touch(now time.Time) {
	p.LastAccessTime = now
	p.AccessCount++
}

// PoolConfig configures a DecoderPoolManager. Zero values select
// duration-adaptive defaults.
type PoolConfig struct {
	FPS          uint32
	DurationSecs float64

	// Size fixes the slot count; 0 derives it from DurationSecs
	Size int
	// RepositionThresholdSecs fixes the seek-vs-sequential cutover; 0
	// derives it from DurationSecs
	RepositionThresholdSecs float32
	// RebalanceInterval is the access count between rebalance windows
	RebalanceInterval uint64
	// AccessHistorySize bounds the per-frame access histogram
	AccessHistorySize int

	Keyframes KeyframeIndex

	// Clock overrides time.Now, for tests
	Clock func() time.Time
}

// OptimalPoolSize derives a slot count from media duration. Long media gets
// extra slots so coverage gaps between decoders stay tolerable.
func OptimalPoolSize(durationSecs float64) int {
	size := BaseDecoderPoolSize
	if durationSecs >= longMediaSecs {
		size += 2
	}
	if durationSecs >= veryLongMediaSecs {
		size = MaxDecoderPoolSize
	}
	if size > MaxDecoderPoolSize {
		size = MaxDecoderPoolSize
	}
	return size
}

// OptimalRepositionThreshold derives the seek cutover from media duration.
// Longer media tolerates wider sequential-decode windows because seeks
// across a large file are slower.
func OptimalRepositionThreshold(durationSecs float64) float32 {
	switch {
	case durationSecs >= veryLongMediaSecs:
		return 10.0
	case durationSecs >= longMediaSecs:
		return 7.0
	default:
		return BaseRepositionThresholdSecs
	}
}

// DecoderPoolManager assigns playback-time requests to a small pool of
// decoder slots, keeping seeks rare by preferring a slot already positioned
// shortly before the requested time. It also maintains a bounded access
// histogram used to periodically rebalance idle slots toward hotspots.
//
// All methods are safe for concurrent use.
type DecoderPoolManager struct {
	logger hclog.Logger

	mu            sync.Mutex
	positions     []DecoderPosition
	accessHistory *lru.Cache[uint32, uint64]
	totalAccesses uint64

	fps               uint32
	durationSecs      float64
	threshold         float32
	rebalanceInterval uint64
	now               func() time.Time
}

// NewDecoderPoolManager creates a pool with slots pre-positioned across the
// media. With a KeyframeIndex the slots land on strategic keyframes,
// otherwise they are spread uniformly; zero-duration media parks every slot
// at zero.
func NewDecoderPoolManager(logger hclog.Logger, cfg PoolConfig) (*DecoderPoolManager, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.FPS == 0 {
		return nil, fmt.Errorf("pool requires a non-zero fps")
	}

	size := cfg.Size
	if size <= 0 {
		size = OptimalPoolSize(cfg.DurationSecs)
	}
	threshold := cfg.RepositionThresholdSecs
	if threshold <= 0 {
		threshold = OptimalRepositionThreshold(cfg.DurationSecs)
	}
	interval := cfg.RebalanceInterval
	if interval == 0 {
		interval = defaultRebalanceInterval
	}
	historySize := cfg.AccessHistorySize
	if historySize <= 0 {
		historySize = defaultAccessHistorySize
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	history, err := lru.New[uint32, uint64](historySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create access history: %w", err)
	}

	m := &DecoderPoolManager{
		logger:            logger.Named("decoder-pool"),
		accessHistory:     history,
		fps:               cfg.FPS,
		durationSecs:      cfg.DurationSecs,
		threshold:         threshold,
		rebalanceInterval: interval,
		now:               clock,
	}

	initial := m.initialPositions(size, cfg.Keyframes)
	now := clock()
	m.positions = make([]DecoderPosition, size)
	for i := range m.positions {
		m.positions[i] = DecoderPosition{
			ID:             i,
			PositionSecs:   initial[i],
			LastAccessTime: now,
		}
	}

	m.logger.Debug("decoder pool initialized",
		"slots", size, "threshold_secs", threshold, "duration_secs", cfg.DurationSecs)

	return m, nil
}

func (m *DecoderPoolManager) initialPositions(size int, keyframes KeyframeIndex) []float32 {
	positions := make([]float32, size)
	if m.durationSecs <= 0 {
		return positions
	}

	if keyframes != nil {
		strategic := keyframes.StrategicPositions(size)
		for i := 0; i < size && i < len(strategic); i++ {
			positions[i] = float32(strategic[i])
		}
		if len(strategic) >= size {
			return positions
		}
		// not enough keyframes; fill the remainder uniformly
		for i := len(strategic); i < size; i++ {
			positions[i] = float32(m.durationSecs * float64(i) / float64(size))
		}
		return positions
	}

	for i := range positions {
		positions[i] = float32(m.durationSecs * float64(i) / float64(size))
	}
	return positions
}

// Size returns the slot count
func (m *DecoderPoolManager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// RepositionThreshold returns the active seek cutover in seconds
func (m *DecoderPoolManager) RepositionThreshold() float32 {
	return m.threshold
}

// FindBestDecoderForTime picks the slot to serve a request at t seconds and
// records the access. A slot is usable when it sits at or before t and less
// than the reposition threshold behind it; among usable slots the closest
// wins. With no usable slot the closest slot by absolute distance is
// returned with needsReset set, meaning the caller must seek it before
// decoding. Ties break toward the lower slot ID.
func (m *DecoderPoolManager) FindBestDecoderForTime(t float32) (id int, distance float32, needsReset bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recordAccess(t)

	bestUsable := -1
	bestUsableDist := float32(math.MaxFloat32)
	bestAny := 0
	bestAnyDist := float32(math.MaxFloat32)

	for i := range m.positions {
		pos := m.positions[i].PositionSecs
		absDist := pos - t
		if absDist < 0 {
			absDist = -absDist
		}
		if absDist < bestAnyDist {
			bestAnyDist = absDist
			bestAny = i
		}

		if pos <= t {
			ahead := t - pos
			if ahead < m.threshold && ahead < bestUsableDist {
				bestUsableDist = ahead
				bestUsable = i
			}
		}
	}

	if bestUsable >= 0 {
		m.positions[bestUsable].touch(m.now())
		return m.positions[bestUsable].ID, bestUsableDist, false
	}

	m.positions[bestAny].touch(m.now())
	return m.positions[bestAny].ID, bestAnyDist, true
}

func (m *DecoderPoolManager) recordAccess(t float32) {
	bin := uint32(float64(t) * float64(m.fps))
	count, _ := m.accessHistory.Get(bin)
	m.accessHistory.Add(bin, count+1)
	m.totalAccesses++
}

// UpdateDecoderPosition records where a slot ended up after decoding
func (m *DecoderPoolManager) UpdateDecoderPosition(id int, positionSecs float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.positions) {
		return
	}
	m.positions[id].PositionSecs = positionSecs
	m.positions[id].touch(m.now())
}

// MarkReset records a completed seek for a slot that needed one
func (m *DecoderPoolManager) MarkReset(id int, positionSecs float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.positions) {
		return
	}
	m.positions[id].PositionSecs = positionSecs
	m.positions[id].LastAccessTime = m.now()
	m.logger.Debug("decoder slot reset", "slot", id, "position_secs", positionSecs)
}

// ShouldRebalance reports whether the current access count lands on a
// rebalance window boundary. It is true for exactly one access per window.
func (m *DecoderPoolManager) ShouldRebalance() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalAccesses > 0 && m.totalAccesses%m.rebalanceInterval == 0
}

// RebalancePositions computes target positions for idle slots based on the
// access histogram. The hottest frame bins become targets, one per slot,
// padded with evenly spaced positions when fewer hotspots than slots exist.
// With no recorded accesses the slots stay where they are. The caller is
// responsible for actually seeking slots toward the targets.
func (m *DecoderPoolManager) RebalancePositions() []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := len(m.positions)

	if m.accessHistory.Len() == 0 {
		targets := make([]float32, 0, size)
		for _, pos := range m.positions {
			targets = append(targets, pos.PositionSecs)
		}
		return targets
	}

	type binCount struct {
		bin   uint32
		count uint64
	}

	bins := make([]binCount, 0, m.accessHistory.Len())
	for _, bin := range m.accessHistory.Keys() {
		if count, ok := m.accessHistory.Peek(bin); ok {
			bins = append(bins, binCount{bin: bin, count: count})
		}
	}
	sort.Slice(bins, func(i, j int) bool {
		if bins[i].count != bins[j].count {
			return bins[i].count > bins[j].count
		}
		return bins[i].bin < bins[j].bin
	})

	targets := make([]float32, 0, size)
	for i := 0; i < len(bins) && len(targets) < size; i++ {
		targets = append(targets, float32(bins[i].bin)/float32(m.fps))
	}

	// pad with an even spread so the pool keeps whole-media coverage
	remaining := size - len(targets)
	for i := 0; i < remaining; i++ {
		frac := float64(i+1) / float64(remaining+1)
		targets = append(targets, float32(m.durationSecs*frac))
	}

	m.logger.Debug("rebalance targets computed",
		"targets", fmt.Sprintf("%v", targets), "accesses", m.totalAccesses)

	return targets
}

// LeastRecentlyUsedSlot returns the slot that has gone longest without an
// access, used to pick a rebalance victim
func (m *DecoderPoolManager) LeastRecentlyUsedSlot() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	lru := 0
	for i := range m.positions {
		if m.positions[i].LastAccessTime.Before(m.positions[lru].LastAccessTime) {
			lru = i
		}
	}
	return m.positions[lru].ID
}

// Positions returns a snapshot of all slot positions
func (m *DecoderPoolManager) Positions() []DecoderPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DecoderPosition, len(m.positions))
	copy(out, m.positions)
	return out
}

// TotalAccesses returns the number of FindBestDecoderForTime calls so far
func (m *DecoderPoolManager) TotalAccesses() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalAccesses
}
