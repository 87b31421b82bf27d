package core

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, cfg PoolConfig) *DecoderPoolManager {
	t.Helper()
	if cfg.FPS == 0 {
		cfg.FPS = 30
	}
	pool, err := NewDecoderPoolManager(nil, cfg)
	require.NoError(t, err)
	return pool
}

func TestNewDecoderPoolManager_UniformInitialPositions(t *testing.T) {
	pool := newTestPool(t, PoolConfig{DurationSecs: 30, Size: 3})

	positions := pool.Positions()
	require.Len(t, positions, 3)
	assert.InDelta(t, 0.0, positions[0].PositionSecs, 0.001)
	assert.InDelta(t, 10.0, positions[1].PositionSecs, 0.001)
	assert.InDelta(t, 20.0, positions[2].PositionSecs, 0.001)
}

func TestNewDecoderPoolManager_ZeroDurationParksAllSlotsAtZero(t *testing.T) {
	pool := newTestPool(t, PoolConfig{DurationSecs: 0, Size: 3})

	for _, p := range pool.Positions() {
		assert.Equal(t, float32(0), p.PositionSecs)
	}
}

func TestNewDecoderPoolManager_RequiresFPS(t *testing.T) {
	_, err := NewDecoderPoolManager(nil, PoolConfig{DurationSecs: 10})
	assert.Error(t, err)
}

type fakeKeyframes struct {
	positions []float64
}

func (f fakeKeyframes) StrategicPositions(n int) []float64 {
	if n > len(f.positions) {
		n = len(f.positions)
	}
	return f.positions[:n]
}

func TestNewDecoderPoolManager_KeyframePlacement(t *testing.T) {
	pool := newTestPool(t, PoolConfig{
		DurationSecs: 60,
		Size:         3,
		Keyframes:    fakeKeyframes{positions: []float64{1.5, 22.0, 48.5}},
	})

	positions := pool.Positions()
	assert.InDelta(t, 1.5, positions[0].PositionSecs, 0.001)
	assert.InDelta(t, 22.0, positions[1].PositionSecs, 0.001)
	assert.InDelta(t, 48.5, positions[2].PositionSecs, 0.001)
}

func TestOptimalPoolSize(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		want     int
	}{
		{"short media", 30, 3},
		{"just under long", 599, 3},
		{"long media", 600, 5},
		{"very long media", 1800, 8},
		{"hours", 7200, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OptimalPoolSize(tt.duration))
		})
	}
}

func TestOptimalRepositionThreshold(t *testing.T) {
	assert.Equal(t, float32(5.0), OptimalRepositionThreshold(30))
	assert.Equal(t, float32(7.0), OptimalRepositionThreshold(900))
	assert.Equal(t, float32(10.0), OptimalRepositionThreshold(3600))
}

func TestFindBestDecoderForTime_PrefersClosestUsableSlot(t *testing.T) {
	pool := newTestPool(t, PoolConfig{DurationSecs: 30, Size: 3})
	// slots sit at 0, 10, 20

	id, distance, needsReset := pool.FindBestDecoderForTime(12.0)
	assert.Equal(t, 1, id)
	assert.InDelta(t, 2.0, distance, 0.001)
	assert.False(t, needsReset)
}

func TestFindBestDecoderForTime_SlotAheadOfTargetIsNotUsable(t *testing.T) {
	pool := newTestPool(t, PoolConfig{DurationSecs: 30, Size: 3})
	// 9.5 is within threshold of slot 0 (at 0)? no: 9.5 ahead of 0 exceeds
	// the 5s threshold; slot 1 at 10 is ahead of the target. Slot 0 is the
	// only candidate behind the target but too far, so the closest slot by
	// absolute distance wins with a reset.
	id, distance, needsReset := pool.FindBestDecoderForTime(9.5)
	assert.Equal(t, 1, id)
	assert.InDelta(t, 0.5, distance, 0.001)
	assert.True(t, needsReset)
}

func TestFindBestDecoderForTime_WithinThresholdAvoidsReset(t *testing.T) {
	pool := newTestPool(t, PoolConfig{DurationSecs: 30, Size: 3})

	id, distance, needsReset := pool.FindBestDecoderForTime(4.9)
	assert.Equal(t, 0, id)
	assert.InDelta(t, 4.9, distance, 0.001)
	assert.False(t, needsReset)
}

func TestFindBestDecoderForTime_ExactThresholdForcesReset(t *testing.T) {
	pool := newTestPool(t, PoolConfig{DurationSecs: 30, Size: 1})
	// the single slot sits at 0; a request exactly at the threshold is no
	// longer within the sequential-decode window
	id, _, needsReset := pool.FindBestDecoderForTime(5.0)
	assert.Equal(t, 0, id)
	assert.True(t, needsReset)
}

func TestFindBestDecoderForTime_TieBreaksTowardLowerSlot(t *testing.T) {
	pool := newTestPool(t, PoolConfig{DurationSecs: 30, Size: 3})
	pool.UpdateDecoderPosition(0, 8.0)
	pool.UpdateDecoderPosition(1, 8.0)

	id, _, needsReset := pool.FindBestDecoderForTime(9.0)
	assert.Equal(t, 0, id)
	assert.False(t, needsReset)
}

func TestFindBestDecoderForTime_TouchesWinnerOnly(t *testing.T) {
	pool := newTestPool(t, PoolConfig{DurationSecs: 30, Size: 3})

	pool.FindBestDecoderForTime(12.0)

	positions := pool.Positions()
	assert.Equal(t, uint64(0), positions[0].AccessCount)
	assert.Equal(t, uint64(1), positions[1].AccessCount)
	assert.Equal(t, uint64(0), positions[2].AccessCount)
}

func TestUpdateDecoderPosition_IgnoresOutOfRangeSlot(t *testing.T) {
	pool := newTestPool(t, PoolConfig{DurationSecs: 30, Size: 2})

	pool.UpdateDecoderPosition(7, 5.0)
	pool.UpdateDecoderPosition(-1, 5.0)

	positions := pool.Positions()
	assert.InDelta(t, 0.0, positions[0].PositionSecs, 0.001)
	assert.InDelta(t, 15.0, positions[1].PositionSecs, 0.001)
}

func TestShouldRebalance_FiresOncePerWindow(t *testing.T) {
	pool := newTestPool(t, PoolConfig{DurationSecs: 30, Size: 3, RebalanceInterval: 100})

	fired := 0
	for i := 0; i < 250; i++ {
		pool.FindBestDecoderForTime(1.0)
		if pool.ShouldRebalance() {
			fired++
			// consume the window the way the caller does: the next access
			// moves totalAccesses off the boundary
			pool.FindBestDecoderForTime(1.0)
		}
	}
	assert.Equal(t, 2, fired)
}

func TestRebalancePositions_HotspotsFirstThenEvenSpread(t *testing.T) {
	pool := newTestPool(t, PoolConfig{FPS: 30, DurationSecs: 30, Size: 3})

	// hammer two spots, one harder than the other
	for i := 0; i < 10; i++ {
		pool.FindBestDecoderForTime(2.0)
	}
	for i := 0; i < 5; i++ {
		pool.FindBestDecoderForTime(21.0)
	}

	targets := pool.RebalancePositions()
	require.Len(t, targets, 3)
	assert.InDelta(t, 2.0, targets[0], 0.05)
	assert.InDelta(t, 21.0, targets[1], 0.05)
	// padding keeps whole-media coverage
	assert.InDelta(t, 15.0, targets[2], 0.001)
}

func TestRebalancePositions_OneHotspotPerSlot(t *testing.T) {
	pool := newTestPool(t, PoolConfig{FPS: 30, DurationSecs: 30, Size: 3})

	// three distinct hotspots, hit with strictly decreasing intensity
	for i := 0; i < 10; i++ {
		pool.FindBestDecoderForTime(2.0)
	}
	for i := 0; i < 5; i++ {
		pool.FindBestDecoderForTime(21.0)
	}
	for i := 0; i < 3; i++ {
		pool.FindBestDecoderForTime(11.0)
	}

	targets := pool.RebalancePositions()
	require.Len(t, targets, 3)
	assert.InDelta(t, 2.0, targets[0], 0.05)
	assert.InDelta(t, 21.0, targets[1], 0.05)
	assert.InDelta(t, 11.0, targets[2], 0.05)
}

func TestRebalancePositions_NoHistoryKeepsSlotsPut(t *testing.T) {
	pool := newTestPool(t, PoolConfig{DurationSecs: 30, Size: 3})

	before := pool.Positions()
	targets := pool.RebalancePositions()

	require.Len(t, targets, 3)
	for i, pos := range before {
		assert.InDelta(t, pos.PositionSecs, targets[i], 0.001)
	}
}

func TestLeastRecentlyUsedSlot(t *testing.T) {
	base := time.Now()
	clock := base
	pool := newTestPool(t, PoolConfig{
		DurationSecs: 30,
		Size:         3,
		Clock:        func() time.Time { return clock },
	})

	clock = base.Add(time.Second)
	pool.UpdateDecoderPosition(0, 1.0)
	clock = base.Add(2 * time.Second)
	pool.UpdateDecoderPosition(2, 25.0)

	assert.Equal(t, 1, pool.LeastRecentlyUsedSlot())
}

func TestMarkReset_MovesSlot(t *testing.T) {
	pool := newTestPool(t, PoolConfig{DurationSecs: 30, Size: 3})

	pool.MarkReset(2, 7.5)

	positions := pool.Positions()
	assert.InDelta(t, 7.5, positions[2].PositionSecs, 0.001)
	// a reset repositions without counting as a frame access
	assert.Equal(t, uint64(0), positions[2].AccessCount)
}

func TestFindBestDecoderForTime_RandomRequestsHoldInvariants(t *testing.T) {
	const duration = 120.0
	pool := newTestPool(t, PoolConfig{DurationSecs: duration, Size: 5})
	threshold := pool.RepositionThreshold()

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		target := float32(rng.Float64() * duration)

		id, distance, needsReset := pool.FindBestDecoderForTime(target)
		require.GreaterOrEqual(t, id, 0)
		require.Less(t, id, 5)
		assert.GreaterOrEqual(t, distance, float32(0))

		pos := pool.Positions()[id].PositionSecs
		if !needsReset {
			// A slot served without repositioning must sit behind the target
			// and within forward decode range.
			assert.LessOrEqual(t, pos, target)
			assert.Less(t, target-pos, threshold)
		}

		// Mimic the caller: reset when asked, then advance to the target.
		if needsReset {
			pool.MarkReset(id, target)
		} else {
			pool.UpdateDecoderPosition(id, target)
		}

		if pool.ShouldRebalance() {
			targets := pool.RebalancePositions()
			assert.Len(t, targets, 5)
		}
	}

	assert.Len(t, pool.Positions(), 5)
	assert.Equal(t, uint64(2000), pool.TotalAccesses())
}
