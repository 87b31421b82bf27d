package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
)

// PooledDecoderConfig wires a PooledDecoder together
type PooledDecoderConfig struct {
	Pool  PoolConfig
	Scrub ScrubDetectorConfig

	// OnScrubChange fires on every transition in or out of scrub mode
	OnScrubChange func(active bool)
	// OnRebalance fires after idle slots have been repositioned
	OnRebalance func(targets []float32)
	// OnReset fires after a slot seek forced by a cache miss
	OnReset func(slot int, positionSecs float32)
}

// PooledDecoder serves frame requests from a pool of decoder slots. Each
// request is routed to the slot the pool manager picks, seeking it first
// when no slot is close enough. Access patterns feed the scrub detector,
// and every rebalance window the least recently used slots are repositioned
// toward observed hotspots in the background.
type PooledDecoder struct {
	logger hclog.Logger
	pool   *DecoderPoolManager
	scrub  *ScrubDetector
	cfg    PooledDecoderConfig

	decoders []Decoder
	slotMu   []sync.Mutex

	rebalancing atomic.Bool
	closed      atomic.Bool
	wg          sync.WaitGroup
}

// NewPooledDecoder creates a pooled decoder over the given slots. The slot
// count fixes the pool size, overriding any size in cfg.Pool.
func NewPooledDecoder(logger hclog.Logger, decoders []Decoder, cfg PooledDecoderConfig) (*PooledDecoder, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if len(decoders) == 0 {
		return nil, fmt.Errorf("pooled decoder requires at least one slot")
	}

	cfg.Pool.Size = len(decoders)
	pool, err := NewDecoderPoolManager(logger, cfg.Pool)
	if err != nil {
		return nil, err
	}

	return &PooledDecoder{
		logger:   logger.Named("pooled-decoder"),
		pool:     pool,
		scrub:    NewScrubDetector(logger, cfg.Scrub),
		cfg:      cfg,
		decoders: decoders,
		slotMu:   make([]sync.Mutex, len(decoders)),
	}, nil
}

// Pool exposes the underlying pool manager for stats endpoints
func (p *PooledDecoder) Pool() *DecoderPoolManager {
	return p.pool
}

// IsScrubbing reports the current scrub detector state
func (p *PooledDecoder) IsScrubbing() bool {
	return p.scrub.IsScrubbing()
}

// GetFrame routes one request through the pool. The chosen slot is seeked
// first when the pool marks it for reset.
func (p *PooledDecoder) GetFrame(ctx context.Context, frameNumber uint32, recordingTime float32, clip uint32) (*DecodedFrames, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("pooled decoder is closed")
	}

	wasScrubbing := p.scrub.IsScrubbing()
	scrubbing := p.scrub.RecordRequest(frameNumber)
	if scrubbing != wasScrubbing && p.cfg.OnScrubChange != nil {
		p.cfg.OnScrubChange(scrubbing)
	}

	slot, distance, needsReset := p.pool.FindBestDecoderForTime(recordingTime)

	p.slotMu[slot].Lock()
	defer p.slotMu[slot].Unlock()

	if needsReset {
		if err := p.decoders[slot].Seek(ctx, recordingTime); err != nil {
			return nil, fmt.Errorf("failed to seek decoder slot %d: %w", slot, err)
		}
		p.pool.MarkReset(slot, recordingTime)
		if p.cfg.OnReset != nil {
			p.cfg.OnReset(slot, recordingTime)
		}
	}

	frames, err := p.decoders[slot].ProduceFrame(ctx, recordingTime)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %d (slot %d, distance %.2fs): %w",
			frameNumber, slot, distance, err)
	}
	if frames == nil {
		return nil, nil
	}

	frames.RecordingTime = recordingTime
	frames.Clip = clip
	p.pool.UpdateDecoderPosition(slot, recordingTime)

	if p.pool.ShouldRebalance() {
		p.rebalanceAsync(ctx)
	}

	return frames, nil
}

// rebalanceAsync repositions the least recently used slot toward the
// hottest target. Only one rebalance runs at a time; further windows are
// skipped while one is in flight.
func (p *PooledDecoder) rebalanceAsync(ctx context.Context) {
	if !p.rebalancing.CompareAndSwap(false, true) {
		return
	}

	targets := p.pool.RebalancePositions()
	victim := p.pool.LeastRecentlyUsedSlot()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.rebalancing.Store(false)

		if len(targets) == 0 || p.closed.Load() {
			return
		}

		target := targets[0]
		p.slotMu[victim].Lock()
		err := p.decoders[victim].Seek(ctx, target)
		p.slotMu[victim].Unlock()
		if err != nil {
			p.logger.Warn("rebalance seek failed", "slot", victim, "target", target, "error", err)
			return
		}
		p.pool.MarkReset(victim, target)

		p.logger.Debug("pool rebalanced", "slot", victim, "target_secs", target)
		if p.cfg.OnRebalance != nil {
			p.cfg.OnRebalance(targets)
		}
	}()
}

// Close waits for any in-flight rebalance and closes every slot
func (p *PooledDecoder) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.wg.Wait()

	var firstErr error
	for i, dec := range p.decoders {
		p.slotMu[i].Lock()
		err := dec.Close()
		p.slotMu[i].Unlock()
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close decoder slot %d: %w", i, err)
		}
	}
	return firstErr
}
