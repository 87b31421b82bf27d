package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/framepulse/internal/config"
)

// StopReason records why a playback run ended
type StopReason string

const (
	StopReasonCompleted StopReason = "completed"
	StopReasonStopped   StopReason = "stopped"
	StopReasonStalled   StopReason = "stalled"
	StopReasonError     StopReason = "error"
)

// PlaybackEventKind discriminates playback events
type PlaybackEventKind int

const (
	// PlaybackStart is emitted once before the first frame
	PlaybackStart PlaybackEventKind = iota
	// PlaybackFrame is emitted as frames are rendered
	PlaybackFrame
	// PlaybackStop is emitted exactly once when the run ends
	PlaybackStop
)

// PlaybackEvent is the last-value-wins progress signal from the frame pump.
// Subscribers polling intermittently see the latest frame, not every frame.
type PlaybackEvent struct {
	Kind  PlaybackEventKind
	Frame uint32
}

// SessionSummary describes a finished playback run
type SessionSummary struct {
	StartFrame     uint32
	LastFrame      uint32
	FramesRendered uint64
	FramesSkipped  uint64
	CacheHits      uint64
	EffectiveFPS   float64
	Reason         StopReason
	Err            error
}

// SchedulerConfig tunes the frame pump. Zero values select defaults.
type SchedulerConfig struct {
	FPS uint32
	// StallTimeout bounds a single decode; exceeding it ends the run
	StallTimeout time.Duration
	// FrameCacheSize bounds the decoded-frame LRU
	FrameCacheSize int
	// CatchUpThreshold is the frame lag beyond which the pump skips ahead
	// instead of rendering every late frame
	CatchUpThreshold uint32
	// StatsInterval spaces the periodic throughput log lines
	StatsInterval time.Duration
	// EventThrottleEvery emits a frame event every Nth frame
	EventThrottleEvery uint32
}

const (
	defaultStallTimeout     = 5 * time.Second
	defaultCatchUpThreshold = 6
	defaultStatsInterval    = 2 * time.Second
)

func (c *SchedulerConfig) applyDefaults() {
	if c.StallTimeout <= 0 {
		c.StallTimeout = defaultStallTimeout
	}
	if c.FrameCacheSize <= 0 {
		c.FrameCacheSize = DefaultFrameCacheSize
	}
	if c.CatchUpThreshold == 0 {
		c.CatchUpThreshold = defaultCatchUpThreshold
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = defaultStatsInterval
	}
	if c.EventThrottleEvery == 0 {
		c.EventThrottleEvery = 1
	}
}

// PlaybackHandle controls a running playback and exposes its event stream
type PlaybackHandle struct {
	stop    *Value[bool]
	events  *Value[PlaybackEvent]
	done    chan struct{}
	summary SessionSummary
}

// Stop requests the pump to end after the frame in flight. Safe to call
// more than once.
func (h *PlaybackHandle) Stop() {
	h.stop.Set(true)
}

// StopSignal exposes the stop flag so side channels like audio can end
// with the pump
func (h *PlaybackHandle) StopSignal() *Value[bool] {
	return h.stop
}

// Events subscribes to the progress stream. Each subscriber gets its own
// cursor; slow subscribers observe only the latest event.
func (h *PlaybackHandle) Events() *Receiver[PlaybackEvent] {
	return h.events.Subscribe()
}

// Done is closed when the pump goroutine has fully exited
func (h *PlaybackHandle) Done() <-chan struct{} {
	return h.done
}

// Summary returns the end-of-run statistics. Only valid after Done is
// closed.
func (h *PlaybackHandle) Summary() SessionSummary {
	return h.summary
}

// Playback drives frames from a FrameSource to a Renderer in real time.
// One Playback runs one pump; create a new one per run.
type Playback struct {
	Logger   hclog.Logger
	Source   FrameSource
	Renderer Renderer
	// Project feeds timeline changes into a running pump; edits under
	// playback take effect at the next frame
	Project *Value[*config.ProjectConfig]

	StartFrame uint32
	Config     SchedulerConfig
}

// Start validates the configuration and launches the frame pump. The
// returned handle stays valid after the pump ends.
func (p *Playback) Start(ctx context.Context) (*PlaybackHandle, error) {
	if p.Config.FPS == 0 {
		return nil, fmt.Errorf("playback requires a non-zero fps")
	}
	if p.Source == nil {
		return nil, fmt.Errorf("playback requires a frame source")
	}
	if p.Renderer == nil {
		return nil, fmt.Errorf("playback requires a renderer")
	}
	if p.Logger == nil {
		p.Logger = hclog.NewNullLogger()
	}
	p.Config.applyDefaults()

	cache, err := NewFrameCache(p.Config.FrameCacheSize)
	if err != nil {
		return nil, err
	}

	handle := &PlaybackHandle{
		stop:   NewValue(false),
		events: NewValue(PlaybackEvent{Kind: PlaybackStart, Frame: p.StartFrame}),
		done:   make(chan struct{}),
	}

	go p.pump(ctx, handle, cache)

	return handle, nil
}

func (p *Playback) pump(ctx context.Context, handle *PlaybackHandle, cache *FrameCache) {
	logger := p.Logger.Named("frame-pump")

	var projectRx *Receiver[*config.ProjectConfig]
	var timeline Timeline
	if p.Project != nil {
		projectRx = p.Project.Subscribe()
		timeline = NewTimeline(projectRx.Latest())
	} else {
		timeline = identityTimeline{}
	}

	fps := float64(p.Config.FPS)
	period := time.Duration(float64(time.Second) / fps)
	start := time.Now()
	frame := p.StartFrame

	var rendered, skipped, cacheHits uint64
	reason := StopReasonCompleted
	var runErr error

	stopCh := handle.stop.Changed()
	lastStats := start

	defer func() {
		elapsed := time.Since(start).Seconds()
		summary := SessionSummary{
			StartFrame:     p.StartFrame,
			LastFrame:      frame,
			FramesRendered: rendered,
			FramesSkipped:  skipped,
			CacheHits:      cacheHits,
			Reason:         reason,
			Err:            runErr,
		}
		if elapsed > 0 {
			summary.EffectiveFPS = float64(rendered) / elapsed
		}
		handle.summary = summary
		handle.stop.Set(true)
		handle.events.Set(PlaybackEvent{Kind: PlaybackStop, Frame: frame})

		logger.Info("playback ended",
			"reason", string(reason),
			"frames_rendered", rendered,
			"frames_skipped", skipped,
			"cache_hits", cacheHits,
			"effective_fps", fmt.Sprintf("%.2f", summary.EffectiveFPS))

		close(handle.done)
	}()

	for {
		if handle.stop.Get() {
			reason = StopReasonStopped
			return
		}
		if ctx.Err() != nil {
			reason = StopReasonStopped
			return
		}

		if projectRx != nil && projectRx.HasChanged() {
			timeline = NewTimeline(projectRx.Latest())
			cache.Purge()
			logger.Info("timeline reloaded under playback", "frame", frame)
		}

		playbackTime := float64(frame) / fps
		if playbackTime >= timeline.Duration() {
			return
		}
		recordingTime, clip, ok := timeline.GetRecordingTime(playbackTime)
		if !ok {
			return
		}

		frames, hit := cache.Get(frame)
		if hit {
			cacheHits++
		} else {
			decodeCtx, cancel := context.WithTimeout(ctx, p.Config.StallTimeout)
			decoded, err := p.Source.GetFrame(decodeCtx, frame, float32(recordingTime), clip)
			cancel()
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					reason = StopReasonStalled
					runErr = fmt.Errorf("decode stalled at frame %d: %w", frame, err)
				} else if ctx.Err() != nil {
					reason = StopReasonStopped
				} else {
					reason = StopReasonError
					runErr = err
				}
				if runErr != nil {
					logger.Error("frame pump aborting", "frame", frame, "error", runErr)
				}
				return
			}
			if decoded == nil {
				// end of stream
				return
			}
			frames = decoded
			cache.Add(frame, frames)
		}

		// pace against the absolute schedule so per-frame jitter never
		// accumulates into drift
		deadline := start.Add(time.Duration(frame-p.StartFrame) * period)
		if wait := time.Until(deadline); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-stopCh:
				timer.Stop()
				if handle.stop.Get() {
					reason = StopReasonStopped
					return
				}
				stopCh = handle.stop.Changed()
			case <-ctx.Done():
				timer.Stop()
				reason = StopReasonStopped
				return
			}
		}

		if err := p.Renderer.RenderFrame(ctx, frames, frame); err != nil {
			reason = StopReasonError
			runErr = fmt.Errorf("failed to render frame %d: %w", frame, err)
			logger.Error("frame pump aborting", "frame", frame, "error", runErr)
			return
		}
		rendered++

		if frame%p.Config.EventThrottleEvery == 0 {
			handle.events.Set(PlaybackEvent{Kind: PlaybackFrame, Frame: frame})
		}

		next := frame + 1

		// skip ahead when decoding has fallen far behind the wall clock,
		// trading continuity for liveness
		expected := p.StartFrame + uint32(time.Since(start).Seconds()*fps)
		if expected > next && expected-next > p.Config.CatchUpThreshold {
			skipped += uint64(expected - next)
			logger.Warn("skipping ahead to catch up",
				"from_frame", next, "to_frame", expected, "skipped", expected-next)
			next = expected
		}
		frame = next

		if time.Since(lastStats) >= p.Config.StatsInterval {
			elapsed := time.Since(start).Seconds()
			logger.Debug("playback stats",
				"frame", frame,
				"effective_fps", fmt.Sprintf("%.2f", float64(rendered)/elapsed),
				"cache_hits", cacheHits,
				"skipped", skipped)
			lastStats = time.Now()
		}
	}
}
