package core

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/hashicorp/go-hclog"
)

// SampleFormat is the closed set of device sample layouts. Conversion from
// the internal f32 pipeline lives next to the format so silence always uses
// the format's true equilibrium value.
type SampleFormat int

const (
	SampleFormatF32 SampleFormat = iota
	SampleFormatI16
	SampleFormatU16
	SampleFormatU8
)

// Equilibrium returns the silence value for the format in normalized f32
// space. Signed and float formats rest at zero; unsigned formats rest at
// their midpoint.
func (f SampleFormat) Equilibrium() float32 {
	switch f {
	case SampleFormatU16, SampleFormatU8:
		return 0.5
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatF32:
		return "f32"
	case SampleFormatI16:
		return "i16"
	case SampleFormatU16:
		return "u16"
	case SampleFormatU8:
		return "u8"
	default:
		return "unknown"
	}
}

// AudioOutput abstracts a playback device. Start begins pulling samples
// through fill from the device's own callback context; fill returning false
// tells the device the stream is over and it should go silent.
type AudioOutput interface {
	// SampleRate returns the device's native rate in Hz
	SampleRate() uint32
	Start(fill func(out []float32) bool) error
	Close() error
}

// LatencyReporter is implemented by outputs that can measure how far ahead
// of the speaker their fill callback runs. Outputs without a timing source
// simply omit it.
type LatencyReporter interface {
	// OutputLatency returns the delay between a sample being written and
	// heard, or false when no measurement is available yet
	OutputLatency() (time.Duration, bool)
}

const (
	latencyIncreaseTauSecs  = 0.25
	latencyDecreaseTauSecs  = 1.0
	latencyMaxRisePerSec    = 0.75
	latencyCeilingSecs      = 3.0
	latencyMinValidSecs     = 0.0001
	latencyWarmupSamples    = 3
	latencyWarmupSpikeRatio = 50.0
)

// OutputLatencyEstimator smooths latency reported by an output device.
// Increases are adopted quickly so the playhead stays ahead of the hardware
// buffer; decreases are adopted slowly so a transient dip does not yank the
// clock backwards.
type OutputLatencyEstimator struct {
	smoothed   float64
	seeded     bool
	lastRaw    float64
	hasRaw     bool
	updates    uint64
	lastUpdate time.Time
	now        func() time.Time
}

func NewOutputLatencyEstimator() *OutputLatencyEstimator {
	return &OutputLatencyEstimator{now: time.Now}
}

// Observe folds one reported latency into the estimate. Implausible values
// are ignored: negatives, sub-100µs readings, and huge spikes during the
// first few callbacks while the device buffer is still settling.
func (e *OutputLatencyEstimator) Observe(latency time.Duration) {
	secs := latency.Seconds()
	if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return
	}
	clamped := math.Min(secs, latencyCeilingSecs)
	if clamped < latencyMinValidSecs {
		return
	}
	if e.hasRaw && e.updates < latencyWarmupSamples && clamped > e.lastRaw*latencyWarmupSpikeRatio {
		return
	}

	now := e.now()
	dt := 0.0
	if !e.lastUpdate.IsZero() {
		dt = now.Sub(e.lastUpdate).Seconds()
	}
	e.lastUpdate = now
	e.lastRaw = clamped
	e.hasRaw = true
	e.updates++

	if !e.seeded {
		e.smoothed = clamped
		e.seeded = true
		return
	}

	rising := clamped > e.smoothed
	tau := latencyDecreaseTauSecs
	if rising {
		tau = latencyIncreaseTauSecs
	}
	alpha := latencyAlpha(dt, tau)
	next := e.smoothed + (clamped-e.smoothed)*alpha
	if rising && dt > 0 {
		next = math.Min(next, e.smoothed+latencyMaxRisePerSec*dt)
	}
	e.smoothed = next
}

// CurrentSecs returns the smoothed latency, or false before any valid
// observation.
func (e *OutputLatencyEstimator) CurrentSecs() (float64, bool) {
	return e.smoothed, e.seeded
}

// latencyAlpha converts a time-constant EMA into a per-update blend factor
// for irregular observation intervals
func latencyAlpha(dtSecs, tauSecs float64) float64 {
	if tauSecs <= 0 || dtSecs <= 0 {
		return 1.0
	}
	alpha := 1.0 - math.Exp(-dtSecs/tauSecs)
	return math.Max(0, math.Min(1, alpha))
}

// AudioSource is decoded audio held in memory as mono f32 samples
type AudioSource struct {
	Samples    []float32
	SampleRate uint32
}

// AudioPlayback resamples an in-memory audio track to the device rate and
// feeds it to an AudioOutput in sync with a playback start frame. The
// device callback runs on a dedicated OS thread and never blocks on decode
// or locks shared with the frame pump.
type AudioPlayback struct {
	Logger hclog.Logger
	Source AudioSource
	Output AudioOutput

	StartFrame uint32
	FPS        uint32
	// Timeline maps playback time to recording time so edited projects
	// hear the same content they see
	Timeline Timeline
}

// Spawn starts the audio thread. It runs until stop fires or ctx is
// cancelled; past the end of the track the callback emits equilibrium
// silence rather than stopping the device.
func (a *AudioPlayback) Spawn(ctx context.Context, stop *Value[bool]) error {
	if a.FPS == 0 {
		return fmt.Errorf("audio playback requires a non-zero fps")
	}
	if a.Output == nil {
		return fmt.Errorf("audio playback requires an output device")
	}
	if a.Source.SampleRate == 0 {
		return fmt.Errorf("audio playback requires a source sample rate")
	}
	if a.Logger == nil {
		a.Logger = hclog.NewNullLogger()
	}

	go a.run(ctx, stop)
	return nil
}

func (a *AudioPlayback) run(ctx context.Context, stop *Value[bool]) {
	// device callbacks are latency sensitive; pin the feeding goroutine so
	// the scheduler never migrates it mid-stream
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	logger := a.Logger.Named("audio")

	outputRate := a.Output.SampleRate()
	if outputRate == 0 {
		outputRate = a.Source.SampleRate
	}
	// per-output-sample advance through the source track
	step := float64(a.Source.SampleRate) / float64(outputRate)

	// sample clock starts at the playback position implied by StartFrame
	startSecs := float64(a.StartFrame) / float64(a.FPS)
	clock := startSecs * float64(a.Source.SampleRate)

	timeline := a.Timeline

	// outputs that measure their own latency get the playhead pushed ahead
	// of the hardware buffer by the smoothed estimate
	reporter, _ := a.Output.(LatencyReporter)
	var estimator *OutputLatencyEstimator
	if reporter != nil {
		estimator = NewOutputLatencyEstimator()
	}

	fill := func(out []float32) bool {
		offset := 0.0
		if estimator != nil {
			if d, ok := reporter.OutputLatency(); ok {
				estimator.Observe(d)
			}
			if secs, ok := estimator.CurrentSecs(); ok {
				offset = secs * float64(a.Source.SampleRate)
			}
		}
		for i := range out {
			out[i] = a.sampleAt(clock+offset, timeline)
			clock += step
		}
		return !stop.Get()
	}

	if err := a.Output.Start(fill); err != nil {
		logger.Error("failed to start audio output", "error", err)
		return
	}

	logger.Debug("audio started",
		"source_rate", a.Source.SampleRate, "output_rate", outputRate, "start_secs", startSecs)

	// block until the run is over, then release the device
	stopped := stop.Subscribe()
	for {
		if stop.Get() {
			break
		}
		if _, err := stopped.Wait(ctx); err != nil {
			break
		}
		if stop.Get() {
			break
		}
	}

	if err := a.Output.Close(); err != nil {
		logger.Warn("failed to close audio output", "error", err)
	}
	logger.Debug("audio stopped")
}

// sampleAt reads the track at a fractional source-sample position with
// linear interpolation. Positions outside the content return equilibrium
// silence.
func (a *AudioPlayback) sampleAt(clock float64, timeline Timeline) float32 {
	playbackSecs := clock / float64(a.Source.SampleRate)

	sourceSecs := playbackSecs
	if timeline != nil {
		recording, _, ok := timeline.GetRecordingTime(playbackSecs)
		if !ok {
			return SampleFormatF32.Equilibrium()
		}
		sourceSecs = recording
	}

	pos := sourceSecs * float64(a.Source.SampleRate)
	idx := int(pos)
	if pos < 0 || idx >= len(a.Source.Samples) {
		return SampleFormatF32.Equilibrium()
	}

	cur := a.Source.Samples[idx]
	next := cur
	if idx+1 < len(a.Source.Samples) {
		next = a.Source.Samples[idx+1]
	}
	frac := float32(pos - float64(idx))
	return cur*(1-frac) + next*frac
}
