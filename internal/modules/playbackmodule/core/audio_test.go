package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/framepulse/internal/config"
)

// pullOutput is an AudioOutput the test drives by hand: Pull invokes the
// fill callback the way a device callback would.
type pullOutput struct {
	rate uint32

	mu     sync.Mutex
	fill   func([]float32) bool
	closed bool
	ready  chan struct{}
}

func newPullOutput(rate uint32) *pullOutput {
	return &pullOutput{rate: rate, ready: make(chan struct{})}
}

func (o *pullOutput) SampleRate() uint32 { return o.rate }

func (o *pullOutput) Start(fill func([]float32) bool) error {
	o.mu.Lock()
	o.fill = fill
	o.mu.Unlock()
	close(o.ready)
	return nil
}

func (o *pullOutput) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

func (o *pullOutput) Pull(n int) []float32 {
	select {
	case <-o.ready:
	case <-time.After(time.Second):
		panic("audio output was never started")
	}
	buf := make([]float32, n)
	o.mu.Lock()
	fill := o.fill
	o.mu.Unlock()
	fill(buf)
	return buf
}

func (o *pullOutput) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func rampSamples(n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(i)
	}
	return samples
}

func TestAudioPlayback_Validation(t *testing.T) {
	stop := NewValue(false)

	err := (&AudioPlayback{Output: newPullOutput(48000), Source: AudioSource{SampleRate: 48000}}).
		Spawn(context.Background(), stop)
	assert.Error(t, err) // no fps

	err = (&AudioPlayback{FPS: 30, Source: AudioSource{SampleRate: 48000}}).
		Spawn(context.Background(), stop)
	assert.Error(t, err) // no output

	err = (&AudioPlayback{FPS: 30, Output: newPullOutput(48000)}).
		Spawn(context.Background(), stop)
	assert.Error(t, err) // no source rate
}

func TestAudioPlayback_MatchedRatesPassSamplesThrough(t *testing.T) {
	output := newPullOutput(1000)
	stop := NewValue(false)
	audio := &AudioPlayback{
		Source: AudioSource{Samples: rampSamples(1000), SampleRate: 1000},
		Output: output,
		FPS:    30,
	}
	require.NoError(t, audio.Spawn(context.Background(), stop))
	defer stop.Set(true)

	got := output.Pull(10)
	for i, s := range got {
		assert.InDelta(t, float32(i), s, 0.001)
	}
}

func TestAudioPlayback_ResamplingInterpolatesLinearly(t *testing.T) {
	// output at twice the source rate: every other sample is a midpoint
	output := newPullOutput(2000)
	stop := NewValue(false)
	audio := &AudioPlayback{
		Source: AudioSource{Samples: rampSamples(1000), SampleRate: 1000},
		Output: output,
		FPS:    30,
	}
	require.NoError(t, audio.Spawn(context.Background(), stop))
	defer stop.Set(true)

	got := output.Pull(6)
	want := []float32{0, 0.5, 1, 1.5, 2, 2.5}
	for i := range want {
		assert.InDelta(t, want[i], got[i], 0.001)
	}
}

func TestAudioPlayback_StartFrameOffsetsClock(t *testing.T) {
	output := newPullOutput(1000)
	stop := NewValue(false)
	audio := &AudioPlayback{
		Source:     AudioSource{Samples: rampSamples(1000), SampleRate: 1000},
		Output:     output,
		FPS:        10,
		StartFrame: 5, // 0.5s in → sample 500
	}
	require.NoError(t, audio.Spawn(context.Background(), stop))
	defer stop.Set(true)

	got := output.Pull(3)
	assert.InDelta(t, 500.0, got[0], 0.001)
	assert.InDelta(t, 501.0, got[1], 0.001)
}

func TestAudioPlayback_EndOfContentIsEquilibriumSilence(t *testing.T) {
	output := newPullOutput(1000)
	stop := NewValue(false)
	audio := &AudioPlayback{
		Source: AudioSource{Samples: rampSamples(10), SampleRate: 1000},
		Output: output,
		FPS:    30,
	}
	require.NoError(t, audio.Spawn(context.Background(), stop))
	defer stop.Set(true)

	got := output.Pull(50)
	for i := 10; i < len(got); i++ {
		assert.Equal(t, SampleFormatF32.Equilibrium(), got[i],
			"sample %d past end of content must be silence", i)
	}
}

func TestAudioPlayback_TimelineMapsPlaybackToRecordingTime(t *testing.T) {
	output := newPullOutput(1000)
	stop := NewValue(false)
	timeline := NewTimeline(&config.ProjectConfig{
		Segments: []config.SegmentConfig{{RecordingClip: 0, Start: 0.5, End: 0.6}},
	})
	audio := &AudioPlayback{
		Source:   AudioSource{Samples: rampSamples(1000), SampleRate: 1000},
		Output:   output,
		FPS:      30,
		Timeline: timeline,
	}
	require.NoError(t, audio.Spawn(context.Background(), stop))
	defer stop.Set(true)

	got := output.Pull(120)
	// first output sample plays recording time 0.5s → source sample 500
	assert.InDelta(t, 500.0, got[0], 0.1)
	// past the 0.1s segment the timeline ends → silence
	assert.Equal(t, SampleFormatF32.Equilibrium(), got[110])
}

func TestAudioPlayback_StopClosesOutput(t *testing.T) {
	output := newPullOutput(1000)
	stop := NewValue(false)
	audio := &AudioPlayback{
		Source: AudioSource{Samples: rampSamples(100), SampleRate: 1000},
		Output: output,
		FPS:    30,
	}
	require.NoError(t, audio.Spawn(context.Background(), stop))

	stop.Set(true)
	assert.Eventually(t, output.Closed, time.Second, 5*time.Millisecond)
}

// latencyPullOutput is a pullOutput that also reports a fixed output latency
type latencyPullOutput struct {
	*pullOutput
	latency time.Duration
}

func (o *latencyPullOutput) OutputLatency() (time.Duration, bool) {
	return o.latency, true
}

func TestOutputLatencyEstimator_RisesFastFallsSlow(t *testing.T) {
	base := time.Now()

	rise := NewOutputLatencyEstimator()
	rise.now = func() time.Time { return base }
	rise.Observe(100 * time.Millisecond)
	base = base.Add(100 * time.Millisecond)
	rise.Observe(200 * time.Millisecond)
	risen, ok := rise.CurrentSecs()
	require.True(t, ok)
	// alpha = 1-exp(-0.1/0.25)
	assert.InDelta(t, 0.133, risen, 0.001)

	base = time.Now()
	fall := NewOutputLatencyEstimator()
	fall.now = func() time.Time { return base }
	fall.Observe(200 * time.Millisecond)
	base = base.Add(100 * time.Millisecond)
	fall.Observe(100 * time.Millisecond)
	fallen, ok := fall.CurrentSecs()
	require.True(t, ok)
	// alpha = 1-exp(-0.1/1.0), far smaller than the rise blend
	assert.InDelta(t, 0.190, fallen, 0.001)
}

func TestOutputLatencyEstimator_RiseRateIsCapped(t *testing.T) {
	base := time.Now()
	est := NewOutputLatencyEstimator()
	est.now = func() time.Time { return base }

	est.Observe(50 * time.Millisecond)
	base = base.Add(time.Second)
	est.Observe(10 * time.Second) // clamped to the 3s ceiling

	secs, ok := est.CurrentSecs()
	require.True(t, ok)
	// one second elapsed, so the estimate may rise at most 0.75s
	assert.InDelta(t, 0.8, secs, 0.001)
}

func TestOutputLatencyEstimator_IgnoresWarmupSpikes(t *testing.T) {
	est := NewOutputLatencyEstimator()

	est.Observe(time.Millisecond)
	est.Observe(time.Second) // 1000x the last reading inside the warmup window

	secs, ok := est.CurrentSecs()
	require.True(t, ok)
	assert.InDelta(t, 0.001, secs, 0.0001)
}

func TestOutputLatencyEstimator_RejectsInvalidReadings(t *testing.T) {
	est := NewOutputLatencyEstimator()

	est.Observe(-time.Second)
	est.Observe(10 * time.Microsecond)

	_, ok := est.CurrentSecs()
	assert.False(t, ok)
}

func TestAudioPlayback_LatencyReportShiftsPlayhead(t *testing.T) {
	// 100ms of reported latency at 1000Hz pushes the read position 100
	// samples ahead of the clock
	output := &latencyPullOutput{
		pullOutput: newPullOutput(1000),
		latency:    100 * time.Millisecond,
	}
	stop := NewValue(false)
	audio := &AudioPlayback{
		Source: AudioSource{Samples: rampSamples(1000), SampleRate: 1000},
		Output: output,
		FPS:    30,
	}
	require.NoError(t, audio.Spawn(context.Background(), stop))
	defer stop.Set(true)

	got := output.Pull(3)
	assert.InDelta(t, 100.0, got[0], 0.001)
	assert.InDelta(t, 101.0, got[1], 0.001)
}

func TestSampleFormat_Equilibrium(t *testing.T) {
	assert.Equal(t, float32(0), SampleFormatF32.Equilibrium())
	assert.Equal(t, float32(0), SampleFormatI16.Equilibrium())
	assert.Equal(t, float32(0.5), SampleFormatU16.Equilibrium())
	assert.Equal(t, float32(0.5), SampleFormatU8.Equilibrium())
}
