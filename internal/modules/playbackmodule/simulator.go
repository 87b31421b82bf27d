package playbackmodule

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/framepulse/internal/config"
	"github.com/mantonx/framepulse/internal/modules/playbackmodule/core"
)

// SimulatorConfig shapes the synthetic decoder's latency model
type SimulatorConfig struct {
	// SeekLatency is charged per Seek call
	SeekLatency time.Duration
	// DecodeLatency is charged per ProduceFrame call
	DecodeLatency time.Duration
	// DurationSecs is the synthetic media length; 0 means endless
	DurationSecs float64
	Width        int
	Height       int
}

// SimulatedDecoder is a core.Decoder over synthetic media. It exists for
// the demo binary and load experiments: it honors the position/seek
// contract and charges configurable latencies without touching a codec.
type SimulatedDecoder struct {
	cfg SimulatorConfig

	mu       sync.Mutex
	position float32
	seeks    int
	frames   int
}

// NewSimulatedDecoder creates a decoder positioned at zero
func NewSimulatedDecoder(cfg SimulatorConfig) *SimulatedDecoder {
	if cfg.Width <= 0 {
		cfg.Width = 64
	}
	if cfg.Height <= 0 {
		cfg.Height = 36
	}
	return &SimulatedDecoder{cfg: cfg}
}

// Seek repositions the decoder, charging the configured seek latency
func (d *SimulatedDecoder) Seek(ctx context.Context, timeSecs float32) error {
	if err := sleepFor(ctx, d.cfg.SeekLatency); err != nil {
		return err
	}
	d.mu.Lock()
	d.position = timeSecs
	d.seeks++
	d.mu.Unlock()
	return nil
}

// ProduceFrame synthesizes the frame at timeSecs. Past the end of the
// synthetic media it signals end of stream.
func (d *SimulatedDecoder) ProduceFrame(ctx context.Context, timeSecs float32) (*core.DecodedFrames, error) {
	if err := sleepFor(ctx, d.cfg.DecodeLatency); err != nil {
		return nil, err
	}

	if d.cfg.DurationSecs > 0 && float64(timeSecs) >= d.cfg.DurationSecs {
		return nil, nil
	}

	d.mu.Lock()
	d.position = timeSecs
	d.frames++
	d.mu.Unlock()

	// frame payload encodes the timestamp so consumers can verify ordering
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, math.Float64bits(float64(timeSecs)))

	return &core.DecodedFrames{
		Screen: core.Frame{
			Data:   data,
			Width:  d.cfg.Width,
			Height: d.cfg.Height,
			PTS:    timeSecs,
		},
	}, nil
}

// Close releases nothing; simulated decoders hold no resources
func (d *SimulatedDecoder) Close() error {
	return nil
}

// Stats returns seek and frame counters for inspection
func (d *SimulatedDecoder) Stats() (seeks, frames int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seeks, d.frames
}

func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SimulatedDecoderFactory builds a DecoderFactory producing simulated slots
func SimulatedDecoderFactory(cfg SimulatorConfig) DecoderFactory {
	return func(mediaPath string, slots int) ([]core.Decoder, error) {
		decoders := make([]core.Decoder, slots)
		for i := range decoders {
			decoders[i] = NewSimulatedDecoder(cfg)
		}
		return decoders, nil
	}
}

// LogRenderer is a renderer that counts frames and logs progress. The demo
// binary uses it in place of a display surface.
type LogRenderer struct {
	logger hclog.Logger

	mu       sync.Mutex
	rendered uint64
	lastPTS  float32
}

// NewLogRenderer creates a renderer logging through the given logger
func NewLogRenderer(logger hclog.Logger) *LogRenderer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &LogRenderer{logger: logger.Named("renderer")}
}

// RenderFrame records the frame and logs once a second of content
func (r *LogRenderer) RenderFrame(ctx context.Context, frames *core.DecodedFrames, frameNumber uint32) error {
	r.mu.Lock()
	r.rendered++
	r.lastPTS = frames.Screen.PTS
	count := r.rendered
	r.mu.Unlock()

	if count%30 == 0 {
		r.logger.Debug("rendering", "frame", frameNumber, "pts", frames.Screen.PTS)
	}
	return nil
}

// Rendered returns the total frame count
func (r *LogRenderer) Rendered() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rendered
}

// SimulatedRendererFactory builds a RendererFactory producing LogRenderers
func SimulatedRendererFactory(logger hclog.Logger) RendererFactory {
	return func(project *config.ProjectConfig) (core.Renderer, error) {
		return NewLogRenderer(logger), nil
	}
}
