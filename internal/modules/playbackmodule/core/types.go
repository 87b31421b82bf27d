package core

import "context"

// Frame is one decoded image plane handed to the renderer. Data layout is
// whatever the decoder produced; the pool and scheduler never inspect it.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	// PTS is the presentation timestamp in recording seconds
	PTS float32
}

// DecodedFrames is the output of one decode request: the screen frame plus
// an optional camera frame captured at the same instant.
type DecodedFrames struct {
	Screen Frame
	Camera *Frame
	// RecordingTime is the resolved position inside the clip
	RecordingTime float32
	Clip          uint32
}

// Decoder is one decode context positioned somewhere in the media. Seek and
// ProduceFrame must not be called concurrently on the same Decoder; the
// pool serializes access per slot.
type Decoder interface {
	// Seek repositions the decoder. Expensive; the pool avoids it when a
	// slot already sits shortly before the target.
	Seek(ctx context.Context, timeSecs float32) error
	// ProduceFrame decodes the frame at or after timeSecs, advancing the
	// decoder. A nil result with nil error means end of stream.
	ProduceFrame(ctx context.Context, timeSecs float32) (*DecodedFrames, error)
	Close() error
}

// FrameSource resolves a playback-time request to decoded frames. The frame
// pump consumes this; PooledDecoder is the production implementation.
type FrameSource interface {
	// GetFrame returns the frames for frame number n at the given
	// recording time within a clip. nil with nil error means end of
	// stream.
	GetFrame(ctx context.Context, frameNumber uint32, recordingTime float32, clip uint32) (*DecodedFrames, error)
	Close() error
}

// Renderer consumes decoded frames in presentation order
type Renderer interface {
	RenderFrame(ctx context.Context, frames *DecodedFrames, frameNumber uint32) error
}
