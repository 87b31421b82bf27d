package core

import (
	"math"

	"github.com/mantonx/framepulse/internal/config"
)

// Timeline maps output (playback) time onto recording time. Edited projects
// concatenate trimmed segments from one or more recording clips, so the
// mapping is piecewise and may be partial past the end of content.
type Timeline interface {
	// GetRecordingTime resolves an output time to a position inside a
	// recording clip. ok is false past the end of the timeline.
	GetRecordingTime(outputTime float64) (recordingTime float64, clip uint32, ok bool)
	// Duration returns the total output duration in seconds
	Duration() float64
}

type segmentSpan struct {
	clip        uint32
	start       float64
	end         float64
	outputStart float64
}

// SegmentTimeline is a Timeline over an ordered list of trimmed segments
type SegmentTimeline struct {
	spans    []segmentSpan
	duration float64
}

// NewTimeline builds a Timeline from a project. Projects without segments
// get an identity mapping over the project duration; a zero duration means
// unbounded content.
func NewTimeline(project *config.ProjectConfig) Timeline {
	if project == nil || len(project.Segments) == 0 {
		var duration float64
		if project != nil {
			duration = project.Duration
		}
		return identityTimeline{duration: duration}
	}

	spans := make([]segmentSpan, 0, len(project.Segments))
	offset := 0.0
	for _, seg := range project.Segments {
		span := seg.End - seg.Start
		if span <= 0 {
			continue
		}
		spans = append(spans, segmentSpan{
			clip:        seg.RecordingClip,
			start:       seg.Start,
			end:         seg.End,
			outputStart: offset,
		})
		offset += span
	}

	return &SegmentTimeline{spans: spans, duration: offset}
}

// GetRecordingTime resolves an output time against the segment list
func (t *SegmentTimeline) GetRecordingTime(outputTime float64) (float64, uint32, bool) {
	if outputTime < 0 {
		return 0, 0, false
	}
	for _, span := range t.spans {
		local := outputTime - span.outputStart
		if local < 0 {
			continue
		}
		if local < span.end-span.start {
			return span.start + local, span.clip, true
		}
	}
	return 0, 0, false
}

// Duration returns the summed segment spans
func (t *SegmentTimeline) Duration() float64 {
	return t.duration
}

// identityTimeline maps output time straight through to clip zero
type identityTimeline struct {
	duration float64
}

func (t identityTimeline) GetRecordingTime(outputTime float64) (float64, uint32, bool) {
	if outputTime < 0 {
		return 0, 0, false
	}
	if t.duration > 0 && outputTime >= t.duration {
		return 0, 0, false
	}
	return outputTime, 0, true
}

func (t identityTimeline) Duration() float64 {
	if t.duration <= 0 {
		return math.MaxFloat64
	}
	return t.duration
}
