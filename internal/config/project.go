package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProjectConfig describes one editable recording project: the media it plays
// and the optional non-linear timeline that maps output time to source time.
type ProjectConfig struct {
	Name      string  `yaml:"name" json:"name"`
	MediaPath string  `yaml:"media_path" json:"media_path"`
	FPS       uint32  `yaml:"fps" json:"fps"`
	Duration  float64 `yaml:"duration_secs" json:"duration_secs"`

	// Segments define the output timeline. An empty list means the project
	// plays its source directly (identity mapping).
	Segments []SegmentConfig `yaml:"segments" json:"segments"`

	Audio ProjectAudioConfig `yaml:"audio" json:"audio"`
}

// SegmentConfig is one contiguous trimmed span of a recording clip.
// Segments are laid out back to back on the output timeline in list order.
type SegmentConfig struct {
	RecordingClip uint32  `yaml:"recording_clip" json:"recording_clip"`
	Start         float64 `yaml:"start" json:"start"` // source time, seconds
	End           float64 `yaml:"end" json:"end"`     // source time, seconds
}

// ProjectAudioConfig describes the project's audio track
type ProjectAudioConfig struct {
	SampleRate uint32 `yaml:"sample_rate" json:"sample_rate"`
	Path       string `yaml:"path" json:"path"`
}

// LoadProject reads and validates a project file
func LoadProject(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file %s: %w", path, err)
	}

	var project ProjectConfig
	if err := yaml.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to parse project file %s: %w", path, err)
	}

	if err := project.Validate(); err != nil {
		return nil, err
	}

	return &project, nil
}

// Validate checks the project configuration for consistency
func (p *ProjectConfig) Validate() error {
	if p.FPS == 0 {
		return &ValidationError{Field: "fps", Message: "must be positive"}
	}

	if p.Duration < 0 {
		return &ValidationError{Field: "duration_secs", Message: "must not be negative"}
	}

	for i, seg := range p.Segments {
		if seg.End < seg.Start {
			return &ValidationError{
				Field:   fmt.Sprintf("segments[%d]", i),
				Message: "end must not precede start",
			}
		}
	}

	return nil
}

// TimelineDuration returns the total output duration of the segment timeline,
// or the project duration when no segments are defined.
func (p *ProjectConfig) TimelineDuration() float64 {
	if len(p.Segments) == 0 {
		return p.Duration
	}

	total := 0.0
	for _, seg := range p.Segments {
		total += seg.End - seg.Start
	}
	return total
}
