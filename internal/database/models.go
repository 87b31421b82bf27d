package database

import (
	"time"
)

// PlaybackHistory is one finished playback session summary.
// A row is written when a session stops, whatever the reason.
type PlaybackHistory struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	ProjectName string    `gorm:"index" json:"project_name"`
	MediaPath   string    `gorm:"index" json:"media_path"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`

	StartFrame     uint32  `json:"start_frame"`
	LastFrame      uint32  `json:"last_frame"`
	FramesRendered uint64  `json:"frames_rendered"`
	FramesSkipped  uint64  `json:"frames_skipped"`
	CacheHits      uint64  `json:"cache_hits"`
	EffectiveFPS   float64 `json:"effective_fps"`

	// StopReason is one of: completed, stopped, stalled, error
	StopReason string `gorm:"index" json:"stop_reason"`
	Error      string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for playback history
func (PlaybackHistory) TableName() string {
	return "playback_history"
}

// ResumePosition stores the last playback position per media file so a new
// session can resume where the previous one left off.
type ResumePosition struct {
	MediaPath    string    `gorm:"primaryKey" json:"media_path"`
	FrameNumber  uint32    `json:"frame_number"`
	PositionSecs float64   `json:"position_secs"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the table name for resume positions
func (ResumePosition) TableName() string {
	return "resume_positions"
}
