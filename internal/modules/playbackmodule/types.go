package playbackmodule

import (
	"time"

	"github.com/mantonx/framepulse/internal/modules/playbackmodule/core"
)

// StartPlaybackRequest is the body of POST /api/playback/start
type StartPlaybackRequest struct {
	StartFrame uint32 `json:"start_frame"`
	Resume     bool   `json:"resume"`
}

// LoadProjectRequest is the body of POST /api/playback/project
type LoadProjectRequest struct {
	Path string `json:"path" binding:"required"`
}

// SessionResponse is the wire form of a playback session
type SessionResponse struct {
	ID           string     `json:"id"`
	ProjectName  string     `json:"project_name"`
	MediaPath    string     `json:"media_path"`
	State        string     `json:"state"`
	FPS          uint32     `json:"fps"`
	StartFrame   uint32     `json:"start_frame"`
	CurrentFrame uint32     `json:"current_frame"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`

	FramesRendered uint64  `json:"frames_rendered,omitempty"`
	FramesSkipped  uint64  `json:"frames_skipped,omitempty"`
	CacheHits      uint64  `json:"cache_hits,omitempty"`
	EffectiveFPS   float64 `json:"effective_fps,omitempty"`
	StopReason     string  `json:"stop_reason,omitempty"`
}

func sessionResponse(s *core.Session) SessionResponse {
	resp := SessionResponse{
		ID:           s.ID,
		ProjectName:  s.ProjectName,
		MediaPath:    s.MediaPath,
		State:        string(s.State),
		FPS:          s.FPS,
		StartFrame:   s.StartFrame,
		CurrentFrame: s.CurrentFrame,
		StartedAt:    s.StartedAt,
		EndedAt:      s.EndedAt,
	}
	if s.LastSummary != nil {
		resp.FramesRendered = s.LastSummary.FramesRendered
		resp.FramesSkipped = s.LastSummary.FramesSkipped
		resp.CacheHits = s.LastSummary.CacheHits
		resp.EffectiveFPS = s.LastSummary.EffectiveFPS
		resp.StopReason = string(s.LastSummary.Reason)
	}
	return resp
}

// SlotStats is the wire form of one decoder slot
type SlotStats struct {
	Slot           int       `json:"slot"`
	PositionSecs   float32   `json:"position_secs"`
	AccessCount    uint64    `json:"access_count"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// PoolStatsResponse is the wire form of a session's decoder pool state
type PoolStatsResponse struct {
	SessionID               string      `json:"session_id"`
	Slots                   []SlotStats `json:"slots"`
	TotalAccesses           uint64      `json:"total_accesses"`
	RepositionThresholdSecs float32     `json:"reposition_threshold_secs"`
	Scrubbing               bool        `json:"scrubbing"`

	// DegradedQuality signals the renderer should shed quality: the user is
	// scrubbing while the host is past its load high-water marks.
	DegradedQuality bool `json:"degraded_quality"`
}
