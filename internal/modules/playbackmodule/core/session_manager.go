package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/framepulse/internal/database"
	"github.com/mantonx/framepulse/internal/utils"
)

// SessionState tracks a session through its lifecycle
type SessionState string

const (
	SessionStatePlaying   SessionState = "playing"
	SessionStateCompleted SessionState = "completed"
	SessionStateStopped   SessionState = "stopped"
	SessionStateStalled   SessionState = "stalled"
	SessionStateError     SessionState = "error"
)

func stateForReason(reason StopReason) SessionState {
	switch reason {
	case StopReasonCompleted:
		return SessionStateCompleted
	case StopReasonStalled:
		return SessionStateStalled
	case StopReasonError:
		return SessionStateError
	default:
		return SessionStateStopped
	}
}

// Session is one playback run tracked by the manager
type Session struct {
	ID           string
	ProjectName  string
	MediaPath    string
	State        SessionState
	FPS          uint32
	StartFrame   uint32
	CurrentFrame uint32
	StartedAt    time.Time
	EndedAt      *time.Time
	LastSummary  *SessionSummary

	handle *PlaybackHandle
}

// Handle returns the playback handle driving this session
func (s *Session) Handle() *PlaybackHandle {
	return s.handle
}

// clone must be called with the manager lock held; the follow goroutine
// mutates the live record under that lock
func (s *Session) clone() *Session {
	c := *s
	return &c
}

// SessionManager tracks active playback sessions, follows their event
// streams, and persists history when they end. Ended sessions linger for a
// retention window so status queries can still see them, then a cleanup
// pass drops them.
type SessionManager struct {
	logger  hclog.Logger
	history *database.HistoryRepository

	mu       sync.RWMutex
	sessions map[string]*Session

	retention time.Duration
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	// OnSessionEnd fires after a session's summary is recorded
	OnSessionEnd func(s *Session, summary SessionSummary)
}

// NewSessionManager creates a manager and starts its cleanup routine.
// history may be nil, disabling persistence.
func NewSessionManager(logger hclog.Logger, history *database.HistoryRepository) *SessionManager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	m := &SessionManager{
		logger:    logger.Named("session-manager"),
		history:   history,
		sessions:  make(map[string]*Session),
		retention: 5 * time.Minute,
		done:      make(chan struct{}),
	}

	m.wg.Add(1)
	go m.cleanupRoutine()

	return m
}

// Track registers a running playback under a fresh session ID and starts
// following its event stream.
func (m *SessionManager) Track(projectName, mediaPath string, fps, startFrame uint32, handle *PlaybackHandle) *Session {
	session := &Session{
		ID:           utils.GenerateUUID(),
		ProjectName:  projectName,
		MediaPath:    mediaPath,
		State:        SessionStatePlaying,
		FPS:          fps,
		StartFrame:   startFrame,
		CurrentFrame: startFrame,
		StartedAt:    time.Now(),
		handle:       handle,
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	snapshot := session.clone()
	m.mu.Unlock()

	m.logger.Info("session started",
		"session_id", session.ID, "project", projectName, "start_frame", startFrame)

	m.wg.Add(1)
	go m.follow(session)

	return snapshot
}

// follow mirrors the playback event stream into the session record until
// the run ends, then finalizes it.
func (m *SessionManager) follow(session *Session) {
	defer m.wg.Done()

	events := session.handle.Events()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-session.handle.Done():
		case <-m.done:
		}
		cancel()
	}()

	for {
		event, err := events.Wait(ctx)
		if err != nil {
			break
		}
		m.mu.Lock()
		session.CurrentFrame = event.Frame
		m.mu.Unlock()
		if event.Kind == PlaybackStop {
			break
		}
	}

	// StopAll precedes manager shutdown, so the pump is already winding
	// down; waiting here guarantees every tracked session gets finalized
	<-session.handle.Done()
	m.finalize(session, session.handle.Summary())
}

func (m *SessionManager) finalize(session *Session, summary SessionSummary) {
	now := time.Now()

	m.mu.Lock()
	session.State = stateForReason(summary.Reason)
	session.CurrentFrame = summary.LastFrame
	session.EndedAt = &now
	session.LastSummary = &summary
	m.mu.Unlock()

	m.logger.Info("session ended",
		"session_id", session.ID,
		"state", string(session.State),
		"last_frame", summary.LastFrame,
		"frames_rendered", summary.FramesRendered)

	if m.history != nil {
		record := &database.PlaybackHistory{
			ID:             session.ID,
			ProjectName:    session.ProjectName,
			MediaPath:      session.MediaPath,
			StartedAt:      session.StartedAt,
			EndedAt:        now,
			StartFrame:     summary.StartFrame,
			LastFrame:      summary.LastFrame,
			FramesRendered: summary.FramesRendered,
			FramesSkipped:  summary.FramesSkipped,
			CacheHits:      summary.CacheHits,
			EffectiveFPS:   summary.EffectiveFPS,
			StopReason:     string(summary.Reason),
		}
		if summary.Err != nil {
			record.Error = summary.Err.Error()
		}
		if err := m.history.RecordSession(record); err != nil {
			m.logger.Warn("failed to persist session history", "session_id", session.ID, "error", err)
		}

		var positionSecs float64
		if session.FPS > 0 {
			positionSecs = float64(summary.LastFrame) / float64(session.FPS)
		}
		if err := m.history.SaveResumePosition(session.MediaPath, summary.LastFrame, positionSecs); err != nil {
			m.logger.Warn("failed to persist resume position", "session_id", session.ID, "error", err)
		}
	}

	if m.OnSessionEnd != nil {
		m.OnSessionEnd(session, summary)
	}
}

// Get returns a snapshot of a session by ID
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// List returns a snapshot of all tracked sessions
func (m *SessionManager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.clone())
	}
	return out
}

// ActiveCount returns the number of sessions still playing
func (m *SessionManager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.State == SessionStatePlaying {
			count++
		}
	}
	return count
}

// Stop requests a session's playback to end. Returns false for unknown IDs.
func (m *SessionManager) Stop(id string) bool {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	session.handle.Stop()
	return true
}

// StopAll requests every playing session to end
func (m *SessionManager) StopAll() {
	for _, s := range m.List() {
		s.handle.Stop()
	}
}

func (m *SessionManager) cleanupRoutine() {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupEnded()
		case <-m.done:
			return
		}
	}
}

func (m *SessionManager) cleanupEnded() {
	cutoff := time.Now().Add(-m.retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.State != SessionStatePlaying && s.EndedAt != nil && s.EndedAt.Before(cutoff) {
			delete(m.sessions, id)
			m.logger.Debug("session expired", "session_id", id)
		}
	}
}

// Close stops all sessions and shuts down the manager's goroutines
func (m *SessionManager) Close() error {
	m.StopAll()
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()
	return nil
}

// String implements fmt.Stringer for log lines
func (m *SessionManager) String() string {
	return fmt.Sprintf("SessionManager(%d sessions)", len(m.List()))
}
