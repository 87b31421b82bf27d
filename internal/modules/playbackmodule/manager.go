package playbackmodule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mantonx/framepulse/internal/config"
	"github.com/mantonx/framepulse/internal/database"
	"github.com/mantonx/framepulse/internal/events"
	"github.com/mantonx/framepulse/internal/modules/playbackmodule/core"
)

// DecoderFactory opens decode slots against a media file. Called once per
// playback with the slot count the pool settled on.
type DecoderFactory func(mediaPath string, slots int) ([]core.Decoder, error)

// RendererFactory builds the frame sink for a playback run
type RendererFactory func(project *config.ProjectConfig) (core.Renderer, error)

// AudioFactory opens the audio track and output device for a project.
// Returning nil output disables audio for the run.
type AudioFactory func(project *config.ProjectConfig) (*core.AudioSource, core.AudioOutput, error)

// Dependencies are the media capabilities injected into the manager.
// Decoding and rendering live behind these so the engine stays independent
// of any particular codec or display backend.
type Dependencies struct {
	Decoders DecoderFactory
	Renderer RendererFactory
	Audio    AudioFactory
}

// StartRequest parameterizes one playback run
type StartRequest struct {
	StartFrame uint32
	// Resume overrides StartFrame with the stored resume position when one
	// exists for the project's media
	Resume bool
}

// Manager owns the playback engine: the loaded project, active sessions,
// their decoder pools, and host load sampling.
type Manager struct {
	logger   hclog.Logger
	cfg      *config.Config
	eventBus events.EventBus
	history  *database.HistoryRepository
	deps     Dependencies

	project  *core.Value[*config.ProjectConfig]
	watcher  *config.ProjectWatcher
	sessions *core.SessionManager
	load     *core.LoadMonitor

	mu      sync.Mutex
	pools   map[string]*core.PooledDecoder
	started time.Time
}

// NewManager creates a playback manager. db may be nil, disabling history.
func NewManager(logger hclog.Logger, cfg *config.Config, db *gorm.DB, bus events.EventBus, deps Dependencies) *Manager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	var history *database.HistoryRepository
	if db != nil {
		history = database.NewHistoryRepository(db)
	}

	return &Manager{
		logger:   logger.Named("playback"),
		cfg:      cfg,
		eventBus: bus,
		history:  history,
		deps:     deps,
		project:  core.NewValue[*config.ProjectConfig](nil),
		sessions: core.NewSessionManager(logger, history),
		load:     core.NewLoadMonitor(logger, 5*time.Second),
		pools:    make(map[string]*core.PooledDecoder),
		started:  time.Now(),
	}
}

// LoadProject loads a project file, makes it current, and watches it for
// edits. Edits propagate into running playbacks at the next frame.
func (m *Manager) LoadProject(path string) error {
	project, err := config.LoadProject(path)
	if err != nil {
		return err
	}

	m.project.Set(project)
	m.logger.Info("project loaded", "name", project.Name, "media", project.MediaPath)

	m.mu.Lock()
	if m.watcher != nil {
		m.watcher.Close()
		m.watcher = nil
	}
	watcher, err := config.NewProjectWatcher(m.logger, path, func(reloaded *config.ProjectConfig) {
		m.project.Set(reloaded)
		m.publish(events.EventProjectReloaded, "Project reloaded", map[string]interface{}{
			"name": reloaded.Name,
		})
	})
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("project watcher unavailable, hot reload disabled", "error", err)
		return nil
	}
	m.watcher = watcher
	m.mu.Unlock()

	return nil
}

// Project returns the current project, nil when none is loaded
func (m *Manager) Project() *config.ProjectConfig {
	return m.project.Get()
}

// StartPlayback opens a decoder pool for the current project and launches a
// playback session.
func (m *Manager) StartPlayback(ctx context.Context, req StartRequest) (*core.Session, error) {
	project := m.project.Get()
	if project == nil {
		return nil, fmt.Errorf("no project loaded")
	}
	if m.deps.Decoders == nil || m.deps.Renderer == nil {
		return nil, fmt.Errorf("playback dependencies not configured")
	}

	fps := project.FPS
	if fps == 0 {
		fps = m.cfg.Playback.FPS
	}

	startFrame := req.StartFrame
	if req.Resume && m.history != nil {
		if pos, err := m.history.GetResumePosition(project.MediaPath); err == nil && pos != nil {
			startFrame = pos.FrameNumber
			m.logger.Info("resuming from stored position", "frame", startFrame)
		}
	}

	duration := project.TimelineDuration()
	slots := m.cfg.Pool.Size
	if slots <= 0 {
		slots = core.OptimalPoolSize(duration)
	}

	decoders, err := m.deps.Decoders(project.MediaPath, slots)
	if err != nil {
		return nil, fmt.Errorf("failed to open decoders: %w", err)
	}

	pooled, err := core.NewPooledDecoder(m.logger, decoders, core.PooledDecoderConfig{
		Pool: core.PoolConfig{
			FPS:                     fps,
			DurationSecs:            duration,
			RepositionThresholdSecs: m.cfg.Pool.RepositionThresholdSecs,
			RebalanceInterval:       m.cfg.Pool.RebalanceInterval,
			AccessHistorySize:       m.cfg.Pool.AccessHistorySize,
		},
		Scrub: core.ScrubDetectorConfig{
			RateThreshold: m.cfg.Scrub.RateThreshold,
			Cooldown:      m.cfg.Scrub.Cooldown,
		},
		OnScrubChange: func(active bool) {
			if active {
				m.publish(events.EventScrubStarted, "Scrubbing detected", nil)
			} else {
				m.publish(events.EventScrubStopped, "Scrubbing ended", nil)
			}
		},
		OnRebalance: func(targets []float32) {
			m.publish(events.EventPoolRebalanced, "Decoder pool rebalanced", map[string]interface{}{
				"targets": targets,
			})
		},
		OnReset: func(slot int, position float32) {
			m.publish(events.EventDecoderReset, "Decoder slot repositioned", map[string]interface{}{
				"slot":          slot,
				"position_secs": position,
			})
		},
	})
	if err != nil {
		for _, d := range decoders {
			d.Close()
		}
		return nil, err
	}

	renderer, err := m.deps.Renderer(project)
	if err != nil {
		pooled.Close()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	playback := &core.Playback{
		Logger:     m.logger,
		Source:     pooled,
		Renderer:   renderer,
		Project:    m.project,
		StartFrame: startFrame,
		Config: core.SchedulerConfig{
			FPS:                fps,
			StallTimeout:       m.cfg.Playback.StallTimeout,
			FrameCacheSize:     m.cfg.Playback.FrameCacheSize,
			CatchUpThreshold:   m.cfg.Playback.CatchUpThreshold,
			StatsInterval:      m.cfg.Playback.StatsInterval,
			EventThrottleEvery: m.cfg.Playback.EventThrottleEvery,
		},
	}

	handle, err := playback.Start(ctx)
	if err != nil {
		pooled.Close()
		return nil, err
	}

	if m.cfg.Audio.Enabled && m.deps.Audio != nil && project.Audio.Path != "" {
		m.startAudio(ctx, project, fps, startFrame, handle)
	}

	session := m.sessions.Track(project.Name, project.MediaPath, fps, startFrame, handle)

	m.mu.Lock()
	m.pools[session.ID] = pooled
	m.mu.Unlock()

	m.publish(events.EventSessionStarted, "Playback started", map[string]interface{}{
		"session_id":  session.ID,
		"project":     project.Name,
		"start_frame": startFrame,
		"pool_slots":  slots,
	})

	go m.reap(session.ID, handle, pooled)

	return session, nil
}

func (m *Manager) startAudio(ctx context.Context, project *config.ProjectConfig, fps, startFrame uint32, handle *core.PlaybackHandle) {
	source, output, err := m.deps.Audio(project)
	if err != nil {
		m.logger.Warn("audio unavailable, playing without sound", "error", err)
		return
	}
	if source == nil || output == nil {
		return
	}

	audio := &core.AudioPlayback{
		Logger:     m.logger,
		Source:     *source,
		Output:     output,
		StartFrame: startFrame,
		FPS:        fps,
		Timeline:   core.NewTimeline(project),
	}
	if err := audio.Spawn(ctx, handle.StopSignal()); err != nil {
		m.logger.Warn("failed to start audio", "error", err)
	}
}

// reap releases per-session resources once the pump exits
func (m *Manager) reap(sessionID string, handle *core.PlaybackHandle, pooled *core.PooledDecoder) {
	<-handle.Done()

	if err := pooled.Close(); err != nil {
		m.logger.Warn("failed to close decoder pool", "session_id", sessionID, "error", err)
	}

	m.mu.Lock()
	delete(m.pools, sessionID)
	m.mu.Unlock()

	summary := handle.Summary()
	eventType := events.EventSessionStopped
	if summary.Reason == core.StopReasonStalled {
		eventType = events.EventSessionStalled
	}
	m.publish(eventType, "Playback ended", map[string]interface{}{
		"session_id":      sessionID,
		"reason":          string(summary.Reason),
		"last_frame":      summary.LastFrame,
		"frames_rendered": summary.FramesRendered,
		"frames_skipped":  summary.FramesSkipped,
		"cache_hits":      summary.CacheHits,
		"effective_fps":   summary.EffectiveFPS,
	})
}

// StopSession requests a session to end. Returns false for unknown IDs.
func (m *Manager) StopSession(id string) bool {
	return m.sessions.Stop(id)
}

// GetSession returns a tracked session by ID
func (m *Manager) GetSession(id string) (*core.Session, bool) {
	return m.sessions.Get(id)
}

// Sessions returns all tracked sessions
func (m *Manager) Sessions() []*core.Session {
	return m.sessions.List()
}

// PoolStats returns the decoder pool state for an active session
func (m *Manager) PoolStats(sessionID string) (*PoolStatsResponse, bool) {
	m.mu.Lock()
	pooled, ok := m.pools[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}

	pool := pooled.Pool()
	positions := pool.Positions()
	slots := make([]SlotStats, len(positions))
	for i, p := range positions {
		slots[i] = SlotStats{
			Slot:           p.ID,
			PositionSecs:   p.PositionSecs,
			AccessCount:    p.AccessCount,
			LastAccessedAt: p.LastAccessTime,
		}
	}

	scrubbing := pooled.IsScrubbing()
	return &PoolStatsResponse{
		SessionID:               sessionID,
		Slots:                   slots,
		TotalAccesses:           pool.TotalAccesses(),
		RepositionThresholdSecs: pool.RepositionThreshold(),
		Scrubbing:               scrubbing,
		DegradedQuality:         scrubbing && m.load.UnderPressure(),
	}, true
}

// LoadSnapshot returns the latest host load sample
func (m *Manager) LoadSnapshot() core.LoadSnapshot {
	return m.load.Snapshot()
}

// History returns recent finished sessions, newest first
func (m *Manager) History(limit int) ([]database.PlaybackHistory, error) {
	if m.history == nil {
		return nil, nil
	}
	return m.history.RecentSessions(limit)
}

// ResumePosition returns the stored resume point for a media path
func (m *Manager) ResumePosition(mediaPath string) (*database.ResumePosition, error) {
	if m.history == nil {
		return nil, nil
	}
	return m.history.GetResumePosition(mediaPath)
}

// ActiveCount returns the number of playing sessions
func (m *Manager) ActiveCount() int {
	return m.sessions.ActiveCount()
}

// Uptime reports how long the manager has been running
func (m *Manager) Uptime() time.Duration {
	return time.Since(m.started)
}

func (m *Manager) publish(eventType events.EventType, title string, data map[string]interface{}) {
	if m.eventBus == nil {
		return
	}
	err := m.eventBus.PublishAsync(events.Event{
		Type:     eventType,
		Source:   "module:playback",
		Title:    title,
		Data:     data,
		Priority: events.PriorityNormal,
	})
	if err != nil {
		m.logger.Debug("event publish failed", "type", string(eventType), "error", err)
	}
}

// Shutdown stops all sessions and releases engine resources
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.watcher != nil {
		m.watcher.Close()
		m.watcher = nil
	}
	m.mu.Unlock()

	if err := m.sessions.Close(); err != nil {
		return err
	}
	return m.load.Close()
}
