package playbackmodule

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// APIHandler serves the playback HTTP API
type APIHandler struct {
	manager *Manager
}

// NewAPIHandler creates an API handler over a manager
func NewAPIHandler(manager *Manager) *APIHandler {
	return &APIHandler{manager: manager}
}

// HandleLoadProject loads or replaces the current project
func (h *APIHandler) HandleLoadProject(c *gin.Context) {
	var req LoadProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	if err := h.manager.LoadProject(req.Path); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.manager.Project())
}

// HandleGetProject returns the current project
func (h *APIHandler) HandleGetProject(c *gin.Context) {
	project := h.manager.Project()
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no project loaded"})
		return
	}
	c.JSON(http.StatusOK, project)
}

// HandleStartPlayback starts a playback session for the current project
func (h *APIHandler) HandleStartPlayback(c *gin.Context) {
	var req StartPlaybackRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.manager.StartPlayback(c.Request.Context(), StartRequest{
		StartFrame: req.StartFrame,
		Resume:     req.Resume,
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, sessionResponse(session))
}

// HandleListSessions returns all tracked sessions
func (h *APIHandler) HandleListSessions(c *gin.Context) {
	sessions := h.manager.Sessions()
	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse(s))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out, "active": h.manager.ActiveCount()})
}

// HandleGetSession returns one session by ID
func (h *APIHandler) HandleGetSession(c *gin.Context) {
	session, ok := h.manager.GetSession(c.Param("sessionId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sessionResponse(session))
}

// HandleStopSession requests a session to stop
func (h *APIHandler) HandleStopSession(c *gin.Context) {
	id := c.Param("sessionId")
	if !h.manager.StopSession(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "status": "stopping"})
}

// HandleGetPoolStats returns the decoder pool state for a session
func (h *APIHandler) HandleGetPoolStats(c *gin.Context) {
	stats, ok := h.manager.PoolStats(c.Param("sessionId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found or already finished"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleGetHistory returns recent finished sessions
func (h *APIHandler) HandleGetHistory(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	history, err := h.manager.History(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// HandleGetResume returns the stored resume position for a media path
func (h *APIHandler) HandleGetResume(c *gin.Context) {
	mediaPath := c.Query("media")
	if mediaPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "media query parameter is required"})
		return
	}

	position, err := h.manager.ResumePosition(mediaPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if position == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no resume position stored"})
		return
	}
	c.JSON(http.StatusOK, position)
}

// HandleGetLoad returns the latest host load sample
func (h *APIHandler) HandleGetLoad(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.LoadSnapshot())
}

// HandleHealthCheck reports engine liveness
func (h *APIHandler) HandleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"active_sessions": h.manager.ActiveCount(),
		"uptime_secs":     int64(h.manager.Uptime().Seconds()),
	})
}
