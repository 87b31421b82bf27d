package playbackmodule

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all playback module routes
func RegisterRoutes(r *gin.Engine, handler *APIHandler, ws *EventStreamHandler) {
	api := r.Group("/api/playback")
	{
		// Project management
		api.POST("/project", handler.HandleLoadProject)
		api.GET("/project", handler.HandleGetProject)

		// Session management
		api.POST("/start", handler.HandleStartPlayback)
		api.GET("/sessions", handler.HandleListSessions)
		api.GET("/session/:sessionId", handler.HandleGetSession)
		api.DELETE("/session/:sessionId", handler.HandleStopSession)
		api.GET("/session/:sessionId/pool", handler.HandleGetPoolStats)

		// History and resume
		api.GET("/history", handler.HandleGetHistory)
		api.GET("/resume", handler.HandleGetResume)

		// Diagnostics
		api.GET("/load", handler.HandleGetLoad)
		api.GET("/health", handler.HandleHealthCheck)

		// Live event stream
		api.GET("/events/ws", ws.HandleEventStream)
	}
}
