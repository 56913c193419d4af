package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for session rooms
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	sessions          SessionDirectory
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, sessions SessionDirectory) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		sessions:          sessions,
	}
}

// HandleSessionConnection upgrades a client onto a session's socket. The
// client becomes part of the room once it sends session:join.
func (h *WebSocketHandler) HandleSessionConnection(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		standardResponse(c, http.StatusBadRequest, "error", nil, &ErrorPayload{
			Code:    CodeBadRequest,
			Message: "session_id is required",
		})
		return
	}

	if _, err := h.sessions.GetSession(c.Request.Context(), sessionID); err != nil {
		errorResponse(c, "", err)
		return
	}

	// Player identity is self-asserted; there is no authentication layer.
	playerID := c.Query("player_id")

	if err := h.connectionManager.UpgradeConnection(c.Writer, c.Request, sessionID, playerID); err != nil {
		// the upgrader has already written the HTTP error
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("player_id", playerID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws/session", h.HandleSessionConnection)
	r.GET("/ws/stats", h.HandleConnectionStats)
}
