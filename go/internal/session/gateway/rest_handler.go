package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"

	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/mcdev12/planning-poker/go/internal/session"
)

// PlayerHeader identifies the acting player on REST calls that fan out.
const PlayerHeader = "X-Player-ID"

// SessionDirectory covers the session operations that never fan out to a room.
type SessionDirectory interface {
	CreateSession(ctx context.Context, req session.CreateSessionRequest) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	LastStatistics(ctx context.Context, id string) (*models.VoteStatistics, error)
}

// RESTHandler serves the /api surface.
type RESTHandler struct {
	sessions SessionDirectory
	hub      *Hub
}

func NewRESTHandler(sessions SessionDirectory, hub *Hub) *RESTHandler {
	return &RESTHandler{
		sessions: sessions,
		hub:      hub,
	}
}

// RegisterRoutes mounts the session routes under r.
func (h *RESTHandler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")
	{
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions", h.ListSessions)

		sessions := api.Group("/sessions/:id")
		{
			sessions.GET("", h.GetSession)
			sessions.DELETE("", h.DeleteSession)
			sessions.GET("/stats", h.GetStatistics)
			sessions.POST("/rounds", h.StartRound)
			sessions.POST("/reveal", h.RevealVotes)
			sessions.POST("/cancel", h.CancelRound)
		}
	}
}

// standardResponse sends a consistent JSON response
func standardResponse(c *gin.Context, code int, status string, data interface{}, errBody *ErrorPayload) {
	response := gin.H{"status": status}

	if data != nil {
		response["data"] = data
	}

	if errBody != nil {
		response["error"] = errBody
	}

	c.JSON(code, response)
}

func errorResponse(c *gin.Context, eventType EventType, err error) {
	code, body := httpError(eventType, err)
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	} else {
		log.Warn().Err(err).Str("path", c.FullPath()).Msg("request rejected")
	}
	standardResponse(c, code, "error", nil, body)
}

// httpError maps an error to a status code and error body.
func httpError(eventType EventType, err error) (int, *ErrorPayload) {
	body := &ErrorPayload{Code: ErrorCode(eventType, err), Message: clientMessage(err)}
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		body.Code = CodeNotFound
		return http.StatusNotFound, body
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, body
	case errors.Is(err, session.ErrNoActiveRound):
		return http.StatusConflict, body
	case errors.Is(err, ErrBadPayload):
		return http.StatusBadRequest, body
	case session.IsDomainError(err):
		return http.StatusBadRequest, body
	default:
		body.Code = CodeInternal
		return http.StatusInternalServerError, body
	}
}

// CreateSession handles session creation requests
func (h *RESTHandler) CreateSession(c *gin.Context) {
	var req struct {
		DealerName   string `json:"dealerName" binding:"required"`
		DealerAvatar string `json:"dealerAvatar"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		standardResponse(c, http.StatusBadRequest, "error", nil, &ErrorPayload{
			Code:    CodeBadRequest,
			Message: "dealerName is required",
		})
		return
	}

	s, err := h.sessions.CreateSession(c.Request.Context(), session.CreateSessionRequest{
		DealerName:   req.DealerName,
		DealerAvatar: req.DealerAvatar,
	})
	if err != nil {
		errorResponse(c, "", err)
		return
	}

	standardResponse(c, http.StatusCreated, "created", gin.H{
		"id":       s.ID,
		"dealerId": s.DealerID,
		"status":   s.Status,
	}, nil)
}

// ListSessions returns every session, newest first
func (h *RESTHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.ListSessions(c.Request.Context())
	if err != nil {
		errorResponse(c, "", err)
		return
	}
	masked := make([]*models.Session, len(sessions))
	for i, s := range sessions {
		masked[i] = s.Masked()
	}
	standardResponse(c, http.StatusOK, "ok", masked, nil)
}

// GetSession returns one session with hidden votes masked
func (h *RESTHandler) GetSession(c *gin.Context) {
	s, err := h.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		errorResponse(c, "", err)
		return
	}
	standardResponse(c, http.StatusOK, "ok", s.Masked(), nil)
}

// GetStatistics returns the statistics of the current round, null until it is revealed
func (h *RESTHandler) GetStatistics(c *gin.Context) {
	stats, err := h.sessions.LastStatistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		errorResponse(c, "", err)
		return
	}
	standardResponse(c, http.StatusOK, "ok", gin.H{"stats": stats}, nil)
}

// DeleteSession removes a session; deleting an unknown id succeeds
func (h *RESTHandler) DeleteSession(c *gin.Context) {
	if err := h.sessions.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		errorResponse(c, "", err)
		return
	}
	standardResponse(c, http.StatusOK, "ok", gin.H{"success": true}, nil)
}

// StartRound opens a round through the hub so the room hears about it
func (h *RESTHandler) StartRound(c *gin.Context) {
	res, ok := h.execute(c, EventRoundStart)
	if !ok {
		return
	}
	round, _ := res.Value.(*models.Round)
	standardResponse(c, http.StatusCreated, "created", round.Masked(), nil)
}

// RevealVotes reveals the active round and returns its statistics
func (h *RESTHandler) RevealVotes(c *gin.Context) {
	res, ok := h.execute(c, EventRoundReveal)
	if !ok {
		return
	}
	reveal, _ := res.Value.(*session.RevealResult)
	standardResponse(c, http.StatusOK, "ok", reveal, nil)
}

// CancelRound abandons the active round
func (h *RESTHandler) CancelRound(c *gin.Context) {
	res, ok := h.execute(c, EventRoundCancel)
	if !ok {
		return
	}
	cancelled, _ := res.Value.(*session.CancelResult)
	standardResponse(c, http.StatusOK, "ok", gin.H{"roundId": cancelled.Round.ID}, nil)
}

func (h *RESTHandler) execute(c *gin.Context, eventType EventType) (Result, bool) {
	body, err := c.GetRawData()
	if err != nil {
		errorResponse(c, eventType, ErrBadPayload)
		return Result{}, false
	}

	res, err := h.hub.Execute(c.Request.Context(), eventType, Command{
		SessionID: c.Param("id"),
		ActorID:   c.GetHeader(PlayerHeader),
		Payload:   json.RawMessage(body),
	})
	if err != nil {
		errorResponse(c, eventType, err)
		return Result{}, false
	}
	return res, true
}
