package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/magiciincaidev/callassist/internal/model"
	"github.com/magiciincaidev/callassist/internal/queue"
	"github.com/magiciincaidev/callassist/internal/service"
)

type SessionHandler struct {
	calls      service.CallService
	watcher    queue.Watcher
	watchBlock time.Duration
}

func NewSessionHandler(calls service.CallService, watcher queue.Watcher, watchBlock time.Duration) *SessionHandler {
	return &SessionHandler{
		calls:      calls,
		watcher:    watcher,
		watchBlock: watchBlock,
	}
}

type createSessionRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	OperatorID string `json:"operator_id" binding:"required"`
}

// Create creates a new call session for a (user, operator) pair.
func (h *SessionHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: user_id and operator_id are required"})
		return
	}

	session, err := h.calls.Create(ctx, req.UserID, req.OperatorID)
	if err != nil {
		if errors.Is(err, service.ErrCapacity) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to create session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusCreated, session)
}

// Get returns a single session with its status re-derived.
func (h *SessionHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	session, err := h.calls.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to get session", "error", err, "session_id", c.Param("id"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get session"})
		return
	}

	c.JSON(http.StatusOK, session)
}

type listSessionsResponse struct {
	Sessions []model.CallSession `json:"sessions"`
}

// List returns every structurally valid session. Corrupted records are
// discarded server-side during the scan.
func (h *SessionHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	sessions, err := h.calls.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list sessions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	if sessions == nil {
		sessions = []model.CallSession{}
	}
	c.JSON(http.StatusOK, listSessionsResponse{Sessions: sessions})
}

type participantRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
	Role          string `json:"role" binding:"required,oneof=user operator"`
}

type participantOp func(ctx context.Context, sessionID, participantID string, role model.ParticipantRole) (*model.CallSession, error)

// Join marks a participant as joined; both sides joined promotes the session
// to active. Idempotent per role.
func (h *SessionHandler) Join(c *gin.Context) {
	h.participantUpdate(c, h.calls.Join)
}

// Leave marks a participant as left, which ends the session.
func (h *SessionHandler) Leave(c *gin.Context) {
	h.participantUpdate(c, h.calls.Leave)
}

func (h *SessionHandler) participantUpdate(c *gin.Context, op participantOp) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: participant_id and role (user|operator) are required"})
		return
	}

	session, err := op(ctx, sessionID, req.ParticipantID, model.ParticipantRole(req.Role))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			slog.ErrorContext(ctx, "failed to update participant", "error", err, "session_id", sessionID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update participant"})
		}
		return
	}

	c.JSON(http.StatusOK, session)
}

// End terminates a session explicitly.
func (h *SessionHandler) End(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	session, err := h.calls.End(ctx, sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to end session", "error", err, "session_id", sessionID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end session"})
		return
	}

	c.JSON(http.StatusOK, session)
}

type historyResponse struct {
	Messages []model.ConversationMessage `json:"messages"`
}

// History returns the session's conversation thread in insertion order.
func (h *SessionHandler) History(c *gin.Context) {
	ctx := c.Request.Context()

	messages, err := h.calls.History(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to load history", "error", err, "session_id", c.Param("id"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	if messages == nil {
		messages = []model.ConversationMessage{}
	}
	c.JSON(http.StatusOK, historyResponse{Messages: messages})
}

type postMessageRequest struct {
	Message    string `json:"message" binding:"required"`
	Guidelines string `json:"guidelines"`
}

// PostMessage records a user utterance and returns the AI next-action
// suggestion for it. A degraded (canned) suggestion still returns 200 with
// the degraded flag set.
func (h *SessionHandler) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: message is required"})
		return
	}

	suggestion, err := h.calls.ProcessUserMessage(ctx, sessionID, req.Message, req.Guidelines)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrSuggestionFail):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		default:
			slog.ErrorContext(ctx, "failed to process message", "error", err, "session_id", sessionID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process message"})
		}
		return
	}

	c.JSON(http.StatusOK, suggestion)
}

type watchResponse struct {
	Events []queue.SessionEvent `json:"events"`
	NextID string               `json:"next_id"`
}

// Watch blocks briefly on the session's event stream and returns lifecycle
// events after the given stream ID. Clients pass the returned next_id back
// in the after parameter, turning interval polling into a long-poll on
// actual transitions.
func (h *SessionHandler) Watch(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")
	after := c.Query("after")

	events, err := h.watcher.Watch(ctx, sessionID, after, h.watchBlock)
	if err != nil {
		slog.ErrorContext(ctx, "failed to watch session events", "error", err, "session_id", sessionID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to watch session events"})
		return
	}

	resp := watchResponse{Events: events, NextID: after}
	if len(events) > 0 {
		resp.NextID = events[len(events)-1].ID
	}
	if resp.Events == nil {
		resp.Events = []queue.SessionEvent{}
	}
	c.JSON(http.StatusOK, resp)
}

// Delete removes one session and all its records.
func (h *SessionHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if err := h.calls.ClearSession(ctx, sessionID); err != nil {
		slog.ErrorContext(ctx, "failed to clear session", "error", err, "session_id", sessionID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear session"})
		return
	}

	c.Status(http.StatusNoContent)
}

type clearAllResponse struct {
	Cleared int `json:"cleared"`
}

// DeleteAll clears every session record. Debug/reset operation.
func (h *SessionHandler) DeleteAll(c *gin.Context) {
	ctx := c.Request.Context()

	cleared, err := h.calls.ClearAllSessions(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to clear sessions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear sessions"})
		return
	}

	c.JSON(http.StatusOK, clearAllResponse{Cleared: cleared})
}
