package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatbridge/internal/service/assistant"
	"chatbridge/internal/worker"
)

// TurnDispatcher runs chat turns off the request goroutine.
type TurnDispatcher interface {
	Submit(ctx context.Context, in assistant.TurnInput) (<-chan worker.Result, error)
	CancelSession(sessionID string)
}

// Handler wires HTTP routes to the assistant service and the turn dispatcher.
type Handler struct {
	assistant *assistant.Service
	turns     TurnDispatcher
}

// NewHandler constructs a Handler instance.
func NewHandler(service *assistant.Service, turns TurnDispatcher) *Handler {
	return &Handler{
		assistant: service,
		turns:     turns,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(SecurityHeaders())
	api := router.Group("/api")
	api.GET("/health", h.health)
	api.GET("/sessions", h.listSessions)
	api.POST("/sessions", h.createSession)
	api.GET("/sessions/:id/messages", h.listMessages)
	api.DELETE("/sessions/:id", h.deleteSession)
	api.POST("/chat", h.chat)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"message": "Chat API is running",
	})
}

func (h *Handler) listSessions(c *gin.Context) {
	sessions, err := h.assistant.ListSessions(c.Request.Context())
	if err != nil {
		log.Printf("list sessions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sessions"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *Handler) createSession(c *gin.Context) {
	session, err := h.assistant.CreateSession(c.Request.Context())
	if err != nil {
		log.Printf("create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": session.ID,
		"message":   "Session created successfully",
	})
}

func (h *Handler) listMessages(c *gin.Context) {
	messages, err := h.assistant.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Printf("list messages: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) deleteSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.assistant.DeleteSession(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, assistant.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		log.Printf("delete session %s: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete session"})
		return
	}
	h.turns.CancelSession(sessionID)
	c.JSON(http.StatusOK, gin.H{"message": "Session deleted successfully"})
}

func (h *Handler) chat(c *gin.Context) {
	var req assistant.TurnInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": assistant.ErrValidation.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resultCh, err := h.turns.Submit(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, worker.ErrDispatcherBusy) || errors.Is(err, worker.ErrDispatcherClosed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":  "Server is busy, please retry",
				"output": h.assistant.ErrorReply(),
			})
			return
		}
		h.chatFailed(c, nil, err)
		return
	}

	var res worker.Result
	select {
	case res = <-resultCh:
	case <-c.Request.Context().Done():
		// the turn still completes and is persisted; nobody is left to answer
		return
	}
	if res.Err != nil {
		h.chatFailed(c, res.Turn, res.Err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"output":    res.Turn.Output,
		"html_code": res.Turn.HTMLCode,
		"messageId": res.Turn.MessageID,
	})
}

func (h *Handler) chatFailed(c *gin.Context, turn *assistant.TurnResult, err error) {
	if errors.Is(err, assistant.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Printf("chat turn failed: %v", err)
	output := h.assistant.ErrorReply()
	if turn != nil && turn.Output != "" {
		output = turn.Output
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":  "Internal server error",
		"output": output,
	})
}
