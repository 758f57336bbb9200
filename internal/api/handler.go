// Package api exposes the HTTP surface: conversation CRUD, message listing
// and the ask endpoint used by the web UI.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/memobot-ai/memobot/internal/store"
)

// Asker answers a question within a conversation. Satisfied by llm.Service.
type Asker interface {
	Ask(ctx context.Context, conversationID, question string) (string, error)
}

type Handler struct {
	store  *store.Store
	asker  Asker
	logger *zap.Logger
}

// NewHandler creates the HTTP handler. Webhook delivery is the asker's
// concern; wrap it in a NotifyingAsker when a webhook is configured.
func NewHandler(st *store.Store, asker Asker, logger *zap.Logger) *Handler {
	return &Handler{
		store:  st,
		asker:  asker,
		logger: logger,
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/conversations", h.ListConversations)
	e.POST("/conversations", h.CreateConversation)
	e.GET("/conversations/:id", h.GetConversation)
	e.GET("/conversations/:id/messages", h.GetMessages)
	e.DELETE("/conversations/:id", h.DeleteConversation)
	e.POST("/ask", h.Ask)
	e.GET("/healthz", h.Health)
}

type askRequest struct {
	ConversationID string `json:"conversation_id"`
	Question       string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

// Ask answers a question in the given conversation, creating it lazily on
// first use.
func (h *Handler) Ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if req.ConversationID == "" || req.Question == "" {
		return c.JSON(http.StatusBadRequest, errorBody("conversation_id and question required"))
	}

	answer, err := h.asker.Ask(c.Request().Context(), req.ConversationID, req.Question)
	if err != nil {
		h.logger.Error("failed to answer question",
			zap.Error(err),
			zap.String("conversation_id", req.ConversationID))
		return c.JSON(http.StatusInternalServerError, errorBody("failed to answer question"))
	}

	return c.JSON(http.StatusOK, askResponse{Answer: answer})
}

// ListConversations returns every conversation holding at least one message,
// most recently active first.
func (h *Handler) ListConversations(c echo.Context) error {
	conversations, err := h.store.ListConversations(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorBody("internal server error"))
	}
	return c.JSON(http.StatusOK, conversations)
}

// CreateConversation starts an empty conversation under a fresh id.
func (h *Handler) CreateConversation(c echo.Context) error {
	conv, err := h.store.NewConversation(c.Request().Context(), "New Chat")
	if err != nil {
		h.logger.Error("failed to create conversation", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorBody("internal server error"))
	}
	return c.JSON(http.StatusOK, map[string]string{"conversation_id": conv.ID})
}

func (h *Handler) GetConversation(c echo.Context) error {
	conv, err := h.store.GetConversation(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrConversationNotFound) {
		return c.JSON(http.StatusNotFound, errorBody("conversation not found"))
	}
	if err != nil {
		h.logger.Error("failed to get conversation", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorBody("internal server error"))
	}
	return c.JSON(http.StatusOK, conv)
}

// GetMessages returns the conversation's messages oldest first. An optional
// ?since=<id> query resumes after a previously seen message id.
func (h *Handler) GetMessages(c echo.Context) error {
	var since int64
	if s := c.QueryParam("since"); s != "" {
		val, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorBody("invalid since parameter"))
		}
		since = val
	}

	messages, err := h.store.ListMessages(c.Request().Context(), c.Param("id"), since)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorBody("internal server error"))
	}
	return c.JSON(http.StatusOK, messages)
}

// DeleteConversation removes the conversation and all its messages.
func (h *Handler) DeleteConversation(c echo.Context) error {
	err := h.store.DeleteConversation(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrConversationNotFound) {
		return c.JSON(http.StatusNotFound, errorBody("conversation not found"))
	}
	if err != nil {
		h.logger.Error("failed to delete conversation", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorBody("internal server error"))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
