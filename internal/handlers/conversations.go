package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fixflowhq/fixflow/internal/conversation"
)

// ConversationsHandler exposes the tenant-scoped conversation views and the
// explicit lifecycle transitions (close, archive, reopen, bot toggle).
type ConversationsHandler struct {
	store  *conversation.Store
	logger *slog.Logger
}

// NewConversationsHandler creates a ConversationsHandler.
func NewConversationsHandler(log *slog.Logger, store *conversation.Store) *ConversationsHandler {
	return &ConversationsHandler{
		store:  store,
		logger: log.With(slog.String("handler", "conversations")),
	}
}

func (h *ConversationsHandler) Register(e *echo.Echo) {
	group := e.Group("/api/tenants/:tenant_id/conversations")
	group.GET("", h.List)
	group.GET("/:conversation_id", h.Get)
	group.GET("/:conversation_id/messages", h.ListMessages)
	group.POST("/:conversation_id/close", h.Close)
	group.POST("/:conversation_id/reopen", h.Reopen)
	group.POST("/:conversation_id/archive", h.Archive)
	group.PUT("/:conversation_id/bot", h.SetBot)
}

func (h *ConversationsHandler) List(c echo.Context) error {
	limit := queryInt(c, "limit", 50)
	items, err := h.store.ListByTenant(c.Request().Context(), c.Param("tenant_id"), limit)
	if err != nil {
		h.logger.Error("list conversations failed", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list conversations")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"items": items,
	})
}

func (h *ConversationsHandler) Get(c echo.Context) error {
	conv, err := h.store.Get(c.Request().Context(), c.Param("tenant_id"), c.Param("conversation_id"))
	if err != nil {
		return conversationError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *ConversationsHandler) ListMessages(c echo.Context) error {
	tenantID := c.Param("tenant_id")
	conversationID := c.Param("conversation_id")
	if _, err := h.store.Get(c.Request().Context(), tenantID, conversationID); err != nil {
		return conversationError(err)
	}

	limit := queryInt(c, "limit", 50)
	items, err := h.store.ListMessages(c.Request().Context(), tenantID, conversationID, limit)
	if err != nil {
		h.logger.Error("list messages failed", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"items": items,
	})
}

func (h *ConversationsHandler) Close(c echo.Context) error {
	return h.transition(c, conversation.StatusClosed)
}

func (h *ConversationsHandler) Reopen(c echo.Context) error {
	return h.transition(c, conversation.StatusOpen)
}

func (h *ConversationsHandler) Archive(c echo.Context) error {
	return h.transition(c, conversation.StatusArchived)
}

type setBotRequest struct {
	Active bool `json:"active"`
}

func (h *ConversationsHandler) SetBot(c echo.Context) error {
	var req setBotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	conv, err := h.store.SetBotActive(c.Request().Context(), c.Param("tenant_id"), c.Param("conversation_id"), req.Active)
	if err != nil {
		return conversationError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *ConversationsHandler) transition(c echo.Context, status string) error {
	conv, err := h.store.SetStatus(c.Request().Context(), c.Param("tenant_id"), c.Param("conversation_id"), status)
	if err != nil {
		return conversationError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func conversationError(err error) error {
	if errors.Is(err, conversation.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "conversation lookup failed")
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
