package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fixflowhq/fixflow/internal/provider"
	"github.com/fixflowhq/fixflow/internal/webhook"
)

// maxWebhookBody caps provider payloads; anything larger is not a chat
// message.
const maxWebhookBody = 1 << 20

// Dispatcher is the webhook pipeline behind this handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, tenantID, providerHint string, payload provider.WebhookPayload) (webhook.Result, error)
}

// WebhookHandler receives provider deliveries. These routes are outside the
// JWT surface: each provider authenticates its own way.
type WebhookHandler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(log *slog.Logger, dispatcher Dispatcher) *WebhookHandler {
	return &WebhookHandler{
		dispatcher: dispatcher,
		logger:     log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/messaging/:tenant_id", h.Receive)
	e.POST("/webhooks/messaging/:tenant_id/:provider", h.Receive)
}

type webhookResponse struct {
	Success        bool   `json:"success"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	NoOp           bool   `json:"no_op,omitempty"`
}

func (h *WebhookHandler) Receive(c echo.Context) error {
	tenantID := c.Param("tenant_id")
	if tenantID == "" {
		return echo.NewHTTPError(http.StatusNotFound, "tenant id is required")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}

	payload := provider.WebhookPayload{
		URL:    requestURL(c),
		Header: c.Request().Header,
		Body:   body,
	}

	res, err := h.dispatcher.Dispatch(c.Request().Context(), tenantID, c.Param("provider"), payload)
	if err != nil {
		return h.mapError(c, tenantID, err)
	}

	return c.JSON(http.StatusOK, webhookResponse{
		Success:        true,
		ConversationID: res.ConversationID,
		MessageID:      res.MessageID,
		NoOp:           res.NoOp,
	})
}

// mapError translates dispatch error kinds into the provider-facing status
// codes. Providers retry on non-2xx, so 5xx is reserved for conditions a
// retry could actually cure.
func (h *WebhookHandler) mapError(c echo.Context, tenantID string, err error) error {
	log := h.logger.With(slog.String("tenant_id", tenantID))
	switch {
	case errors.Is(err, webhook.ErrTenantNotFound), errors.Is(err, webhook.ErrNotConfigured):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, webhook.ErrUnsupportedProvider), errors.Is(err, webhook.ErrMalformedPayload):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, webhook.ErrAuthenticationFailed):
		log.Warn("webhook rejected", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusForbidden, "webhook authentication failed")
	default:
		log.Error("webhook dispatch failed", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "webhook processing failed")
	}
}

// requestURL rebuilds the full public URL the provider signed against.
func requestURL(c echo.Context) string {
	scheme := c.Scheme()
	if fwd := c.Request().Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + c.Request().Host + c.Request().RequestURI
}
