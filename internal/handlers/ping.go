package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Message string `json:"message"`
}

const pingTimeout = 2 * time.Second

// PingHandler serves liveness and readiness probes.
type PingHandler struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPingHandler creates a PingHandler. pool may be nil, in which case the
// readiness probe reports only process liveness.
func NewPingHandler(log *slog.Logger, pool *pgxpool.Pool) *PingHandler {
	return &PingHandler{
		pool:   pool,
		logger: log.With(slog.String("handler", "ping")),
	}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.GET("/healthz", h.Healthz)
	e.HEAD("/healthz", h.HealthzHead)
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *PingHandler) Healthz(c echo.Context) error {
	if h.pool != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()
		if err := h.pool.Ping(ctx); err != nil {
			h.logger.Warn("readiness probe failed", slog.String("error", err.Error()))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *PingHandler) HealthzHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
