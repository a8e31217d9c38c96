// Package server assembles the echo application: middleware chain, route
// registration, and lifecycle.
package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fixflowhq/fixflow/internal/auth"
	"github.com/fixflowhq/fixflow/internal/handlers"
	"github.com/fixflowhq/fixflow/internal/ratelimit"
)

type Server struct {
	echo *echo.Echo
	addr string
}

// NewServer builds the HTTP server. The rate-limit gateway runs before
// anything else so a denied request does zero business work; JWT protects the
// management API but skips webhook and probe paths, which carry their own
// authentication.
func NewServer(addr string, jwtSecret string, limiter *ratelimit.Limiter, log *slog.Logger,
	pingHandler *handlers.PingHandler,
	authHandler *handlers.AuthHandler,
	webhookHandler *handlers.WebhookHandler,
	tenantsHandler *handlers.TenantsHandler,
	conversationsHandler *handlers.ConversationsHandler,
) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(log))
	e.Use(ratelimit.Gateway(limiter, jwtSecret, log))
	e.Use(auth.JWTMiddleware(jwtSecret, func(c echo.Context) bool {
		return shouldSkipJWT(c.Request().URL.Path)
	}))

	if pingHandler != nil {
		pingHandler.Register(e)
	}
	if authHandler != nil {
		authHandler.Register(e)
	}
	if webhookHandler != nil {
		webhookHandler.Register(e)
	}
	if tenantsHandler != nil {
		tenantsHandler.Register(e)
	}
	if conversationsHandler != nil {
		conversationsHandler.Register(e)
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

// shouldSkipJWT marks the paths outside the token-protected surface: probes,
// login, and webhook deliveries, which each provider authenticates itself.
func shouldSkipJWT(path string) bool {
	if path == "/ping" || path == "/healthz" || path == "/api/auth/login" {
		return true
	}
	if strings.HasPrefix(path, "/webhooks/") {
		return true
	}
	return strings.HasPrefix(path, "/docs")
}

func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	log = log.With(slog.String("component", "http"))
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			)
			return nil
		},
	})
}

// Echo exposes the underlying echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
