package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fixflowhq/fixflow/internal/auth"
	"github.com/fixflowhq/fixflow/internal/config"
)

// AuthHandler issues and refreshes operator tokens.
type AuthHandler struct {
	cfg       config.AuthConfig
	expiresIn time.Duration
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(log *slog.Logger, cfg config.AuthConfig) *AuthHandler {
	expiresIn, err := time.ParseDuration(cfg.JWTExpiresIn)
	if err != nil || expiresIn <= 0 {
		expiresIn = 24 * time.Hour
	}
	return &AuthHandler{
		cfg:       cfg,
		expiresIn: expiresIn,
		logger:    log.With(slog.String("handler", "auth")),
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	group := e.Group("/api/auth")
	group.POST("/login", h.Login)
	group.POST("/refresh", h.Refresh)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}
	if h.cfg.AdminEmail == "" || h.cfg.AdminPassword == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "login is not configured")
	}

	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(h.cfg.AdminEmail)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.AdminPassword)) == 1
	if !emailOK || !passwordOK {
		h.logger.Warn("rejected login", slog.String("email", email))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	token, expiresAt, err := auth.GenerateToken(email, h.cfg.JWTSecret, h.expiresIn)
	if err != nil {
		h.logger.Error("token generation failed", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}
	return c.JSON(http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	token, expiresAt, err := auth.RefreshTokenFromContext(c, h.cfg.JWTSecret, h.expiresIn)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}
