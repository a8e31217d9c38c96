package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/fixflowhq/fixflow/internal/provider"
	"github.com/fixflowhq/fixflow/internal/tenant"
)

const providerCallTimeout = 10 * time.Second

// TenantsHandler manages tenants and their messaging provider bindings.
type TenantsHandler struct {
	store    *tenant.Store
	registry *provider.Registry
	validate *validator.Validate
	logger   *slog.Logger
}

// NewTenantsHandler creates a TenantsHandler.
func NewTenantsHandler(log *slog.Logger, store *tenant.Store, registry *provider.Registry) *TenantsHandler {
	return &TenantsHandler{
		store:    store,
		registry: registry,
		validate: validator.New(),
		logger:   log.With(slog.String("handler", "tenants")),
	}
}

func (h *TenantsHandler) Register(e *echo.Echo) {
	group := e.Group("/api/tenants")
	group.POST("", h.CreateTenant)
	group.GET("/:tenant_id", h.GetTenant)
	group.GET("/:tenant_id/messaging-config", h.GetMessagingConfig)
	group.PUT("/:tenant_id/messaging-config", h.UpsertMessagingConfig)
	group.GET("/:tenant_id/messaging-config/status", h.ProviderStatus)
}

type createTenantRequest struct {
	Name string `json:"name" validate:"required,min=2"`
}

func (h *TenantsHandler) CreateTenant(c echo.Context) error {
	var req createTenantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created, err := h.store.Create(c.Request().Context(), req.Name)
	if err != nil {
		h.logger.Error("create tenant failed", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create tenant")
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *TenantsHandler) GetTenant(c echo.Context) error {
	found, err := h.store.Get(c.Request().Context(), c.Param("tenant_id"))
	if err != nil {
		return tenantError(err)
	}
	return c.JSON(http.StatusOK, found)
}

func (h *TenantsHandler) GetMessagingConfig(c echo.Context) error {
	cfg, err := h.loadConfig(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, redactConfig(cfg))
}

func (h *TenantsHandler) UpsertMessagingConfig(c echo.Context) error {
	tenantID := c.Param("tenant_id")
	if _, err := h.store.Get(c.Request().Context(), tenantID); err != nil {
		return tenantError(err)
	}

	var req tenant.UpsertConfigRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.registry.ParseProvider(req.Provider); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cfg, err := h.store.UpsertMessagingConfig(c.Request().Context(), tenantID, req)
	if err != nil {
		h.logger.Error("upsert messaging config failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save messaging config")
	}
	return c.JSON(http.StatusOK, redactConfig(cfg))
}

// ProviderStatus queries the configured provider's session state.
func (h *TenantsHandler) ProviderStatus(c echo.Context) error {
	cfg, err := h.loadConfig(c)
	if err != nil {
		return err
	}
	checker, ok := h.registry.GetStatusChecker(cfg.Provider)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "provider does not report status")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), providerCallTimeout)
	defer cancel()
	status, err := checker.Status(ctx, cfg.SendConfig())
	if err != nil {
		h.logger.Warn("provider status check failed",
			slog.String("tenant_id", cfg.TenantID),
			slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusBadGateway, "provider status unavailable")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"provider": cfg.Provider.String(),
		"status":   status,
	})
}

func (h *TenantsHandler) loadConfig(c echo.Context) (tenant.MessagingConfig, error) {
	tenantID := c.Param("tenant_id")
	if _, err := h.store.Get(c.Request().Context(), tenantID); err != nil {
		return tenant.MessagingConfig{}, tenantError(err)
	}
	cfg, err := h.store.GetMessagingConfig(c.Request().Context(), tenantID)
	if err != nil {
		return tenant.MessagingConfig{}, tenantError(err)
	}
	return cfg, nil
}

// redactConfig hides credentials in API responses; the caller can overwrite
// them but never read them back.
func redactConfig(cfg tenant.MessagingConfig) tenant.MessagingConfig {
	if cfg.APIKey != "" {
		cfg.APIKey = "********"
	}
	if cfg.WebhookSharedSecret != "" {
		cfg.WebhookSharedSecret = "********"
	}
	return cfg
}

func tenantError(err error) error {
	switch {
	case errors.Is(err, tenant.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
	case errors.Is(err, tenant.ErrNotConfigured):
		return echo.NewHTTPError(http.StatusNotFound, "messaging config not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "tenant lookup failed")
	}
}
