package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fixflowhq/fixflow/internal/conversation"
	"github.com/fixflowhq/fixflow/internal/provider"
	"github.com/fixflowhq/fixflow/internal/tenant"
)

// TenantSource loads tenants and their messaging configuration.
type TenantSource interface {
	Get(ctx context.Context, tenantID string) (tenant.Tenant, error)
	GetMessagingConfig(ctx context.Context, tenantID string) (tenant.MessagingConfig, error)
}

// SessionResolver maps a provider session id back to its owning tenant.
type SessionResolver interface {
	ResolveTenant(ctx context.Context, sessionID string) (string, error)
}

// Appender runs the inbound pipeline for a parsed message.
type Appender interface {
	HandleInbound(ctx context.Context, msg provider.Message) (conversation.AppendResult, error)
}

// Dispatcher is the webhook entry point behind the HTTP boundary.
type Dispatcher struct {
	tenants  TenantSource
	sessions SessionResolver
	registry *provider.Registry
	engine   Appender
	log      *slog.Logger
}

// NewDispatcher wires a Dispatcher.
func NewDispatcher(tenants TenantSource, sessions SessionResolver, registry *provider.Registry, engine Appender, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		tenants:  tenants,
		sessions: sessions,
		registry: registry,
		engine:   engine,
		log:      log.With(slog.String("component", "webhook")),
	}
}

// Dispatch authenticates and ingests one delivery. The adapter is selected by
// the tenant's CONFIGURED provider; providerHint from the URL is only
// logged on mismatch, never trusted.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID, providerHint string, payload provider.WebhookPayload) (Result, error) {
	log := d.log.With(slog.String("tenant_id", tenantID))

	if _, err := d.tenants.Get(ctx, tenantID); err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
		}
		return Result{}, fmt.Errorf("%w: load tenant: %v", ErrDownstream, err)
	}

	cfg, err := d.tenants.GetMessagingConfig(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotConfigured) {
			return Result{}, fmt.Errorf("%w: %s", ErrNotConfigured, tenantID)
		}
		return Result{}, fmt.Errorf("%w: load messaging config: %v", ErrDownstream, err)
	}

	adapter, ok := d.registry.Get(cfg.Provider)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
	if providerHint != "" && provider.Provider(providerHint) != cfg.Provider {
		log.Warn("provider hint does not match configured provider",
			slog.String("hint", providerHint),
			slog.String("configured", cfg.Provider.String()))
	}

	if cfg.WebhookSharedSecret != "" {
		verifier, ok := d.registry.GetVerifier(cfg.Provider)
		if ok && !verifier.Verify(payload, cfg.WebhookSharedSecret) {
			return Result{}, fmt.Errorf("%w: %s signature rejected", ErrAuthenticationFailed, cfg.Provider)
		}
	}

	msg, err := adapter.Parse(payload, tenantID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if msg == nil {
		// Echo or status event: acknowledge without processing.
		log.Debug("non-message event acknowledged", slog.String("provider", cfg.Provider.String()))
		return Result{NoOp: true}, nil
	}

	if msg.SessionID != "" {
		owner, err := d.sessions.ResolveTenant(ctx, msg.SessionID)
		if err != nil {
			if errors.Is(err, tenant.ErrSessionNotFound) {
				return Result{}, fmt.Errorf("%w: unknown session %q", ErrAuthenticationFailed, msg.SessionID)
			}
			return Result{}, fmt.Errorf("%w: resolve session: %v", ErrDownstream, err)
		}
		if owner != tenantID {
			return Result{}, fmt.Errorf("%w: session %q belongs to another tenant", ErrAuthenticationFailed, msg.SessionID)
		}
	}

	res, err := d.engine.HandleInbound(ctx, *msg)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDownstream, err)
	}

	if !res.Created {
		log.Debug("duplicate delivery acknowledged",
			slog.String("provider", cfg.Provider.String()),
			slog.String("external_message_id", msg.ExternalMessageID))
	}
	return Result{
		ConversationID: res.Conversation.ID,
		MessageID:      res.Message.ID,
		Duplicate:      !res.Created,
	}, nil
}
