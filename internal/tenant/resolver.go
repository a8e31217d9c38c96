package tenant

import (
	"context"
	"strings"
)

// SessionSource is the subset of the store the resolver needs.
type SessionSource interface {
	TenantBySession(ctx context.Context, sessionID string) (string, error)
	GetMessagingConfig(ctx context.Context, tenantID string) (MessagingConfig, error)
}

// Resolver maps provider session identifiers back to tenant ids and vice
// versa. A shared pool of provider sessions is multiplexed across tenants;
// this is the only path from session to tenant.
type Resolver struct {
	source SessionSource
}

// NewResolver creates a Resolver over the given source.
func NewResolver(source SessionSource) *Resolver {
	return &Resolver{source: source}
}

// ResolveTenant returns the tenant id owning sessionID, or ErrSessionNotFound.
func (r *Resolver) ResolveTenant(ctx context.Context, sessionID string) (string, error) {
	return r.source.TenantBySession(ctx, sessionID)
}

// SessionFor returns the provider session configured for the tenant, or
// ErrNotConfigured when none is set.
func (r *Resolver) SessionFor(ctx context.Context, tenantID string) (string, error) {
	cfg, err := r.source.GetMessagingConfig(ctx, tenantID)
	if err != nil {
		return "", err
	}
	session := strings.TrimSpace(cfg.SessionID)
	if session == "" {
		return "", ErrNotConfigured
	}
	return session, nil
}
