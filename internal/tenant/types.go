// Package tenant holds tenant records, per-tenant messaging configuration,
// and the session-to-tenant resolver.
package tenant

import (
	"errors"
	"time"

	"github.com/fixflowhq/fixflow/internal/provider"
)

// ErrNotFound indicates the tenant does not exist.
var ErrNotFound = errors.New("tenant not found")

// ErrNotConfigured indicates the tenant has no messaging provider configured.
var ErrNotConfigured = errors.New("tenant messaging not configured")

// ErrSessionNotFound indicates no tenant owns the given provider session.
var ErrSessionNotFound = errors.New("provider session not mapped to a tenant")

// Tenant is an isolated customer organization.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessagingConfig is the tenant's messaging provider binding. Written only
// through tenant-scoped configuration endpoints; read on every webhook
// dispatch.
type MessagingConfig struct {
	TenantID            string            `json:"tenant_id"`
	Provider            provider.Provider `json:"provider"`
	APIBaseURL          string            `json:"provider_api_base_url"`
	APIKey              string            `json:"provider_api_key"`
	SessionID           string            `json:"provider_session_id,omitempty"`
	WebhookSharedSecret string            `json:"webhook_shared_secret"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// SendConfig projects the credentials a provider client call needs.
func (c MessagingConfig) SendConfig() provider.SendConfig {
	return provider.SendConfig{
		BaseURL:       c.APIBaseURL,
		APIKey:        c.APIKey,
		SessionID:     c.SessionID,
		WebhookSecret: c.WebhookSharedSecret,
	}
}

// UpsertConfigRequest is the input for writing a tenant's messaging config.
type UpsertConfigRequest struct {
	Provider            string `json:"provider" validate:"required"`
	APIBaseURL          string `json:"provider_api_base_url" validate:"omitempty,url"`
	APIKey              string `json:"provider_api_key"`
	SessionID           string `json:"provider_session_id"`
	WebhookSharedSecret string `json:"webhook_shared_secret"`
}
