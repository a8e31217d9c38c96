// Package provider defines the canonical inbound message model and the
// adapter contracts for third-party chat providers. Adapters are pure:
// parsing and verification never touch the network or the database.
package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Provider identifies a messaging platform (e.g. "wppconnect", "twilio").
type Provider string

// String returns the provider as a plain string.
func (p Provider) String() string {
	return string(p)
}

// Direction marks a message as received from or sent to the counterparty.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is the canonical, provider-agnostic inbound message.
// (TenantID, Provider, ExternalMessageID) is the idempotency key: delivering
// the same webhook twice must have exactly-once effect downstream.
type Message struct {
	TenantID          string
	Provider          Provider
	ExternalMessageID string
	Counterparty      string
	Direction         Direction
	Body              string
	MediaURL          string
	Timestamp         time.Time
	// SessionID is the provider-side session that delivered the event, when
	// the provider multiplexes a shared session pool. Empty for providers
	// without session routing.
	SessionID string
	// RawPayload retains the original provider payload for audit.
	RawPayload json.RawMessage
}

// WebhookPayload is the raw material handed to a verifier and parser:
// the delivery exactly as it arrived, before any interpretation.
type WebhookPayload struct {
	// URL is the full public URL the provider delivered to. Some signature
	// schemes (Twilio) cover it.
	URL    string
	Header http.Header
	Body   []byte
}

// HeaderValue returns the trimmed first value for the given header key.
func (p WebhookPayload) HeaderValue(key string) string {
	if p.Header == nil {
		return ""
	}
	return strings.TrimSpace(p.Header.Get(key))
}

// Parser turns a raw provider payload into a canonical Message.
// A (nil, nil) return means the payload is a recognized non-message event
// (echo of the tenant's own outbound traffic, delivery status, etc.) that
// must be acknowledged without further processing.
type Parser interface {
	Parse(payload WebhookPayload, tenantID string) (*Message, error)
}

// Verifier checks that a payload was genuinely sent by the claimed provider.
// Verification with an empty secret is the caller's decision to skip, not the
// verifier's; Verify is only called when a secret is configured.
type Verifier interface {
	Verify(payload WebhookPayload, secret string) bool
}

// Adapter is the full per-provider capability set. Every adapter parses;
// verification, sending, and webhook registration are optional and
// discovered by interface assertion on the registry.
type Adapter interface {
	Name() Provider
	Parser
}

// SendConfig carries the tenant-scoped credentials a send call needs.
type SendConfig struct {
	BaseURL   string
	APIKey    string
	SessionID string
	// WebhookSecret is forwarded to providers whose webhook registration
	// carries the shared secret (Telegram's secret_token).
	WebhookSecret string
}

// Sender delivers an outbound message through the provider's send API.
// It returns the provider-assigned message id.
type Sender interface {
	Send(ctx context.Context, cfg SendConfig, to, body string) (string, error)
}

// WebhookRegistrar points the provider's webhook registration at target.
// tenantID is carried as a custom header so deliveries can be routed back.
type WebhookRegistrar interface {
	RegisterWebhook(ctx context.Context, cfg SendConfig, target, tenantID string) error
}

// StatusChecker queries the provider session/connection state.
type StatusChecker interface {
	Status(ctx context.Context, cfg SendConfig) (string, error)
}
