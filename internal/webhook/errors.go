// Package webhook dispatches raw provider deliveries: it resolves the tenant,
// authenticates the payload, parses it into the canonical message, and hands
// it to the conversation engine.
package webhook

import "errors"

// Dispatch failures are typed so the HTTP boundary can map each kind to its
// response code without string matching.
var (
	// ErrTenantNotFound: the URL names a tenant that does not exist.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrNotConfigured: the tenant exists but has no messaging provider set up.
	ErrNotConfigured = errors.New("tenant has no messaging configuration")
	// ErrAuthenticationFailed: signature/secret mismatch, or the delivery's
	// session resolves to a different tenant than the URL names.
	ErrAuthenticationFailed = errors.New("webhook authentication failed")
	// ErrUnsupportedProvider: the configured provider has no registered adapter.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrMalformedPayload: the body does not parse as the configured
	// provider's webhook format.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	// ErrDownstream: the conversation store rejected the append.
	ErrDownstream = errors.New("downstream failure")
)

// Result reports a successful dispatch. NoOp marks recognized non-message
// events (echoes, delivery statuses); Duplicate marks redelivery of an
// already-stored message. Both are acknowledged with success, not errors.
type Result struct {
	ConversationID string
	MessageID      string
	NoOp           bool
	Duplicate      bool
}
