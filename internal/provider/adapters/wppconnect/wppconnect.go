// Package wppconnect adapts a self-hosted WPPConnect-style WhatsApp HTTP API.
// A shared pool of named sessions is multiplexed across tenants; the session
// field in each webhook event identifies which tenant the traffic belongs to.
package wppconnect

import (
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fixflowhq/fixflow/internal/provider"
)

// Type is the registered provider name.
const Type = provider.Provider("wppconnect")

// APIKeyHeader carries the shared secret on webhook deliveries.
const APIKeyHeader = "X-Api-Key"

// Events that represent the session's own outbound traffic or connection
// chatter. They are acknowledged and dropped.
var nonMessageEvents = map[string]struct{}{
	"onack":             {},
	"onpresencechanged": {},
	"onparticipantsch":  {},
	"status-find":       {},
	"qrcode":            {},
}

// Adapter implements parsing, verification, and the send/status/webhook
// client for WPPConnect sessions.
type Adapter struct {
	logger  *slog.Logger
	clients *provider.ClientCache
}

// NewAdapter creates the adapter. The client cache is shared across sessions
// and may be nil, in which case a default-sized cache is used.
func NewAdapter(log *slog.Logger, clients *provider.ClientCache) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	if clients == nil {
		clients = provider.NewClientCache(0, 0, nil)
	}
	return &Adapter{
		logger:  log.With(slog.String("provider", Type.String())),
		clients: clients,
	}
}

func (a *Adapter) Name() provider.Provider { return Type }

// event is the WPPConnect webhook payload shape.
type event struct {
	Event     string `json:"event"`
	Session   string `json:"session"`
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	FromMe    bool   `json:"fromMe"`
	Body      string `json:"body"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	IsMedia   bool   `json:"isMedia"`
	MediaURL  string `json:"mediaUrl"`
}

// Parse normalizes an onmessage event into the canonical message. Events for
// the session's own outbound messages (fromMe) and non-message events return
// (nil, nil): the webhook must be acknowledged but nothing is ingested.
func (a *Adapter) Parse(payload provider.WebhookPayload, tenantID string) (*provider.Message, error) {
	var evt event
	if err := json.Unmarshal(payload.Body, &evt); err != nil {
		return nil, fmt.Errorf("decode wppconnect payload: %w", err)
	}

	eventName := strings.ToLower(strings.TrimSpace(evt.Event))
	if _, skip := nonMessageEvents[eventName]; skip {
		return nil, nil
	}
	if evt.FromMe {
		// Echo of our own send; WPPConnect reports it on the same hook.
		return nil, nil
	}
	if strings.TrimSpace(evt.ID) == "" || strings.TrimSpace(evt.From) == "" {
		return nil, fmt.Errorf("wppconnect payload missing id or from")
	}

	sentAt := time.Now().UTC()
	if evt.Timestamp > 0 {
		sentAt = time.Unix(evt.Timestamp, 0).UTC()
	}

	msg := &provider.Message{
		TenantID:          tenantID,
		Provider:          Type,
		ExternalMessageID: strings.TrimSpace(evt.ID),
		Counterparty:      normalizeAddress(evt.From),
		Direction:         provider.DirectionInbound,
		Body:              evt.Body,
		Timestamp:         sentAt,
		SessionID:         strings.TrimSpace(evt.Session),
		RawPayload:        json.RawMessage(payload.Body),
	}
	if evt.IsMedia {
		msg.MediaURL = strings.TrimSpace(evt.MediaURL)
	}
	return msg, nil
}

// Verify compares the shared secret header in constant time.
func (a *Adapter) Verify(payload provider.WebhookPayload, secret string) bool {
	got := payload.HeaderValue(APIKeyHeader)
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(got), []byte(secret))
}

// normalizeAddress turns a WPPConnect JID ("5511999999999@c.us") into an
// E.164-style phone address.
func normalizeAddress(jid string) string {
	addr := strings.TrimSpace(jid)
	if at := strings.IndexByte(addr, '@'); at >= 0 {
		addr = addr[:at]
	}
	if addr != "" && !strings.HasPrefix(addr, "+") {
		addr = "+" + addr
	}
	return addr
}
