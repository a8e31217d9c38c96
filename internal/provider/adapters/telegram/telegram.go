// Package telegram adapts Telegram Bot API webhook updates.
package telegram

import (
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fixflowhq/fixflow/internal/provider"
)

// Type is the registered provider name.
const Type = provider.Provider("telegram")

// SecretTokenHeader carries the shared secret configured via setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Adapter implements parsing, verification, and the Bot API send client.
type Adapter struct {
	logger *slog.Logger
	mu     sync.RWMutex
	bots   map[string]*tgbotapi.BotAPI // keyed by endpoint|token
}

// NewAdapter creates the adapter.
func NewAdapter(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger: log.With(slog.String("provider", Type.String())),
		bots:   make(map[string]*tgbotapi.BotAPI),
	}
}

func (a *Adapter) Name() provider.Provider { return Type }

// Parse normalizes a message update. Non-message updates (edits, callback
// queries, channel posts) and bot-originated messages return (nil, nil).
func (a *Adapter) Parse(payload provider.WebhookPayload, tenantID string) (*provider.Message, error) {
	var upd tgbotapi.Update
	if err := json.Unmarshal(payload.Body, &upd); err != nil {
		return nil, fmt.Errorf("decode telegram update: %w", err)
	}
	if upd.UpdateID == 0 {
		return nil, fmt.Errorf("telegram payload missing update_id")
	}
	if upd.Message == nil {
		return nil, nil
	}
	if upd.Message.From != nil && upd.Message.From.IsBot {
		return nil, nil
	}

	sentAt := time.Now().UTC()
	if upd.Message.Date > 0 {
		sentAt = time.Unix(int64(upd.Message.Date), 0).UTC()
	}

	counterparty := ""
	if upd.Message.Chat != nil {
		counterparty = strconv.FormatInt(upd.Message.Chat.ID, 10)
	}

	msg := &provider.Message{
		TenantID: tenantID,
		Provider: Type,
		// Telegram retries redeliver the same update_id, which makes it the
		// natural idempotency key.
		ExternalMessageID: strconv.Itoa(upd.UpdateID),
		Counterparty:      counterparty,
		Direction:         provider.DirectionInbound,
		Body:              upd.Message.Text,
		Timestamp:         sentAt,
		RawPayload:        json.RawMessage(payload.Body),
	}
	return msg, nil
}

// Verify compares the secret token header in constant time.
func (a *Adapter) Verify(payload provider.WebhookPayload, secret string) bool {
	got := payload.HeaderValue(SecretTokenHeader)
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(got), []byte(secret))
}

// normalizeChatID accepts "+123", "123" and returns the Bot API chat_id form.
func normalizeChatID(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "+")
}
