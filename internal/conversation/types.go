// Package conversation implements the per-tenant conversation threads and
// the state machine driven by inbound messages.
package conversation

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/fixflowhq/fixflow/internal/provider"
)

// Conversation status values. A conversation is never hard-deleted by the
// pipeline; archived and closed are soft states.
const (
	StatusOpen     = "open"
	StatusClosed   = "closed"
	StatusArchived = "archived"
)

// ErrNotFound indicates the conversation does not exist within the tenant.
var ErrNotFound = errors.New("conversation not found")

// Conversation is the ongoing thread between a tenant and one counterparty
// address.
type Conversation struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	Counterparty  string    `json:"counterparty_address"`
	Status        string    `json:"status"`
	LastMessageAt time.Time `json:"last_message_at"`
	MessageCount  int       `json:"message_count"`
	IsBotActive   bool      `json:"is_bot_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Message is a stored message row.
type Message struct {
	ID                string             `json:"id"`
	TenantID          string             `json:"tenant_id"`
	ConversationID    string             `json:"conversation_id"`
	Provider          provider.Provider  `json:"provider"`
	ExternalMessageID string             `json:"external_message_id"`
	Counterparty      string             `json:"counterparty_address"`
	Direction         provider.Direction `json:"direction"`
	Body              string             `json:"body"`
	MediaURL          string             `json:"media_url,omitempty"`
	SentAt            time.Time          `json:"sent_at"`
	RawPayload        json.RawMessage    `json:"-"`
	CreatedAt         time.Time          `json:"created_at"`
}

// AppendResult reports the outcome of an inbound append. Created is false
// when the delivery was a duplicate and nothing changed.
type AppendResult struct {
	Conversation Conversation
	Message      Message
	Created      bool
}
