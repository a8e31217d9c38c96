package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fixflowhq/fixflow/internal/autoreply"
	"github.com/fixflowhq/fixflow/internal/provider"
	"github.com/fixflowhq/fixflow/internal/tenant"
)

// ConfigSource yields the provider send configuration for a tenant.
type ConfigSource interface {
	GetMessagingConfig(ctx context.Context, tenantID string) (tenant.MessagingConfig, error)
}

// MessageStore is the persistence surface the engine drives.
type MessageStore interface {
	AppendInbound(ctx context.Context, in provider.Message) (AppendResult, error)
	RecordOutbound(ctx context.Context, conversationID string, out provider.Message) (Message, error)
	ListMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]Message, error)
}

// Engine appends inbound messages and, when the conversation has its bot
// enabled, generates and sends an automated reply.
type Engine struct {
	store    MessageStore
	registry *provider.Registry
	configs  ConfigSource
	replies  autoreply.Generator
	log      *slog.Logger

	historyLimit int
	replyTimeout time.Duration
}

// NewEngine wires the conversation engine. replies may be nil when no reply
// backend is configured.
func NewEngine(store MessageStore, registry *provider.Registry, configs ConfigSource, replies autoreply.Generator, log *slog.Logger) *Engine {
	return &Engine{
		store:        store,
		registry:     registry,
		configs:      configs,
		replies:      replies,
		log:          log.With(slog.String("component", "conversation")),
		historyLimit: 20,
		replyTimeout: 15 * time.Second,
	}
}

// HandleInbound runs the inbound pipeline: append, then auto-reply. Reply
// failures are logged and never surfaced to the webhook caller; the provider
// already accepted the message at that point.
func (e *Engine) HandleInbound(ctx context.Context, msg provider.Message) (AppendResult, error) {
	res, err := e.store.AppendInbound(ctx, msg)
	if err != nil {
		return AppendResult{}, err
	}
	if !res.Created {
		return res, nil
	}
	if res.Conversation.IsBotActive && res.Conversation.Status == StatusOpen && e.replies != nil {
		e.autoReply(ctx, res, msg)
	}
	return res, nil
}

func (e *Engine) autoReply(ctx context.Context, res AppendResult, inbound provider.Message) {
	log := e.log.With(
		slog.String("tenant_id", inbound.TenantID),
		slog.String("conversation_id", res.Conversation.ID),
	)

	ctx, cancel := context.WithTimeout(ctx, e.replyTimeout)
	defer cancel()

	history, err := e.store.ListMessages(ctx, inbound.TenantID, res.Conversation.ID, e.historyLimit)
	if err != nil {
		log.Warn("auto-reply skipped: history load failed", slog.String("error", err.Error()))
		return
	}

	req := autoreply.Request{
		TenantID:       inbound.TenantID,
		ConversationID: res.Conversation.ID,
		Counterparty:   res.Conversation.Counterparty,
		Inbound:        inbound.Body,
	}
	for _, h := range history {
		req.History = append(req.History, autoreply.HistoryMessage{
			Direction: string(h.Direction),
			Body:      h.Body,
			SentAt:    h.SentAt,
		})
	}

	reply, err := e.replies.Generate(ctx, req)
	if errors.Is(err, autoreply.ErrNoReply) {
		return
	}
	if err != nil {
		log.Warn("auto-reply generation failed", slog.String("error", err.Error()))
		return
	}

	if err := e.sendReply(ctx, inbound, res.Conversation.ID, reply); err != nil {
		log.Warn("auto-reply send failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) sendReply(ctx context.Context, inbound provider.Message, conversationID, body string) error {
	cfg, err := e.configs.GetMessagingConfig(ctx, inbound.TenantID)
	if err != nil {
		return fmt.Errorf("load messaging config: %w", err)
	}
	sender, ok := e.registry.GetSender(cfg.Provider)
	if !ok {
		return fmt.Errorf("provider %s cannot send", cfg.Provider)
	}

	externalID, err := sender.Send(ctx, cfg.SendConfig(), inbound.Counterparty, body)
	if err != nil {
		return fmt.Errorf("send via %s: %w", cfg.Provider, err)
	}
	if externalID == "" {
		// Some gateways do not echo an id back; synthesize one so the
		// uniqueness constraint still holds.
		externalID = "out-" + uuid.NewString()
	}

	_, err = e.store.RecordOutbound(ctx, conversationID, provider.Message{
		TenantID:          inbound.TenantID,
		Provider:          cfg.Provider,
		ExternalMessageID: externalID,
		Counterparty:      inbound.Counterparty,
		Direction:         provider.DirectionOutbound,
		Body:              body,
		Timestamp:         time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("record outbound: %w", err)
	}
	return nil
}
