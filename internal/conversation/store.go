package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fixflowhq/fixflow/internal/db"
	"github.com/fixflowhq/fixflow/internal/provider"
)

// querier is the slice of pgxpool.Pool the store uses, narrowed so tests can
// substitute a fake connection.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversations and messages. The uniqueness constraint on
// (tenant_id, provider, external_message_id) — not an in-process lock — is
// what gives concurrent webhook retries exactly-once effect.
type Store struct {
	pool querier
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const conversationColumns = `id::text, tenant_id::text, counterparty_address, status,
	last_message_at, message_count, is_bot_active, created_at, updated_at`

// AppendInbound atomically ensures the conversation exists and appends the
// inbound message. Duplicate deliveries return the previously stored message
// with Created=false and leave the conversation untouched.
func (s *Store) AppendInbound(ctx context.Context, in provider.Message) (AppendResult, error) {
	tenantID, err := db.ParseUUID(in.TenantID)
	if err != nil {
		return AppendResult{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	counterparty := strings.TrimSpace(in.Counterparty)
	if counterparty == "" {
		return AppendResult{}, fmt.Errorf("counterparty address is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return AppendResult{}, err
	}
	defer tx.Rollback(ctx)

	// Replay check before anything else: a duplicate delivery must not write
	// a single row, not even a conversation updated_at bump.
	dup, lookupErr := s.findMessageTx(ctx, tx, in.TenantID, in.Provider, in.ExternalMessageID)
	if lookupErr == nil {
		dupConvID, convErr := db.ParseUUID(dup.ConversationID)
		if convErr != nil {
			return AppendResult{}, convErr
		}
		conv, convErr := scanConversation(tx.QueryRow(ctx, `
			SELECT `+conversationColumns+`
			FROM conversations
			WHERE id = $1
		`, dupConvID))
		if convErr != nil {
			return AppendResult{}, fmt.Errorf("load conversation: %w", convErr)
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return AppendResult{}, commitErr
		}
		return AppendResult{Conversation: conv, Message: dup, Created: false}, nil
	}
	if !errors.Is(lookupErr, pgx.ErrNoRows) {
		return AppendResult{}, lookupErr
	}

	// Ensure the conversation row exists. DO NOTHING keeps an existing row
	// untouched; the no-row case falls through to a plain select.
	conv, err := scanConversation(tx.QueryRow(ctx, `
		INSERT INTO conversations (tenant_id, counterparty_address, status, last_message_at, message_count)
		VALUES ($1, $2, 'open', $3, 0)
		ON CONFLICT (tenant_id, counterparty_address) DO NOTHING
		RETURNING `+conversationColumns, tenantID, counterparty, in.Timestamp.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		conv, err = scanConversation(tx.QueryRow(ctx, `
			SELECT `+conversationColumns+`
			FROM conversations
			WHERE tenant_id = $1 AND counterparty_address = $2
		`, tenantID, counterparty))
	}
	if err != nil {
		return AppendResult{}, fmt.Errorf("ensure conversation: %w", err)
	}

	convID, err := db.ParseUUID(conv.ID)
	if err != nil {
		return AppendResult{}, err
	}

	raw := in.RawPayload
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var mediaURL *string
	if trimmed := strings.TrimSpace(in.MediaURL); trimmed != "" {
		mediaURL = &trimmed
	}

	var messageID string
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (tenant_id, conversation_id, provider, external_message_id,
		                      counterparty_address, direction, body, media_url, sent_at, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, provider, external_message_id) DO NOTHING
		RETURNING id::text
	`, tenantID, convID, in.Provider.String(), in.ExternalMessageID,
		counterparty, string(in.Direction), in.Body, mediaURL, in.Timestamp.UTC(), raw,
	).Scan(&messageID)

	if errors.Is(err, pgx.ErrNoRows) {
		// Lost a race with a concurrent delivery of the same message: fetch
		// what it stored. Nothing was written on this path either.
		msg, lookupErr := s.findMessageTx(ctx, tx, in.TenantID, in.Provider, in.ExternalMessageID)
		if lookupErr != nil {
			return AppendResult{}, lookupErr
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return AppendResult{}, commitErr
		}
		return AppendResult{Conversation: conv, Message: msg, Created: false}, nil
	}
	if err != nil {
		return AppendResult{}, fmt.Errorf("append message: %w", err)
	}

	// First delivery: advance the conversation. A closed conversation reopens
	// on any inbound message; archived stays archived.
	err = tx.QueryRow(ctx, `
		UPDATE conversations
		SET message_count = message_count + 1,
		    last_message_at = GREATEST(last_message_at, $2),
		    status = CASE WHEN status = 'closed' THEN 'open' ELSE status END,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+conversationColumns, convID, in.Timestamp.UTC(),
	).Scan(&conv.ID, &conv.TenantID, &conv.Counterparty, &conv.Status,
		&conv.LastMessageAt, &conv.MessageCount, &conv.IsBotActive, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return AppendResult{}, fmt.Errorf("advance conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return AppendResult{}, err
	}

	msg := Message{
		ID:                messageID,
		TenantID:          in.TenantID,
		ConversationID:    conv.ID,
		Provider:          in.Provider,
		ExternalMessageID: in.ExternalMessageID,
		Counterparty:      counterparty,
		Direction:         in.Direction,
		Body:              in.Body,
		MediaURL:          strings.TrimSpace(in.MediaURL),
		SentAt:            in.Timestamp.UTC(),
		RawPayload:        raw,
	}
	return AppendResult{Conversation: conv, Message: msg, Created: true}, nil
}

// RecordOutbound stores a sent reply against the conversation and bumps its
// counters. Conversation status is untouched.
func (s *Store) RecordOutbound(ctx context.Context, conversationID string, out provider.Message) (Message, error) {
	tenantID, err := db.ParseUUID(out.TenantID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	convID, err := db.ParseUUID(conversationID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid conversation id: %w", err)
	}
	raw := out.RawPayload
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Message{}, err
	}
	defer tx.Rollback(ctx)

	var messageID string
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (tenant_id, conversation_id, provider, external_message_id,
		                      counterparty_address, direction, body, sent_at, raw_payload)
		VALUES ($1, $2, $3, $4, $5, 'outbound', $6, $7, $8)
		ON CONFLICT (tenant_id, provider, external_message_id) DO NOTHING
		RETURNING id::text
	`, tenantID, convID, out.Provider.String(), out.ExternalMessageID,
		strings.TrimSpace(out.Counterparty), out.Body, out.Timestamp.UTC(), raw,
	).Scan(&messageID)
	if errors.Is(err, pgx.ErrNoRows) {
		msg, lookupErr := s.findMessageTx(ctx, tx, out.TenantID, out.Provider, out.ExternalMessageID)
		if lookupErr != nil {
			return Message{}, lookupErr
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return Message{}, commitErr
		}
		return msg, nil
	}
	if err != nil {
		return Message{}, fmt.Errorf("record outbound: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET message_count = message_count + 1,
		    last_message_at = GREATEST(last_message_at, $2),
		    updated_at = now()
		WHERE id = $1
	`, convID, out.Timestamp.UTC())
	if err != nil {
		return Message{}, fmt.Errorf("advance conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}

	return Message{
		ID:                messageID,
		TenantID:          out.TenantID,
		ConversationID:    conversationID,
		Provider:          out.Provider,
		ExternalMessageID: out.ExternalMessageID,
		Counterparty:      strings.TrimSpace(out.Counterparty),
		Direction:         provider.DirectionOutbound,
		Body:              out.Body,
		SentAt:            out.Timestamp.UTC(),
		RawPayload:        raw,
	}, nil
}

// Get returns a tenant's conversation by id.
func (s *Store) Get(ctx context.Context, tenantID, conversationID string) (Conversation, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	cid, err := db.ParseUUID(conversationID)
	if err != nil {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}
	var conv Conversation
	err = s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE id = $1 AND tenant_id = $2
	`, cid, tid).Scan(&conv.ID, &conv.TenantID, &conv.Counterparty, &conv.Status,
		&conv.LastMessageAt, &conv.MessageCount, &conv.IsBotActive, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

// ListByTenant returns the tenant's conversations, most recently active first.
func (s *Store) ListByTenant(ctx context.Context, tenantID string, limit int) ([]Conversation, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE tenant_id = $1
		ORDER BY last_message_at DESC
		LIMIT $2
	`, tid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.TenantID, &conv.Counterparty, &conv.Status,
			&conv.LastMessageAt, &conv.MessageCount, &conv.IsBotActive, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, conv)
	}
	return items, rows.Err()
}

// ListMessages returns the latest messages of a conversation, oldest first.
func (s *Store) ListMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]Message, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	cid, err := db.ParseUUID(conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, tenant_id::text, conversation_id::text, provider, external_message_id,
		       counterparty_address, direction, body, media_url, sent_at, created_at
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = $1 AND tenant_id = $2
			ORDER BY sent_at DESC
			LIMIT $3
		) latest
		ORDER BY sent_at ASC
	`, cid, tid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, msg)
	}
	return items, rows.Err()
}

// SetStatus transitions a conversation to the given status.
func (s *Store) SetStatus(ctx context.Context, tenantID, conversationID, status string) (Conversation, error) {
	switch status {
	case StatusOpen, StatusClosed, StatusArchived:
	default:
		return Conversation{}, fmt.Errorf("invalid status: %s", status)
	}
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	cid, err := db.ParseUUID(conversationID)
	if err != nil {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}
	var conv Conversation
	err = s.pool.QueryRow(ctx, `
		UPDATE conversations
		SET status = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+conversationColumns, cid, tid, status,
	).Scan(&conv.ID, &conv.TenantID, &conv.Counterparty, &conv.Status,
		&conv.LastMessageAt, &conv.MessageCount, &conv.IsBotActive, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

// SetBotActive toggles automated replies for a conversation.
func (s *Store) SetBotActive(ctx context.Context, tenantID, conversationID string, active bool) (Conversation, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	cid, err := db.ParseUUID(conversationID)
	if err != nil {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}
	var conv Conversation
	err = s.pool.QueryRow(ctx, `
		UPDATE conversations
		SET is_bot_active = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+conversationColumns, cid, tid, active,
	).Scan(&conv.ID, &conv.TenantID, &conv.Counterparty, &conv.Status,
		&conv.LastMessageAt, &conv.MessageCount, &conv.IsBotActive, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

func (s *Store) findMessageTx(ctx context.Context, tx pgx.Tx, tenantID string, p provider.Provider, externalID string) (Message, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Message{}, err
	}
	row := tx.QueryRow(ctx, `
		SELECT id::text, tenant_id::text, conversation_id::text, provider, external_message_id,
		       counterparty_address, direction, body, media_url, sent_at, created_at
		FROM messages
		WHERE tenant_id = $1 AND provider = $2 AND external_message_id = $3
	`, tid, p.String(), externalID)
	return scanMessage(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (Conversation, error) {
	var conv Conversation
	err := row.Scan(&conv.ID, &conv.TenantID, &conv.Counterparty, &conv.Status,
		&conv.LastMessageAt, &conv.MessageCount, &conv.IsBotActive, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		msg          Message
		providerName string
		direction    string
		mediaURL     *string
	)
	err := row.Scan(&msg.ID, &msg.TenantID, &msg.ConversationID, &providerName, &msg.ExternalMessageID,
		&msg.Counterparty, &direction, &msg.Body, &mediaURL, &msg.SentAt, &msg.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	msg.Provider = provider.Provider(providerName)
	msg.Direction = provider.Direction(direction)
	if mediaURL != nil {
		msg.MediaURL = *mediaURL
	}
	return msg, nil
}
