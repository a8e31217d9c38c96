// Package autoreply exposes the external reply-generation capability the
// conversation engine consumes. Given a conversation's recent history and the
// new inbound message, it returns a reply or nothing; generation itself is
// out of scope.
package autoreply

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrNoReply indicates the generator chose not to answer. Not a failure.
var ErrNoReply = errors.New("no reply generated")

// HistoryMessage is one turn of conversation context.
type HistoryMessage struct {
	Direction string    `json:"direction"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}

// Request carries the context for one generation call.
type Request struct {
	TenantID       string           `json:"tenant_id"`
	ConversationID string           `json:"conversation_id"`
	Counterparty   string           `json:"counterparty"`
	History        []HistoryMessage `json:"history,omitempty"`
	Inbound        string           `json:"inbound"`
}

// Generator produces a reply for an inbound message, or ErrNoReply.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// HTTPGenerator calls a hosted reply-generation service.
type HTTPGenerator struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPGenerator creates a generator against baseURL with a bounded
// per-call timeout.
func NewHTTPGenerator(log *slog.Logger, baseURL, apiKey string, timeout time.Duration) *HTTPGenerator {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPGenerator{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  log.With(slog.String("component", "autoreply")),
	}
}

type generateResponse struct {
	Reply string `json:"reply"`
}

// Generate posts the conversation context and returns the generated reply.
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if g.baseURL == "" {
		return "", ErrNoReply
	}
	encoded, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/replies", bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("reply generation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return "", ErrNoReply
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("reply generation: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if strings.TrimSpace(decoded.Reply) == "" {
		return "", ErrNoReply
	}
	return decoded.Reply, nil
}
