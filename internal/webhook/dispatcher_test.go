package webhook

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixflowhq/fixflow/internal/conversation"
	"github.com/fixflowhq/fixflow/internal/provider"
	"github.com/fixflowhq/fixflow/internal/tenant"
)

const (
	tenantA = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	tenantB = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
)

type fakeTenants struct {
	tenants map[string]tenant.Tenant
	configs map[string]tenant.MessagingConfig
}

func (f *fakeTenants) Get(_ context.Context, id string) (tenant.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	return t, nil
}

func (f *fakeTenants) GetMessagingConfig(_ context.Context, id string) (tenant.MessagingConfig, error) {
	cfg, ok := f.configs[id]
	if !ok {
		return tenant.MessagingConfig{}, tenant.ErrNotConfigured
	}
	return cfg, nil
}

type fakeSessions struct {
	owners map[string]string
}

func (f *fakeSessions) ResolveTenant(_ context.Context, sessionID string) (string, error) {
	owner, ok := f.owners[sessionID]
	if !ok {
		return "", tenant.ErrSessionNotFound
	}
	return owner, nil
}

type fakeEngine struct {
	result conversation.AppendResult
	err    error

	appended []provider.Message
}

func (f *fakeEngine) HandleInbound(_ context.Context, msg provider.Message) (conversation.AppendResult, error) {
	if f.err != nil {
		return conversation.AppendResult{}, f.err
	}
	f.appended = append(f.appended, msg)
	return f.result, nil
}

// fakeAdapter parses a fixed message and verifies against a fixed secret.
type fakeAdapter struct {
	name     provider.Provider
	message  *provider.Message
	parseErr error
	secret   string
}

func (a *fakeAdapter) Name() provider.Provider { return a.name }

func (a *fakeAdapter) Parse(_ provider.WebhookPayload, tenantID string) (*provider.Message, error) {
	if a.parseErr != nil {
		return nil, a.parseErr
	}
	if a.message == nil {
		return nil, nil
	}
	msg := *a.message
	msg.TenantID = tenantID
	return &msg, nil
}

func (a *fakeAdapter) Verify(payload provider.WebhookPayload, secret string) bool {
	return payload.HeaderValue("X-Test-Signature") == secret
}

type fixture struct {
	dispatcher *Dispatcher
	tenants    *fakeTenants
	engine     *fakeEngine
}

func newFixture(t *testing.T, adapter provider.Adapter, secret string) *fixture {
	t.Helper()

	tenants := &fakeTenants{
		tenants: map[string]tenant.Tenant{
			tenantA: {ID: tenantA},
			tenantB: {ID: tenantB},
		},
		configs: map[string]tenant.MessagingConfig{
			tenantA: {
				TenantID:            tenantA,
				Provider:            adapter.Name(),
				SessionID:           "session-a",
				WebhookSharedSecret: secret,
			},
		},
	}
	sessions := &fakeSessions{owners: map[string]string{
		"session-a": tenantA,
		"session-b": tenantB,
	}}
	engine := &fakeEngine{
		result: conversation.AppendResult{
			Conversation: conversation.Conversation{ID: "conv-1", TenantID: tenantA},
			Message:      conversation.Message{ID: "msg-1"},
			Created:      true,
		},
	}

	registry := provider.NewRegistry()
	registry.MustRegister(adapter)

	return &fixture{
		dispatcher: NewDispatcher(tenants, sessions, registry, engine, slog.Default()),
		tenants:    tenants,
		engine:     engine,
	}
}

func inboundMessage() *provider.Message {
	return &provider.Message{
		Provider:          "wppconnect",
		ExternalMessageID: "ext-1",
		Counterparty:      "+15551230000",
		Direction:         provider.DirectionInbound,
		Body:              "hello",
		Timestamp:         time.Now().UTC(),
		SessionID:         "session-a",
	}
}

func TestDispatch_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAdapter{name: "wppconnect", message: inboundMessage()}, "")
	res, err := f.dispatcher.Dispatch(context.Background(), tenantA, "wppconnect", provider.WebhookPayload{})
	require.NoError(t, err)
	assert.Equal(t, "conv-1", res.ConversationID)
	assert.Equal(t, "msg-1", res.MessageID)
	assert.False(t, res.NoOp)
	assert.False(t, res.Duplicate)
	require.Len(t, f.engine.appended, 1)
	assert.Equal(t, tenantA, f.engine.appended[0].TenantID)
}

func TestDispatch_TenantNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAdapter{name: "wppconnect", message: inboundMessage()}, "")
	_, err := f.dispatcher.Dispatch(context.Background(), "cccccccc-cccc-cccc-cccc-cccccccccccc", "", provider.WebhookPayload{})
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestDispatch_NotConfigured(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAdapter{name: "wppconnect", message: inboundMessage()}, "")
	_, err := f.dispatcher.Dispatch(context.Background(), tenantB, "", provider.WebhookPayload{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDispatch_UnsupportedProvider(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAdapter{name: "wppconnect", message: inboundMessage()}, "")
	f.tenants.configs[tenantA] = tenant.MessagingConfig{
		TenantID: tenantA,
		Provider: "smoke-signals",
	}
	_, err := f.dispatcher.Dispatch(context.Background(), tenantA, "", provider.WebhookPayload{})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestDispatch_RejectsBadSignature(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAdapter{name: "wppconnect", message: inboundMessage()}, "tenant-secret")

	payload := provider.WebhookPayload{Header: map[string][]string{
		"X-Test-Signature": {"wrong"},
	}}
	_, err := f.dispatcher.Dispatch(context.Background(), tenantA, "", payload)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Empty(t, f.engine.appended, "no side effects after rejected signature")
}

func TestDispatch_AcceptsGoodSignature(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAdapter{name: "wppconnect", message: inboundMessage()}, "tenant-secret")

	payload := provider.WebhookPayload{Header: map[string][]string{
		"X-Test-Signature": {"tenant-secret"},
	}}
	_, err := f.dispatcher.Dispatch(context.Background(), tenantA, "", payload)
	assert.NoError(t, err)
}

func TestDispatch_SkipsVerificationWithoutSecret(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAdapter{name: "wppconnect", message: inboundMessage()}, "")
	_, err := f.dispatcher.Dispatch(context.Background(), tenantA, "", provider.WebhookPayload{})
	assert.NoError(t, err)
}

func TestDispatch_NonMessageEventIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAdapter{name: "wppconnect", message: nil}, "")
	res, err := f.dispatcher.Dispatch(context.Background(), tenantA, "", provider.WebhookPayload{})
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Empty(t, f.engine.appended)
}

func TestDispatch_MalformedPayload(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAdapter{name: "wppconnect", parseErr: errors.New("bad json")}, "")
	_, err := f.dispatcher.Dispatch(context.Background(), tenantA, "", provider.WebhookPayload{})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDispatch_CrossTenantSessionRejected(t *testing.T) {
	t.Parallel()

	msg := inboundMessage()
	msg.SessionID = "session-b" // resolves to tenant B
	f := newFixture(t, &fakeAdapter{name: "wppconnect", message: msg}, "")

	_, err := f.dispatcher.Dispatch(context.Background(), tenantA, "", provider.WebhookPayload{})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Empty(t, f.engine.appended, "message must never reach the other tenant's conversation")
}

func TestDispatch_UnknownSessionRejected(t *testing.T) {
	t.Parallel()

	msg := inboundMessage()
	msg.SessionID = "session-nobody"
	f := newFixture(t, &fakeAdapter{name: "wppconnect", message: msg}, "")

	_, err := f.dispatcher.Dispatch(context.Background(), tenantA, "", provider.WebhookPayload{})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestDispatch_DuplicateAcknowledged(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAdapter{name: "wppconnect", message: inboundMessage()}, "")
	f.engine.result.Created = false

	res, err := f.dispatcher.Dispatch(context.Background(), tenantA, "", provider.WebhookPayload{})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, "conv-1", res.ConversationID)
}

func TestDispatch_EngineFailureIsDownstream(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAdapter{name: "wppconnect", message: inboundMessage()}, "")
	f.engine.err = errors.New("pool exhausted")

	_, err := f.dispatcher.Dispatch(context.Background(), tenantA, "", provider.WebhookPayload{})
	assert.ErrorIs(t, err, ErrDownstream)
}
