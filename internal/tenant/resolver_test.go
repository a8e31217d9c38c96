package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessionSource struct {
	owners  map[string]string
	configs map[string]MessagingConfig
}

func (f *fakeSessionSource) TenantBySession(_ context.Context, sessionID string) (string, error) {
	owner, ok := f.owners[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	return owner, nil
}

func (f *fakeSessionSource) GetMessagingConfig(_ context.Context, tenantID string) (MessagingConfig, error) {
	cfg, ok := f.configs[tenantID]
	if !ok {
		return MessagingConfig{}, ErrNotConfigured
	}
	return cfg, nil
}

func TestResolveTenant(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(&fakeSessionSource{
		owners: map[string]string{"pool-1": "t-1"},
	})

	owner, err := resolver.ResolveTenant(context.Background(), "pool-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", owner)

	_, err = resolver.ResolveTenant(context.Background(), "pool-9")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionFor(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(&fakeSessionSource{
		configs: map[string]MessagingConfig{
			"t-1": {TenantID: "t-1", Provider: "wppconnect", SessionID: "pool-1"},
			"t-2": {TenantID: "t-2", Provider: "twilio"},
		},
	})

	session, err := resolver.SessionFor(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "pool-1", session)

	// Configured provider without session routing.
	_, err = resolver.SessionFor(context.Background(), "t-2")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = resolver.SessionFor(context.Background(), "t-9")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
