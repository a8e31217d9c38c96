package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parseOnlyAdapter struct {
	name Provider
}

func (a *parseOnlyAdapter) Name() Provider { return a.name }

func (a *parseOnlyAdapter) Parse(WebhookPayload, string) (*Message, error) {
	return nil, nil
}

type fullAdapter struct {
	parseOnlyAdapter
}

func (a *fullAdapter) Verify(WebhookPayload, string) bool { return true }

func (a *fullAdapter) Send(context.Context, SendConfig, string, string) (string, error) {
	return "", nil
}

func (a *fullAdapter) RegisterWebhook(context.Context, SendConfig, string, string) error {
	return nil
}

func (a *fullAdapter) Status(context.Context, SendConfig) (string, error) {
	return "connected", nil
}

func TestRegister(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&parseOnlyAdapter{name: "twilio"}))

	assert.Error(t, r.Register(&parseOnlyAdapter{name: "twilio"}), "duplicate registration")
	assert.Error(t, r.Register(&parseOnlyAdapter{name: ""}))
	assert.Error(t, r.Register(nil))
}

func TestGet_NormalizesName(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.MustRegister(&parseOnlyAdapter{name: "twilio"})

	_, ok := r.Get("Twilio")
	assert.True(t, ok)
	_, ok = r.Get(" TWILIO ")
	assert.True(t, ok)
	_, ok = r.Get("telegram")
	assert.False(t, ok)
}

func TestParseProvider(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.MustRegister(&parseOnlyAdapter{name: "wppconnect"})

	p, err := r.ParseProvider("WPPConnect")
	require.NoError(t, err)
	assert.Equal(t, Provider("wppconnect"), p)

	_, err = r.ParseProvider("fax")
	assert.Error(t, err)
	_, err = r.ParseProvider("")
	assert.Error(t, err)
}

func TestCapabilityDiscovery(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.MustRegister(&fullAdapter{parseOnlyAdapter{name: "wppconnect"}})
	r.MustRegister(&parseOnlyAdapter{name: "twilio"})

	_, ok := r.GetVerifier("wppconnect")
	assert.True(t, ok)
	_, ok = r.GetSender("wppconnect")
	assert.True(t, ok)
	_, ok = r.GetWebhookRegistrar("wppconnect")
	assert.True(t, ok)
	_, ok = r.GetStatusChecker("wppconnect")
	assert.True(t, ok)

	// A parse-only adapter exposes none of the optional capabilities.
	_, ok = r.GetVerifier("twilio")
	assert.False(t, ok)
	_, ok = r.GetSender("twilio")
	assert.False(t, ok)

	// Unknown providers expose nothing.
	_, ok = r.GetSender("fax")
	assert.False(t, ok)
}

func TestNames(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.MustRegister(&parseOnlyAdapter{name: "twilio"})
	r.MustRegister(&parseOnlyAdapter{name: "telegram"})

	assert.ElementsMatch(t, []Provider{"twilio", "telegram"}, r.Names())
}
