package wppconnect

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixflowhq/fixflow/internal/provider"
)

func payload(body string, headers map[string]string) provider.WebhookPayload {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return provider.WebhookPayload{Header: h, Body: []byte(body)}
}

func TestParse_InboundMessage(t *testing.T) {
	t.Parallel()

	adapter := NewAdapter(nil, nil)
	body := `{
		"event": "onmessage",
		"session": "pool-3",
		"id": "false_5511999999999@c.us_ABC123",
		"from": "5511999999999@c.us",
		"to": "5511888888888@c.us",
		"fromMe": false,
		"body": "my screen is cracked",
		"type": "chat",
		"timestamp": 1761000000
	}`

	msg, err := adapter.Parse(payload(body, nil), "tenant-1")
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.Equal(t, Type, msg.Provider)
	assert.Equal(t, "tenant-1", msg.TenantID)
	assert.Equal(t, "false_5511999999999@c.us_ABC123", msg.ExternalMessageID)
	assert.Equal(t, "+5511999999999", msg.Counterparty)
	assert.Equal(t, provider.DirectionInbound, msg.Direction)
	assert.Equal(t, "my screen is cracked", msg.Body)
	assert.Equal(t, "pool-3", msg.SessionID)
	assert.Equal(t, int64(1761000000), msg.Timestamp.Unix())
}

func TestParse_MediaMessage(t *testing.T) {
	t.Parallel()

	adapter := NewAdapter(nil, nil)
	body := `{
		"event": "onmessage",
		"id": "m-1",
		"from": "5511999999999@c.us",
		"isMedia": true,
		"mediaUrl": "https://wpp.example.com/media/m-1.jpg"
	}`

	msg, err := adapter.Parse(payload(body, nil), "tenant-1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "https://wpp.example.com/media/m-1.jpg", msg.MediaURL)
}

func TestParse_OwnEchoIsDropped(t *testing.T) {
	t.Parallel()

	adapter := NewAdapter(nil, nil)
	body := `{
		"event": "onmessage",
		"id": "m-2",
		"from": "5511888888888@c.us",
		"fromMe": true,
		"body": "our reply echoed back"
	}`

	msg, err := adapter.Parse(payload(body, nil), "tenant-1")
	require.NoError(t, err)
	assert.Nil(t, msg, "fromMe events must be acknowledged, not ingested")
}

func TestParse_NonMessageEvents(t *testing.T) {
	t.Parallel()

	adapter := NewAdapter(nil, nil)
	for _, event := range []string{"onack", "onpresencechanged", "qrcode", "status-find"} {
		msg, err := adapter.Parse(payload(`{"event":"`+event+`","id":"x","from":"1@c.us"}`, nil), "tenant-1")
		require.NoError(t, err, event)
		assert.Nil(t, msg, event)
	}
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	adapter := NewAdapter(nil, nil)

	_, err := adapter.Parse(payload(`not json`, nil), "tenant-1")
	assert.Error(t, err)

	_, err = adapter.Parse(payload(`{"event":"onmessage"}`, nil), "tenant-1")
	assert.Error(t, err, "missing id and from")
}

func TestVerify(t *testing.T) {
	t.Parallel()

	adapter := NewAdapter(nil, nil)

	assert.True(t, adapter.Verify(payload(`{}`, map[string]string{APIKeyHeader: "s3cret"}), "s3cret"))
	assert.False(t, adapter.Verify(payload(`{}`, map[string]string{APIKeyHeader: "wrong"}), "s3cret"))
	assert.False(t, adapter.Verify(payload(`{}`, nil), "s3cret"), "missing header is a rejection")
}

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "+5511999999999", normalizeAddress("5511999999999@c.us"))
	assert.Equal(t, "+5511999999999", normalizeAddress("+5511999999999"))
	assert.Equal(t, "", normalizeAddress(""))
}
