// Package twilio adapts Twilio messaging webhooks (WhatsApp and SMS).
// Payloads arrive form-encoded; authenticity is an HMAC signature over the
// delivery URL plus the sorted form parameters.
package twilio

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/fixflowhq/fixflow/internal/provider"
)

// Type is the registered provider name.
const Type = provider.Provider("twilio")

// SignatureHeader carries the request signature on webhook deliveries.
const SignatureHeader = "X-Twilio-Signature"

// Adapter implements parsing and verification for Twilio webhooks.
type Adapter struct {
	logger *slog.Logger
}

// NewAdapter creates the adapter.
func NewAdapter(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{logger: log.With(slog.String("provider", Type.String()))}
}

func (a *Adapter) Name() provider.Provider { return Type }

// Parse normalizes an inbound message delivery. Status callbacks (delivery
// receipts carry MessageStatus or SmsStatus other than "received") return
// (nil, nil).
func (a *Adapter) Parse(payload provider.WebhookPayload, tenantID string) (*provider.Message, error) {
	values, err := url.ParseQuery(string(payload.Body))
	if err != nil {
		return nil, fmt.Errorf("decode twilio form payload: %w", err)
	}

	if status := strings.TrimSpace(values.Get("MessageStatus")); status != "" {
		return nil, nil
	}
	if status := strings.ToLower(strings.TrimSpace(values.Get("SmsStatus"))); status != "" && status != "received" {
		return nil, nil
	}

	sid := strings.TrimSpace(values.Get("MessageSid"))
	from := normalizeAddress(values.Get("From"))
	if sid == "" || from == "" {
		return nil, fmt.Errorf("twilio payload missing MessageSid or From")
	}

	raw, err := json.Marshal(flatten(values))
	if err != nil {
		return nil, fmt.Errorf("retain twilio payload: %w", err)
	}

	msg := &provider.Message{
		TenantID:          tenantID,
		Provider:          Type,
		ExternalMessageID: sid,
		Counterparty:      from,
		Direction:         provider.DirectionInbound,
		Body:              values.Get("Body"),
		MediaURL:          strings.TrimSpace(values.Get("MediaUrl0")),
		Timestamp:         time.Now().UTC(),
		RawPayload:        raw,
	}
	return msg, nil
}

// Verify recomputes the signature from the delivery URL and the sorted form
// parameters, keyed with the tenant's auth token.
func (a *Adapter) Verify(payload provider.WebhookPayload, secret string) bool {
	got := payload.HeaderValue(SignatureHeader)
	if got == "" {
		return false
	}
	values, err := url.ParseQuery(string(payload.Body))
	if err != nil {
		return false
	}
	want := computeSignature(secret, payload.URL, values)
	return hmac.Equal([]byte(got), []byte(want))
}

func computeSignature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := fullURL
	for _, k := range keys {
		data += k + params.Get(k)
	}

	mac := hmac.New(sha256.New, []byte(authToken))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// normalizeAddress strips the channel prefix from a Twilio address
// ("whatsapp:+15551230000" -> "+15551230000").
func normalizeAddress(raw string) string {
	addr := strings.TrimSpace(raw)
	if i := strings.IndexByte(addr, ':'); i >= 0 {
		addr = addr[i+1:]
	}
	return addr
}

func flatten(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k := range values {
		out[k] = values.Get(k)
	}
	return out
}
