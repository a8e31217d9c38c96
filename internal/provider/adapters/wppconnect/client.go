package wppconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fixflowhq/fixflow/internal/provider"
)

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type webhookUpdateRequest struct {
	WebhookURL    string            `json:"webhook_url"`
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`
}

// TenantHeader is the custom header attached to webhook registrations so the
// provider echoes the owning tenant back on every delivery.
const TenantHeader = "X-Fixflow-Tenant"

// Send delivers a text message through the session's send API and returns the
// provider-assigned message id.
func (a *Adapter) Send(ctx context.Context, cfg provider.SendConfig, to, body string) (string, error) {
	var resp sendResponse
	err := a.call(ctx, cfg, http.MethodPost, "send-message", sendRequest{
		Phone:   strings.TrimPrefix(to, "+"),
		Message: body,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Status queries the session connection state.
func (a *Adapter) Status(ctx context.Context, cfg provider.SendConfig) (string, error) {
	var resp statusResponse
	if err := a.call(ctx, cfg, http.MethodGet, "status-session", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// RegisterWebhook points the session's webhook at target, carrying the tenant
// id as a custom header.
func (a *Adapter) RegisterWebhook(ctx context.Context, cfg provider.SendConfig, target, tenantID string) error {
	return a.call(ctx, cfg, http.MethodPost, "update-webhook", webhookUpdateRequest{
		WebhookURL:    target,
		CustomHeaders: map[string]string{TenantHeader: tenantID},
	}, nil)
}

func (a *Adapter) call(ctx context.Context, cfg provider.SendConfig, method, action string, in, out any) error {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	session := strings.TrimSpace(cfg.SessionID)
	if base == "" || session == "" {
		return fmt.Errorf("wppconnect config missing base url or session")
	}
	url := fmt.Sprintf("%s/api/%s/%s", base, session, action)

	var reqBody io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", action, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	client := a.clients.Get(base + "|" + session)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("wppconnect %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		a.logger.Warn("wppconnect call failed",
			slog.String("action", action),
			slog.String("session", session),
			slog.Int("status", resp.StatusCode))
		return fmt.Errorf("wppconnect %s: status %d: %s", action, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	return nil
}
