package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fixflowhq/fixflow/internal/provider"
)

// bot returns the cached Bot API client for the config, creating it on first
// use. cfg.APIKey is the bot token; cfg.BaseURL overrides the API origin for
// self-hosted Bot API servers.
func (a *Adapter) bot(cfg provider.SendConfig) (*tgbotapi.BotAPI, error) {
	token := strings.TrimSpace(cfg.APIKey)
	if token == "" {
		return nil, fmt.Errorf("telegram config missing bot token")
	}
	endpoint := tgbotapi.APIEndpoint
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		endpoint = base + "/bot%s/%s"
	}
	key := endpoint + "|" + token

	a.mu.RLock()
	bot, ok := a.bots[key]
	a.mu.RUnlock()
	if ok {
		return bot, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if bot, ok := a.bots[key]; ok {
		return bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	a.bots[key] = bot
	return bot, nil
}

// Send delivers a text message via the Bot API. The target is a chat id or
// an @channel username.
func (a *Adapter) Send(ctx context.Context, cfg provider.SendConfig, to, body string) (string, error) {
	bot, err := a.bot(cfg)
	if err != nil {
		return "", err
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return "", fmt.Errorf("telegram target is required")
	}

	var sent tgbotapi.Message
	if strings.HasPrefix(to, "@") {
		sent, err = bot.Send(tgbotapi.NewMessageToChannel(to, body))
	} else {
		chatID, parseErr := strconv.ParseInt(normalizeChatID(to), 10, 64)
		if parseErr != nil {
			return "", fmt.Errorf("telegram target must be @username or chat_id")
		}
		sent, err = bot.Send(tgbotapi.NewMessage(chatID, body))
	}
	if err != nil {
		return "", fmt.Errorf("telegram sendMessage: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// RegisterWebhook points the bot's webhook at target. The configured webhook
// secret becomes the secret token Telegram echoes back on every delivery.
// secret_token postdates the SDK's WebhookConfig, so the request goes through
// MakeRequest with raw params.
func (a *Adapter) RegisterWebhook(ctx context.Context, cfg provider.SendConfig, target, tenantID string) error {
	bot, err := a.bot(cfg)
	if err != nil {
		return err
	}
	params := tgbotapi.Params{}
	params.AddNonEmpty("url", target)
	params.AddNonEmpty("secret_token", strings.TrimSpace(cfg.WebhookSecret))
	if _, err := bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("telegram setWebhook: %w", err)
	}
	return nil
}

// Status reports webhook registration state via getWebhookInfo.
func (a *Adapter) Status(ctx context.Context, cfg provider.SendConfig) (string, error) {
	bot, err := a.bot(cfg)
	if err != nil {
		return "", err
	}
	info, err := bot.GetWebhookInfo()
	if err != nil {
		return "", fmt.Errorf("telegram getWebhookInfo: %w", err)
	}
	if strings.TrimSpace(info.URL) == "" {
		return "unregistered", nil
	}
	return "registered", nil
}
