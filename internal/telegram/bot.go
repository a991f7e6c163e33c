package telegram

import (
	"context"
	"fmt"
	"net/http"

	"naira-wallet-bot-go/internal/engine"
	"naira-wallet-bot-go/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Submitter accepts engine events; *engine.Dispatcher satisfies it.
type Submitter interface {
	Submit(ev engine.Event) error
}

type Bot struct {
	api    *tgbotapi.BotAPI
	config models.TelegramConfig
}

func NewBot(config models.TelegramConfig) (*Bot, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	api, err := tgbotapi.NewBotAPI(config.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	zap.L().Info("Authorized on telegram", zap.String("username", api.Self.UserName))
	return &Bot{api: api, config: config}, nil
}

func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Deliver sends effects in order. It is the dispatcher's output.
func (b *Bot) Deliver(ctx context.Context, effects []engine.Effect) {
	for _, effect := range effects {
		if ctx.Err() != nil {
			zap.L().Warn("Dropping effects after shutdown", zap.Int("remaining", len(effects)))
			return
		}
		req, err := Render(effect)
		if err != nil {
			zap.L().Error("Cannot render effect", zap.Error(err))
			continue
		}
		// Request, not Send: callback answers and deletions return a bool.
		if _, err := b.api.Request(req); err != nil {
			zap.L().Warn("Telegram request failed",
				zap.String("effect", fmt.Sprintf("%T", effect)),
				zap.Error(err))
		}
	}
}

// Run long-polls for updates until ctx is cancelled. Any webhook left over
// from a previous deployment is removed first.
func (b *Bot) Run(ctx context.Context, sink Submitter) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to remove webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.config.PollTimeout
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	zap.L().Info("Polling for updates", zap.Int("timeout", u.Timeout))
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			submit(sink, update)
		}
	}
}

// RegisterWebhook points Telegram at config.WebhookURL.
func (b *Bot) RegisterWebhook() error {
	wh, err := tgbotapi.NewWebhook(b.config.WebhookURL)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	zap.L().Info("Webhook registered", zap.String("url", b.config.WebhookURL))
	return nil
}

// WebhookHandler accepts pushed updates. It always answers 200 once the
// update parses so Telegram does not redeliver.
func (b *Bot) WebhookHandler(sink Submitter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		update, err := b.api.HandleUpdate(r)
		if err != nil {
			zap.L().Warn("Bad webhook update", zap.Error(err))
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		submit(sink, *update)
		w.WriteHeader(http.StatusOK)
	})
}

func submit(sink Submitter, update tgbotapi.Update) {
	ev, ok := EventFromUpdate(update)
	if !ok {
		return
	}
	if err := sink.Submit(ev); err != nil {
		zap.L().Warn("Event not accepted", zap.Int("update_id", update.UpdateID), zap.Error(err))
	}
}
