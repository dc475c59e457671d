package tgbotapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"oipulse/pkg/errors"
	"oipulse/pkg/logger"
	"oipulse/pkg/telegram"
)

// Bot implements telegram.Bot on top of the Bot API
type Bot struct {
	api         *tgbotapi.BotAPI
	log         *logger.Logger
	mu          sync.RWMutex
	running     bool
	msgHandler  func(telegram.Update)
	rateLimiter *rate.Limiter
}

// Config contains Telegram bot configuration
type Config struct {
	Token          string
	Debug          bool
	Timeout        int // update timeout in seconds
	HTTPTimeout    time.Duration
	RateLimitBurst int
	RateLimitRate  int // messages per second
}

// NewBot creates a Telegram bot.
func NewBot(cfg Config, log *logger.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram bot token is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 30
	}
	if cfg.RateLimitRate == 0 {
		cfg.RateLimitRate = 20
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	api.Debug = cfg.Debug

	log.Infof("Authorized on account %s", api.Self.UserName)

	return &Bot{
		api:         api,
		log:         log.With("component", "telegram_bot"),
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRate), cfg.RateLimitBurst),
	}, nil
}

var _ telegram.Bot = (*Bot)(nil)

// Start begins polling for updates.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.log.Infow("Starting to poll for updates")

	for {
		select {
		case <-ctx.Done():
			b.Stop()
			return ctx.Err()

		case tgUpdate := <-updates:
			b.mu.RLock()
			handler := b.msgHandler
			b.mu.RUnlock()
			if handler != nil {
				go handler(convertUpdate(tgUpdate))
			}
		}
	}
}

// Stop stops receiving updates.
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.api.StopReceivingUpdates()
	b.running = false
	b.log.Infow("Bot stopped")
}

// SetHandler sets the inbound update handler.
func (b *Bot) SetHandler(handler func(telegram.Update)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgHandler = handler
}

// SendMessage sends a plain text message.
func (b *Bot) SendMessage(chatID int64, text string) error {
	return b.SendMessageWithOptions(chatID, text, telegram.MessageOptions{})
}

// SendMessageWithOptions sends a message with custom options.
func (b *Bot) SendMessageWithOptions(chatID int64, text string, opts telegram.MessageOptions) error {
	if err := b.rateLimiter.Wait(context.Background()); err != nil {
		return errors.Wrap(err, "rate limiter error")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if opts.ParseMode != "" {
		msg.ParseMode = opts.ParseMode
	}
	msg.DisableWebPagePreview = opts.DisableWebPagePreview
	msg.DisableNotification = opts.DisableNotification

	if _, err := b.api.Send(msg); err != nil {
		b.log.Errorw("Failed to send message", "chat_id", chatID, "error", err)
		return errors.Wrap(errors.ErrDeliveryFailed, err.Error())
	}

	return nil
}

func convertUpdate(u tgbotapi.Update) telegram.Update {
	out := telegram.Update{UpdateID: u.UpdateID}

	if u.Message != nil {
		msg := &telegram.Message{
			MessageID: u.Message.MessageID,
			ChatID:    u.Message.Chat.ID,
			Text:      u.Message.Text,
		}
		if u.Message.From != nil {
			msg.UserID = u.Message.From.ID
			msg.UserName = u.Message.From.UserName
		}
		if u.Message.IsCommand() {
			msg.IsCommand = true
			msg.Command = u.Message.Command()
			msg.CommandArgs = u.Message.CommandArguments()
		}
		out.Message = msg
	}

	return out
}
