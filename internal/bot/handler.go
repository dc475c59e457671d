package bot

import (
	"context"

	"oipulse/internal/domain/subscriber"
	"oipulse/pkg/errors"
	"oipulse/pkg/logger"
	"oipulse/pkg/telegram"
)

// Handler routes inbound Telegram updates to command handlers. Replies go
// through the async queue so a slow Telegram API never blocks update intake.
type Handler struct {
	subscribers subscriber.Repository
	replies     *telegram.AsyncMessageQueue
	commands    *CommandHandler
	log         *logger.Logger
}

// NewHandler creates the update router
func NewHandler(
	subscribers subscriber.Repository,
	replies *telegram.AsyncMessageQueue,
	commands *CommandHandler,
	log *logger.Logger,
) *Handler {
	return &Handler{
		subscribers: subscribers,
		replies:     replies,
		commands:    commands,
		log:         log.With("component", "bot_handler"),
	}
}

// HandleUpdate processes one inbound update. This is the entry point wired
// into the bot client.
func (h *Handler) HandleUpdate(update telegram.Update) {
	ctx := context.Background()

	if update.Message == nil {
		return
	}

	if err := h.handleMessage(ctx, update.Message); err != nil {
		h.log.Errorw("Failed to handle message",
			"message_id", update.Message.MessageID,
			"telegram_id", update.Message.UserID,
			"error", err,
		)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *telegram.Message) error {
	h.log.Debugw("Processing message",
		"telegram_id", msg.UserID,
		"username", msg.UserName,
		"is_command", msg.IsCommand,
	)

	if !msg.IsCommand {
		h.reply(msg.ChatID, "I only understand commands. Use /help to see what I can do.")
		return nil
	}

	sub, err := h.getOrCreateSubscriber(ctx, msg)
	if err != nil {
		h.reply(msg.ChatID, "❌ Failed to process your request. Please try again.")
		return errors.Wrap(err, "failed to get or create subscriber")
	}

	return h.commands.Handle(ctx, sub, msg)
}

// getOrCreateSubscriber looks up the subscriber for the sender, registering a
// new one with default settings on first contact.
func (h *Handler) getOrCreateSubscriber(ctx context.Context, msg *telegram.Message) (*subscriber.Subscriber, error) {
	sub, err := h.subscribers.GetByTelegramID(ctx, msg.UserID)
	if err == nil {
		sub.Settings.Normalize()
		return sub, nil
	}

	if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	h.log.Infow("Registering new subscriber",
		"telegram_id", msg.UserID,
		"username", msg.UserName,
	)

	sub = &subscriber.Subscriber{
		TelegramID: msg.UserID,
		ChatID:     msg.ChatID,
		Settings:   subscriber.DefaultSettings(),
	}
	if err := h.subscribers.Create(ctx, sub); err != nil {
		return nil, errors.Wrap(err, "failed to create subscriber")
	}
	return sub, nil
}

func (h *Handler) reply(chatID int64, text string) {
	err := h.replies.Enqueue(chatID, text, telegram.MessageOptions{ParseMode: "HTML"}, nil)
	if err != nil {
		h.log.Errorw("Failed to enqueue reply", "chat_id", chatID, "error", err)
	}
}
