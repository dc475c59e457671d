package telegram

import "context"

// Bot abstracts the chat delivery channel so services and handlers can be
// tested without the real API.
type Bot interface {
	// Start starts receiving updates, blocking until ctx is cancelled
	Start(ctx context.Context) error

	// Stop stops receiving updates
	Stop()

	// SetHandler sets the inbound update handler
	SetHandler(handler func(Update))

	// SendMessage sends a plain text message (blocking)
	SendMessage(chatID int64, text string) error

	// SendMessageWithOptions sends a message with custom options
	SendMessageWithOptions(chatID int64, text string, opts MessageOptions) error
}

// MessageOptions defines options for outbound messages
type MessageOptions struct {
	// ParseMode (HTML, Markdown)
	ParseMode string

	// DisableWebPagePreview disables link previews
	DisableWebPagePreview bool

	// DisableNotification sends the message silently
	DisableNotification bool
}

// Update is the abstracted inbound update
type Update struct {
	UpdateID int
	Message  *Message
}

// Message is an abstracted inbound chat message
type Message struct {
	MessageID int
	ChatID    int64
	UserID    int64
	UserName  string
	Text      string

	// Command fields, populated when the message is a /command
	IsCommand   bool
	Command     string
	CommandArgs string
}
