// Package transport defines the platform-neutral boundary between the bot
// core and a chat backend.
package transport

import "context"

// Message is one inbound chat message.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool

	// MentionID is the user id of the first text-mentioned user in the
	// message (0 if none). Used for "remind @someone" targeting.
	MentionID int64
}

type Update struct {
	Message *Message
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the chat-backend boundary. Delivery failures are reported as
// errors, never panics; the core treats them as results.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)

	// IsChatAdmin reports whether userID is an administrator (or creator)
	// of the given group chat.
	IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}
