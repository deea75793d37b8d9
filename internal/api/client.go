package api

import (
	"context"
	"fmt"

	"github.com/vovakirdan/wirechat-sync/internal/core"
)

// PageQuery selects one page of history, newest first.
type PageQuery struct {
	Limit int
	// BeforeID returns messages older than this id when non-zero.
	BeforeID int64
}

// ChatFilter narrows a chat list search. Zero fields do not filter.
type ChatFilter struct {
	IsInternal    *bool
	ChatType      core.ChatKind
	ConnectorType string
}

// Client is the record API the engine consumes for history and mutations.
type Client interface {
	// SearchMessages returns a page of chatID's history, most recent first.
	SearchMessages(ctx context.Context, chatID int64, q PageQuery) ([]core.Message, error)
	// SendMessage posts a message and returns it as persisted, with its server id.
	SendMessage(ctx context.Context, chatID int64, text string, attachments []int64) (*core.Message, error)
	EditMessage(ctx context.Context, chatID, messageID int64, body string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	PinMessage(ctx context.Context, chatID, messageID int64, pinned bool) error
	// ReactMessage toggles the caller's emoji reaction and returns the message's resulting reactions.
	ReactMessage(ctx context.Context, chatID, messageID int64, emoji string) ([]core.Reaction, error)
	SearchChats(ctx context.Context, filter ChatFilter) ([]core.Chat, error)
	GetChat(ctx context.Context, chatID int64) (*core.Chat, error)
}

// StatusError is a non-2xx reply from the API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Code)
	}
	return fmt.Sprintf("api: status %d: %s", e.Code, e.Message)
}

// ErrorResponse is the error body the API returns.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SendMessageRequest is the body of a send-message call.
type SendMessageRequest struct {
	Text        string  `json:"text"`
	Attachments []int64 `json:"attachments,omitempty"`
}

// EditMessageRequest is the body of an edit-message call.
type EditMessageRequest struct {
	Body string `json:"body"`
}

// PinRequest is the body of a pin call.
type PinRequest struct {
	Pinned bool `json:"pinned"`
}

// ReactRequest is the body of a reaction toggle.
type ReactRequest struct {
	Emoji string `json:"emoji"`
}

// ReactionsResponse carries the reactions of a message after a toggle.
type ReactionsResponse struct {
	Reactions []core.Reaction `json:"reactions"`
}

// MessagesResponse carries a page of messages.
type MessagesResponse struct {
	Messages []core.Message `json:"messages"`
}

// ChatsResponse carries a list of chats.
type ChatsResponse struct {
	Chats []core.Chat `json:"chats"`
}
