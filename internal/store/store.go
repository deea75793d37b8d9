package store

import (
	"context"
	"time"

	"github.com/vovakirdan/wirechat-sync/internal/core"
)

// ChatRecord is the cached form of a chat: metadata and unread counter only.
// Message bodies never reach local storage.
type ChatRecord struct {
	ID              int64
	Name            string
	Kind            core.ChatKind
	Members         []int64
	LastMessageDate time.Time
	UnreadCount     int
	UpdatedAt       time.Time
}

// FromChat converts an engine chat into its cached record.
func FromChat(c core.Chat) ChatRecord {
	rec := ChatRecord{
		ID:              c.ID,
		Name:            c.Name,
		Kind:            c.Kind,
		Members:         append([]int64(nil), c.Members...),
		LastMessageDate: c.LastMessageDate,
		UnreadCount:     c.UnreadCount,
	}
	return rec
}

// Chat converts a cached record back into a chat. The last message body is not restored.
func (r ChatRecord) Chat() core.Chat {
	return core.Chat{
		ID:              r.ID,
		Name:            r.Name,
		Kind:            r.Kind,
		Members:         append([]int64(nil), r.Members...),
		LastMessageDate: r.LastMessageDate,
		UnreadCount:     r.UnreadCount,
	}
}

// ChatStore persists the chat-list snapshot between runs.
type ChatStore interface {
	// SaveChats replaces the snapshot with chats.
	SaveChats(ctx context.Context, chats []ChatRecord) error

	// LoadChats returns the snapshot ordered by most recent activity first.
	LoadChats(ctx context.Context) ([]ChatRecord, error)

	// DeleteChat removes one chat from the snapshot.
	DeleteChat(ctx context.Context, chatID int64) error
}

// Store aggregates all storage interfaces.
type Store interface {
	ChatStore

	// Close closes the underlying database connection.
	Close() error
}
