package core

import "time"

// ChatKind distinguishes direct conversations from group chats and channels.
type ChatKind string

const (
	ChatKindDirect  ChatKind = "direct"
	ChatKindGroup   ChatKind = "group"
	ChatKindChannel ChatKind = "channel"
)

// Chat is the client-side view of a chat channel.
type Chat struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Kind            ChatKind  `json:"chat_type"`
	Members         []int64   `json:"members,omitempty"`
	LastMessage     string    `json:"last_message,omitempty"`
	LastMessageDate time.Time `json:"last_message_date,omitempty"`
	UnreadCount     int       `json:"unread_count"`
}

// Clone returns a copy that shares no slices with the receiver.
func (c *Chat) Clone() *Chat {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Members != nil {
		cp.Members = append([]int64(nil), c.Members...)
	}
	return &cp
}

// Touch records msg as the chat's latest message if it is not older than the current one.
func (c *Chat) Touch(msg *Message) {
	if msg == nil || msg.CreatedAt.Before(c.LastMessageDate) {
		return
	}
	c.LastMessage = msg.Body
	c.LastMessageDate = msg.CreatedAt
}
