package core

import (
	"sort"
	"time"
)

// MessageKind is the type of a chat message.
type MessageKind string

const (
	MessageKindComment      MessageKind = "comment"
	MessageKindNotification MessageKind = "notification"
	MessageKindSystem       MessageKind = "system"
	MessageKindEmail        MessageKind = "email"
	MessageKindVoice        MessageKind = "voice"
)

// AuthorType tells whether a message author is an internal user or an external contact.
type AuthorType string

const (
	AuthorUser    AuthorType = "user"
	AuthorContact AuthorType = "contact"
)

// Author is a typed reference to whoever wrote a message.
type Author struct {
	Type AuthorType `json:"type"`
	ID   int64      `json:"id"`
	Name string     `json:"name,omitempty"`
}

// IsUser reports whether the author is the internal user with the given id.
func (a Author) IsUser(userID int64) bool {
	return a.Type != AuthorContact && a.ID == userID
}

// Reaction is one emoji on a message and the users who reacted with it.
type Reaction struct {
	Emoji string  `json:"emoji"`
	Users []int64 `json:"users"`
}

// Message is the domain model for a chat message.
type Message struct {
	ID          int64       `json:"id"`
	ChatID      int64       `json:"chat_id"`
	Author      Author      `json:"author"`
	Body        string      `json:"body"`
	Kind        MessageKind `json:"message_type"`
	CreatedAt   time.Time   `json:"created_at"`
	IsEdited    bool        `json:"is_edited"`
	IsRead      bool        `json:"is_read"`
	Pinned      bool        `json:"pinned"`
	Reactions   []Reaction  `json:"reactions,omitempty"`
	Attachments []int64     `json:"attachments,omitempty"`
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Reactions != nil {
		cp.Reactions = make([]Reaction, len(m.Reactions))
		for i, r := range m.Reactions {
			cp.Reactions[i] = Reaction{Emoji: r.Emoji, Users: append([]int64(nil), r.Users...)}
		}
	}
	if m.Attachments != nil {
		cp.Attachments = append([]int64(nil), m.Attachments...)
	}
	return &cp
}

// Before orders messages by creation time, breaking ties by id.
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// ToggleReaction adds userID to the emoji's reactors, or removes it if already present.
// Emojis left with no reactors are dropped.
func (m *Message) ToggleReaction(emoji string, userID int64) {
	for i := range m.Reactions {
		r := &m.Reactions[i]
		if r.Emoji != emoji {
			continue
		}
		for j, u := range r.Users {
			if u == userID {
				r.Users = append(r.Users[:j], r.Users[j+1:]...)
				if len(r.Users) == 0 {
					m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
				}
				return
			}
		}
		r.Users = append(r.Users, userID)
		sort.Slice(r.Users, func(a, b int) bool { return r.Users[a] < r.Users[b] })
		return
	}
	m.Reactions = append(m.Reactions, Reaction{Emoji: emoji, Users: []int64{userID}})
}
