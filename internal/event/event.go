package event

import "github.com/vovakirdan/wirechat-sync/internal/core"

// Type is the wire tag of an inbound event.
type Type string

const (
	TypePong           Type = "pong"
	TypeSubscribed     Type = "subscribed"
	TypeSubscribedAll  Type = "subscribed_all"
	TypeUnsubscribed   Type = "unsubscribed"
	TypeNewMessage     Type = "new_message"
	TypeTyping         Type = "typing"
	TypePresence       Type = "presence"
	TypeMessagesRead   Type = "messages_read"
	TypeMessageEdited  Type = "message_edited"
	TypeMessageDeleted Type = "message_deleted"
	TypeReaction       Type = "reaction"
	TypeChatCreated    Type = "chat_created"
)

// Event is the closed set of inbound events. Only types in this package implement it.
type Event interface {
	Type() Type
	sealed()
}

// ChatEvent is implemented by events that concern a single chat.
type ChatEvent interface {
	Event
	Chat() int64
}

// Status is a presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

type Pong struct{}

type Subscribed struct {
	ChatID int64 `json:"chat_id"`
}

type SubscribedAll struct {
	Count int `json:"count"`
}

type Unsubscribed struct {
	ChatID int64 `json:"chat_id"`
}

// NewMessage carries a message delivered live.
type NewMessage struct {
	ChatID  int64        `json:"chat_id"`
	Message core.Message `json:"message"`
}

type Typing struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

type Presence struct {
	UserID int64  `json:"user_id"`
	Status Status `json:"status"`
}

// MessagesRead reports that UserID has read ChatID.
type MessagesRead struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

type MessageEdited struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Body      string `json:"body"`
}

type MessageDeleted struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// Reaction toggles Emoji for UserID on a message.
type Reaction struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
	UserID    int64  `json:"user_id"`
}

type ChatCreated struct {
	ChatID int64 `json:"chat_id"`
}

func (Pong) Type() Type           { return TypePong }
func (Subscribed) Type() Type     { return TypeSubscribed }
func (SubscribedAll) Type() Type  { return TypeSubscribedAll }
func (Unsubscribed) Type() Type   { return TypeUnsubscribed }
func (NewMessage) Type() Type     { return TypeNewMessage }
func (Typing) Type() Type         { return TypeTyping }
func (Presence) Type() Type       { return TypePresence }
func (MessagesRead) Type() Type   { return TypeMessagesRead }
func (MessageEdited) Type() Type  { return TypeMessageEdited }
func (MessageDeleted) Type() Type { return TypeMessageDeleted }
func (Reaction) Type() Type       { return TypeReaction }
func (ChatCreated) Type() Type    { return TypeChatCreated }

func (Pong) sealed()           {}
func (Subscribed) sealed()     {}
func (SubscribedAll) sealed()  {}
func (Unsubscribed) sealed()   {}
func (NewMessage) sealed()     {}
func (Typing) sealed()         {}
func (Presence) sealed()       {}
func (MessagesRead) sealed()   {}
func (MessageEdited) sealed()  {}
func (MessageDeleted) sealed() {}
func (Reaction) sealed()       {}
func (ChatCreated) sealed()    {}

func (e Subscribed) Chat() int64     { return e.ChatID }
func (e Unsubscribed) Chat() int64   { return e.ChatID }
func (e NewMessage) Chat() int64     { return e.ChatID }
func (e Typing) Chat() int64         { return e.ChatID }
func (e MessagesRead) Chat() int64   { return e.ChatID }
func (e MessageEdited) Chat() int64  { return e.ChatID }
func (e MessageDeleted) Chat() int64 { return e.ChatID }
func (e Reaction) Chat() int64       { return e.ChatID }
func (e ChatCreated) Chat() int64    { return e.ChatID }
