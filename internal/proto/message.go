package proto

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vovakirdan/wirechat-sync/internal/event"
)

// Outbound frame types sent by the client.
const (
	OutboundTypePing         = "ping"
	OutboundTypeSubscribe    = "subscribe"
	OutboundTypeSubscribeAll = "subscribe_all"
	OutboundTypeUnsubscribe  = "unsubscribe"
	OutboundTypeTyping       = "typing"
	OutboundTypeRead         = "read"
)

var (
	// ErrUnknownType is returned for frames whose type tag this client does not know.
	ErrUnknownType = errors.New("unknown event type")
	// ErrMalformed is returned for frames that are not valid event JSON.
	ErrMalformed = errors.New("malformed event")
)

// Envelope is the common part of every inbound frame.
type Envelope struct {
	Type string `json:"type"`
}

// Frame is an outbound client frame.
type Frame struct {
	Type    string  `json:"type"`
	ChatID  int64   `json:"chat_id,omitempty"`
	ChatIDs []int64 `json:"chat_ids,omitempty"`
}

func Ping() Frame { return Frame{Type: OutboundTypePing} }

func Subscribe(chatID int64) Frame {
	return Frame{Type: OutboundTypeSubscribe, ChatID: chatID}
}

func SubscribeAll(chatIDs []int64) Frame {
	return Frame{Type: OutboundTypeSubscribeAll, ChatIDs: chatIDs}
}

func Unsubscribe(chatID int64) Frame {
	return Frame{Type: OutboundTypeUnsubscribe, ChatID: chatID}
}

func Typing(chatID int64) Frame {
	return Frame{Type: OutboundTypeTyping, ChatID: chatID}
}

func Read(chatID int64) Frame {
	return Frame{Type: OutboundTypeRead, ChatID: chatID}
}

// PeekType returns the type tag of a raw frame without decoding the payload.
func PeekType(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env.Type, nil
}

// Decode turns a raw inbound frame into a typed event.
func Decode(data []byte) (event.Event, error) {
	typ, err := PeekType(data)
	if err != nil {
		return nil, err
	}

	switch event.Type(typ) {
	case event.TypePong:
		return event.Pong{}, nil
	case event.TypeSubscribed:
		return decode[event.Subscribed](data)
	case event.TypeSubscribedAll:
		return decode[event.SubscribedAll](data)
	case event.TypeUnsubscribed:
		return decode[event.Unsubscribed](data)
	case event.TypeNewMessage:
		ev, err := decodeAs[event.NewMessage](data)
		if err != nil {
			return nil, err
		}
		if ev.Message.ChatID == 0 {
			ev.Message.ChatID = ev.ChatID
		}
		return ev, nil
	case event.TypeTyping:
		return decode[event.Typing](data)
	case event.TypePresence:
		ev, err := decodeAs[event.Presence](data)
		if err != nil {
			return nil, err
		}
		if ev.Status != event.StatusOnline && ev.Status != event.StatusOffline {
			return nil, fmt.Errorf("%w: presence status %q", ErrMalformed, ev.Status)
		}
		return ev, nil
	case event.TypeMessagesRead:
		return decode[event.MessagesRead](data)
	case event.TypeMessageEdited:
		return decode[event.MessageEdited](data)
	case event.TypeMessageDeleted:
		return decode[event.MessageDeleted](data)
	case event.TypeReaction:
		return decode[event.Reaction](data)
	case event.TypeChatCreated:
		return decode[event.ChatCreated](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

func decode[T event.Event](data []byte) (event.Event, error) {
	ev, err := decodeAs[T](data)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeAs[T event.Event](data []byte) (T, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("%w: %s: %v", ErrMalformed, ev.Type(), err)
	}
	return ev, nil
}
