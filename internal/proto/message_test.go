package proto

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-sync/internal/core"
	"github.com/vovakirdan/wirechat-sync/internal/event"
)

func TestDecodeEvents(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want event.Event
	}{
		{"pong", `{"type":"pong"}`, event.Pong{}},
		{"subscribed", `{"type":"subscribed","chat_id":3}`, event.Subscribed{ChatID: 3}},
		{"subscribed_all", `{"type":"subscribed_all","count":4}`, event.SubscribedAll{Count: 4}},
		{"unsubscribed", `{"type":"unsubscribed","chat_id":3}`, event.Unsubscribed{ChatID: 3}},
		{"typing", `{"type":"typing","chat_id":1,"user_id":2}`, event.Typing{ChatID: 1, UserID: 2}},
		{"presence", `{"type":"presence","user_id":2,"status":"offline"}`, event.Presence{UserID: 2, Status: event.StatusOffline}},
		{"messages_read", `{"type":"messages_read","chat_id":1,"user_id":2}`, event.MessagesRead{ChatID: 1, UserID: 2}},
		{"message_edited", `{"type":"message_edited","chat_id":1,"message_id":5,"body":"new"}`, event.MessageEdited{ChatID: 1, MessageID: 5, Body: "new"}},
		{"message_deleted", `{"type":"message_deleted","chat_id":1,"message_id":5}`, event.MessageDeleted{ChatID: 1, MessageID: 5}},
		{"reaction", `{"type":"reaction","chat_id":1,"message_id":5,"emoji":"👍","user_id":9}`, event.Reaction{ChatID: 1, MessageID: 5, Emoji: "👍", UserID: 9}},
		{"chat_created", `{"type":"chat_created","chat_id":8}`, event.ChatCreated{ChatID: 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeNewMessageFillsChatID(t *testing.T) {
	raw := `{"type":"new_message","chat_id":4,"message":{"id":10,"author":{"type":"user","id":2},"body":"hi","message_type":"comment","created_at":"2024-05-01T10:00:00Z"}}`

	got, err := Decode([]byte(raw))
	require.NoError(t, err)

	nm, ok := got.(event.NewMessage)
	require.True(t, ok)
	require.Equal(t, int64(4), nm.Message.ChatID)
	require.Equal(t, int64(10), nm.Message.ID)
	require.Equal(t, core.MessageKindComment, nm.Message.Kind)
	require.True(t, nm.Message.CreatedAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
}

func TestDecodeUnknownAndMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"type":"call_ringing","call_id":"x"}`))
	require.True(t, errors.Is(err, ErrUnknownType), "got %v", err)

	_, err = Decode([]byte(`not json`))
	require.True(t, errors.Is(err, ErrMalformed), "got %v", err)

	_, err = Decode([]byte(`{"type":"typing","chat_id":"one"}`))
	require.True(t, errors.Is(err, ErrMalformed), "got %v", err)

	_, err = Decode([]byte(`{"type":"presence","user_id":1,"status":"away"}`))
	require.True(t, errors.Is(err, ErrMalformed), "got %v", err)
}

func TestOutboundFrames(t *testing.T) {
	data, err := json.Marshal(SubscribeAll([]int64{3, 1}))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"subscribe_all","chat_ids":[3,1]}`, string(data))

	data, err = json.Marshal(Read(7))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"read","chat_id":7}`, string(data))

	data, err = json.Marshal(Ping())
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"ping"}`, string(data))
}
