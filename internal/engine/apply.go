package engine

import (
	"context"
	"errors"
	"time"

	"github.com/vovakirdan/wirechat-sync/internal/api"
	"github.com/vovakirdan/wirechat-sync/internal/core"
	"github.com/vovakirdan/wirechat-sync/internal/event"
	"github.com/vovakirdan/wirechat-sync/internal/messages"
	"github.com/vovakirdan/wirechat-sync/internal/proto"
)

func (e *Engine) handleFrame(data []byte) {
	ev, err := proto.Decode(data)
	if err != nil {
		e.metrics.UnknownEvent()
		if errors.Is(err, proto.ErrUnknownType) {
			typ, _ := proto.PeekType(data)
			e.log.Debug().Str("type", typ).Msg("ignoring unknown event")
		} else {
			e.log.Warn().Err(err).Msg("ignoring malformed event")
		}
		return
	}

	if ce, ok := ev.(event.ChatEvent); ok && scoped(ev) && !e.subs.IsSubscribed(ce.Chat()) {
		e.metrics.Dropped("unsubscribed")
		e.log.Debug().Str("type", string(ev.Type())).Int64("chat_id", ce.Chat()).Msg("dropping event for unsubscribed chat")
		return
	}

	e.metrics.Event(string(ev.Type()))
	e.bus.Dispatch(ev)
}

// scoped reports whether ev is only meaningful while its chat is subscribed.
func scoped(ev event.Event) bool {
	switch ev.(type) {
	case event.Subscribed, event.Unsubscribed, event.ChatCreated:
		return false
	}
	return true
}

// apply is the internal bus listener. One event is applied under one lock.
func (e *Engine) apply(ev event.Event) {
	var after func()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	switch ev := ev.(type) {
	case event.Pong:
	case event.Subscribed:
		e.subs.Ack(ev.ChatID)
	case event.SubscribedAll:
		e.subs.AckAll(ev.Count)
	case event.Unsubscribed:
		e.log.Debug().Int64("chat_id", ev.ChatID).Msg("unsubscribed")
	case event.NewMessage:
		e.applyNewMessage(ev)
	case event.Typing:
		e.applyTyping(ev.ChatID, ev.UserID)
	case event.Presence:
		if ev.Status == event.StatusOnline {
			e.presence.SetOnline(ev.UserID)
		} else {
			e.presence.SetOffline(ev.UserID)
		}
	case event.MessagesRead:
		if ev.UserID == e.self {
			e.unread.OnReadConfirmed(ev.ChatID)
		} else if v := e.open[ev.ChatID]; v != nil {
			v.store.MarkAuthoredRead()
		}
	case event.MessageEdited:
		if v := e.open[ev.ChatID]; v != nil {
			v.store.Edit(ev.MessageID, ev.Body)
		}
	case event.MessageDeleted:
		if v := e.open[ev.ChatID]; v != nil {
			v.store.Delete(ev.MessageID)
		}
	case event.Reaction:
		// The local actor's reactions come back authoritative from the API call.
		if v := e.open[ev.ChatID]; v != nil && ev.UserID != e.self {
			v.store.ToggleReaction(ev.MessageID, ev.Emoji, ev.UserID)
		}
	case event.ChatCreated:
		after = e.applyChatCreated(ev.ChatID)
	}
	e.mu.Unlock()

	if after != nil {
		after()
	}
}

func (e *Engine) applyNewMessage(ev event.NewMessage) {
	msg := ev.Message
	msg.ChatID = ev.ChatID

	fromSelf := msg.Author.IsUser(e.self)
	e.unread.OnMessage(ev.ChatID, msg.ID, msg.Author.ID, fromSelf)
	e.chat(ev.ChatID).Touch(&msg)

	if v := e.open[ev.ChatID]; v != nil {
		if res := v.store.AddLive(msg); res == messages.Duplicate {
			e.log.Debug().Int64("chat_id", ev.ChatID).Int64("message_id", msg.ID).Msg("duplicate message")
		}
	}

	// A message ends its author's typing indicator.
	if msg.Author.Type == core.AuthorUser {
		e.stopTyping(ev.ChatID, msg.Author.ID)
	}
}

func (e *Engine) applyTyping(chatID, userID int64) {
	expiry, ok := e.typing.Touch(chatID, userID)
	if !ok {
		return
	}

	key := typingKey{chatID: chatID, userID: userID}
	if t, ok := e.timers[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(time.Until(expiry), func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.timers[key] != t {
			return
		}
		delete(e.timers, key)
		e.typing.Expire(chatID, userID)
	})
	e.timers[key] = t
}

func (e *Engine) stopTyping(chatID, userID int64) {
	key := typingKey{chatID: chatID, userID: userID}
	if t, ok := e.timers[key]; ok {
		t.Stop()
		delete(e.timers, key)
	}
	e.typing.Stop(chatID, userID)
}

func (e *Engine) clearTyping(chatID int64) {
	for key, t := range e.timers {
		if key.chatID == chatID {
			t.Stop()
			delete(e.timers, key)
		}
	}
	e.typing.ClearChat(chatID)
	delete(e.lastTyping, chatID)
}

// applyChatCreated registers a placeholder and returns the follow-up that
// subscribes the chat and fetches its metadata outside the lock.
func (e *Engine) applyChatCreated(chatID int64) func() {
	if _, known := e.chats[chatID]; known {
		return nil
	}
	e.chat(chatID)
	e.log.Info().Int64("chat_id", chatID).Msg("chat created")

	return func() {
		if err := e.subs.Subscribe(e.ctx, chatID); err != nil {
			e.log.Warn().Err(err).Int64("chat_id", chatID).Msg("subscribe new chat")
		}
		go e.fetchChat(chatID)
	}
}

func (e *Engine) fetchChat(chatID int64) {
	c, err := e.api.GetChat(e.ctx, chatID)
	if err != nil {
		e.log.Warn().Err(err).Int64("chat_id", chatID).Msg("fetch chat metadata")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.chats[chatID]; ok && !e.closed {
		mergeChat(cur, c)
	}
}

// mergeChat copies server metadata into cur, keeping a newer local last message.
func mergeChat(cur, from *core.Chat) {
	cur.Name = from.Name
	cur.Kind = from.Kind
	cur.Members = append([]int64(nil), from.Members...)
	if !from.LastMessageDate.Before(cur.LastMessageDate) {
		cur.LastMessage = from.LastMessage
		cur.LastMessageDate = from.LastMessageDate
	}
}

// fetch loads one page of history before the given id (0 for the newest page)
// and merges it into v. The first page settles the store's initial fetch, and
// a newest page merged after a failed one recovers it.
func (e *Engine) fetch(ctx context.Context, v *openChat, before int64) error {
	chatID := v.store.ChatID()
	page, err := e.api.SearchMessages(ctx, chatID, api.PageQuery{Limit: e.pageSize, BeforeID: before})
	e.metrics.Fetch(err == nil)

	e.mu.Lock()
	defer e.mu.Unlock()
	v.loading = false
	if e.closed || e.open[chatID] != v {
		return nil
	}

	if err != nil {
		e.log.Warn().Err(err).Int64("chat_id", chatID).Int64("before", before).Msg("history fetch failed")
		v.store.FailFetch()
		return err
	}

	v.store.ApplyHistory(page, e.pageSize)
	if before == 0 {
		v.store.Recover()
	}
	if last, ok := v.store.Last(); ok {
		e.chat(chatID).Touch(last)
	}
	e.log.Debug().Int64("chat_id", chatID).Int("count", len(page)).Str("state", v.store.State().String()).Msg("history merged")
	return nil
}
