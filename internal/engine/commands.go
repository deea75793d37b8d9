package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vovakirdan/wirechat-sync/internal/api"
	"github.com/vovakirdan/wirechat-sync/internal/core"
	"github.com/vovakirdan/wirechat-sync/internal/messages"
	"github.com/vovakirdan/wirechat-sync/internal/proto"
	"github.com/vovakirdan/wirechat-sync/internal/unread"
)

// LoadChats fetches the chat list, seeds unread counters from it and
// subscribes every returned chat with one subscribe_all frame.
func (e *Engine) LoadChats(ctx context.Context, filter api.ChatFilter) ([]core.Chat, error) {
	chats, err := e.api.SearchChats(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	return e.register(ctx, chats)
}

// Restore registers chats known from a previous run, e.g. a local snapshot,
// and subscribes them. A later LoadChats replaces their metadata.
func (e *Engine) Restore(ctx context.Context, chats []core.Chat) ([]core.Chat, error) {
	return e.register(ctx, chats)
}

func (e *Engine) register(ctx context.Context, chats []core.Chat) ([]core.Chat, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, core.ErrClosed
	}
	ids := make([]int64, 0, len(chats))
	out := make([]core.Chat, 0, len(chats))
	for i := range chats {
		c := chats[i]
		if cur, ok := e.chats[c.ID]; ok {
			mergeChat(cur, &c)
		} else {
			e.chats[c.ID] = c.Clone()
		}
		e.unread.Seed(c.ID, c.UnreadCount)
		ids = append(ids, c.ID)
		out = append(out, e.snapshot(e.chats[c.ID]))
	}
	e.mu.Unlock()

	if err := e.subs.SubscribeAll(ctx, ids); err != nil {
		return out, fmt.Errorf("subscribe chats: %w", err)
	}
	return out, nil
}

// OpenChat subscribes chatID and starts its first history fetch in the
// background. Live events that arrive before the fetch completes are merged
// once it does. Opening an open chat is a no-op.
//
// The fetch starts even when the subscribe frame cannot be written; the chat
// stays in the desired set and is resubscribed on the next connect.
func (e *Engine) OpenChat(ctx context.Context, chatID int64) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return core.ErrClosed
	}
	if _, ok := e.open[chatID]; ok {
		e.mu.Unlock()
		return nil
	}
	v := &openChat{store: messages.New(chatID, e.self), loading: true}
	v.store.BeginFetch()
	e.open[chatID] = v
	e.chat(chatID)
	e.mu.Unlock()

	go e.fetch(e.ctx, v, 0)
	if err := e.subs.Subscribe(ctx, chatID); err != nil {
		return fmt.Errorf("open chat %d: %w", chatID, err)
	}
	return nil
}

// LoadOlder fetches the page before the oldest fetched message. After a
// failed first fetch it retries the newest page instead. It returns false
// when history is exhausted or a fetch is already running.
func (e *Engine) LoadOlder(ctx context.Context, chatID int64) (bool, error) {
	e.mu.Lock()
	v, ok := e.open[chatID]
	if !ok {
		e.mu.Unlock()
		return false, fmt.Errorf("load older %d: %w", chatID, core.ErrChatNotFound)
	}
	before, more := v.store.Cursor()
	if v.loading || v.store.State() == messages.FetchPending || !more {
		e.mu.Unlock()
		return false, nil
	}
	v.loading = true
	e.mu.Unlock()

	// The request ends with whichever of the caller and the engine stops first.
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	if err := e.fetch(reqCtx, v, before); err != nil {
		return false, err
	}
	return true, nil
}

// CloseChat drops the message history of chatID. The chat stays subscribed so
// its unread counter and typing indicators keep updating.
func (e *Engine) CloseChat(chatID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.open, chatID)
}

// LeaveChat unsubscribes chatID and forgets everything about it.
func (e *Engine) LeaveChat(ctx context.Context, chatID int64) error {
	e.mu.Lock()
	delete(e.open, chatID)
	delete(e.chats, chatID)
	e.unread.Forget(chatID)
	e.clearTyping(chatID)
	e.mu.Unlock()

	if err := e.subs.Unsubscribe(ctx, chatID); err != nil {
		return fmt.Errorf("leave chat %d: %w", chatID, err)
	}
	return nil
}

// Focus marks chatID as the chat on screen. Messages arriving in it do not
// count as unread. Focus never marks anything read by itself.
func (e *Engine) Focus(chatID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unread.Focus(chatID)
}

// Blur clears the focused chat.
func (e *Engine) Blur() { e.Focus(0) }

// MarkAsRead resets the unread counter of chatID and tells the server. A
// TriggerFocus mark right after MarkUnread is skipped once, and then nothing
// is sent.
func (e *Engine) MarkAsRead(ctx context.Context, chatID int64, trigger unread.Trigger) error {
	e.mu.Lock()
	applied := e.unread.MarkRead(chatID, trigger)
	e.mu.Unlock()
	if !applied {
		return nil
	}

	if err := e.conn.Send(ctx, proto.Read(chatID)); err != nil {
		return fmt.Errorf("mark read %d: %w", chatID, err)
	}
	return nil
}

// MarkUnread flags chatID as deliberately unread.
func (e *Engine) MarkUnread(chatID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unread.MarkUnread(chatID)
}

// SendMessage posts text to chatID and merges the persisted message. Sending
// counts as reading the chat.
func (e *Engine) SendMessage(ctx context.Context, chatID int64, text string, attachments []int64) (*core.Message, error) {
	msg, err := e.api.SendMessage(ctx, chatID, text, attachments)
	if err != nil {
		return nil, err
	}
	msg.ChatID = chatID

	e.mu.Lock()
	e.unread.OnMessage(chatID, msg.ID, msg.Author.ID, true)
	e.unread.MarkRead(chatID, unread.TriggerExplicit)
	if v := e.open[chatID]; v != nil {
		v.store.AddLive(*msg)
	}
	if c, ok := e.chats[chatID]; ok {
		c.Touch(msg)
	}
	e.mu.Unlock()

	if err := e.conn.Send(ctx, proto.Read(chatID)); err != nil && !errors.Is(err, core.ErrNotConnected) {
		e.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send read after message")
	}
	return msg.Clone(), nil
}

// EditMessage changes a message body on the server and locally.
func (e *Engine) EditMessage(ctx context.Context, chatID, messageID int64, body string) error {
	if err := e.api.EditMessage(ctx, chatID, messageID, body); err != nil {
		return err
	}
	e.withStore(chatID, func(s *messages.Store) { s.Edit(messageID, body) })
	return nil
}

// DeleteMessage deletes a message on the server and removes it locally.
func (e *Engine) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	if err := e.api.DeleteMessage(ctx, chatID, messageID); err != nil {
		return err
	}
	e.withStore(chatID, func(s *messages.Store) { s.Delete(messageID) })
	return nil
}

// PinMessage pins or unpins a message.
func (e *Engine) PinMessage(ctx context.Context, chatID, messageID int64, pinned bool) error {
	if err := e.api.PinMessage(ctx, chatID, messageID, pinned); err != nil {
		return err
	}
	e.withStore(chatID, func(s *messages.Store) { s.SetPinned(messageID, pinned) })
	return nil
}

// React toggles the local actor's emoji on a message and stores the reactions the server reports.
func (e *Engine) React(ctx context.Context, chatID, messageID int64, emoji string) error {
	reactions, err := e.api.ReactMessage(ctx, chatID, messageID, emoji)
	if err != nil {
		return err
	}
	e.withStore(chatID, func(s *messages.Store) { s.SetReactions(messageID, reactions) })
	return nil
}

func (e *Engine) withStore(chatID int64, fn func(*messages.Store)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v := e.open[chatID]; v != nil {
		fn(v.store)
	}
}

// NotifyTyping tells the chat the local actor is typing. Calls within half
// the typing window of the previous one are not sent.
func (e *Engine) NotifyTyping(ctx context.Context, chatID int64) error {
	now := time.Now()
	e.mu.Lock()
	if last, ok := e.lastTyping[chatID]; ok && now.Sub(last) < e.typing.TTL()/2 {
		e.mu.Unlock()
		return nil
	}
	e.lastTyping[chatID] = now
	e.mu.Unlock()

	if err := e.conn.Send(ctx, proto.Typing(chatID)); err != nil {
		e.mu.Lock()
		delete(e.lastTyping, chatID)
		e.mu.Unlock()
		return fmt.Errorf("notify typing %d: %w", chatID, err)
	}
	return nil
}

// Messages returns the reconciled history of an open chat.
func (e *Engine) Messages(chatID int64) ([]*core.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.open[chatID]
	if !ok {
		return nil, fmt.Errorf("messages %d: %w", chatID, core.ErrChatNotFound)
	}
	return v.store.Messages(), nil
}

// Message returns one message of an open chat.
func (e *Engine) Message(chatID, messageID int64) (*core.Message, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.open[chatID]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", messageID, core.ErrChatNotFound)
	}
	msg, ok := v.store.Get(messageID)
	if !ok {
		return nil, fmt.Errorf("message %d: %w", messageID, core.ErrMessageNotFound)
	}
	return msg, nil
}

// FetchState reports the first-fetch state of an open chat.
func (e *Engine) FetchState(chatID int64) (messages.FetchState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.open[chatID]
	if !ok {
		return messages.FetchIdle, false
	}
	return v.store.State(), true
}

// Chat returns a known chat with its current unread counter.
func (e *Engine) Chat(chatID int64) (core.Chat, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.chats[chatID]
	if !ok {
		return core.Chat{}, fmt.Errorf("chat %d: %w", chatID, core.ErrChatNotFound)
	}
	return e.snapshot(c), nil
}

// Chats returns every known chat, most recently active first.
func (e *Engine) Chats() []core.Chat {
	e.mu.RLock()
	out := make([]core.Chat, 0, len(e.chats))
	for _, c := range e.chats {
		out = append(out, e.snapshot(c))
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageDate.Equal(out[j].LastMessageDate) {
			return out[i].LastMessageDate.After(out[j].LastMessageDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// UnreadCount returns the unread counter of chatID.
func (e *Engine) UnreadCount(chatID int64) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.unread.Count(chatID)
}

// Online returns the ids of users currently online, ascending.
func (e *Engine) Online() []int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.presence.Online()
}

// IsOnline reports whether userID is online.
func (e *Engine) IsOnline(userID int64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.presence.IsOnline(userID)
}

// TypingUsers returns who is typing in chatID right now, ascending.
func (e *Engine) TypingUsers(chatID int64) []int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.typing.Active(chatID)
}

// Subscriptions returns the desired subscription set, ascending.
func (e *Engine) Subscriptions() []int64 {
	return e.subs.Snapshot()
}
