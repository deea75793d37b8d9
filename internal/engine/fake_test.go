package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-sync/internal/api"
	"github.com/vovakirdan/wirechat-sync/internal/config"
	"github.com/vovakirdan/wirechat-sync/internal/conn"
	"github.com/vovakirdan/wirechat-sync/internal/core"
	"github.com/vovakirdan/wirechat-sync/internal/event"
	"github.com/vovakirdan/wirechat-sync/internal/messages"
	"github.com/vovakirdan/wirechat-sync/internal/proto"
)

const (
	self  = int64(1)
	alice = int64(2)
	bob   = int64(3)
)

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

var errLost = errors.New("transport lost")

type fakeTransport struct {
	in     chan []byte
	fail   chan error
	closed chan struct{}

	mu       sync.Mutex
	written  []proto.Frame
	writeErr error
	once     sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 64),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.in:
		return data, nil
	case err := <-f.fail:
		return nil, err
	case <-f.closed:
		return nil, &conn.CloseError{Code: conn.CloseNormal, Reason: "closed"}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Write(_ context.Context, data []byte) error {
	var frame proto.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr; err != nil {
		f.writeErr = nil
		return err
	}
	f.written = append(f.written, frame)
	return nil
}

// failNextWrite makes the next Write return err without recording the frame.
func (f *fakeTransport) failNextWrite(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) Close(int, string) error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) frames() []proto.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]proto.Frame(nil), f.written...)
}

func (f *fakeTransport) framesOf(typ string) []proto.Frame {
	var out []proto.Frame
	for _, fr := range f.frames() {
		if fr.Type == typ {
			out = append(out, fr)
		}
	}
	return out
}

// push delivers an inbound event shaped like the server's JSON.
func (f *fakeTransport) push(t *testing.T, v map[string]any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	f.in <- data
}

// fakeDialer hands out transports in order and blocks once they run out.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	err        error
}

func (d *fakeDialer) Dial(ctx context.Context, _ string, _ string) (conn.Transport, error) {
	d.mu.Lock()
	var next *fakeTransport
	if len(d.transports) > 0 {
		next = d.transports[0]
		d.transports = d.transports[1:]
	}
	err := d.err
	d.mu.Unlock()

	if next != nil {
		return next, nil
	}
	if err != nil {
		return nil, err
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

// fakeAPI is an in-memory record API.
type fakeAPI struct {
	mu       sync.Mutex
	chats    []core.Chat
	history  map[int64][]core.Message
	searchFn func(ctx context.Context, chatID int64, q api.PageQuery) ([]core.Message, error)
	nextID   int64
	searches []api.PageQuery
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{history: make(map[int64][]core.Message), nextID: 1000}
}

func (a *fakeAPI) SearchMessages(ctx context.Context, chatID int64, q api.PageQuery) ([]core.Message, error) {
	a.mu.Lock()
	a.searches = append(a.searches, q)
	fn := a.searchFn
	a.mu.Unlock()
	if fn != nil {
		return fn(ctx, chatID, q)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	all := append([]core.Message(nil), a.history[chatID]...)
	sort.Slice(all, func(i, j int) bool { return all[j].Before(&all[i]) })
	var out []core.Message
	for _, m := range all {
		if q.BeforeID != 0 && m.ID >= q.BeforeID {
			continue
		}
		out = append(out, m)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (a *fakeAPI) SendMessage(_ context.Context, chatID int64, text string, attachments []int64) (*core.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	msg := core.Message{
		ID:          a.nextID,
		ChatID:      chatID,
		Author:      core.Author{Type: core.AuthorUser, ID: self},
		Body:        text,
		Kind:        core.MessageKindComment,
		CreatedAt:   base.Add(time.Duration(a.nextID) * time.Second),
		Attachments: attachments,
	}
	a.history[chatID] = append(a.history[chatID], msg)
	return msg.Clone(), nil
}

func (a *fakeAPI) EditMessage(context.Context, int64, int64, string) error { return nil }
func (a *fakeAPI) DeleteMessage(context.Context, int64, int64) error       { return nil }
func (a *fakeAPI) PinMessage(context.Context, int64, int64, bool) error    { return nil }

func (a *fakeAPI) ReactMessage(_ context.Context, _, _ int64, emoji string) ([]core.Reaction, error) {
	return []core.Reaction{{Emoji: emoji, Users: []int64{self}}}, nil
}

func (a *fakeAPI) SearchChats(context.Context, api.ChatFilter) ([]core.Chat, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]core.Chat(nil), a.chats...), nil
}

func (a *fakeAPI) GetChat(_ context.Context, chatID int64) (*core.Chat, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.chats {
		if c.ID == chatID {
			return c.Clone(), nil
		}
	}
	return nil, core.ErrChatNotFound
}

func (a *fakeAPI) searchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.searches)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Token = "opaque-token"
	cfg.UserID = self
	cfg.PingInterval = time.Minute
	cfg.ReconnectBaseDelay = 5 * time.Millisecond
	cfg.ReconnectMaxDelay = 20 * time.Millisecond
	return cfg
}

type harness struct {
	e    *Engine
	api  *fakeAPI
	done chan error
}

func newHarness(t *testing.T, cfg config.Config, fa *fakeAPI, ts ...*fakeTransport) *harness {
	t.Helper()
	e, err := New(Options{Config: cfg, API: fa, Dialer: &fakeDialer{transports: ts}})
	require.NoError(t, err)
	return &harness{e: e, api: fa, done: make(chan error, 1)}
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		h.done <- h.e.Run(context.Background())
	}()
	t.Cleanup(func() {
		h.e.Close()
		select {
		case <-finished:
		case <-time.After(2 * time.Second):
		}
	})
}

func (h *harness) waitConnected(t *testing.T) {
	t.Helper()
	require.Eventually(t, h.e.Connected, 2*time.Second, 5*time.Millisecond)
}

// collect records every dispatched event accepted by filter.
func collect(e *Engine, filter event.Filter) <-chan event.Event {
	ch := make(chan event.Event, 128)
	e.AddListener(filter, func(ev event.Event) { ch <- ev })
	return ch
}

func recv(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return nil
}

func newMessage(chatID, id, author int64, offset time.Duration) map[string]any {
	return map[string]any{
		"type":    "new_message",
		"chat_id": chatID,
		"message": map[string]any{
			"id":           id,
			"author":       map[string]any{"type": "user", "id": author},
			"body":         "hello",
			"message_type": "comment",
			"created_at":   base.Add(offset).Format(time.RFC3339Nano),
		},
	}
}

func messageIDs(msgs []*core.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func waitFetch(t *testing.T, e *Engine, chatID int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, ok := e.FetchState(chatID)
		return ok && st != messages.FetchPending
	}, 2*time.Second, 5*time.Millisecond)
}
