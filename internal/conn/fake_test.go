package conn

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-sync/internal/proto"
)

type fakeTransport struct {
	in     chan []byte
	fail   chan error
	closed chan struct{}

	mu        sync.Mutex
	written   []proto.Frame
	closeCode int
	autoPong  bool
	once      sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 16),
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
		return nil, &CloseError{Code: CloseNormal, Reason: "closed"}
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
	f.written = append(f.written, frame)
	pong := f.autoPong && frame.Type == proto.OutboundTypePing
	f.mu.Unlock()
	if pong {
		f.in <- []byte(`{"type":"pong"}`)
	}
	return nil
}

func (f *fakeTransport) Close(code int, _ string) error {
	f.once.Do(func() {
		f.mu.Lock()
		f.closeCode = code
		f.mu.Unlock()
		close(f.closed)
	})
	return nil
}

func (f *fakeTransport) frames() []proto.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]proto.Frame(nil), f.written...)
}

func (f *fakeTransport) code() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode
}

// fakeDialer hands out queued transports; once the queue is empty it returns err (or blocks if err is nil).
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	err        error
	tokens     []string
	dials      chan struct{}
}

func newFakeDialer(ts ...*fakeTransport) *fakeDialer {
	return &fakeDialer{transports: ts, dials: make(chan struct{}, 64)}
}

func (d *fakeDialer) Dial(ctx context.Context, _ string, token string) (Transport, error) {
	d.mu.Lock()
	d.tokens = append(d.tokens, token)
	var next *fakeTransport
	if len(d.transports) > 0 {
		next = d.transports[0]
		d.transports = d.transports[1:]
	}
	err := d.err
	d.mu.Unlock()
	d.dials <- struct{}{}

	if next != nil {
		return next, nil
	}
	if err != nil {
		return nil, err
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

type closeSignal struct {
	err      error
	retrying bool
}

type recordingHandler struct {
	opens    chan string
	messages chan []byte
	closes   chan closeSignal
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		opens:    make(chan string, 16),
		messages: make(chan []byte, 64),
		closes:   make(chan closeSignal, 16),
	}
}

func (h *recordingHandler) OnOpen(connID string)  { h.opens <- connID }
func (h *recordingHandler) OnMessage(data []byte) { h.messages <- data }
func (h *recordingHandler) OnClose(err error, retrying bool) {
	h.closes <- closeSignal{err: err, retrying: retrying}
}

type staticSubs struct {
	mu    sync.Mutex
	ids   []int64
	calls int
}

func (s *staticSubs) Resync() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return append([]int64(nil), s.ids...)
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting on channel")
	}
	var zero T
	return zero
}

func runManager(t *testing.T, m *Manager) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		done <- m.Run(context.Background())
	}()
	t.Cleanup(func() {
		m.Close()
		select {
		case <-finished:
		case <-time.After(2 * time.Second):
		}
	})
	return done
}

var errTransportLost = errors.New("transport lost")
