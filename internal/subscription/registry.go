package subscription

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-sync/internal/core"
	"github.com/vovakirdan/wirechat-sync/internal/proto"
)

// Sender writes outbound frames on the live connection. It returns
// core.ErrNotConnected when offline; the registry treats that as deferred, not failed.
type Sender interface {
	Send(ctx context.Context, frame proto.Frame) error
}

// Registry is the desired subscription set. It is independent of connection
// state and is replayed in bulk on every successful (re)connect.
type Registry struct {
	mu      sync.Mutex
	desired map[int64]struct{}
	// pending holds ids whose ack has not arrived on the current connection.
	pending map[int64]struct{}
	sender  Sender
	log     *zerolog.Logger
}

// NewRegistry creates an empty registry. sender may be nil until a connection manager exists.
func NewRegistry(sender Sender, logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		desired: make(map[int64]struct{}),
		pending: make(map[int64]struct{}),
		sender:  sender,
		log:     logger,
	}
}

// SetSender attaches the frame writer.
func (r *Registry) SetSender(sender Sender) {
	r.mu.Lock()
	r.sender = sender
	r.mu.Unlock()
}

// Subscribe adds chatID to the desired set and sends a subscribe frame if connected.
func (r *Registry) Subscribe(ctx context.Context, chatID int64) error {
	r.mu.Lock()
	r.desired[chatID] = struct{}{}
	r.pending[chatID] = struct{}{}
	sender := r.sender
	r.mu.Unlock()

	return r.send(ctx, sender, proto.Subscribe(chatID))
}

// SubscribeAll adds every id to the desired set with one subscribe_all frame. Repeating it is harmless.
func (r *Registry) SubscribeAll(ctx context.Context, chatIDs []int64) error {
	if len(chatIDs) == 0 {
		return nil
	}

	r.mu.Lock()
	for _, id := range chatIDs {
		r.desired[id] = struct{}{}
		r.pending[id] = struct{}{}
	}
	sender := r.sender
	r.mu.Unlock()

	return r.send(ctx, sender, proto.SubscribeAll(dedupe(chatIDs)))
}

// Unsubscribe drops chatID from the desired set so a later reconnect does not restore it.
func (r *Registry) Unsubscribe(ctx context.Context, chatID int64) error {
	r.mu.Lock()
	_, known := r.desired[chatID]
	delete(r.desired, chatID)
	delete(r.pending, chatID)
	sender := r.sender
	r.mu.Unlock()

	if !known {
		return nil
	}
	return r.send(ctx, sender, proto.Unsubscribe(chatID))
}

// IsSubscribed reports whether chatID is in the desired set.
func (r *Registry) IsSubscribed(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.desired[chatID]
	return ok
}

// Snapshot returns the desired set in ascending order.
func (r *Registry) Snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.desired)
}

// Resync is called by the connection manager on open. Acks awaited from the
// previous connection are discarded and the whole desired set becomes pending again.
func (r *Registry) Resync() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = make(map[int64]struct{}, len(r.desired))
	for id := range r.desired {
		r.pending[id] = struct{}{}
	}
	return sortedKeys(r.desired)
}

// Ack records a subscribed acknowledgement for chatID.
func (r *Registry) Ack(chatID int64) {
	r.mu.Lock()
	delete(r.pending, chatID)
	r.mu.Unlock()
}

// AckAll records a subscribed_all acknowledgement, which settles every pending id.
func (r *Registry) AckAll(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if count != len(r.pending) {
		r.log.Debug().Int("count", count).Int("pending", len(r.pending)).Msg("subscribed_all count differs from pending set")
	}
	r.pending = make(map[int64]struct{})
}

// Pending returns ids still waiting for an ack on the current connection.
func (r *Registry) Pending() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.pending)
}

func (r *Registry) send(ctx context.Context, sender Sender, frame proto.Frame) error {
	if sender == nil {
		return nil
	}
	if err := sender.Send(ctx, frame); err != nil {
		if errors.Is(err, core.ErrNotConnected) {
			r.log.Debug().Str("type", frame.Type).Msg("offline, subscription deferred to next connect")
			return nil
		}
		return err
	}
	return nil
}

func sortedKeys(m map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
