package event

import "sync"

// Filter selects the events a listener receives. A nil Filter accepts everything.
type Filter func(Event) bool

// Listener receives dispatched events.
type Listener func(Event)

// ForChat accepts only events concerning chatID.
func ForChat(chatID int64) Filter {
	return func(ev Event) bool {
		ce, ok := ev.(ChatEvent)
		return ok && ce.Chat() == chatID
	}
}

// OfType accepts only events with one of the given tags.
func OfType(types ...Type) Filter {
	return func(ev Event) bool {
		for _, t := range types {
			if ev.Type() == t {
				return true
			}
		}
		return false
	}
}

type registration struct {
	filter  Filter
	fn      Listener
	removed bool
}

// Bus delivers each event to every registered listener in registration order.
// Dispatch is synchronous; listeners may add or remove listeners from inside a callback.
// A listener added during a dispatch first sees the next event.
type Bus struct {
	mu        sync.Mutex
	listeners []*registration
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// AddListener registers fn and returns a function that removes it. The returned function is idempotent.
func (b *Bus) AddListener(filter Filter, fn Listener) func() {
	reg := &registration{filter: filter, fn: fn}

	b.mu.Lock()
	b.listeners = append(b.listeners, reg)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if reg.removed {
			return
		}
		reg.removed = true
		for i, r := range b.listeners {
			if r == reg {
				b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
				break
			}
		}
	}
}

// Dispatch delivers ev to matching listeners. Listeners removed mid-dispatch are skipped.
func (b *Bus) Dispatch(ev Event) {
	if ev == nil {
		return
	}

	b.mu.Lock()
	snapshot := make([]*registration, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.Unlock()

	for _, reg := range snapshot {
		b.mu.Lock()
		removed := reg.removed
		b.mu.Unlock()
		if removed {
			continue
		}
		if reg.filter != nil && !reg.filter(ev) {
			continue
		}
		reg.fn(ev)
	}
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
