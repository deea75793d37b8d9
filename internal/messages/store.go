package messages

import (
	"sort"

	"github.com/vovakirdan/wirechat-sync/internal/core"
)

// FetchState tracks the initial history fetch of a chat.
type FetchState int

const (
	// FetchIdle means no fetch was started. Live events apply directly.
	FetchIdle FetchState = iota
	// FetchPending means the first page is in flight. Live events are buffered.
	FetchPending
	// FetchDone means the first page was merged.
	FetchDone
	// FetchFailed means the first fetch failed. Live events apply to whatever is held.
	FetchFailed
)

func (s FetchState) String() string {
	switch s {
	case FetchIdle:
		return "idle"
	case FetchPending:
		return "pending"
	case FetchDone:
		return "done"
	case FetchFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes what happened to a live update.
type Result int

const (
	Applied Result = iota
	Duplicate
	Ignored
	Buffered
)

type entry struct {
	msg     *core.Message
	fetched bool
}

// Store reconciles one chat's fetched history with messages delivered live.
// It is not safe for concurrent use; the engine serializes access under its lock.
type Store struct {
	chatID int64
	self   int64

	byID    map[int64]*entry
	deleted map[int64]struct{}

	state    FetchState
	buffered []func()

	oldest    int64
	exhausted bool

	view []*core.Message
}

// New creates an empty store for chatID, with self as the local actor.
func New(chatID, self int64) *Store {
	return &Store{
		chatID:  chatID,
		self:    self,
		byID:    make(map[int64]*entry),
		deleted: make(map[int64]struct{}),
	}
}

// ChatID returns the chat this store reconciles.
func (s *Store) ChatID() int64 { return s.chatID }

// State returns the initial fetch state.
func (s *Store) State() FetchState { return s.state }

// BeginFetch marks the first history fetch as in flight. It has no effect once a
// fetch has settled, so that a retry after failure never re-buffers live traffic.
func (s *Store) BeginFetch() {
	if s.state == FetchIdle {
		s.state = FetchPending
	}
}

// ApplyHistory merges a page returned most-recent-first. The first page is
// authoritative for ids it shares with buffered live messages. Later pages
// (backfill) only add ids not already held. Buffered live updates are replayed
// after the first page.
func (s *Store) ApplyHistory(page []core.Message, pageSize int) {
	initial := s.state == FetchPending

	for i := range page {
		msg := page[i]
		if msg.ChatID == 0 {
			msg.ChatID = s.chatID
		}
		if msg.ChatID != s.chatID {
			continue
		}
		if _, gone := s.deleted[msg.ID]; gone {
			continue
		}
		if cur, ok := s.byID[msg.ID]; ok && (!initial || cur.fetched) {
			continue
		}
		s.byID[msg.ID] = &entry{msg: msg.Clone(), fetched: true}
		if s.oldest == 0 || msg.ID < s.oldest {
			s.oldest = msg.ID
		}
	}
	if pageSize > 0 && len(page) < pageSize {
		s.exhausted = true
	}
	s.view = nil

	if initial {
		s.settle(FetchDone)
	}
}

// FailFetch settles a failed first fetch. Buffered updates apply to live messages only.
func (s *Store) FailFetch() {
	if s.state == FetchPending {
		s.settle(FetchFailed)
	}
}

// Recover marks a failed first fetch as done once a newest page has merged.
func (s *Store) Recover() {
	if s.state == FetchFailed {
		s.state = FetchDone
	}
}

func (s *Store) settle(state FetchState) {
	s.state = state
	pending := s.buffered
	s.buffered = nil
	for _, apply := range pending {
		apply()
	}
}

// Cursor returns the id to fetch older history before, and whether more may exist.
func (s *Store) Cursor() (int64, bool) {
	return s.oldest, !s.exhausted
}

// AddLive inserts a message that arrived on the event stream. Ids already held win.
func (s *Store) AddLive(msg core.Message) Result {
	if s.state == FetchPending {
		s.buffered = append(s.buffered, func() { s.addLive(msg) })
		return Buffered
	}
	return s.addLive(msg)
}

func (s *Store) addLive(msg core.Message) Result {
	if msg.ChatID == 0 {
		msg.ChatID = s.chatID
	}
	if msg.ChatID != s.chatID {
		return Ignored
	}
	if _, gone := s.deleted[msg.ID]; gone {
		return Duplicate
	}
	if _, ok := s.byID[msg.ID]; ok {
		return Duplicate
	}
	s.byID[msg.ID] = &entry{msg: msg.Clone()}
	s.view = nil
	return Applied
}

// Edit replaces the body of a held message and flags it edited.
func (s *Store) Edit(id int64, body string) Result {
	return s.mutate(id, func(m *core.Message) {
		m.Body = body
		m.IsEdited = true
	})
}

// Delete removes id from the visible sequence and keeps a tombstone so a later page cannot restore it.
func (s *Store) Delete(id int64) Result {
	if s.state == FetchPending {
		s.buffered = append(s.buffered, func() { s.delete(id) })
		return Buffered
	}
	return s.delete(id)
}

func (s *Store) delete(id int64) Result {
	if _, ok := s.byID[id]; !ok {
		return Ignored
	}
	delete(s.byID, id)
	s.deleted[id] = struct{}{}
	s.view = nil
	return Applied
}

// ToggleReaction flips userID's emoji reaction on a held message.
func (s *Store) ToggleReaction(id int64, emoji string, userID int64) Result {
	return s.mutate(id, func(m *core.Message) {
		m.ToggleReaction(emoji, userID)
	})
}

// SetReactions replaces the reaction set of a held message with a server-confirmed one.
func (s *Store) SetReactions(id int64, reactions []core.Reaction) Result {
	return s.mutate(id, func(m *core.Message) {
		cp := (&core.Message{Reactions: reactions}).Clone()
		m.Reactions = cp.Reactions
	})
}

// SetPinned updates the pinned flag of a held message.
func (s *Store) SetPinned(id int64, pinned bool) Result {
	return s.mutate(id, func(m *core.Message) {
		m.Pinned = pinned
	})
}

// MarkAuthoredRead marks every message written by the local actor as read.
// It is the effect of another member's read receipt.
func (s *Store) MarkAuthoredRead() Result {
	if s.state == FetchPending {
		s.buffered = append(s.buffered, func() { s.markAuthoredRead() })
		return Buffered
	}
	return s.markAuthoredRead()
}

func (s *Store) markAuthoredRead() Result {
	changed := false
	for _, e := range s.byID {
		if e.msg.Author.IsUser(s.self) && !e.msg.IsRead {
			e.msg.IsRead = true
			changed = true
		}
	}
	if !changed {
		return Ignored
	}
	s.view = nil
	return Applied
}

func (s *Store) mutate(id int64, fn func(*core.Message)) Result {
	if s.state == FetchPending {
		s.buffered = append(s.buffered, func() { s.apply(id, fn) })
		return Buffered
	}
	return s.apply(id, fn)
}

func (s *Store) apply(id int64, fn func(*core.Message)) Result {
	e, ok := s.byID[id]
	if !ok {
		return Ignored
	}
	fn(e.msg)
	s.view = nil
	return Applied
}

// Get returns a copy of the held message with id.
func (s *Store) Get(id int64) (*core.Message, bool) {
	e, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return e.msg.Clone(), true
}

// Len is the number of visible messages.
func (s *Store) Len() int { return len(s.byID) }

// Messages returns the reconciled sequence ordered by (created_at, id).
func (s *Store) Messages() []*core.Message {
	if s.view == nil {
		s.view = make([]*core.Message, 0, len(s.byID))
		for _, e := range s.byID {
			s.view = append(s.view, e.msg)
		}
		sort.Slice(s.view, func(i, j int) bool { return s.view[i].Before(s.view[j]) })
	}

	out := make([]*core.Message, len(s.view))
	for i, m := range s.view {
		out[i] = m.Clone()
	}
	return out
}

// Last returns the newest visible message, if any.
func (s *Store) Last() (*core.Message, bool) {
	msgs := s.Messages()
	if len(msgs) == 0 {
		return nil, false
	}
	return msgs[len(msgs)-1], true
}
