package typing

import (
	"sort"
	"time"
)

// DefaultTTL is how long a typing indicator lives without a refresh.
const DefaultTTL = 3 * time.Second

// Aggregator keeps, per chat, who is typing and until when. Reads filter out
// expired entries, so callers never see an indicator past its window even if
// the expiry timer has not fired yet.
type Aggregator struct {
	ttl     time.Duration
	self    int64
	now     func() time.Time
	entries map[int64]map[int64]time.Time
}

// New creates an aggregator. self is the local actor, who is never inserted.
func New(ttl time.Duration, self int64) *Aggregator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Aggregator{
		ttl:     ttl,
		self:    self,
		now:     time.Now,
		entries: make(map[int64]map[int64]time.Time),
	}
}

// TTL returns the expiry window.
func (a *Aggregator) TTL() time.Duration { return a.ttl }

// Touch adds or refreshes (chatID, userID). It returns the new expiry and false when the user is the local actor.
func (a *Aggregator) Touch(chatID, userID int64) (time.Time, bool) {
	if userID == a.self {
		return time.Time{}, false
	}
	users, ok := a.entries[chatID]
	if !ok {
		users = make(map[int64]time.Time)
		a.entries[chatID] = users
	}
	expiry := a.now().Add(a.ttl)
	users[userID] = expiry
	return expiry, true
}

// Expire removes (chatID, userID) if its window has elapsed. It returns true if the entry was removed.
func (a *Aggregator) Expire(chatID, userID int64) bool {
	users, ok := a.entries[chatID]
	if !ok {
		return false
	}
	expiry, ok := users[userID]
	if !ok || a.now().Before(expiry) {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(a.entries, chatID)
	}
	return true
}

// Stop removes (chatID, userID) immediately, e.g. when that user's message arrives.
func (a *Aggregator) Stop(chatID, userID int64) bool {
	users, ok := a.entries[chatID]
	if !ok {
		return false
	}
	if _, ok := users[userID]; !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(a.entries, chatID)
	}
	return true
}

// ClearChat drops every entry for chatID.
func (a *Aggregator) ClearChat(chatID int64) {
	delete(a.entries, chatID)
}

// Active returns users currently typing in chatID, ascending.
func (a *Aggregator) Active(chatID int64) []int64 {
	now := a.now()
	var out []int64
	for userID, expiry := range a.entries[chatID] {
		if now.Before(expiry) {
			out = append(out, userID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
