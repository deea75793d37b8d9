package presence

import "sort"

// Tracker is the set of users last reported online. It changes only on presence events.
type Tracker struct {
	online map[int64]struct{}
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{online: make(map[int64]struct{})}
}

// SetOnline adds userID. It returns false if the user was already online.
func (t *Tracker) SetOnline(userID int64) bool {
	if _, ok := t.online[userID]; ok {
		return false
	}
	t.online[userID] = struct{}{}
	return true
}

// SetOffline removes userID. It returns false if the user was not tracked as online.
func (t *Tracker) SetOffline(userID int64) bool {
	if _, ok := t.online[userID]; !ok {
		return false
	}
	delete(t.online, userID)
	return true
}

// IsOnline reports the last known state of userID.
func (t *Tracker) IsOnline(userID int64) bool {
	_, ok := t.online[userID]
	return ok
}

// Online returns online user ids in ascending order.
func (t *Tracker) Online() []int64 {
	out := make([]int64, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of online users.
func (t *Tracker) Len() int { return len(t.online) }
