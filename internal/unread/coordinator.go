package unread

// Trigger says why a chat is being marked read.
type Trigger int

const (
	// TriggerFocus is the user clicking into the message area of a chat.
	// It is suppressed once after MarkUnread.
	TriggerFocus Trigger = iota
	// TriggerExplicit is a deliberate "mark as read" or sending a message. It always applies.
	TriggerExplicit
)

// seenLimit bounds the per-chat set of message ids already counted.
const seenLimit = 256

type chatState struct {
	count int
	skip  bool
	seen  map[int64]struct{}
	order []int64
}

// Coordinator owns unread counters. Counters move only on live messages from
// others, explicit read actions, and the local actor's own read confirmation.
type Coordinator struct {
	self    int64
	focused int64
	chats   map[int64]*chatState
}

// New creates a coordinator for the local actor self.
func New(self int64) *Coordinator {
	return &Coordinator{self: self, chats: make(map[int64]*chatState)}
}

func (c *Coordinator) state(chatID int64) *chatState {
	st, ok := c.chats[chatID]
	if !ok {
		st = &chatState{seen: make(map[int64]struct{})}
		c.chats[chatID] = st
	}
	return st
}

// Seed sets the counter reported by a chat-list fetch.
func (c *Coordinator) Seed(chatID int64, count int) {
	if count < 0 {
		count = 0
	}
	c.state(chatID).count = count
}

// Focus sets the chat the user is looking at. Zero clears focus.
func (c *Coordinator) Focus(chatID int64) { c.focused = chatID }

// Focused returns the focused chat id, or 0.
func (c *Coordinator) Focused() int64 { return c.focused }

// OnMessage counts a live message. It increments only for messages by someone
// else, in an unfocused chat, not counted before. It returns true on increment.
func (c *Coordinator) OnMessage(chatID, messageID, authorID int64, fromSelf bool) bool {
	st := c.state(chatID)
	if _, dup := st.seen[messageID]; dup {
		return false
	}
	st.seen[messageID] = struct{}{}
	st.order = append(st.order, messageID)
	if len(st.order) > seenLimit {
		delete(st.seen, st.order[0])
		st.order = st.order[1:]
	}

	if fromSelf || authorID == 0 || chatID == c.focused {
		return false
	}
	st.count++
	return true
}

// MarkRead resets the counter for a user action. It returns false when a
// focus-triggered mark was suppressed by a pending MarkUnread, in which case
// no read frame should be sent.
func (c *Coordinator) MarkRead(chatID int64, trigger Trigger) bool {
	st := c.state(chatID)
	if trigger == TriggerFocus && st.skip {
		st.skip = false
		return false
	}
	st.skip = false
	st.count = 0
	return true
}

// MarkUnread records a deliberate unread mark. The counter shows at least one
// and the next focus-triggered MarkRead is skipped.
func (c *Coordinator) MarkUnread(chatID int64) {
	st := c.state(chatID)
	st.skip = true
	if st.count == 0 {
		st.count = 1
	}
}

// SkipPending reports whether the next focus-triggered mark will be skipped.
func (c *Coordinator) SkipPending(chatID int64) bool {
	st, ok := c.chats[chatID]
	return ok && st.skip
}

// OnReadConfirmed applies the server echo of the local actor's own read. It
// resets the counter; a pending skip still applies to the next focus mark.
func (c *Coordinator) OnReadConfirmed(chatID int64) {
	c.state(chatID).count = 0
}

// Count returns the unread counter of chatID.
func (c *Coordinator) Count(chatID int64) int {
	if st, ok := c.chats[chatID]; ok {
		return st.count
	}
	return 0
}

// Forget drops all state for chatID.
func (c *Coordinator) Forget(chatID int64) {
	delete(c.chats, chatID)
	if c.focused == chatID {
		c.focused = 0
	}
}
