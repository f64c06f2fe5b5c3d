package conversation

import (
	"sort"
	"sync"
	"time"

	"kakioki/internal/domain"
)

const (
	// FriendRemovedMessage is set when the peer removed the conversation.
	FriendRemovedMessage = "Friend removed the conversation"
	// SelfRemovedMessage is set when this user removed the conversation.
	SelfRemovedMessage = "Conversation removed"
)

// maxPendingStatus bounds status deltas held for messages not yet seen.
const maxPendingStatus = 256

// Conversation is the state for one (self, friend) pair. It is safe for
// concurrent use.
type Conversation struct {
	mu        sync.Mutex
	self      domain.UserID
	friend    domain.UserID
	threadID  domain.ThreadID
	messages  []domain.ChatMessage
	block     domain.BlockState
	err       string
	loading   bool
	hasMore   bool
	listeners []func()

	// pending holds status deltas that arrived before their message.
	pending map[string]domain.StatusMetadata
}

// New returns an empty conversation owned by self.
func New(self domain.UserID) *Conversation {
	return &Conversation{self: self}
}

// OnChange registers fn to run after every mutation. fn runs without the
// lock held and may read the conversation.
func (c *Conversation) OnChange(fn func()) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Reset clears all state and points the conversation at friend.
func (c *Conversation) Reset(friend domain.UserID) {
	c.update(func() bool {
		c.friend = friend
		c.threadID = ""
		c.messages = nil
		c.block = domain.BlockState{}
		c.err = ""
		c.loading = false
		c.hasMore = false
		c.pending = nil
		return true
	})
}

// Self returns the owning user.
func (c *Conversation) Self() domain.UserID { return c.self }

// Friend returns the active peer.
func (c *Conversation) Friend() domain.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.friend
}

// Seed replaces the message list with msgs, typically the newest history
// page. Duplicate client ids within msgs are merged.
func (c *Conversation) Seed(msgs []domain.ChatMessage) {
	c.update(func() bool {
		c.messages = make([]domain.ChatMessage, 0, len(msgs))
		for _, m := range msgs {
			c.mergeLocked(m)
		}
		c.sortLocked()
		return true
	})
}

// MergeBatch folds msgs into the existing list, as for a page loaded after
// a cursor.
func (c *Conversation) MergeBatch(msgs []domain.ChatMessage) {
	c.update(func() bool {
		for _, m := range msgs {
			c.mergeLocked(m)
		}
		c.sortLocked()
		return len(msgs) > 0
	})
}

// Merge inserts msg or folds it into the entry with the same client id.
func (c *Conversation) Merge(msg domain.ChatMessage) {
	c.update(func() bool {
		c.mergeLocked(msg)
		c.sortLocked()
		return true
	})
}

func (c *Conversation) mergeLocked(msg domain.ChatMessage) {
	if i := c.indexLocked(msg.ClientMessageID); i >= 0 {
		c.messages[i] = mergeMessage(c.messages[i], msg)
		return
	}
	m := msg.Clone()
	if delta, ok := c.pending[m.ClientMessageID]; ok {
		delete(c.pending, m.ClientMessageID)
		m.Status = mergeStatus(m.Status, delta)
		m.State = ""
	}
	if m.State == "" {
		m.State = m.Status.State()
	}
	if m.State != domain.StateError {
		m.Error = ""
	}
	c.messages = append(c.messages, m)
}

func (c *Conversation) sortLocked() {
	sort.SliceStable(c.messages, func(i, j int) bool {
		return c.messages[i].CreatedAt.Before(c.messages[j].CreatedAt)
	})
}

// deferStatusLocked keeps delta until a message with the id is merged.
func (c *Conversation) deferStatusLocked(clientMessageID string, delta domain.StatusMetadata) {
	if cur, ok := c.pending[clientMessageID]; ok {
		c.pending[clientMessageID] = mergeStatus(cur, delta)
		return
	}
	if len(c.pending) >= maxPendingStatus {
		return
	}
	if c.pending == nil {
		c.pending = make(map[string]domain.StatusMetadata)
	}
	c.pending[clientMessageID] = delta.Clone()
}

// ApplyStatus merges delta into the status of the message with the given
// client id. It reports whether the message exists; a delta for an unknown
// id is held and applied when that message is merged.
func (c *Conversation) ApplyStatus(clientMessageID string, delta domain.StatusMetadata) bool {
	var found bool
	c.update(func() bool {
		i := c.indexLocked(clientMessageID)
		if i < 0 {
			c.deferStatusLocked(clientMessageID, delta)
			return false
		}
		found = true
		m := &c.messages[i]
		m.Status = mergeStatus(m.Status, delta)
		m.State = m.Status.State()
		if m.State != domain.StateError {
			m.Error = ""
		}
		return true
	})
	return found
}

// MarkFailed moves one in-flight message to the error state. A message the
// server already confirmed past sent keeps its state.
func (c *Conversation) MarkFailed(clientMessageID, errorCode, message string) bool {
	var found bool
	c.update(func() bool {
		i := c.indexLocked(clientMessageID)
		if i < 0 {
			return false
		}
		found = true
		m := &c.messages[i]
		m.Status = mergeStatus(m.Status, domain.StatusMetadata{
			Delivery:  domain.DeliveryFailed,
			ErrorCode: errorCode,
		})
		m.State = m.Status.State()
		if m.State == domain.StateError {
			m.Error = message
		}
		return true
	})
	return found
}

// MarkSending moves a failed message back to sending for a retry and
// returns the updated copy. Messages in any other state are left alone and
// reported as not found.
func (c *Conversation) MarkSending(clientMessageID string) (domain.ChatMessage, bool) {
	var out domain.ChatMessage
	var found bool
	c.update(func() bool {
		i := c.indexLocked(clientMessageID)
		if i < 0 || c.messages[i].State != domain.StateError {
			return false
		}
		found = true
		m := &c.messages[i]
		m.Status = mergeStatus(m.Status, domain.StatusMetadata{
			Delivery: domain.DeliverySending,
			Retries:  m.Status.Retries + 1,
		})
		m.State = m.Status.State()
		m.Error = ""
		out = m.Clone()
		return true
	})
	return out, found
}

// ApplyBlockControl applies a block, unblock or removal event. Events for
// another bound thread, and block events between other users, are ignored.
func (c *Conversation) ApplyBlockControl(evt domain.ControlEvent) bool {
	var applied bool
	c.update(func() bool {
		if c.threadID != "" && evt.ThreadID != c.threadID {
			return false
		}
		bySelf := evt.BlockerID == c.self && evt.BlockedID == c.friend
		byFriend := evt.BlockerID == c.friend && evt.BlockedID == c.self

		switch evt.Kind() {
		case domain.EventBlock:
			at := evt.CreatedAt
			switch {
			case bySelf:
				c.block.BlockedBySelf = true
			case byFriend:
				c.block.BlockedByFriend = true
			default:
				return false
			}
			c.block.CreatedAt = &at
		case domain.EventUnblock:
			switch {
			case bySelf:
				c.block.BlockedBySelf = false
			case byFriend:
				c.block.BlockedByFriend = false
			default:
				return false
			}
			c.block.CreatedAt = nil
		case domain.EventRemoved:
			c.messages = nil
			c.threadID = ""
			c.block = domain.BlockState{}
			c.hasMore = false
			c.pending = nil
			if evt.InitiatorID != c.self {
				c.err = FriendRemovedMessage
			} else {
				c.err = SelfRemovedMessage
			}
		default:
			return false
		}
		applied = true
		return true
	})
	return applied
}

// SetBlockState replaces the block flags.
func (c *Conversation) SetBlockState(b domain.BlockState) {
	c.update(func() bool {
		c.block = b
		return true
	})
}

// SetBlockedBySelf records a local block or unblock.
func (c *Conversation) SetBlockedBySelf(blocked bool, at time.Time) {
	c.update(func() bool {
		c.block.BlockedBySelf = blocked
		if blocked {
			c.block.CreatedAt = &at
		} else {
			c.block.CreatedAt = nil
		}
		return true
	})
}

// Clear drops messages and the thread binding after a local removal.
func (c *Conversation) Clear() {
	c.update(func() bool {
		c.messages = nil
		c.threadID = ""
		c.block = domain.BlockState{}
		c.hasMore = false
		c.err = ""
		c.pending = nil
		return true
	})
}

// BlockState returns the current block flags.
func (c *Conversation) BlockState() domain.BlockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block
}

// IsBlocked reports whether either side has blocked the other.
func (c *Conversation) IsBlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block.IsBlocked()
}

// Messages returns a copy of the ordered message list.
func (c *Conversation) Messages() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ChatMessage, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Clone()
	}
	return out
}

// Message returns a copy of the message with the given client id.
func (c *Conversation) Message(clientMessageID string) (domain.ChatMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(clientMessageID)
	if i < 0 {
		return domain.ChatMessage{}, false
	}
	return c.messages[i].Clone(), true
}

// ThreadID returns the bound thread, or "" before one exists.
func (c *Conversation) ThreadID() domain.ThreadID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

// BindThread sets the canonical thread id. It reports whether the id changed.
func (c *Conversation) BindThread(id domain.ThreadID) bool {
	var changed bool
	c.update(func() bool {
		changed = c.threadID != id
		c.threadID = id
		return changed
	})
	return changed
}

// Error returns the user-facing error, if any.
func (c *Conversation) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// SetError replaces the user-facing error; "" clears it.
func (c *Conversation) SetError(msg string) {
	c.update(func() bool {
		changed := c.err != msg
		c.err = msg
		return changed
	})
}

// Loading reports whether a history load is in flight.
func (c *Conversation) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// SetLoading sets the loading flag.
func (c *Conversation) SetLoading(v bool) {
	c.update(func() bool {
		changed := c.loading != v
		c.loading = v
		return changed
	})
}

// HasMore reports whether the last page was full.
func (c *Conversation) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// SetHasMore sets the more-available flag.
func (c *Conversation) SetHasMore(v bool) {
	c.update(func() bool {
		changed := c.hasMore != v
		c.hasMore = v
		return changed
	})
}

func (c *Conversation) indexLocked(clientMessageID string) int {
	for i := range c.messages {
		if c.messages[i].ClientMessageID == clientMessageID {
			return i
		}
	}
	return -1
}

// update runs fn under the lock and notifies listeners when fn reports a change.
func (c *Conversation) update(fn func() bool) {
	c.mu.Lock()
	changed := fn()
	listeners := append([]func(){}, c.listeners...)
	c.mu.Unlock()
	if !changed {
		return
	}
	for _, l := range listeners {
		l()
	}
}
