package services

import (
	"sync"
	"time"
)

// DefaultTypingTTL is how long a typing indicator lives without renewal.
const DefaultTypingTTL = 3 * time.Second

type typingKey struct {
	userID         string
	conversationID string
}

// TypingTracker holds the ephemeral per-(user, conversation) typing state.
// Each start arms one expiry timer; a repeated start for the same key must
// cancel and replace the existing timer, never stack a second one.
type TypingTracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	timers   map[typingKey]*time.Timer
	onExpire func(userID, conversationID string)
	closed   bool
}

// NewTypingTracker builds a tracker whose expiry callback fires when a
// typing indicator times out without an explicit stop. ttl <= 0 selects
// DefaultTypingTTL.
func NewTypingTracker(ttl time.Duration, onExpire func(userID, conversationID string)) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{
		ttl:      ttl,
		timers:   make(map[typingKey]*time.Timer),
		onExpire: onExpire,
	}
}

// Start records that the user is typing and (re)arms the expiry timer.
func (t *TypingTracker) Start(userID, conversationID string) {
	key := typingKey{userID: userID, conversationID: conversationID}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	if prev, ok := t.timers[key]; ok {
		prev.Stop()
	}
	t.timers[key] = time.AfterFunc(t.ttl, func() {
		t.expire(key)
	})
}

func (t *TypingTracker) expire(key typingKey) {
	t.mu.Lock()
	_, ok := t.timers[key]
	if ok {
		delete(t.timers, key)
	}
	t.mu.Unlock()

	// Fire outside the lock; the callback broadcasts over sockets.
	if ok && t.onExpire != nil {
		t.onExpire(key.userID, key.conversationID)
	}
}

// Stop cancels the pending timer and evicts the key. Returns whether the
// user was actually marked as typing, so callers can skip a redundant
// typing=false broadcast.
func (t *TypingTracker) Stop(userID, conversationID string) bool {
	key := typingKey{userID: userID, conversationID: conversationID}

	t.mu.Lock()
	defer t.mu.Unlock()
	timer, ok := t.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.timers, key)
	return true
}

// IsTyping reports whether the key currently has a live indicator.
func (t *TypingTracker) IsTyping(userID, conversationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[typingKey{userID: userID, conversationID: conversationID}]
	return ok
}

// EvictUser clears every indicator the user holds, returning the affected
// conversation ids so the caller can broadcast typing=false for each. Used
// on disconnect.
func (t *TypingTracker) EvictUser(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var conversations []string
	for key, timer := range t.timers {
		if key.userID == userID {
			timer.Stop()
			delete(t.timers, key)
			conversations = append(conversations, key.conversationID)
		}
	}
	return conversations
}

// Close cancels all timers; the tracker accepts no further starts.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}
