package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type expiryRecorder struct {
	mu      sync.Mutex
	expired []typingKey
}

func (r *expiryRecorder) record(userID, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = append(r.expired, typingKey{userID: userID, conversationID: conversationID})
}

func (r *expiryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.expired)
}

func TestTypingTracker_ExpiresWithoutRenewal(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := NewTypingTracker(30*time.Millisecond, rec.record)
	defer tracker.Close()

	tracker.Start("user1", "conv1")
	assert.True(t, tracker.IsTyping("user1", "conv1"))

	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, 1, rec.count())
	assert.False(t, tracker.IsTyping("user1", "conv1"))
}

func TestTypingTracker_ExplicitStopPreventsExpiry(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := NewTypingTracker(50*time.Millisecond, rec.record)
	defer tracker.Close()

	tracker.Start("user1", "conv1")
	time.Sleep(10 * time.Millisecond)

	// Stop one fifth into the TTL: the stale timer from the start must not
	// fire later.
	assert.True(t, tracker.Stop("user1", "conv1"))
	assert.False(t, tracker.IsTyping("user1", "conv1"))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count())

	// A second stop is a no-op.
	assert.False(t, tracker.Stop("user1", "conv1"))
}

func TestTypingTracker_RestartReplacesTimer(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := NewTypingTracker(50*time.Millisecond, rec.record)
	defer tracker.Close()

	// Renew three times in quick succession; only the last timer survives,
	// so exactly one expiry fires.
	tracker.Start("user1", "conv1")
	time.Sleep(20 * time.Millisecond)
	tracker.Start("user1", "conv1")
	time.Sleep(20 * time.Millisecond)
	tracker.Start("user1", "conv1")

	// 40ms in: the original timer would have fired by now if it had not
	// been replaced.
	assert.Equal(t, 0, rec.count())

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestTypingTracker_EvictUser(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := NewTypingTracker(time.Minute, rec.record)
	defer tracker.Close()

	tracker.Start("user1", "conv1")
	tracker.Start("user1", "conv2")
	tracker.Start("user2", "conv1")

	evicted := tracker.EvictUser("user1")
	assert.ElementsMatch(t, []string{"conv1", "conv2"}, evicted)
	assert.False(t, tracker.IsTyping("user1", "conv1"))
	assert.True(t, tracker.IsTyping("user2", "conv1"))

	// Eviction cancels, it does not expire.
	assert.Equal(t, 0, rec.count())
}

func TestTypingTracker_CloseCancelsEverything(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := NewTypingTracker(20*time.Millisecond, rec.record)

	tracker.Start("user1", "conv1")
	tracker.Close()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, rec.count())

	// Starts after Close are ignored.
	tracker.Start("user2", "conv2")
	assert.False(t, tracker.IsTyping("user2", "conv2"))
}
