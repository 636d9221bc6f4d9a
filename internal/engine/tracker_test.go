package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerColdStartSuppression(t *testing.T) {
	tracker := NewTracker()

	// Pre-existing unread messages at login must not fire a storm.
	decision := tracker.Observe([]int64{1, 2, 3})
	assert.False(t, decision.Notify)
	assert.Zero(t, decision.Count)
}

func TestTrackerNotifiesOnceForNewIDs(t *testing.T) {
	tracker := NewTracker()
	tracker.Observe([]int64{1, 2})

	decision := tracker.Observe([]int64{1, 2, 3})
	require.True(t, decision.Notify)
	assert.Equal(t, 1, decision.Count)
	assert.Equal(t, []int64{3}, decision.NewIDs)

	// Same set again: nothing new, nothing fires.
	decision = tracker.Observe([]int64{1, 2, 3})
	assert.False(t, decision.Notify)
}

func TestTrackerExactlyOncePerNewMessage(t *testing.T) {
	tracker := NewTracker()
	tracker.Observe([]int64{1, 2}) // cold start

	increments := [][]int64{
		{1, 2, 3},
		{1, 2, 3, 4, 5},
		{1, 2, 3, 4, 5, 6},
	}

	totalNotified := 0
	for _, ids := range increments {
		decision := tracker.Observe(ids)
		totalNotified += decision.Count
	}

	// Ids 3..6 arrived after the first observation; each counted once,
	// the cold-start ids never.
	assert.Equal(t, 4, totalNotified)
}

func TestTrackerShrinkingSetDoesNotNotify(t *testing.T) {
	tracker := NewTracker()
	tracker.Observe([]int64{1, 2, 3})

	// Messages read elsewhere drop out of the unread set.
	decision := tracker.Observe([]int64{1})
	assert.False(t, decision.Notify)

	// An id that disappeared and never returns stays gone; a genuinely
	// new id still notifies.
	decision = tracker.Observe([]int64{1, 9})
	require.True(t, decision.Notify)
	assert.Equal(t, []int64{9}, decision.NewIDs)
}

func TestTrackerReappearingIDNotifiesAgain(t *testing.T) {
	tracker := NewTracker()
	tracker.Observe([]int64{1, 2})

	// The seen set is replaced, not accumulated: once 2 leaves the
	// unread set it is forgotten.
	tracker.Observe([]int64{1})

	decision := tracker.Observe([]int64{1, 2})
	assert.True(t, decision.Notify)
	assert.Equal(t, []int64{2}, decision.NewIDs)
}

func TestTrackerRestoreSkipsColdStart(t *testing.T) {
	tracker := NewTracker()
	tracker.Restore([]int64{1, 2})

	// Restored state stands in for the first observation; new arrivals
	// notify immediately.
	decision := tracker.Observe([]int64{1, 2, 3})
	require.True(t, decision.Notify)
	assert.Equal(t, []int64{3}, decision.NewIDs)
}

func TestTrackerRestoreEmptyStateIsInitialized(t *testing.T) {
	tracker := NewTracker()
	tracker.Restore(nil)

	// Everything unread arrived after the restored session saved its
	// (empty) state, so it is genuinely new.
	decision := tracker.Observe([]int64{5})
	assert.True(t, decision.Notify)
}

func TestTrackerLoginScenario(t *testing.T) {
	// Two unread messages from the same counterpart exist at login.
	tracker := NewTracker()

	decision := tracker.Observe([]int64{1, 2})
	assert.False(t, decision.Notify, "cold start must not notify")

	// Counterpart sends message 3.
	decision = tracker.Observe([]int64{1, 2, 3})
	require.True(t, decision.Notify)
	assert.Equal(t, 1, decision.Count)
	assert.Equal(t, []int64{3}, decision.NewIDs)

	// Everything marked read; the unread set empties out.
	decision = tracker.Observe([]int64{})
	assert.False(t, decision.Notify)
}

func TestTrackerSeenIDsSorted(t *testing.T) {
	tracker := NewTracker()
	tracker.Observe([]int64{5, 1, 3})

	assert.Equal(t, []int64{1, 3, 5}, tracker.SeenIDs())
}
