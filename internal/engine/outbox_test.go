package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/internhub/messaging/internal/models"
)

func draft(recipient, body string) models.Draft {
	return models.Draft{RecipientID: recipient, Subject: "weekly report", Body: body}
}

func TestOutboxValidate(t *testing.T) {
	outbox := NewOutbox()

	assert.ErrorIs(t, outbox.Validate(draft("", "hello")), ErrNoRecipient)
	assert.ErrorIs(t, outbox.Validate(draft("supervisor-7", "   ")), ErrEmptyBody)
	assert.NoError(t, outbox.Validate(draft("supervisor-7", "hello")))
}

func TestOutboxStageProjectsProvisionalMessage(t *testing.T) {
	outbox := NewOutbox()
	now := ts(0)

	msg := outbox.Stage(draft("supervisor-7", "hello"), now)

	assert.Negative(t, msg.ID, "provisional messages carry temporary negative ids")
	assert.NotEmpty(t, msg.LocalID)
	assert.True(t, msg.Pending)
	assert.Equal(t, models.DirectionSent, msg.Direction)
	assert.Nil(t, msg.ReadAt)
	assert.Nil(t, msg.DeliveredAt)

	second := outbox.Stage(draft("supervisor-7", "again"), now)
	assert.NotEqual(t, msg.ID, second.ID)
	assert.NotEqual(t, msg.LocalID, second.LocalID)
}

func TestOutboxFailRestoresDraft(t *testing.T) {
	outbox := NewOutbox()
	original := draft("supervisor-7", "hello")

	msg := outbox.Stage(original, ts(0))
	restored, ok := outbox.Fail(msg.LocalID)

	require.True(t, ok)
	assert.Equal(t, original.Body, restored.Body)
	assert.Equal(t, original.RecipientID, restored.RecipientID)
	assert.Empty(t, outbox.Pending(), "failed send leaves no provisional message behind")

	_, ok = outbox.Fail(msg.LocalID)
	assert.False(t, ok, "second rollback is a no-op")
}

func TestOutboxReconcileDropsConfirmedMatch(t *testing.T) {
	outbox := NewOutbox()
	stagedAt := ts(0)

	msg := outbox.Stage(draft("supervisor-7", "hello"), stagedAt)
	outbox.Settle(msg.LocalID, stagedAt.Add(200*time.Millisecond))

	confirmed := []models.Message{{
		ID:            41,
		Direction:     models.DirectionSent,
		CounterpartID: "supervisor-7",
		Body:          "hello",
		CreatedAt:     stagedAt.Add(100 * time.Millisecond),
	}}

	outbox.Reconcile(confirmed, stagedAt.Add(time.Second))
	assert.Empty(t, outbox.Pending())

	// Idempotent: reconciling the same snapshot again changes nothing.
	outbox.Reconcile(confirmed, stagedAt.Add(2*time.Second))
	assert.Empty(t, outbox.Pending())
}

func TestOutboxReconcileIgnoresNearMisses(t *testing.T) {
	outbox := NewOutbox()
	stagedAt := ts(0)
	fetchStarted := stagedAt.Add(-time.Minute)

	msg := outbox.Stage(draft("supervisor-7", "hello"), stagedAt)
	outbox.Settle(msg.LocalID, stagedAt.Add(200*time.Millisecond))

	candidates := []models.Message{
		// Same body, wrong counterpart.
		{ID: 1, Direction: models.DirectionSent, CounterpartID: "coordinator-2", Body: "hello", CreatedAt: stagedAt},
		// Right counterpart, different body.
		{ID: 2, Direction: models.DirectionSent, CounterpartID: "supervisor-7", Body: "other", CreatedAt: stagedAt},
		// Right everything, but far outside the round-trip window.
		{ID: 3, Direction: models.DirectionSent, CounterpartID: "supervisor-7", Body: "hello", CreatedAt: stagedAt.Add(time.Hour)},
		// Received, not sent.
		{ID: 4, Direction: models.DirectionReceived, CounterpartID: "supervisor-7", Body: "hello", CreatedAt: stagedAt},
	}

	outbox.Reconcile(candidates, fetchStarted)
	assert.Len(t, outbox.Pending(), 1, "no near miss may swallow the provisional message")
}

func TestOutboxReconcileSupersedesStaleEntries(t *testing.T) {
	outbox := NewOutbox()
	stagedAt := ts(0)

	outbox.Stage(draft("supervisor-7", "hello"), stagedAt)

	// The snapshot fetch began after the entry was staged and does not
	// contain a match: full replacement wins, the projection is dropped.
	outbox.Reconcile(nil, stagedAt.Add(time.Minute))
	assert.Empty(t, outbox.Pending())
}

func TestOutboxReconcileKeepsEntriesStagedAfterFetch(t *testing.T) {
	outbox := NewOutbox()
	fetchStarted := ts(0)

	// Staged while the fetch was already on the wire: the snapshot
	// cannot know about it yet, so it must survive.
	outbox.Stage(draft("supervisor-7", "hello"), fetchStarted.Add(time.Second))

	outbox.Reconcile(nil, fetchStarted)
	assert.Len(t, outbox.Pending(), 1)
}

func TestOutboxDropForCounterpart(t *testing.T) {
	outbox := NewOutbox()
	outbox.Stage(draft("supervisor-7", "one"), ts(0))
	outbox.Stage(draft("coordinator-2", "two"), ts(0))

	outbox.DropForCounterpart("supervisor-7")

	pending := outbox.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "coordinator-2", pending[0].CounterpartID)
}
