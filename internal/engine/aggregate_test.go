package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/internhub/messaging/internal/models"
)

func ts(minutes int) time.Time {
	return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
}

func received(id int64, counterpart string, createdAt time.Time, readAt *time.Time) models.Message {
	return models.Message{
		ID:            id,
		Direction:     models.DirectionReceived,
		CounterpartID: counterpart,
		CreatedAt:     createdAt,
		ReadAt:        readAt,
	}
}

func sent(id int64, counterpart string, createdAt time.Time) models.Message {
	return models.Message{
		ID:            id,
		Direction:     models.DirectionSent,
		CounterpartID: counterpart,
		CreatedAt:     createdAt,
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	assert.Empty(t, Aggregate(nil))
	assert.Empty(t, Aggregate([]models.Message{}))
}

func TestAggregatePartitionsMessages(t *testing.T) {
	snapshot := []models.Message{
		received(1, "supervisor-7", ts(0), nil),
		sent(2, "supervisor-7", ts(1)),
		received(3, "coordinator-2", ts(2), nil),
		received(4, "supervisor-7", ts(3), nil),
		sent(5, "student-9", ts(4)),
	}

	conversations := Aggregate(snapshot)
	require.Len(t, conversations, 3)

	// Every message lands in exactly one conversation.
	total := 0
	seen := make(map[int64]int)
	for _, conv := range conversations {
		total += len(conv.Messages)
		for _, msg := range conv.Messages {
			assert.Equal(t, conv.CounterpartID, msg.CounterpartID)
			seen[msg.ID]++
		}
	}
	assert.Equal(t, len(snapshot), total)
	for id, count := range seen {
		assert.Equalf(t, 1, count, "message %d appears %d times", id, count)
	}
}

func TestAggregateOrdersByLastActivity(t *testing.T) {
	conversations := Aggregate([]models.Message{
		received(1, "a", ts(0), nil),
		received(2, "b", ts(10), nil),
		received(3, "c", ts(5), nil),
	})

	require.Len(t, conversations, 3)
	assert.Equal(t, "b", conversations[0].CounterpartID)
	assert.Equal(t, "c", conversations[1].CounterpartID)
	assert.Equal(t, "a", conversations[2].CounterpartID)
}

func TestAggregateLastMessageTieBreaksOnID(t *testing.T) {
	conversations := Aggregate([]models.Message{
		received(10, "a", ts(0), nil),
		received(12, "a", ts(0), nil),
		received(11, "a", ts(0), nil),
	})

	require.Len(t, conversations, 1)
	assert.Equal(t, int64(12), conversations[0].LastMessage.ID)
}

func TestAggregateUnreadCount(t *testing.T) {
	readAt := ts(1)
	conversations := Aggregate([]models.Message{
		received(1, "a", ts(0), &readAt),
		received(2, "a", ts(2), nil),
		received(3, "a", ts(3), nil),
		sent(4, "a", ts(4)),
	})

	require.Len(t, conversations, 1)
	// Sent messages never count as unread, read receipts do not either.
	assert.Equal(t, 2, conversations[0].UnreadCount)
}

func TestAggregateSentOnlyConversation(t *testing.T) {
	conversations := Aggregate([]models.Message{
		sent(1, "supervisor-7", ts(0)),
		sent(2, "supervisor-7", ts(1)),
	})

	require.Len(t, conversations, 1)
	assert.Equal(t, 0, conversations[0].UnreadCount)
	assert.Equal(t, int64(2), conversations[0].LastMessage.ID)
}

func TestAggregateIdempotent(t *testing.T) {
	snapshot := []models.Message{
		received(1, "a", ts(0), nil),
		sent(2, "a", ts(1)),
		received(3, "b", ts(2), nil),
		received(4, "a", ts(3), nil),
	}

	first := Aggregate(snapshot)

	// Re-aggregating the aggregator's own output reproduces the result.
	var flattened []models.Message
	for _, conv := range first {
		flattened = append(flattened, conv.Messages...)
	}
	second := Aggregate(flattened)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].CounterpartID, second[i].CounterpartID)
		assert.Equal(t, first[i].LastMessage, second[i].LastMessage)
		assert.Equal(t, first[i].UnreadCount, second[i].UnreadCount)
	}
}

func TestUnreadMessageIDs(t *testing.T) {
	readAt := ts(1)
	ids := UnreadMessageIDs([]models.Message{
		received(1, "a", ts(0), &readAt),
		received(2, "a", ts(2), nil),
		sent(3, "a", ts(3)),
		received(4, "b", ts(4), nil),
	})

	assert.ElementsMatch(t, []int64{2, 4}, ids)
}
