package engine

import (
	"sort"

	"github.com/internhub/messaging/internal/models"
)

// Aggregate turns a flat message snapshot into one conversation per
// counterpart. It is pure: no I/O, no shared state, deterministic output
// for a given input.
//
// Within a conversation, messages are ordered by CreatedAt ascending, ties
// broken by lower ID first, so the final element is the conversation's
// last message (max CreatedAt, ties by highest ID). The conversation list
// itself is ordered by last-message time, newest first.
func Aggregate(messages []models.Message) []models.Conversation {
	groups := make(map[string]*models.Conversation)

	for _, msg := range messages {
		conv, ok := groups[msg.CounterpartID]
		if !ok {
			conv = &models.Conversation{CounterpartID: msg.CounterpartID}
			groups[msg.CounterpartID] = conv
		}
		conv.Messages = append(conv.Messages, msg)
	}

	conversations := make([]models.Conversation, 0, len(groups))
	for _, conv := range groups {
		sort.SliceStable(conv.Messages, func(i, j int) bool {
			a, b := conv.Messages[i], conv.Messages[j]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		})

		conv.LastMessage = conv.Messages[len(conv.Messages)-1]
		conv.CounterpartName = conv.LastMessage.CounterpartName
		conv.CounterpartRole = conv.LastMessage.CounterpartRole

		conv.UnreadCount = 0
		for i := range conv.Messages {
			if conv.Messages[i].IsUnread() {
				conv.UnreadCount++
			}
		}

		conversations = append(conversations, *conv)
	}

	sort.Slice(conversations, func(i, j int) bool {
		a, b := conversations[i].LastMessage, conversations[j].LastMessage
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.ID != b.ID {
			return a.ID > b.ID
		}
		return conversations[i].CounterpartID < conversations[j].CounterpartID
	})

	return conversations
}

// UnreadMessageIDs collects the ids of every unread received message in a
// snapshot. This is the input the notification tracker observes.
func UnreadMessageIDs(messages []models.Message) []int64 {
	var ids []int64
	for i := range messages {
		if messages[i].IsUnread() {
			ids = append(ids, messages[i].ID)
		}
	}
	return ids
}

// TotalUnread sums the unread counters across conversations.
func TotalUnread(conversations []models.Conversation) int {
	total := 0
	for i := range conversations {
		total += conversations[i].UnreadCount
	}
	return total
}
