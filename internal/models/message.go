package models

import (
	"io"
	"time"
)

// Direction says which way a message went, relative to the current user.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Message is one record from the backend's flat message list.
// Server-confirmed messages are immutable. Optimistically sent messages
// carry a negative ID and a LocalID until a snapshot confirms them.
type Message struct {
	ID              int64      `json:"id"`
	LocalID         string     `json:"local_id,omitempty"`
	Direction       Direction  `json:"direction"`
	CounterpartID   string     `json:"counterpart_id"`
	CounterpartName string     `json:"counterpart_name"`
	CounterpartRole string     `json:"counterpart_role"`
	Subject         string     `json:"subject"`
	Body            string     `json:"body"`
	AttachmentRef   string     `json:"attachment_ref,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`
	ReplyToID       *int64     `json:"reply_to_id,omitempty"`
	Pending         bool       `json:"pending,omitempty"`
}

// IsUnread reports whether the message is a received message the user has
// not acknowledged yet. Sent messages are never unread.
func (m *Message) IsUnread() bool {
	return m.Direction == DirectionReceived && m.ReadAt == nil
}

// Conversation groups every message exchanged with one counterpart.
// It is derived from a snapshot and never persisted on its own.
type Conversation struct {
	CounterpartID   string    `json:"counterpart_id"`
	CounterpartName string    `json:"counterpart_name"`
	CounterpartRole string    `json:"counterpart_role"`
	Messages        []Message `json:"messages"`
	LastMessage     Message   `json:"last_message"`
	UnreadCount     int       `json:"unread_count"`
}

// Draft is user-entered content for a message that has not been sent yet.
// Attachment is streamed through to the backend untouched; the service
// never stores attachment bytes.
type Draft struct {
	RecipientID    string
	Subject        string
	Body           string
	ReplyToID      *int64
	AttachmentName string
	Attachment     io.Reader
}

// NotificationEvent is pushed to the UI when a poll discovers messages
// that were not in any previous snapshot. Transient, never persisted.
type NotificationEvent struct {
	Type        string  `json:"type"`
	Count       int     `json:"count"`
	MessageIDs  []int64 `json:"message_ids"`
	UnreadTotal int     `json:"unread_total"`
}

// TypingEvent is pushed to the UI when a counterpart's typing state
// changes. Best-effort and ephemeral.
type TypingEvent struct {
	Type          string `json:"type"`
	CounterpartID string `json:"counterpart_id"`
	IsTyping      bool   `json:"is_typing"`
}
