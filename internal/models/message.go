package models

import "time"

// Message is the durable DM row. It is immutable after insert except for
// is_read and the four per-user visibility flags.
type Message struct {
	ID                int64     `json:"id"`
	SenderID          int64     `json:"sender_id"`
	ReceiverID        int64     `json:"receiver_id"`
	Content           string    `json:"content"`
	Image             *string   `json:"image,omitempty"`
	IsRead            bool      `json:"is_read"`
	DeletedBySender   bool      `json:"-"`
	DeletedByReceiver bool      `json:"-"`
	ClearedBySender   bool      `json:"-"`
	ClearedByReceiver bool      `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

// DeletedBy reports whether the given participant removed the message from
// their conversation list. A non-participant sees it as deleted.
func (m *Message) DeletedBy(userID int64) bool {
	switch userID {
	case m.SenderID:
		return m.DeletedBySender
	case m.ReceiverID:
		return m.DeletedByReceiver
	default:
		return true
	}
}

// ClearedBy reports whether the given participant hid the message content.
func (m *Message) ClearedBy(userID int64) bool {
	switch userID {
	case m.SenderID:
		return m.ClearedBySender
	case m.ReceiverID:
		return m.ClearedByReceiver
	default:
		return true
	}
}

// ConversationSummary is one row of a viewer's conversation list. It is
// derived per request, never stored.
type ConversationSummary struct {
	OtherUserID   int64     `json:"other_user_id"`
	OtherUsername string    `json:"other_username"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	IsRead        bool      `json:"is_read"`
	UnreadCount   int       `json:"unread_count"`
}

// MessagePage is one page of conversation history, oldest first.
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}
