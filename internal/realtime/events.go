package realtime

import (
	"fmt"
	"time"

	"github.com/gunesonchain/mekandayim/internal/models"
)

const (
	EventNewMessage = "new-message"
	EventInfoUpdate = "info-update"
)

// ConversationChannel names the pair channel. The two ids are ordered so both
// participants derive the same name.
func ConversationChannel(userA, userB int64) string {
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("dm:conv:%d:%d", lo, hi)
}

func UserChannel(userID int64) string {
	return fmt.Sprintf("dm:user:%d", userID)
}

// MessageEvent is the new-message payload. Image bytes never ride the
// channel; subscribers pull the full message by id when HasImage is set.
type MessageEvent struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Content    string    `json:"content"`
	HasImage   bool      `json:"has_image"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewMessageEvent(message *models.Message) MessageEvent {
	return MessageEvent{
		ID:         message.ID,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Content:    message.Content,
		HasImage:   message.Image != nil && *message.Image != "",
		IsRead:     message.IsRead,
		CreatedAt:  message.CreatedAt,
	}
}

// InfoUpdateEvent nudges a user's client to refresh its unread badges.
type InfoUpdateEvent struct {
	Kind       string `json:"kind"`
	FromUserID int64  `json:"from_user_id"`
}
