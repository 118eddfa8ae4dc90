package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gunesonchain/mekandayim/internal/metrics"
	"github.com/gunesonchain/mekandayim/internal/models"
	"github.com/gunesonchain/mekandayim/internal/realtime"
	"github.com/gunesonchain/mekandayim/pkg/apperr"
	"github.com/jackc/pgx/v5"
)

const (
	// rateWindow is the trailing interval the send quota is counted over.
	rateWindow = time.Minute

	// DefaultPageSize is the conversation history page length.
	DefaultPageSize = 20

	// imagePlaceholder is shown in the conversation list for image-only
	// messages.
	imagePlaceholder = "📷 Fotoğraf"
)

type messageStore interface {
	Create(ctx context.Context, senderID, receiverID int64, content string, image *string) (*models.Message, error)
	GetByID(ctx context.Context, messageID int64) (*models.Message, error)
	ListVisibleForViewer(ctx context.Context, viewerID int64) ([]models.Message, error)
	ListPairBefore(ctx context.Context, viewerID, otherUserID, beforeID int64, limit int) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, receiverID, senderID int64) error
	ClearConversation(ctx context.Context, actorID, otherUserID int64) error
	DeleteConversation(ctx context.Context, actorID, otherUserID int64) error
	CountSentSince(ctx context.Context, senderID int64, since time.Time) (int, error)
}

type userReader interface {
	GetByID(ctx context.Context, userID int64) (*models.User, error)
	UsernamesByIDs(ctx context.Context, userIDs []int64) (map[int64]string, error)
}

type DMService struct {
	store      messageStore
	users      userReader
	publisher  realtime.Publisher
	sendPerMin int
}

func NewDMService(
	store messageStore,
	users userReader,
	publisher realtime.Publisher,
	sendPerMin int,
) *DMService {
	if sendPerMin <= 0 {
		sendPerMin = 15
	}
	return &DMService{
		store:      store,
		users:      users,
		publisher:  publisher,
		sendPerMin: sendPerMin,
	}
}

// GetConversations derives the viewer's conversation list from a single
// descending scan of their visible messages. The first message seen per
// counterpart is the most recent one and becomes the summary row; unread
// counting spans every scanned message of that counterpart.
func (s *DMService) GetConversations(ctx context.Context, viewerID int64) ([]models.ConversationSummary, error) {
	if viewerID <= 0 {
		return []models.ConversationSummary{}, nil
	}

	messages, err := s.store.ListVisibleForViewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	order := make([]int64, 0)
	byUser := make(map[int64]*models.ConversationSummary)

	for i := range messages {
		message := &messages[i]

		otherUserID := message.SenderID
		if message.SenderID == viewerID {
			otherUserID = message.ReceiverID
		}

		cleared := message.ClearedBy(viewerID)
		unreadForViewer := !cleared && message.ReceiverID == viewerID && !message.IsRead

		summary, seen := byUser[otherUserID]
		if !seen {
			summary = &models.ConversationSummary{
				OtherUserID:   otherUserID,
				LastMessageAt: message.CreatedAt,
				IsRead:        !unreadForViewer,
			}
			switch {
			case cleared:
				summary.LastMessage = ""
			case message.Content != "":
				summary.LastMessage = message.Content
			case message.Image != nil && *message.Image != "":
				summary.LastMessage = imagePlaceholder
			}
			byUser[otherUserID] = summary
			order = append(order, otherUserID)
		}

		if unreadForViewer {
			summary.UnreadCount++
		}
	}

	usernames, err := s.users.UsernamesByIDs(ctx, order)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ConversationSummary, 0, len(order))
	for _, otherUserID := range order {
		summary := byUser[otherUserID]
		summary.OtherUsername = usernames[otherUserID]
		summaries = append(summaries, *summary)
	}

	metrics.ConversationsListed.Inc()
	return summaries, nil
}

// GetMessages returns one page of a conversation, oldest first. The initial
// page (no cursor) marks everything the counterpart sent as read; paging back
// into history never touches read state.
func (s *DMService) GetMessages(
	ctx context.Context,
	viewerID int64,
	otherUserID int64,
	cursor int64,
	pageSize int,
) (*models.MessagePage, error) {
	if viewerID <= 0 {
		return &models.MessagePage{Messages: []models.Message{}, HasMore: false}, nil
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	fetched, err := s.store.ListPairBefore(ctx, viewerID, otherUserID, cursor, pageSize+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(fetched) > pageSize
	if hasMore {
		fetched = fetched[:pageSize]
	}

	// Newest-first from the store; the page reads oldest-first.
	for i, j := 0, len(fetched)-1; i < j; i, j = i+1, j-1 {
		fetched[i], fetched[j] = fetched[j], fetched[i]
	}

	if cursor == 0 {
		if err := s.store.MarkConversationRead(ctx, viewerID, otherUserID); err != nil {
			return nil, err
		}
		for i := range fetched {
			if fetched[i].ReceiverID == viewerID {
				fetched[i].IsRead = true
			}
		}
	}

	return &models.MessagePage{Messages: fetched, HasMore: hasMore}, nil
}

// GetMessage returns one message to one of its participants. Anyone else, or
// a participant who deleted or cleared it, gets not-found.
func (s *DMService) GetMessage(ctx context.Context, viewerID int64, messageID int64) (*models.Message, error) {
	if viewerID <= 0 {
		return nil, apperr.Unauthorized("sign in to view messages")
	}

	message, err := s.store.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, err
	}

	if message.SenderID != viewerID && message.ReceiverID != viewerID {
		return nil, apperr.NotFound("message not found")
	}
	if message.DeletedBy(viewerID) || message.ClearedBy(viewerID) {
		return nil, apperr.NotFound("message not found")
	}

	return message, nil
}

// SendMessage persists a new message after the ban and rate checks, then
// fans it out. Fan-out failure never fails the send: the message is already
// durable and clients reconcile on their next fetch.
func (s *DMService) SendMessage(
	ctx context.Context,
	senderID int64,
	receiverID int64,
	content string,
	image *string,
) (*models.Message, error) {
	if senderID <= 0 {
		return nil, apperr.Unauthorized("sign in to send messages")
	}
	if receiverID <= 0 || receiverID == senderID {
		return nil, apperr.InvalidArg("invalid receiver")
	}

	trimmed := strings.TrimSpace(content)
	hasImage := image != nil && *image != ""
	if trimmed == "" && !hasImage {
		return nil, apperr.InvalidArg("message is empty")
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Unauthorized("unknown sender")
		}
		return nil, err
	}
	if sender.IsBanned {
		return nil, apperr.Banned("sender is banned from messaging")
	}

	receiver, err := s.users.GetByID(ctx, receiverID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("receiver not found")
		}
		return nil, err
	}
	if receiver.IsBanned {
		return nil, apperr.Banned("receiver cannot be messaged")
	}

	recent, err := s.store.CountSentSince(ctx, senderID, time.Now().Add(-rateWindow))
	if err != nil {
		return nil, err
	}
	if recent >= s.sendPerMin {
		metrics.SendsRateLimited.Inc()
		return nil, apperr.RateLimited("sending too fast, slow down")
	}

	if !hasImage {
		image = nil
	}
	message, err := s.store.Create(ctx, senderID, receiverID, trimmed, image)
	if err != nil {
		return nil, err
	}
	metrics.MessagesSent.Inc()

	s.fanOut(ctx, message)

	return message, nil
}

func (s *DMService) fanOut(ctx context.Context, message *models.Message) {
	if s.publisher == nil {
		return
	}

	convChannel := realtime.ConversationChannel(message.SenderID, message.ReceiverID)
	event := realtime.NewMessageEvent(message)
	if err := s.publisher.Publish(ctx, convChannel, realtime.EventNewMessage, event); err != nil {
		metrics.FanoutPublishErrors.Inc()
		log.Printf("dm fan-out %s: %v", convChannel, err)
	}

	userChannel := realtime.UserChannel(message.ReceiverID)
	info := realtime.InfoUpdateEvent{Kind: "message", FromUserID: message.SenderID}
	if err := s.publisher.Publish(ctx, userChannel, realtime.EventInfoUpdate, info); err != nil {
		metrics.FanoutPublishErrors.Inc()
		log.Printf("dm fan-out %s: %v", userChannel, err)
	}
}

// ClearConversation hides all current history with the counterpart from the
// caller's side. New messages are unaffected. Idempotent.
func (s *DMService) ClearConversation(ctx context.Context, actorID int64, otherUserID int64) error {
	if actorID <= 0 {
		return apperr.Unauthorized("sign in to manage conversations")
	}
	if otherUserID <= 0 {
		return apperr.InvalidArg("invalid user")
	}
	return s.store.ClearConversation(ctx, actorID, otherUserID)
}

// DeleteConversation removes the conversation from the caller's list.
// Idempotent; the counterpart keeps their copy.
func (s *DMService) DeleteConversation(ctx context.Context, actorID int64, otherUserID int64) error {
	if actorID <= 0 {
		return apperr.Unauthorized("sign in to manage conversations")
	}
	if otherUserID <= 0 {
		return apperr.InvalidArg("invalid user")
	}
	return s.store.DeleteConversation(ctx, actorID, otherUserID)
}
