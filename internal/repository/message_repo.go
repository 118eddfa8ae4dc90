package repository

import (
	"context"
	"time"

	"github.com/gunesonchain/mekandayim/internal/models"
)

const messageColumns = `
	id, sender_id, receiver_id, content, image, is_read,
	deleted_by_sender, deleted_by_receiver,
	cleared_by_sender, cleared_by_receiver,
	created_at
`

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func scanMessage(row interface{ Scan(dest ...any) error }, message *models.Message) error {
	return row.Scan(
		&message.ID,
		&message.SenderID,
		&message.ReceiverID,
		&message.Content,
		&message.Image,
		&message.IsRead,
		&message.DeletedBySender,
		&message.DeletedByReceiver,
		&message.ClearedBySender,
		&message.ClearedByReceiver,
		&message.CreatedAt,
	)
}

func (r *MessageRepository) Create(
	ctx context.Context,
	senderID int64,
	receiverID int64,
	content string,
	image *string,
) (*models.Message, error) {
	query := `
		INSERT INTO messages (sender_id, receiver_id, content, image)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + messageColumns

	var message models.Message
	if err := scanMessage(r.db.QueryRow(ctx, query, senderID, receiverID, content, image), &message); err != nil {
		return nil, err
	}

	return &message, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1
	`

	var message models.Message
	if err := scanMessage(r.db.QueryRow(ctx, query, messageID), &message); err != nil {
		return nil, err
	}

	return &message, nil
}

// ListVisibleForViewer returns every message the viewer still sees in their
// conversation list, most recent first. A message disappears for the viewer
// only when their own delete flag is set; the counterpart's flags are
// irrelevant.
func (r *MessageRepository) ListVisibleForViewer(
	ctx context.Context,
	viewerID int64,
) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (sender_id = $1 AND deleted_by_sender = FALSE)
		   OR (receiver_id = $1 AND deleted_by_receiver = FALSE)
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var message models.Message
		if err := scanMessage(rows, &message); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// ListPairBefore returns up to limit messages of one conversation visible to
// the viewer, newest first. A zero beforeID means "from the newest"; otherwise
// only rows strictly older than beforeID are returned. Cleared messages are
// excluded from history, matching the list view showing them contentless while
// the thread view drops them.
func (r *MessageRepository) ListPairBefore(
	ctx context.Context,
	viewerID int64,
	otherUserID int64,
	beforeID int64,
	limit int,
) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE ((sender_id = $1 AND receiver_id = $2 AND deleted_by_sender = FALSE AND cleared_by_sender = FALSE)
		    OR (sender_id = $2 AND receiver_id = $1 AND deleted_by_receiver = FALSE AND cleared_by_receiver = FALSE))
		  AND ($3 = 0 OR id < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`

	rows, err := r.db.Query(ctx, query, viewerID, otherUserID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0, limit)
	for rows.Next() {
		var message models.Message
		if err := scanMessage(rows, &message); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// MarkConversationRead flips unread messages from senderID to receiverID.
// Idempotent: rows already read are untouched.
func (r *MessageRepository) MarkConversationRead(
	ctx context.Context,
	receiverID int64,
	senderID int64,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE
		WHERE sender_id = $1
		  AND receiver_id = $2
		  AND is_read = FALSE
	`, senderID, receiverID)
	return err
}

// ClearConversation hides content of every existing message between the actor
// and the counterpart from the actor's side. Two directional updates: one for
// rows the actor sent, one for rows they received.
func (r *MessageRepository) ClearConversation(
	ctx context.Context,
	actorID int64,
	otherUserID int64,
) error {
	if _, err := r.db.Exec(ctx, `
		UPDATE messages
		SET cleared_by_sender = TRUE
		WHERE sender_id = $1 AND receiver_id = $2
	`, actorID, otherUserID); err != nil {
		return err
	}

	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET cleared_by_receiver = TRUE
		WHERE sender_id = $1 AND receiver_id = $2
	`, otherUserID, actorID)
	return err
}

// DeleteConversation removes the conversation from the actor's list by
// flagging every message in both directions. The counterpart's view is
// unaffected.
func (r *MessageRepository) DeleteConversation(
	ctx context.Context,
	actorID int64,
	otherUserID int64,
) error {
	if _, err := r.db.Exec(ctx, `
		UPDATE messages
		SET deleted_by_sender = TRUE
		WHERE sender_id = $1 AND receiver_id = $2
	`, actorID, otherUserID); err != nil {
		return err
	}

	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET deleted_by_receiver = TRUE
		WHERE sender_id = $1 AND receiver_id = $2
	`, otherUserID, actorID)
	return err
}

// CountSentSince backs the sliding send-rate window. It counts against the
// table directly instead of a separate counter.
func (r *MessageRepository) CountSentSince(
	ctx context.Context,
	senderID int64,
	since time.Time,
) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE sender_id = $1
		  AND created_at >= $2
	`, senderID, since).Scan(&count)
	return count, err
}

func (r *MessageRepository) CountBySender(ctx context.Context, senderID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE sender_id = $1
	`, senderID).Scan(&count)
	return count, err
}
