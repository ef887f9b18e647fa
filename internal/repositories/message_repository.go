package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"dm-service/internal/models"
)

// Page selects a window of a conversation. Limit <= 0 means no limit.
type Page struct {
	Limit  int
	Offset int
}

// ClearResult reports what a conversation clear removed.
type ClearResult struct {
	MessagesDeleted int64
	MarkersDeleted  int64
	// OrphanedBlobs are blob refs no remaining message points to.
	OrphanedBlobs []string
}

// MessageRepository is the conversation store.
type MessageRepository interface {
	AppendMessage(ctx context.Context, conversationKey, senderID, recipientID string, content models.Content) (models.Message, error)
	ListMessages(ctx context.Context, conversationKey string, page Page) ([]models.Message, error)
	ClearConversation(ctx context.Context, conversationKey string) (ClearResult, error)
}

// MessageRepo is a sqlx-backed, append-only message log.
type MessageRepo struct {
	store
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB, timeout time.Duration) *MessageRepo {
	return &MessageRepo{store: newStore(db, timeout)}
}

type messageRow struct {
	ID              int64  `db:"id"`
	ConversationKey string `db:"conversation_key"`
	SenderID        string `db:"sender_id"`
	RecipientID     string `db:"recipient_id"`
	Kind            string `db:"kind"`
	Body            string `db:"body"`
	BlobRef         string `db:"blob_ref"`
	BlobSize        int64  `db:"blob_size"`
	BlobType        string `db:"blob_type"`
	CreatedAt       int64  `db:"created_at"`
}

func (m messageRow) toModel() models.Message {
	return models.Message{
		ID:              m.ID,
		ConversationKey: m.ConversationKey,
		SenderID:        m.SenderID,
		RecipientID:     m.RecipientID,
		Content: models.Content{
			Kind:     models.ContentKind(m.Kind),
			Text:     m.Body,
			BlobRef:  m.BlobRef,
			Size:     m.BlobSize,
			MimeType: m.BlobType,
		},
		CreatedAt: fromMicros(m.CreatedAt),
	}
}

const messageColumns = `id, conversation_key, sender_id, recipient_id, kind, body, blob_ref, blob_size, blob_type, created_at`

// AppendMessage stores a message and returns it with its assigned id and
// creation time.
func (r *MessageRepo) AppendMessage(ctx context.Context, conversationKey, senderID, recipientID string, content models.Content) (models.Message, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	msg := models.Message{
		ConversationKey: conversationKey,
		SenderID:        senderID,
		RecipientID:     recipientID,
		Content:         content,
		CreatedAt:       r.now(),
	}
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO messages
        (conversation_key, sender_id, recipient_id, kind, body, blob_ref, blob_size, blob_type, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		conversationKey, senderID, recipientID, string(content.Kind), content.Text,
		content.BlobRef, content.Size, content.MimeType, toMicros(msg.CreatedAt)).Scan(&msg.ID)
	if err != nil {
		return models.Message{}, classify("append message", err)
	}
	// match the precision read back by ListMessages
	msg.CreatedAt = fromMicros(toMicros(msg.CreatedAt))
	return msg, nil
}

// ListMessages returns the conversation ordered by creation time, then id.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationKey string, page Page) ([]models.Message, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_key = ? ORDER BY created_at ASC, id ASC`
	args := []any{conversationKey}
	if page.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, page.Limit, max(page.Offset, 0))
	}

	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, classify("list messages", err)
	}
	if page.Limit <= 0 && page.Offset > 0 {
		if page.Offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[page.Offset:]
		}
	}

	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toModel())
	}
	return msgs, nil
}

// ClearConversation deletes every message of the conversation and the read
// markers pointing at them in one transaction.
func (r *MessageRepo) ClearConversation(ctx context.Context, conversationKey string) (ClearResult, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return ClearResult{}, classify("clear conversation", err)
	}
	defer rollback(tx)

	var refs []string
	if err := tx.SelectContext(ctx, &refs, tx.Rebind(`SELECT DISTINCT blob_ref FROM messages
        WHERE conversation_key = ? AND blob_ref <> ''`), conversationKey); err != nil {
		return ClearResult{}, classify("clear conversation", err)
	}

	var result ClearResult
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM read_markers
        WHERE message_id IN (SELECT id FROM messages WHERE conversation_key = ?)`), conversationKey)
	if err != nil {
		return ClearResult{}, classify("clear conversation", err)
	}
	if result.MarkersDeleted, err = res.RowsAffected(); err != nil {
		return ClearResult{}, classify("clear conversation", err)
	}

	res, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM messages WHERE conversation_key = ?`), conversationKey)
	if err != nil {
		return ClearResult{}, classify("clear conversation", err)
	}
	if result.MessagesDeleted, err = res.RowsAffected(); err != nil {
		return ClearResult{}, classify("clear conversation", err)
	}

	if len(refs) > 0 {
		query, args, err := sqlx.In(`SELECT DISTINCT blob_ref FROM messages WHERE blob_ref IN (?)`, refs)
		if err != nil {
			return ClearResult{}, classify("clear conversation", err)
		}
		var stillUsed []string
		if err := tx.SelectContext(ctx, &stillUsed, tx.Rebind(query), args...); err != nil {
			return ClearResult{}, classify("clear conversation", err)
		}
		used := make(map[string]struct{}, len(stillUsed))
		for _, ref := range stillUsed {
			used[ref] = struct{}{}
		}
		for _, ref := range refs {
			if _, ok := used[ref]; !ok {
				result.OrphanedBlobs = append(result.OrphanedBlobs, ref)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return ClearResult{}, classify("clear conversation", err)
	}
	return result, nil
}
