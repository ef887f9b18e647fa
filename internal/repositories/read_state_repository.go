package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// ReadStateRepository derives unread counts and records read markers.
type ReadStateRepository interface {
	UnreadCounts(ctx context.Context, viewerID string) (map[string]int, error)
	MarkRead(ctx context.Context, viewerID, friendID string) (int, error)
}

// ReadStateRepo is a sqlx implementation of ReadStateRepository. Unread
// counts are never stored; every call recomputes them from the log.
type ReadStateRepo struct {
	store
}

// NewReadStateRepo constructs a ReadStateRepo.
func NewReadStateRepo(db *sqlx.DB, timeout time.Duration) *ReadStateRepo {
	return &ReadStateRepo{store: newStore(db, timeout)}
}

type unreadRow struct {
	FriendID string `db:"friend_id"`
	Unread   int    `db:"unread"`
}

// UnreadCounts returns, for every friend of viewerID, the number of messages
// from that friend without a read marker. Friends with nothing unread map
// to zero.
func (r *ReadStateRepo) UnreadCounts(ctx context.Context, viewerID string) (map[string]int, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	query := `SELECT f.friend_id AS friend_id, COUNT(m.id) AS unread
        FROM (
            SELECT user_b AS friend_id FROM friendships WHERE user_a = ?
            UNION SELECT user_a AS friend_id FROM friendships WHERE user_b = ?
        ) f
        LEFT JOIN messages m ON m.sender_id = f.friend_id AND m.recipient_id = ?
            AND NOT EXISTS (SELECT 1 FROM read_markers rm WHERE rm.message_id = m.id AND rm.user_id = ?)
        GROUP BY f.friend_id`

	var rows []unreadRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), viewerID, viewerID, viewerID, viewerID); err != nil {
		return nil, classify("unread counts", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.FriendID] = row.Unread
	}
	return counts, nil
}

// MarkRead inserts read markers for every unread message from friendID to
// viewerID and returns how many were new. Markers inserted concurrently by
// another call are skipped, not reported as conflicts.
func (r *ReadStateRepo) MarkRead(ctx context.Context, viewerID, friendID string) (int, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO read_markers (user_id, message_id, read_at)
        SELECT m.recipient_id, m.id, ? FROM messages m
        WHERE m.recipient_id = ? AND m.sender_id = ?
            AND NOT EXISTS (SELECT 1 FROM read_markers rm WHERE rm.message_id = m.id AND rm.user_id = m.recipient_id)
        ON CONFLICT (user_id, message_id) DO NOTHING`), toMicros(r.now()), viewerID, friendID)
	if err != nil {
		return 0, classify("mark read", err)
	}
	marked, err := res.RowsAffected()
	if err != nil {
		return 0, classify("mark read", err)
	}
	return int(marked), nil
}
