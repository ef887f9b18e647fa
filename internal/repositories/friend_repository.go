package repositories

import (
	"context"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"dm-service/internal/models"
)

// FriendRepository abstracts the friend graph.
type FriendRepository interface {
	AddFriend(ctx context.Context, userID, friendID string) (models.Friendship, error)
	RemoveFriend(ctx context.Context, userID, friendID string) error
	ListFriends(ctx context.Context, userID string) ([]string, error)
	AreFriends(ctx context.Context, userID, friendID string) (bool, error)
}

// FriendRepo stores one row per unordered pair, ordered with
// models.CanonicalPair.
type FriendRepo struct {
	store
}

// NewFriendRepo constructs a FriendRepo.
func NewFriendRepo(db *sqlx.DB, timeout time.Duration) *FriendRepo {
	return &FriendRepo{store: newStore(db, timeout)}
}

// AddFriend inserts the symmetric edge between two registered users.
func (r *FriendRepo) AddFriend(ctx context.Context, userID, friendID string) (models.Friendship, error) {
	if userID == friendID {
		return models.Friendship{}, ErrSelfReference
	}
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Friendship{}, classify("add friend", err)
	}
	defer rollback(tx)

	userA, userB := models.CanonicalPair(userID, friendID)

	var known int
	if err := tx.GetContext(ctx, &known, tx.Rebind(`SELECT COUNT(*) FROM users WHERE id IN (?, ?)`), userA, userB); err != nil {
		return models.Friendship{}, classify("add friend", err)
	}
	if known < 2 {
		return models.Friendship{}, ErrUnknownUser
	}

	friendship := models.Friendship{UserA: userA, UserB: userB, CreatedAt: r.now()}
	res, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO friendships (user_a, user_b, created_at) VALUES (?, ?, ?)
        ON CONFLICT (user_a, user_b) DO NOTHING`), userA, userB, toMicros(friendship.CreatedAt))
	if err != nil {
		return models.Friendship{}, classify("add friend", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return models.Friendship{}, classify("add friend", err)
	}
	if inserted == 0 {
		return models.Friendship{}, ErrAlreadyFriends
	}

	if err := tx.Commit(); err != nil {
		return models.Friendship{}, classify("add friend", err)
	}
	return friendship, nil
}

// RemoveFriend deletes the edge. Removing a missing edge is not an error.
func (r *FriendRepo) RemoveFriend(ctx context.Context, userID, friendID string) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	userA, userB := models.CanonicalPair(userID, friendID)
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM friendships WHERE user_a = ? AND user_b = ?`), userA, userB)
	return classify("remove friend", err)
}

// ListFriends returns the friends of userID in lexicographic order.
func (r *FriendRepo) ListFriends(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	friends := []string{}
	err := r.db.SelectContext(ctx, &friends, r.db.Rebind(`SELECT user_b FROM friendships WHERE user_a = ?
        UNION SELECT user_a FROM friendships WHERE user_b = ?`), userID, userID)
	if err != nil {
		return nil, classify("list friends", err)
	}
	sort.Strings(friends)
	return friends, nil
}

// AreFriends checks whether the edge exists.
func (r *FriendRepo) AreFriends(ctx context.Context, userID, friendID string) (bool, error) {
	if userID == friendID {
		return false, nil
	}
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	userA, userB := models.CanonicalPair(userID, friendID)
	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT COUNT(*) FROM friendships WHERE user_a = ? AND user_b = ?`), userA, userB)
	if err != nil {
		return false, classify("are friends", err)
	}
	return count > 0, nil
}
