package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// UserRepository is the directory of identities the messaging core accepts.
type UserRepository interface {
	EnsureUser(ctx context.Context, userID string) error
	Exists(ctx context.Context, userID string) (bool, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	store
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB, timeout time.Duration) *UserRepo {
	return &UserRepo{store: newStore(db, timeout)}
}

// EnsureUser registers the identity; registering twice is a no-op.
func (r *UserRepo) EnsureUser(ctx context.Context, userID string) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO users (id, created_at) VALUES (?, ?)
        ON CONFLICT (id) DO NOTHING`), userID, toMicros(r.now()))
	return classify("ensure user", err)
}

// Exists reports whether the identity is registered.
func (r *UserRepo) Exists(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT COUNT(*) FROM users WHERE id = ?`), userID)
	if err != nil {
		return false, classify("user exists", err)
	}
	return count > 0, nil
}
