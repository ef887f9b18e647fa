package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrStoreUnavailable marks transient failures (timeouts, lost
	// connections). Callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrUnknownUser      = errors.New("unknown user")
	ErrSelfReference    = errors.New("cannot befriend self")
	ErrAlreadyFriends   = errors.New("already friends")
)

// DefaultTimeout bounds every store call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// store is embedded by every sqlx repository.
type store struct {
	db      *sqlx.DB
	timeout time.Duration
	now     func() time.Time
}

func newStore(db *sqlx.DB, timeout time.Duration) store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return store{db: db, timeout: timeout, now: func() time.Time { return time.Now().UTC() }}
}

func (s store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// classify wraps transient failures with ErrStoreUnavailable and leaves
// everything else as is.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.As(err, &netErr):
		return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func rollback(tx *sqlx.Tx) {
	_ = tx.Rollback()
}
