package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"dm-service/internal/db"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func seedUsers(t *testing.T, conn *sqlx.DB, ids ...string) {
	t.Helper()
	users := NewUserRepo(conn, time.Second)
	for _, id := range ids {
		require.NoError(t, users.EnsureUser(context.Background(), id))
	}
}

func befriend(t *testing.T, conn *sqlx.DB, a, b string) {
	t.Helper()
	_, err := NewFriendRepo(conn, time.Second).AddFriend(context.Background(), a, b)
	require.NoError(t, err)
}
