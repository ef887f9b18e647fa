package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dm-service/internal/db"
	"dm-service/internal/repositories"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func legacyDir(t *testing.T) string {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "users.json"), `{"alice":"pw1","bob":"pw2","carol":"pw3"}`)
	writeFile(t, filepath.Join(dir, "users", "alice.friends.json"), `["alice","bob","carol","ghost"]`)
	writeFile(t, filepath.Join(dir, "users", "bob.friends.json"), `["bob","alice"]`)
	writeFile(t, filepath.Join(dir, "users", "zed.friends.json"), `["zed","alice"]`)
	return dir
}

func TestImportIsIdempotent(t *testing.T) {
	conn, err := db.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() { conn.Close() })

	users := repositories.NewUserRepo(conn, time.Second)
	friends := repositories.NewFriendRepo(conn, time.Second)
	im := New(users, friends, nil)
	dir := legacyDir(t)
	ctx := context.Background()

	report, err := im.Run(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, Report{Users: 3, Friendships: 2, Existing: 1, Skipped: 2}, report)

	list, err := friends.ListFriends(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, list)
	ok, err := friends.AreFriends(ctx, "alice", "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	report, err = im.Run(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, Report{Users: 3, Friendships: 0, Existing: 3, Skipped: 2}, report)
}

func TestImportMissingUsersFile(t *testing.T) {
	im := New(nil, nil, nil)
	_, err := im.Run(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestImportMalformedFriends(t *testing.T) {
	conn, err := db.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() { conn.Close() })

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "users.json"), `{"alice":"pw"}`)
	writeFile(t, filepath.Join(dir, "users", "alice.friends.json"), `{"not":"a list"}`)

	im := New(repositories.NewUserRepo(conn, time.Second), repositories.NewFriendRepo(conn, time.Second), nil)
	_, err = im.Run(context.Background(), dir)
	assert.Error(t, err)
}
