package repositories

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dm-service/internal/models"
)

func TestUnreadCountsAndMarkRead(t *testing.T) {
	conn := newTestDB(t)
	seedUsers(t, conn, "alice", "bob", "carol")
	befriend(t, conn, "alice", "bob")
	befriend(t, conn, "bob", "carol")
	msgs := NewMessageRepo(conn, time.Second)
	reads := NewReadStateRepo(conn, time.Second)
	ctx := context.Background()

	_, err := msgs.AppendMessage(ctx, models.ConversationKey("alice", "bob"), "alice", "bob", models.TextContent("hi"))
	require.NoError(t, err)
	_, err = msgs.AppendMessage(ctx, models.ConversationKey("alice", "bob"), "alice", "bob", models.TextContent("there"))
	require.NoError(t, err)
	_, err = msgs.AppendMessage(ctx, models.ConversationKey("alice", "bob"), "bob", "alice", models.TextContent("yo"))
	require.NoError(t, err)

	counts, err := reads.UnreadCounts(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 2, "carol": 0}, counts)

	marked, err := reads.MarkRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, marked)

	marked, err = reads.MarkRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Zero(t, marked)

	counts, err = reads.UnreadCounts(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, counts["alice"])

	counts, err = reads.UnreadCounts(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"bob": 1}, counts)
}

func TestMarkReadOnlyTouchesRecipientMessages(t *testing.T) {
	conn := newTestDB(t)
	seedUsers(t, conn, "alice", "bob")
	befriend(t, conn, "alice", "bob")
	msgs := NewMessageRepo(conn, time.Second)
	reads := NewReadStateRepo(conn, time.Second)
	ctx := context.Background()

	_, err := msgs.AppendMessage(ctx, models.ConversationKey("alice", "bob"), "alice", "bob", models.TextContent("hi"))
	require.NoError(t, err)

	// alice is the sender; she cannot mark her own outgoing message
	marked, err := reads.MarkRead(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Zero(t, marked)

	var mismatched int
	require.NoError(t, conn.Get(&mismatched, `SELECT COUNT(*) FROM read_markers rm
        JOIN messages m ON m.id = rm.message_id WHERE rm.user_id <> m.recipient_id`))
	assert.Zero(t, mismatched)
}

// The sqlite pool holds a single connection, so the two calls below are
// serialized. TestMarkReadSkipsMarkerWrittenMidStatement covers the overlap.
func TestConcurrentMarkRead(t *testing.T) {
	conn := newTestDB(t)
	seedUsers(t, conn, "v", "f")
	befriend(t, conn, "v", "f")
	msgs := NewMessageRepo(conn, 5*time.Second)
	reads := NewReadStateRepo(conn, 5*time.Second)
	ctx := context.Background()

	const total = 20
	for i := 0; i < total; i++ {
		_, err := msgs.AppendMessage(ctx, models.ConversationKey("v", "f"), "f", "v", models.TextContent("m"))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make([]int, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = reads.MarkRead(ctx, "v", "f")
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, total, results[0]+results[1])

	counts, err := reads.UnreadCounts(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, 0, counts["f"])
}

func TestMarkReadSkipsMarkerWrittenMidStatement(t *testing.T) {
	conn := newTestDB(t)
	seedUsers(t, conn, "v", "f")
	befriend(t, conn, "v", "f")
	msgs := NewMessageRepo(conn, time.Second)
	reads := NewReadStateRepo(conn, time.Second)
	ctx := context.Background()

	const total = 3
	var first models.Message
	for i := 0; i < total; i++ {
		msg, err := msgs.AppendMessage(ctx, models.ConversationKey("v", "f"), "f", "v", models.TextContent("m"))
		require.NoError(t, err)
		if i == 0 {
			first = msg
		}
	}

	// another writer lands the first marker after the select saw it missing
	_, err := conn.Exec(fmt.Sprintf(`CREATE TRIGGER concurrent_marker BEFORE INSERT ON read_markers
        WHEN NEW.message_id = %d
        BEGIN
            INSERT OR IGNORE INTO read_markers (user_id, message_id, read_at) VALUES (NEW.user_id, NEW.message_id, NEW.read_at);
        END`, first.ID))
	require.NoError(t, err)

	marked, err := reads.MarkRead(ctx, "v", "f")
	require.NoError(t, err)
	assert.Equal(t, total-1, marked)

	var markers int
	require.NoError(t, conn.Get(&markers, `SELECT COUNT(*) FROM read_markers WHERE user_id = 'v'`))
	assert.Equal(t, total, markers)

	counts, err := reads.UnreadCounts(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, 0, counts["f"])
}
