package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ref, err := store.StoreBlob(ctx, strings.NewReader("payload"), Metadata{ContentType: "text/plain", Filename: "a.txt"})
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	body, meta, err := store.FetchBlob(ctx, ref)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, int64(7), meta.Size)
	assert.Equal(t, "a.txt", meta.Filename)

	require.NoError(t, store.DeleteBlob(ctx, ref))
	_, _, err = store.FetchBlob(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.DeleteBlob(ctx, ref))
}
