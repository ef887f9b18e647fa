package blobstore

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
)

type memoryBlob struct {
	data []byte
	meta Metadata
}

// MemoryStore keeps blobs in process memory. Used when no object storage is
// configured.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]memoryBlob)}
}

func (s *MemoryStore) StoreBlob(ctx context.Context, body io.Reader, meta Metadata) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	meta.Size = int64(len(data))
	ref := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[ref] = memoryBlob{data: data, meta: meta}
	return ref, nil
}

func (s *MemoryStore) FetchBlob(ctx context.Context, ref string) (io.ReadCloser, Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[ref]
	if !ok {
		return nil, Metadata{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(blob.data)), blob.meta, nil
}

// DeleteBlob removes the blob. Deleting an unknown ref is a no-op.
func (s *MemoryStore) DeleteBlob(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, ref)
	return nil
}

// Len reports how many blobs are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
