package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a blob ref does not resolve.
var ErrNotFound = errors.New("blob not found")

// Metadata describes an uploaded payload.
type Metadata struct {
	ContentType string
	Size        int64
	Filename    string
}

// Store keeps image and file payloads outside the message log. Messages hold
// only the returned ref.
type Store interface {
	StoreBlob(ctx context.Context, body io.Reader, meta Metadata) (string, error)
	FetchBlob(ctx context.Context, ref string) (io.ReadCloser, Metadata, error)
	DeleteBlob(ctx context.Context, ref string) error
}
