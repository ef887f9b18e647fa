package messaging

import (
	"errors"
	"fmt"

	"dm-service/internal/blobstore"
	"dm-service/internal/repositories"
)

var (
	ErrUnknownUser    = errors.New("unknown user")
	ErrNotFriends     = errors.New("users are not friends")
	ErrSelfReference  = errors.New("cannot target yourself")
	ErrAlreadyFriends = errors.New("already friends")
	ErrEmptyContent   = errors.New("message content is empty")
	// ErrDeliveryFailed means the message was not stored. Nothing was
	// fanned out.
	ErrDeliveryFailed = errors.New("message delivery failed")
	// ErrStoreUnavailable is transient; the caller may retry with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotFound         = errors.New("not found")
)

// translate maps repository and blob store errors onto the service taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrUnknownUser):
		return ErrUnknownUser
	case errors.Is(err, repositories.ErrSelfReference):
		return ErrSelfReference
	case errors.Is(err, repositories.ErrAlreadyFriends):
		return ErrAlreadyFriends
	case errors.Is(err, blobstore.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repositories.ErrStoreUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
