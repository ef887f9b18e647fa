package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"dm-service/internal/blobstore"
	"dm-service/internal/models"
	"dm-service/internal/observability"
	"dm-service/internal/repositories"
)

// RoutingKeyMessageCreated is the broker routing key of stored messages.
const RoutingKeyMessageCreated = "chat.message.created"

// Deps are the collaborators of a Service.
type Deps struct {
	Users    repositories.UserRepository
	Friends  repositories.FriendRepository
	Messages repositories.MessageRepository
	Reads    repositories.ReadStateRepository
	Blobs    blobstore.Store
	Events   Emitter
	Logger   *zap.Logger
}

// Service orchestrates the friend graph, the conversation store, read state
// and event emission.
type Service struct {
	users    repositories.UserRepository
	friends  repositories.FriendRepository
	messages repositories.MessageRepository
	reads    repositories.ReadStateRepository
	blobs    blobstore.Store
	events   Emitter
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewService wires a Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:    deps.Users,
		friends:  deps.Friends,
		messages: deps.Messages,
		reads:    deps.Reads,
		blobs:    deps.Blobs,
		events:   deps.Events,
		logger:   logger,
		tracer:   otel.Tracer("dm-service/messaging"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterUser records an authenticated identity in the user directory.
func (s *Service) RegisterUser(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUnknownUser
	}
	return s.storeErr("ensure_user", s.users.EnsureUser(ctx, userID))
}

// AddFriend creates the friendship between userID and friendID.
func (s *Service) AddFriend(ctx context.Context, userID, friendID string) (models.Friendship, error) {
	ctx, span := s.tracer.Start(ctx, "messaging.AddFriend")
	defer span.End()

	friendship, err := s.friends.AddFriend(context.WithoutCancel(ctx), userID, friendID)
	if err != nil {
		return models.Friendship{}, s.fail(span, "add_friend", err)
	}
	s.logger.Info("friendship created", zap.String("user_a", friendship.UserA), zap.String("user_b", friendship.UserB))
	return friendship, nil
}

// RemoveFriend drops the friendship. Unknown pairs are a no-op. History is
// kept; only new sends are blocked.
func (s *Service) RemoveFriend(ctx context.Context, userID, friendID string) error {
	ctx, span := s.tracer.Start(ctx, "messaging.RemoveFriend")
	defer span.End()

	if err := s.friends.RemoveFriend(context.WithoutCancel(ctx), userID, friendID); err != nil {
		return s.fail(span, "remove_friend", err)
	}
	return nil
}

// ListFriends returns the friends of a registered user.
func (s *Service) ListFriends(ctx context.Context, userID string) ([]string, error) {
	exists, err := s.users.Exists(ctx, userID)
	if err != nil {
		return nil, s.storeErr("user_exists", err)
	}
	if !exists {
		return nil, ErrUnknownUser
	}
	friends, err := s.friends.ListFriends(ctx, userID)
	if err != nil {
		return nil, s.storeErr("list_friends", err)
	}
	return friends, nil
}

// AreFriends reports whether userID and friendID are friends.
func (s *Service) AreFriends(ctx context.Context, userID, friendID string) (bool, error) {
	ok, err := s.friends.AreFriends(ctx, userID, friendID)
	if err != nil {
		return false, s.storeErr("are_friends", err)
	}
	return ok, nil
}

// SendMessage validates and stores a message, then emits the realtime
// events. The returned message id is the ordering key of the message.
func (s *Service) SendMessage(ctx context.Context, senderID, recipientID string, content models.Content) (models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "messaging.SendMessage",
		trace.WithAttributes(attribute.String("content.type", string(content.Kind))))
	defer span.End()
	// the send completes even if the client goes away mid-request
	ctx = context.WithoutCancel(ctx)

	friends, err := s.friends.AreFriends(ctx, senderID, recipientID)
	if err != nil {
		return models.Message{}, s.fail(span, "are_friends", err)
	}
	if !friends {
		return models.Message{}, ErrNotFriends
	}
	if content.IsEmpty() {
		return models.Message{}, ErrEmptyContent
	}

	key := models.ConversationKey(senderID, recipientID)
	msg, err := s.messages.AppendMessage(ctx, key, senderID, recipientID, content)
	if err != nil {
		observability.IncStoreError("append_message")
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		s.logger.Error("append message failed", zap.String("conversation", key), zap.Error(err))
		return models.Message{}, fmt.Errorf("%w: %w", ErrDeliveryFailed, translate(err))
	}
	observability.IncMessageStored(string(content.Kind))
	span.SetAttributes(attribute.Int64("message.id", msg.ID))

	s.emit(Envelope{Topic: models.ConversationTopic(key), Event: models.MessageCreatedEvent(msg), RoutingKey: RoutingKeyMessageCreated})
	s.emit(Envelope{Topic: models.UserTopic(recipientID), Event: models.UnreadChangedEvent(senderID, msg.CreatedAt)})
	s.emit(Envelope{Topic: models.UserTopic(senderID), Event: models.UnreadChangedEvent(recipientID, msg.CreatedAt)})
	return msg, nil
}

// ListMessages returns the dialogue between viewerID and friendID in
// authoritative order.
func (s *Service) ListMessages(ctx context.Context, viewerID, friendID string, page repositories.Page) ([]models.Message, error) {
	if viewerID == friendID {
		return nil, ErrSelfReference
	}
	msgs, err := s.messages.ListMessages(ctx, models.ConversationKey(viewerID, friendID), page)
	if err != nil {
		return nil, s.storeErr("list_messages", err)
	}
	return msgs, nil
}

// UnreadCounts maps each friend of viewerID to the number of unread
// messages from that friend.
func (s *Service) UnreadCounts(ctx context.Context, viewerID string) (map[string]int, error) {
	counts, err := s.reads.UnreadCounts(ctx, viewerID)
	if err != nil {
		return nil, s.storeErr("unread_counts", err)
	}
	return counts, nil
}

// UnreadTotal sums per-friend counts into the inbox badge value.
func UnreadTotal(counts map[string]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

// MarkRead marks every message from friendID to viewerID as read and
// returns how many were newly marked.
func (s *Service) MarkRead(ctx context.Context, viewerID, friendID string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "messaging.MarkRead")
	defer span.End()

	marked, err := s.reads.MarkRead(context.WithoutCancel(ctx), viewerID, friendID)
	if err != nil {
		return 0, s.fail(span, "mark_read", err)
	}
	if marked > 0 {
		s.emit(Envelope{Topic: models.UserTopic(viewerID), Event: models.UnreadChangedEvent(friendID, s.now())})
	}
	return marked, nil
}

// ClearConversation deletes the whole dialogue between viewerID and
// friendID, then releases blobs nothing else references.
func (s *Service) ClearConversation(ctx context.Context, viewerID, friendID string) (repositories.ClearResult, error) {
	ctx, span := s.tracer.Start(ctx, "messaging.ClearConversation")
	defer span.End()
	ctx = context.WithoutCancel(ctx)

	if viewerID == friendID {
		return repositories.ClearResult{}, ErrSelfReference
	}
	key := models.ConversationKey(viewerID, friendID)
	result, err := s.messages.ClearConversation(ctx, key)
	if err != nil {
		return repositories.ClearResult{}, s.fail(span, "clear_conversation", err)
	}

	for _, ref := range result.OrphanedBlobs {
		if s.blobs == nil {
			break
		}
		if err := s.blobs.DeleteBlob(ctx, ref); err != nil {
			s.logger.Warn("release blob failed", zap.String("blob_ref", ref), zap.Error(err))
		}
	}
	s.logger.Info("conversation cleared",
		zap.String("conversation", key),
		zap.Int64("messages", result.MessagesDeleted),
		zap.Int("blobs_released", len(result.OrphanedBlobs)))

	now := s.now()
	s.emit(Envelope{Topic: models.ConversationTopic(key), Event: models.ConversationClearedEvent(key, now)})
	s.emit(Envelope{Topic: models.UserTopic(viewerID), Event: models.UnreadChangedEvent(friendID, now)})
	s.emit(Envelope{Topic: models.UserTopic(friendID), Event: models.UnreadChangedEvent(viewerID, now)})
	return result, nil
}

// UploadAttachment stores a payload and returns its blob ref.
func (s *Service) UploadAttachment(ctx context.Context, body io.Reader, meta blobstore.Metadata) (string, error) {
	if s.blobs == nil {
		return "", ErrStoreUnavailable
	}
	ref, err := s.blobs.StoreBlob(ctx, body, meta)
	if err != nil {
		s.logger.Error("store blob failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ref, nil
}

// FetchAttachment opens a stored payload.
func (s *Service) FetchAttachment(ctx context.Context, ref string) (io.ReadCloser, blobstore.Metadata, error) {
	if s.blobs == nil {
		return nil, blobstore.Metadata{}, ErrNotFound
	}
	body, meta, err := s.blobs.FetchBlob(ctx, ref)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, blobstore.Metadata{}, ErrNotFound
		}
		return nil, blobstore.Metadata{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return body, meta, nil
}

func (s *Service) emit(env Envelope) {
	if s.events == nil {
		return
	}
	s.events.Emit(env)
}

func (s *Service) storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repositories.ErrStoreUnavailable) {
		observability.IncStoreError(op)
		s.logger.Warn("store unavailable", zap.String("op", op), zap.Error(err))
	}
	return translate(err)
}

func (s *Service) fail(span trace.Span, op string, err error) error {
	err = s.storeErr(op, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	return err
}
