package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"dm-service/internal/blobstore"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

type MessagingServiceMock struct {
	mock.Mock
}

func (m *MessagingServiceMock) RegisterUser(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MessagingServiceMock) AreFriends(ctx context.Context, userID, friendID string) (bool, error) {
	args := m.Called(ctx, userID, friendID)
	return args.Bool(0), args.Error(1)
}

func (m *MessagingServiceMock) ListFriends(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	var friends []string
	if val := args.Get(0); val != nil {
		friends = val.([]string)
	}
	return friends, args.Error(1)
}

func (m *MessagingServiceMock) AddFriend(ctx context.Context, userID, friendID string) (models.Friendship, error) {
	args := m.Called(ctx, userID, friendID)
	var f models.Friendship
	if val := args.Get(0); val != nil {
		f = val.(models.Friendship)
	}
	return f, args.Error(1)
}

func (m *MessagingServiceMock) RemoveFriend(ctx context.Context, userID, friendID string) error {
	args := m.Called(ctx, userID, friendID)
	return args.Error(0)
}

func (m *MessagingServiceMock) SendMessage(ctx context.Context, senderID, recipientID string, content models.Content) (models.Message, error) {
	args := m.Called(ctx, senderID, recipientID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessagingServiceMock) ListMessages(ctx context.Context, viewerID, friendID string, page repositories.Page) ([]models.Message, error) {
	args := m.Called(ctx, viewerID, friendID, page)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessagingServiceMock) MarkRead(ctx context.Context, viewerID, friendID string) (int, error) {
	args := m.Called(ctx, viewerID, friendID)
	return args.Int(0), args.Error(1)
}

func (m *MessagingServiceMock) ClearConversation(ctx context.Context, viewerID, friendID string) (repositories.ClearResult, error) {
	args := m.Called(ctx, viewerID, friendID)
	var result repositories.ClearResult
	if val := args.Get(0); val != nil {
		result = val.(repositories.ClearResult)
	}
	return result, args.Error(1)
}

func (m *MessagingServiceMock) UnreadCounts(ctx context.Context, viewerID string) (map[string]int, error) {
	args := m.Called(ctx, viewerID)
	var counts map[string]int
	if val := args.Get(0); val != nil {
		counts = val.(map[string]int)
	}
	return counts, args.Error(1)
}

func (m *MessagingServiceMock) UploadAttachment(ctx context.Context, body io.Reader, meta blobstore.Metadata) (string, error) {
	args := m.Called(ctx, body, meta)
	return args.String(0), args.Error(1)
}

func (m *MessagingServiceMock) FetchAttachment(ctx context.Context, ref string) (io.ReadCloser, blobstore.Metadata, error) {
	args := m.Called(ctx, ref)
	var body io.ReadCloser
	if val := args.Get(0); val != nil {
		body = val.(io.ReadCloser)
	}
	var meta blobstore.Metadata
	if val := args.Get(1); val != nil {
		meta = val.(blobstore.Metadata)
	}
	return body, meta, args.Error(2)
}
