package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) EnsureUser(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *UserRepositoryMock) Exists(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type FriendRepositoryMock struct {
	mock.Mock
}

func (m *FriendRepositoryMock) AddFriend(ctx context.Context, userID, friendID string) (models.Friendship, error) {
	args := m.Called(ctx, userID, friendID)
	var f models.Friendship
	if val := args.Get(0); val != nil {
		f = val.(models.Friendship)
	}
	return f, args.Error(1)
}

func (m *FriendRepositoryMock) RemoveFriend(ctx context.Context, userID, friendID string) error {
	args := m.Called(ctx, userID, friendID)
	return args.Error(0)
}

func (m *FriendRepositoryMock) ListFriends(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	var friends []string
	if val := args.Get(0); val != nil {
		friends = val.([]string)
	}
	return friends, args.Error(1)
}

func (m *FriendRepositoryMock) AreFriends(ctx context.Context, userID, friendID string) (bool, error) {
	args := m.Called(ctx, userID, friendID)
	return args.Bool(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) AppendMessage(ctx context.Context, conversationKey, senderID, recipientID string, content models.Content) (models.Message, error) {
	args := m.Called(ctx, conversationKey, senderID, recipientID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, conversationKey string, page repositories.Page) ([]models.Message, error) {
	args := m.Called(ctx, conversationKey, page)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ClearConversation(ctx context.Context, conversationKey string) (repositories.ClearResult, error) {
	args := m.Called(ctx, conversationKey)
	var result repositories.ClearResult
	if val := args.Get(0); val != nil {
		result = val.(repositories.ClearResult)
	}
	return result, args.Error(1)
}

type ReadStateRepositoryMock struct {
	mock.Mock
}

func (m *ReadStateRepositoryMock) UnreadCounts(ctx context.Context, viewerID string) (map[string]int, error) {
	args := m.Called(ctx, viewerID)
	var counts map[string]int
	if val := args.Get(0); val != nil {
		counts = val.(map[string]int)
	}
	return counts, args.Error(1)
}

func (m *ReadStateRepositoryMock) MarkRead(ctx context.Context, viewerID, friendID string) (int, error) {
	args := m.Called(ctx, viewerID, friendID)
	return args.Int(0), args.Error(1)
}

var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.FriendRepository = (*FriendRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.ReadStateRepository = (*ReadStateRepositoryMock)(nil)
