package models

import "time"

// Realtime event types.
const (
	EventMessageCreated      = "message_created"
	EventUnreadChanged       = "unread_changed"
	EventConversationCleared = "conversation_cleared"
)

// ChatEvent is pushed to websocket sessions.
type ChatEvent struct {
	Type           string    `json:"type"`
	Message        *Message  `json:"message,omitempty"`
	AffectedFriend string    `json:"affected_friend,omitempty"`
	Conversation   string    `json:"conversation,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// MessageCreatedEvent announces a stored message on its conversation topic.
func MessageCreatedEvent(msg Message) ChatEvent {
	return ChatEvent{Type: EventMessageCreated, Message: &msg, Conversation: msg.ConversationKey, Timestamp: msg.CreatedAt}
}

// UnreadChangedEvent tells a user that the unread count for friend moved.
func UnreadChangedEvent(friend string, at time.Time) ChatEvent {
	return ChatEvent{Type: EventUnreadChanged, AffectedFriend: friend, Timestamp: at}
}

// ConversationClearedEvent tells open views of a conversation to refetch.
func ConversationClearedEvent(key string, at time.Time) ChatEvent {
	return ChatEvent{Type: EventConversationCleared, Conversation: key, Timestamp: at}
}

// ConversationTopic is the fanout topic of a conversation.
func ConversationTopic(key string) string {
	return "conversation:" + key
}

// UserTopic is the fanout topic of a user's open sessions.
func UserTopic(userID string) string {
	return "user:" + userID
}
