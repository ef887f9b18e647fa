package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"dm-service/internal/models"
	"dm-service/internal/observability"
)

const wsKind = "dm"

// Session is a live subscriber. Deliver must not block; it returns false
// when the session cannot take the payload right now.
type Session interface {
	ID() string
	UserID() string
	Deliver(payload []byte) bool
	Close(reason string)
}

// Hub routes events to the sessions subscribed to a topic. A session that
// falls behind is disconnected instead of holding up the others.
type Hub struct {
	topics   map[string]map[Session]struct{}
	sessions map[Session]map[string]struct{}
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		topics:   make(map[string]map[Session]struct{}),
		sessions: make(map[Session]map[string]struct{}),
		logger:   logger,
	}
}

// Subscribe adds s to every topic given.
func (h *Hub) Subscribe(s Session, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		h.sessions[s] = make(map[string]struct{})
	}
	for _, topic := range topics {
		if _, ok := h.topics[topic]; !ok {
			h.topics[topic] = make(map[Session]struct{})
		}
		h.topics[topic][s] = struct{}{}
		h.sessions[s][topic] = struct{}{}
	}
}

// Unsubscribe removes s from one topic.
func (h *Hub) Unsubscribe(s Session, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s, topic)
	if topics, ok := h.sessions[s]; ok && len(topics) == 0 {
		delete(h.sessions, s)
	}
}

// UnsubscribeAll removes s from every topic it joined.
func (h *Hub) UnsubscribeAll(s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range h.sessions[s] {
		h.removeLocked(s, topic)
	}
	delete(h.sessions, s)
}

func (h *Hub) removeLocked(s Session, topic string) {
	if subs, ok := h.topics[topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	if topics, ok := h.sessions[s]; ok {
		delete(topics, topic)
	}
}

// Subscribers returns the number of sessions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Sessions returns the number of sessions with at least one topic.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Publish encodes event once and hands it to every subscriber of topic.
// A topic without subscribers is not an error.
func (h *Hub) Publish(_ context.Context, topic string, event models.ChatEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.PublishRaw(topic, event.Type, payload)
	return nil
}

// PublishRaw delivers an already encoded event and returns how many
// sessions accepted it.
func (h *Hub) PublishRaw(topic, eventType string, payload []byte) int {
	h.mu.RLock()
	subs := make([]Session, 0, len(h.topics[topic]))
	for s := range h.topics[topic] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if s.Deliver(payload) {
			delivered++
			observability.ObserveFanout(eventType, "delivered")
			continue
		}
		observability.ObserveFanout(eventType, "dropped")
		h.logger.Warn("session too slow, disconnecting",
			zap.String("conn_id", s.ID()), zap.String("user_id", s.UserID()), zap.String("topic", topic))
		h.UnsubscribeAll(s)
		s.Close("slow consumer")
		observability.IncWSEvent(wsKind, "ws_error")
	}
	return delivered
}
