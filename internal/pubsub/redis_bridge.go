package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"dm-service/internal/models"
)

const channelPrefix = "dm:"

// LocalFanout delivers an encoded event to the sessions of this instance.
type LocalFanout interface {
	PublishRaw(topic, eventType string, payload []byte) int
}

// RedisBridge publishes events through Redis so that every instance
// delivers them to its own sessions.
type RedisBridge struct {
	client *redis.Client
	local  LocalFanout
	logger *zap.Logger
}

// NewRedisClient connects to a single Redis node and checks it answers.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisBridge builds a bridge delivering into local.
func NewRedisBridge(client *redis.Client, local LocalFanout, logger *zap.Logger) *RedisBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{client: client, local: local, logger: logger}
}

// Publish sends event to every instance subscribed to topic.
func (b *RedisBridge) Publish(ctx context.Context, topic string, event models.ChatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelFor(topic), data).Err()
}

// Run relays Redis messages to the local fanout until ctx ends.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	b.logger.Info("redis fanout bridge subscribed", zap.String("pattern", channelPrefix+"*"))

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay(msg)
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *RedisBridge) relay(msg *redis.Message) {
	topic, ok := topicFor(msg.Channel)
	if !ok {
		return
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(msg.Payload), &head); err != nil {
		b.logger.Warn("dropping malformed relay payload", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	b.local.PublishRaw(topic, head.Type, []byte(msg.Payload))
}

func channelFor(topic string) string {
	return channelPrefix + topic
}

func topicFor(channel string) (string, bool) {
	topic, ok := strings.CutPrefix(channel, channelPrefix)
	if !ok || topic == "" {
		return "", false
	}
	return topic, true
}
