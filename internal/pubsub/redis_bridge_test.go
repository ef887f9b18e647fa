package pubsub

import (
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dm-service/internal/models"
)

type capture struct {
	topic, eventType string
	payload          []byte
	calls            int
}

func (c *capture) PublishRaw(topic, eventType string, payload []byte) int {
	c.topic, c.eventType, c.payload = topic, eventType, payload
	c.calls++
	return 1
}

func TestChannelTopicRoundTrip(t *testing.T) {
	topic := models.ConversationTopic("alice:bob")
	got, ok := topicFor(channelFor(topic))
	require.True(t, ok)
	assert.Equal(t, topic, got)

	_, ok = topicFor("other:user:alice")
	assert.False(t, ok)
	_, ok = topicFor(channelPrefix)
	assert.False(t, ok)
}

func TestRelayDeliversLocally(t *testing.T) {
	local := &capture{}
	bridge := NewRedisBridge(nil, local, nil)

	bridge.relay(&redis.Message{Channel: "dm:user:bob", Payload: `{"type":"unread_changed","affected_friend":"alice"}`})

	require.Equal(t, 1, local.calls)
	assert.Equal(t, "user:bob", local.topic)
	assert.Equal(t, models.EventUnreadChanged, local.eventType)
	assert.JSONEq(t, `{"type":"unread_changed","affected_friend":"alice"}`, string(local.payload))
}

func TestRelaySkipsForeignAndMalformed(t *testing.T) {
	local := &capture{}
	bridge := NewRedisBridge(nil, local, nil)

	bridge.relay(&redis.Message{Channel: "elsewhere", Payload: `{"type":"x"}`})
	bridge.relay(&redis.Message{Channel: "dm:user:bob", Payload: `not json`})

	assert.Zero(t, local.calls)
}
