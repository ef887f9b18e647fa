package rabbitmq

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dm-service/internal/observability"
	"dm-service/internal/telemetry"
)

func TestNewPublisherWithoutURLIsNoop(t *testing.T) {
	p := NewPublisher("", "dm.events", nil)
	assert.Equal(t, "noop", PublisherMode(p))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(p))
	assert.NoError(t, p.Publish(context.Background(), "audit.dm-service", telemetry.AuditEnvelope{EventType: "audit_log"}))
	assert.NoError(t, p.Close())
}

func TestBuildPublishingCarriesHeaders(t *testing.T) {
	env := observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   map[string]any{"conn_id": "c1"},
		Headers:   observability.BuildHeaders("req-1", "trace-1"),
	}
	msg, err := buildPublishing(env)
	require.NoError(t, err)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "req-1", msg.Headers["x-request-id"])
	assert.Equal(t, "trace-1", msg.Headers["trace_id"])

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "ws_connect", body["event_name"])
	assert.NotContains(t, body, "Headers")
}

func TestBuildPublishingPlainEvent(t *testing.T) {
	msg, err := buildPublishing(map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Nil(t, msg.Headers)
}
