package ws

import (
	"time"

	"dm-service/internal/observability"
)

// ConnInfo identifies one websocket session for lifecycle events.
type ConnInfo struct {
	ConnID       string
	UserID       string
	FriendID     string
	Conversation string
	DeviceID     string
	IP           string
	RequestID    string
	TraceID      string
	ConnectedAt  time.Time
}

func (i ConnInfo) lifecycleEvent(event, reason string) observability.EventEnvelope {
	var duration int64
	if event != "ws_connect" {
		duration = time.Since(i.ConnectedAt).Milliseconds()
	}
	return observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":         wsKind,
				"conversation": i.Conversation,
				"event":        event,
				"conn_id":      i.ConnID,
				"duration_ms":  duration,
				"reason":       reason,
			},
			"identity": map[string]interface{}{
				"user_id":   i.UserID,
				"device_id": i.DeviceID,
				"ip":        i.IP,
			},
		},
		Headers: observability.BuildHeaders(i.RequestID, i.TraceID),
	}
}
