package observability

// EventEnvelope wraps websocket lifecycle events published to the broker.
type EventEnvelope struct {
	EventType string            `json:"event_type"`
	EventName string            `json:"event_name"`
	Payload   interface{}       `json:"payload"`
	Headers   map[string]string `json:"-"`
}

// AMQPHeaders exposes the envelope headers to the broker publisher.
func (e EventEnvelope) AMQPHeaders() map[string]string {
	return e.Headers
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
