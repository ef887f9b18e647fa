package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"dm-service/internal/auth"
	"dm-service/internal/messaging"
	"dm-service/internal/models"
	"dm-service/internal/observability"
)

// RoutingKey is the broker routing key of websocket lifecycle events.
const RoutingKey = "ws_events.dm"

// ChatService is what a websocket session needs from the messaging service.
type ChatService interface {
	RegisterUser(ctx context.Context, userID string) error
	AreFriends(ctx context.Context, userID, friendID string) (bool, error)
	SendMessage(ctx context.Context, senderID, recipientID string, content models.Content) (models.Message, error)
	MarkRead(ctx context.Context, viewerID, friendID string) (int, error)
}

// EventPublisher forwards lifecycle events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Inbound actions and outbound frame types that are not chat events.
const (
	actionSend     = "send"
	actionMarkRead = "mark_read"

	frameAck   = "ack"
	frameError = "error"
)

type inboundFrame struct {
	Action   string         `json:"action"`
	ClientID string         `json:"client_id,omitempty"`
	Content  models.Content `json:"content"`
}

type ackFrame struct {
	Type      string `json:"type"`
	Action    string `json:"action"`
	ClientID  string `json:"client_id,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
	Marked    int    `json:"marked,omitempty"`
}

type errorFrame struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id,omitempty"`
	Error    string `json:"error"`
}

// ChatWebSocketHandler serves /ws/chats/:friend_id. A session receives the
// conversation's events and its user's unread notifications, and may send
// messages or mark the conversation read.
type ChatWebSocketHandler struct {
	hub           *Hub
	service       ChatService
	authenticator auth.Authenticator
	publisher     EventPublisher
	sessionBuffer int
	logger        *zap.Logger
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler. publisher may be
// nil.
func NewChatWebSocketHandler(hub *Hub, service ChatService, authenticator auth.Authenticator, publisher EventPublisher, sessionBuffer int, logger *zap.Logger) *ChatWebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatWebSocketHandler{
		hub:           hub,
		service:       service,
		authenticator: authenticator,
		publisher:     publisher,
		sessionBuffer: sessionBuffer,
		logger:        logger,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handle authenticates, checks the friendship, upgrades and starts the pumps.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	friendID := strings.TrimSpace(c.Param("friend_id"))
	if friendID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid friend id"})
		return
	}

	ctx, span := otel.Tracer("dm-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}
	userID, err := h.authenticator.Authenticate(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if err := h.service.RegisterUser(ctx, userID); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}

	friends, err := h.service.AreFriends(ctx, userID, friendID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}
	if !friends {
		c.JSON(http.StatusForbidden, gin.H{"error": "not friends"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	key := models.ConversationKey(userID, friendID)
	info := ConnInfo{
		ConnID:       newConnID(),
		UserID:       userID,
		FriendID:     friendID,
		Conversation: key,
		DeviceID:     observability.DeviceIDFromRequest(c.Request),
		IP:           observability.IPFromRequest(c.Request),
		RequestID:    observability.RequestIDFromRequest(c.Request),
		TraceID:      span.SpanContext().TraceID().String(),
		ConnectedAt:  time.Now(),
	}
	client := newClient(conn, info, h.sessionBuffer)
	h.hub.Subscribe(client, models.ConversationTopic(key), models.UserTopic(userID))

	observability.IncWSActive(wsKind)
	observability.IncWSEvent(wsKind, "ws_connect")
	h.logger.Info("websocket connected",
		zap.String("conn_id", info.ConnID), zap.String("user_id", userID), zap.String("conversation", key))
	h.publish(info.lifecycleEvent("ws_connect", ""))

	// detach from the handshake request, which ends when Handle returns
	sessionCtx := context.WithoutCancel(ctx)
	go client.writePump()
	go func() {
		err := client.readPump(func(frame inboundFrame) {
			h.handleFrame(sessionCtx, client, frame)
		})
		client.Close("peer closed")
		h.hub.UnsubscribeAll(client)

		reason := err.Error()
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			observability.IncWSEvent(wsKind, "ws_error")
			h.publish(info.lifecycleEvent("ws_error", reason))
		}
		observability.DecWSActive(wsKind)
		observability.IncWSEvent(wsKind, "ws_disconnect")
		h.logger.Info("websocket disconnected", zap.String("conn_id", info.ConnID), zap.String("reason", reason))
		h.publish(info.lifecycleEvent("ws_disconnect", reason))
	}()
}

func (h *ChatWebSocketHandler) handleFrame(ctx context.Context, client *Client, frame inboundFrame) {
	switch frame.Action {
	case actionSend:
		msg, err := h.service.SendMessage(ctx, client.info.UserID, client.info.FriendID, frame.Content)
		if err != nil {
			client.reply(errorFrame{Type: frameError, ClientID: frame.ClientID, Error: frameErrorText(err)})
			return
		}
		client.reply(ackFrame{Type: frameAck, Action: actionSend, ClientID: frame.ClientID, MessageID: msg.ID})
	case actionMarkRead:
		marked, err := h.service.MarkRead(ctx, client.info.UserID, client.info.FriendID)
		if err != nil {
			client.reply(errorFrame{Type: frameError, ClientID: frame.ClientID, Error: frameErrorText(err)})
			return
		}
		client.reply(ackFrame{Type: frameAck, Action: actionMarkRead, ClientID: frame.ClientID, Marked: marked})
	default:
		client.reply(errorFrame{Type: frameError, ClientID: frame.ClientID, Error: "unknown action"})
	}
}

func frameErrorText(err error) string {
	switch {
	case errors.Is(err, messaging.ErrNotFriends):
		return "not friends"
	case errors.Is(err, messaging.ErrEmptyContent):
		return "empty content"
	case errors.Is(err, messaging.ErrDeliveryFailed):
		return "delivery failed"
	case errors.Is(err, messaging.ErrStoreUnavailable):
		return "store unavailable"
	}
	return "internal error"
}

func (h *ChatWebSocketHandler) publish(event observability.EventEnvelope) {
	if h.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.publisher.Publish(ctx, RoutingKey, event); err != nil {
		observability.IncAMQPPublishError()
		h.logger.Warn("ws lifecycle publish failed", zap.String("event", event.EventName), zap.Error(err))
	}
}
