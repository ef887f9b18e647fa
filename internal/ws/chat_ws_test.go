package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dm-service/internal/auth"
	"dm-service/internal/messaging"
	"dm-service/internal/mocks"
	"dm-service/internal/models"
)

type wsFixture struct {
	hub    *Hub
	svc    *mocks.MessagingServiceMock
	auth   *auth.JWTAuthenticator
	server *httptest.Server
}

func newWSFixture(t *testing.T) wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := wsFixture{
		hub:  NewHub(nil),
		svc:  new(mocks.MessagingServiceMock),
		auth: auth.NewJWTAuthenticator("secret", ""),
	}
	handler := NewChatWebSocketHandler(f.hub, f.svc, f.auth, nil, 16, nil)
	r := gin.New()
	r.GET("/ws/chats/:friend_id", handler.Handle)
	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f wsFixture) dial(t *testing.T, user, friend string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	token, err := f.auth.Issue(user, time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/chats/" + friend + "?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestChatWebSocketRejectsBadToken(t *testing.T) {
	f := newWSFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/chats/bob?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatWebSocketRequiresFriendship(t *testing.T) {
	f := newWSFixture(t)
	f.svc.On("RegisterUser", mock.Anything, "alice").Return(nil).Once()
	f.svc.On("AreFriends", mock.Anything, "alice", "mallory").Return(false, nil).Once()

	_, resp, err := f.dial(t, "alice", "mallory")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	f.svc.AssertExpectations(t)
}

func TestChatWebSocketSessionFlow(t *testing.T) {
	f := newWSFixture(t)
	f.svc.On("RegisterUser", mock.Anything, "alice").Return(nil).Once()
	f.svc.On("AreFriends", mock.Anything, "alice", "bob").Return(true, nil).Once()
	f.svc.On("SendMessage", mock.Anything, "alice", "bob", models.TextContent("hi")).
		Return(models.Message{ID: 9}, nil).Once()
	f.svc.On("SendMessage", mock.Anything, "alice", "bob", models.TextContent("")).
		Return(nil, messaging.ErrEmptyContent).Once()
	f.svc.On("MarkRead", mock.Anything, "alice", "bob").Return(2, nil).Once()

	conn, _, err := f.dial(t, "alice", "bob")
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.Eventually(t, func() bool {
		return f.hub.Subscribers(models.ConversationTopic(models.ConversationKey("alice", "bob"))) == 1 &&
			f.hub.Subscribers(models.UserTopic("alice")) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(inboundFrame{Action: actionSend, ClientID: "c1", Content: models.TextContent("hi")}))
	var ack ackFrame
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, frameAck, ack.Type)
	assert.Equal(t, "c1", ack.ClientID)
	assert.EqualValues(t, 9, ack.MessageID)

	require.NoError(t, conn.WriteJSON(inboundFrame{Action: actionSend, ClientID: "c2", Content: models.TextContent("")}))
	var failure errorFrame
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Equal(t, frameError, failure.Type)
	assert.Equal(t, "empty content", failure.Error)

	require.NoError(t, conn.WriteJSON(inboundFrame{Action: actionMarkRead}))
	ack = ackFrame{}
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, 2, ack.Marked)

	require.NoError(t, f.hub.Publish(context.Background(), models.UserTopic("alice"),
		models.UnreadChangedEvent("bob", time.Now().UTC())))
	var ev models.ChatEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventUnreadChanged, ev.Type)
	assert.Equal(t, "bob", ev.AffectedFriend)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	assert.Eventually(t, func() bool { return f.hub.Sessions() == 0 }, time.Second, 10*time.Millisecond)
	f.svc.AssertExpectations(t)
}
