package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// Client is a Session backed by a websocket connection. Outbound payloads
// go through a bounded buffer drained by writePump.
type Client struct {
	conn   *websocket.Conn
	info   ConnInfo
	send   chan []byte
	closed chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	reason    string
}

func newClient(conn *websocket.Conn, info ConnInfo, buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		conn:   conn,
		info:   info,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

func (c *Client) ID() string     { return c.info.ConnID }
func (c *Client) UserID() string { return c.info.UserID }

// Deliver queues payload without blocking.
func (c *Client) Deliver(payload []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close stops the write pump; the first reason wins.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.closed)
	})
}

func (c *Client) closeReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// reply sends a frame to this session only.
func (c *Client) reply(frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.Deliver(payload)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close(err.Error())
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(err.Error())
				return
			}
		case <-c.closed:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.closeReason()),
				time.Now().Add(writeWait))
			return
		}
	}
}

// readPump calls handle for every inbound frame until the peer goes away.
// It returns the read error that ended the session.
func (c *Client) readPump(handle func(inboundFrame)) error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var frame inboundFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.reply(errorFrame{Type: frameError, Error: "malformed frame"})
				continue
			}
			return err
		}
		handle(frame)
	}
}
