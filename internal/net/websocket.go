package net

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"SignFlow/internal/coords"
	"SignFlow/internal/logger"
	"SignFlow/internal/state"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 256
)

// Message types on the session socket.
const (
	TypeEvent       = "event"
	TypePointerDown = "pointer_down"
	TypePointerMove = "pointer_move"
	TypePointerUp   = "pointer_up"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeError       = "error"
)

// WSMessage is the envelope of every socket message in both directions.
// Pointer messages carry a pad-local position and the pad size in pixels;
// T is an optional client timestamp in Unix milliseconds.
type WSMessage struct {
	Type      string       `json:"type"`
	X         float64      `json:"x,omitempty"`
	Y         float64      `json:"y,omitempty"`
	Width     float64      `json:"width,omitempty"`
	Height    float64      `json:"height,omitempty"`
	T         int64        `json:"t,omitempty"`
	Event     *state.Event `json:"event,omitempty"`
	Error     *APIError    `json:"error,omitempty"`
	Timestamp string       `json:"timestamp,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one websocket connection bound to a session.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	sess  *state.Session
	input state.PadInput
	send  chan []byte
	addr  string
}

func newClient(hub *Hub, conn *websocket.Conn, sess *state.Session) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		sess: sess,
		send: make(chan []byte, sendBufferSize),
	}
	if conn != nil {
		c.addr = conn.RemoteAddr().String()
	}
	c.input = state.PadInput{Session: sess, OnError: func(err error) {
		_, code := classify(err)
		c.sendError(code, err.Error())
	}}
	return c
}

// readPump feeds pointer samples into the session until the peer leaves.
func (c *Client) readPump() {
	defer func() {
		c.hub.Remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] Read error from %s: %v", c.addr, err)
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("invalid_json", "could not parse message")
		return
	}

	at := time.Now()
	if msg.T > 0 {
		at = time.UnixMilli(msg.T)
	}
	surface := coords.Size{W: msg.Width, H: msg.Height}

	switch msg.Type {
	case TypePointerDown:
		logger.Debug("ws", "down %.1f,%.1f on %s", msg.X, msg.Y, c.sess.Token())
		c.input.Begin(msg.X, msg.Y, surface, at)
	case TypePointerMove:
		c.input.Sample(msg.X, msg.Y, surface, at)
	case TypePointerUp:
		c.input.End(at)
	case TypePing:
		c.queue(WSMessage{Type: TypePong, Timestamp: time.Now().UTC().Format(time.RFC3339)})
	default:
		log.Printf("[ws] Unknown message type %q from %s", msg.Type, c.addr)
		c.sendError("unknown_type", "unknown message type "+msg.Type)
	}
}

func (c *Client) sendError(code, message string) {
	c.queue(WSMessage{
		Type:      TypeError,
		Error:     &APIError{Code: code, Message: message},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// queue sends msg to this client only. A full queue drops it.
func (c *Client) queue(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c.sess.Token()][c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump writes queued messages and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWS upgrades the request and attaches the connection to sess.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] Upgrade failed: %v", err)
		return
	}
	c := newClient(s.hub, conn, sess)
	s.hub.Add(c)
	go c.writePump()
	go c.readPump()
}
