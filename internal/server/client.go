package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/townsquare/townsquare/internal/room"
)

const (
	// pongWait is how long a connection may stay silent before it is
	// considered dead; pingInterval must be shorter.
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second

	// sendQueueLen buffers outbound frames per client so a broadcast never
	// waits on a slow socket.
	sendQueueLen = 256
)

// Client is one live connection's session: its identity, transport handle,
// outbound queue, and room membership. The registry and presence tracker key
// clients by the generated ID rather than the transport handle.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	room room.Key
	addr string

	mu     sync.Mutex
	closed bool

	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient wraps a WebSocket connection bound to the given room key. The
// connection's read limit and rate limiter come from the active config.
func NewClient(conn *websocket.Conn, hub *Hub, key room.Key, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:             uuid.NewString(),
		conn:           conn,
		send:           make(chan []byte, sendQueueLen),
		hub:            hub,
		room:           key,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
}

// ID returns the client's generated connection ID.
func (c *Client) ID() string { return c.id }

// Room returns the key the client is registered under.
func (c *Client) Room() room.Key { return c.room }

// trySend queues a payload for the write pump without blocking. It reports
// false when the client is closed or its queue is full, which the hub treats
// as a delivery failure.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// close marks the client closed and releases its queue and connection. It
// reports whether this call was the one that performed the transition, so
// disconnect cleanup runs exactly once.
func (c *Client) close() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Debug().Err(err).Str("client", c.id).Msg("close connection")
		}
	}
	return true
}

// setNick upserts the client's presence entry while holding the session
// mutex, so a frame the session loop had already read before an eviction
// cannot resurrect the entry drop just cleared. Reports whether the client is
// still live.
func (c *Client) setNick(nick string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.hub.presence.SetNick(c.room, c.id, nick)
	return true
}

// readPump is the session state machine: it consumes inbound frames in
// arrival order, classifies each as join, typing, or chat, and runs the
// disconnect path when the transport reports the connection gone.
func (c *Client) readPump() {
	defer c.hub.drop(c)

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if c.rateLimiter != nil && !c.rateLimiter.allow() {
			log.Warn().Str("client", c.id).Int("burst", c.rateLimit.Burst).
				Msg("rate limit exceeded, discarding frame")
			continue
		}
		c.handleFrame(raw)
	}
}

// setupReadConnection configures the read deadline and pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Debug().Err(err).Str("client", c.id).Msg("set read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (c *Client) logReadError(err error) {
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Debug().Str("client", c.id).Str("addr", c.addr).Msg("client left")
	case isExpectedCloseError(err):
	default:
		log.Warn().Err(err).Str("client", c.id).Str("addr", c.addr).Msg("read error")
	}
}

// handleFrame classifies one inbound frame. A frame with a "join" key is a
// join, a frame typed "typing" is a typing indicator, and anything else is a
// chat message. Malformed frames fall back to defaults and are never fatal.
func (c *Client) handleFrame(raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Debug().Err(err).Str("client", c.id).Msg("discarding unparseable frame")
		return
	}

	switch {
	case frame.Join != nil:
		c.handleJoin(&frame)
	case frame.Type == "typing":
		c.handleTyping(&frame)
	default:
		c.handleChat(&frame)
	}
}

// handleJoin records the announced nickname and refreshes the member list.
func (c *Client) handleJoin(frame *inboundFrame) {
	nick := SanitizeNick(*frame.Join)
	if !c.setNick(nick) {
		return
	}
	c.hub.BroadcastUsers(c.room)
}

// handleTyping relays the indicator to the room without mutating any state.
func (c *Client) handleTyping(frame *inboundFrame) {
	payload, err := json.Marshal(typingFrame{
		Type:   "typing",
		Nick:   SanitizeNick(frame.nick()),
		Typing: frame.Typing,
	})
	if err != nil {
		log.Error().Err(err).Msg("encode typing frame")
		return
	}
	c.hub.Broadcast(c.room, payload)
}

// handleChat sanitizes, persists, and broadcasts a chat message, then
// re-broadcasts the member list so clients keep their rosters fresh. A frame
// whose text sanitizes to nothing is dropped silently.
func (c *Client) handleChat(frame *inboundFrame) {
	nick := SanitizeNick(frame.nick())
	text := Sanitize(frame.text())
	if text == "" {
		return
	}

	if !c.setNick(nick) {
		return
	}
	msg := room.Message{Nick: nick, Text: text, TS: time.Now().Unix()}

	// Persistence is best-effort relative to live delivery: a failed write is
	// logged and the message still goes out.
	if err := c.hub.RecordHistory(c.room, msg); err != nil {
		log.Error().Err(err).Str("room", c.room.String()).Msg("record history")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("encode chat frame")
		return
	}
	c.hub.Broadcast(c.room, payload)
	c.hub.BroadcastUsers(c.room)
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with periodic pings. It exits when the queue is closed or a write
// fails; the read pump then observes the closed connection and cleans up.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Debug().Err(err).Str("client", c.id).Msg("close connection")
			}
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					log.Debug().Err(err).Str("client", c.id).Msg("write error")
				}
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
