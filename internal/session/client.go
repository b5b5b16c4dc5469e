// Package session owns the in-memory room state: which clients are
// connected to which document, and the live cursor positions per room.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/logger"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/telemetry"
)

// Client is one live connection's identity and membership record.
// A user may hold several Clients at once across connections.
type Client struct {
	DocumentID int
	UserID     int
	Username   string

	conn         *websocket.Conn
	connID       string
	writeTimeout time.Duration
	outbox       *outbox
	closed       atomic.Bool
	closeOnce    sync.Once
}

func NewClient(documentID, userID int, username string, conn *websocket.Conn, queueDepth int, writeTimeout time.Duration) *Client {
	connID := ""
	if conn != nil {
		connID = conn.RemoteAddr().String()
	}
	return &Client{
		DocumentID:   documentID,
		UserID:       userID,
		Username:     username,
		conn:         conn,
		connID:       connID,
		writeTimeout: writeTimeout,
		outbox:       newOutbox(queueDepth),
	}
}

func (c *Client) ConnID() string {
	return c.connID
}

// Conn exposes the transport for the read side.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// Start launches the writer goroutine draining the outbox.
func (c *Client) Start() {
	go c.writeLoop()
}

// Enqueue queues a frame for delivery. Frames to a closed client are
// silently discarded; teardown is detected by the read side.
func (c *Client) Enqueue(typ message.Type, frame []byte) {
	if c.closed.Load() {
		return
	}
	if dropped := c.outbox.push(typ, frame); dropped {
		telemetry.MessagesDropped.Inc()
		logger.WarnF("[%s] Outbound queue full, dropped a frame", c.connID)
	}
}

func (c *Client) writeLoop() {
	for {
		frames, ok := c.outbox.take()
		if !ok {
			return
		}
		for _, frame := range frames {
			if c.writeTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame.data); err != nil {
				logger.DebugF("[%s] Fail to send frame, details: %v", c.connID, err)
				c.Close()
				return
			}
		}
	}
}

// Close marks the client dead, stops the writer and closes the transport.
// Safe to call multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.outbox.close()
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// pendingFrames exposes queued frames for tests.
func (c *Client) pendingFrames() [][]byte {
	c.outbox.mu.Lock()
	defer c.outbox.mu.Unlock()
	frames := make([][]byte, len(c.outbox.queue))
	for i, f := range c.outbox.queue {
		frames[i] = f.data
	}
	return frames
}

type frame struct {
	typ  message.Type
	data []byte
}

// outbox is a bounded frame queue. When full it evicts queued
// cursor-position frames first; a content or comment frame then displaces
// the oldest entry, while an incoming cursor frame is simply dropped.
type outbox struct {
	mu     sync.Mutex
	queue  []frame
	limit  int
	notify chan struct{}
	closed bool
}

func newOutbox(limit int) *outbox {
	if limit <= 0 {
		limit = 64
	}
	return &outbox{
		limit:  limit,
		notify: make(chan struct{}, 1),
	}
}

func (o *outbox) push(typ message.Type, data []byte) (dropped bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}

	if len(o.queue) >= o.limit {
		dropped = true
		evicted := false
		for i, q := range o.queue {
			if q.typ == message.TypeCursorPosition {
				o.queue = append(o.queue[:i], o.queue[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			if typ == message.TypeCursorPosition {
				return true
			}
			o.queue = o.queue[1:]
		}
	}

	o.queue = append(o.queue, frame{typ: typ, data: data})
	o.signal()
	return dropped
}

func (o *outbox) signal() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// take blocks until frames are queued or the outbox is closed.
func (o *outbox) take() ([]frame, bool) {
	for range o.notify {
		o.mu.Lock()
		frames := o.queue
		o.queue = nil
		o.mu.Unlock()
		if len(frames) > 0 {
			return frames, true
		}
	}
	return nil, false
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.queue = nil
	close(o.notify)
}
