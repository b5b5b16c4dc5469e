// Package client is the Go-side counterpart of the relay: it maintains a
// websocket session for one document, mirrors the room state it is told
// about, and coalesces outbound edits.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/logger"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
)

var (
	ErrClosed       = errors.New("client is closed")
	ErrNotConnected = errors.New("client is not connected")
)

type Config struct {
	// URL is the relay base, e.g. ws://localhost:5000.
	URL        string
	DocumentID int
	UserID     int
	Username   string

	// SendDebounce holds back rapid edits to one section so only the
	// latest value goes out. Zero sends every update immediately.
	SendDebounce     time.Duration
	HandshakeTimeout time.Duration
	Retry            RetryPolicy
}

type cursorKey struct {
	userID  int
	section string
}

type Client struct {
	cfg  Config
	subs *subscriptions
	edit *coalescer

	mu       sync.Mutex
	conn     *websocket.Conn
	users    map[int]string
	comments map[string]message.Comment
	cursors  map[cursorKey]message.CursorPosition

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay and starts mirroring the room. The initial
// connect follows the retry policy, as do reconnects after a drop.
func Dial(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.DocumentID == 0 || cfg.UserID == 0 || cfg.Username == "" {
		return nil, errors.New("url, document id, user id and username are required")
	}
	if (cfg.Retry == RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	c := &Client{
		cfg:      cfg,
		subs:     newSubscriptions(),
		users:    make(map[int]string),
		comments: make(map[string]message.Comment),
		cursors:  make(map[cursorKey]message.CursorPosition),
		done:     make(chan struct{}),
	}
	c.edit = newCoalescer(cfg.SendDebounce, func(section string, content json.RawMessage) {
		err := c.writeFrame(message.ContentUpdate{
			Type:    message.TypeContentUpdate,
			Section: section,
			Content: content,
		})
		if err != nil {
			logger.WarnF("Fail to send content update for section %s, details: %v", section, err)
		}
	})

	if err := backoff.Retry(c.connect, c.cfg.Retry.backoff()); err != nil {
		return nil, fmt.Errorf("fail to connect to %s: %w", cfg.URL, err)
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) endpoint() string {
	q := url.Values{}
	q.Set("documentId", fmt.Sprint(c.cfg.DocumentID))
	q.Set("userId", fmt.Sprint(c.cfg.UserID))
	q.Set("username", c.cfg.Username)
	return c.cfg.URL + "/ws?" + q.Encode()
}

func (c *Client) connect() error {
	select {
	case <-c.done:
		return backoff.Permanent(ErrClosed)
	default:
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.Dial(c.endpoint(), nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	// positions from the previous session are stale; the room will
	// replay presence via session-info
	c.cursors = make(map[cursorKey]message.CursorPosition)
	c.mu.Unlock()
	return nil
}

func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			logger.WarnF("Connection to relay lost, details: %v", err)
			if err := backoff.Retry(c.connect, c.cfg.Retry.backoff()); err != nil {
				logger.ErrorF("Error occured while reconnecting to relay, details: %v", err)
				return
			}
			continue
		}

		msg, err := message.Decode(data)
		if err != nil {
			logger.WarnF("Fail to decode relay frame, details: %v", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg message.Message) {
	switch m := msg.(type) {
	case message.SessionInfo:
		c.mu.Lock()
		c.users = make(map[int]string, len(m.ActiveUsers))
		for _, u := range m.ActiveUsers {
			c.users[u.UserID] = u.Username
		}
		c.mu.Unlock()
	case message.UserJoined:
		c.mu.Lock()
		c.users[m.UserID] = m.Username
		c.mu.Unlock()
	case message.UserLeft:
		c.mu.Lock()
		delete(c.users, m.UserID)
		for key := range c.cursors {
			if key.userID == m.UserID {
				delete(c.cursors, key)
			}
		}
		c.mu.Unlock()
	case message.ContentUpdate:
		c.subs.dispatch(m)
	case message.NewComment:
		c.mu.Lock()
		c.comments[m.Comment.ID] = m.Comment
		c.mu.Unlock()
	case message.CommentResolved:
		c.mu.Lock()
		if comment, ok := c.comments[m.CommentID]; ok {
			comment.Resolved = true
			comment.UpdatedAt = m.Timestamp
			c.comments[m.CommentID] = comment
		}
		c.mu.Unlock()
	case message.CursorPosition:
		c.mu.Lock()
		c.cursors[cursorKey{userID: m.UserID, section: m.Section}] = m
		c.mu.Unlock()
	case message.ErrorMessage:
		logger.WarnF("Relay reported an error: %s", m.Message)
	}
}

func (c *Client) writeFrame(msg message.Message) error {
	data, err := message.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Subscribe registers fn for remote updates to a section. An empty
// section subscribes to every update.
func (c *Client) Subscribe(section string, fn ContentHandler) *Subscription {
	return c.subs.add(section, fn)
}

// SendContentUpdate queues a local edit for delivery through the
// debouncer.
func (c *Client) SendContentUpdate(section string, content json.RawMessage) {
	c.edit.add(section, content)
}

func (c *Client) UpdateCursor(section string, position int) error {
	return c.writeFrame(message.CursorPosition{
		Type:     message.TypeCursorPosition,
		Section:  section,
		Position: position,
	})
}

func (c *Client) AddComment(section, content string) error {
	return c.writeFrame(message.AddComment{
		Type:    message.TypeAddComment,
		Section: section,
		Content: content,
	})
}

func (c *Client) ResolveComment(commentID string) error {
	return c.writeFrame(message.ResolveComment{
		Type:      message.TypeResolveComment,
		CommentID: commentID,
	})
}

// ActiveUsers snapshots the mirrored presence list, ordered by user id.
func (c *Client) ActiveUsers() []message.ActiveUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	users := make([]message.ActiveUser, 0, len(c.users))
	for id, name := range c.users {
		users = append(users, message.ActiveUser{UserID: id, Username: name})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

// Comments snapshots the mirrored comment threads, oldest first.
func (c *Client) Comments() []message.Comment {
	c.mu.Lock()
	defer c.mu.Unlock()
	comments := make([]message.Comment, 0, len(c.comments))
	for _, comment := range c.comments {
		comments = append(comments, comment)
	}
	sort.Slice(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments
}

// Cursors snapshots the mirrored peer cursor positions.
func (c *Client) Cursors() []message.CursorPosition {
	c.mu.Lock()
	defer c.mu.Unlock()
	positions := make([]message.CursorPosition, 0, len(c.cursors))
	for _, pos := range c.cursors {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].UserID != positions[j].UserID {
			return positions[i].UserID < positions[j].UserID
		}
		return positions[i].Section < positions[j].Section
	})
	return positions
}

// Close flushes pending edits and tears the connection down.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.edit.close()
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			deadline := time.Now().Add(time.Second)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = c.conn.Close()
		}
		c.mu.Unlock()
	})
	return nil
}
