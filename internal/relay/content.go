// Package relay fans section-scoped content updates and cursor positions
// out to the other members of a room. No merge or ordering is applied
// beyond per-sender FIFO; concurrent edits to one section resolve
// last-write-wins at each receiver.
package relay

import (
	"context"
	"time"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/database"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/logger"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/session"
)

type ContentRelay struct {
	registry *session.Registry
	history  database.HistoryStore
	timeout  time.Duration
}

// NewContentRelay builds the relay. history may be nil to disable audit
// snapshots.
func NewContentRelay(registry *session.Registry, history database.HistoryStore, timeout time.Duration) *ContentRelay {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ContentRelay{registry: registry, history: history, timeout: timeout}
}

// Handle stamps the update with the sender's identity and the current time
// and broadcasts it to everyone else in the room.
func (r *ContentRelay) Handle(c *session.Client, upd message.ContentUpdate) {
	out := message.ContentUpdate{
		Type:      message.TypeContentUpdate,
		Section:   upd.Section,
		Content:   upd.Content,
		UserID:    c.UserID,
		Username:  c.Username,
		Timestamp: time.Now().UTC(),
	}
	if err := r.registry.Broadcast(c.DocumentID, out, c); err != nil {
		logger.ErrorF("[%s] Fail to relay content update, details: %v", c.ConnID(), err)
		return
	}

	if r.history != nil {
		go r.snapshot(c, out)
	}
}

// snapshot records the update for audit. Fire and forget: a failure must
// never block or fail the broadcast.
func (r *ContentRelay) snapshot(c *session.Client, upd message.ContentUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	record := &database.EditRecord{
		DocumentID: c.DocumentID,
		UserID:     c.UserID,
		Username:   c.Username,
		Section:    upd.Section,
		Snapshot:   upd.Content,
		CreatedAt:  upd.Timestamp,
	}
	if err := r.history.RecordEdit(ctx, record); err != nil {
		logger.WarnF("[%s] Fail to record edit history, details: %v", c.ConnID(), err)
	}
}
