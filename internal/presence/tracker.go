// Package presence derives join/leave announcements and active-user
// snapshots from registry membership changes.
package presence

import (
	"time"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/logger"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/session"
)

type Tracker struct {
	registry *session.Registry
}

func NewTracker(registry *session.Registry) *Tracker {
	return &Tracker{registry: registry}
}

// HandleJoin records the client and announces it: the rest of the room
// gets user-joined, the client itself gets a session-info snapshot whose
// active-user list includes the client.
func (t *Tracker) HandleJoin(c *session.Client) {
	t.registry.Join(c.DocumentID, c)

	joined := message.UserJoined{
		Type:      message.TypeUserJoined,
		UserID:    c.UserID,
		Username:  c.Username,
		Timestamp: time.Now().UTC(),
	}
	if err := t.registry.Broadcast(c.DocumentID, joined, c); err != nil {
		logger.ErrorF("[%s] Fail to announce join, details: %v", c.ConnID(), err)
	}

	info := message.SessionInfo{
		Type:        message.TypeSessionInfo,
		ActiveUsers: t.registry.ActiveUsers(c.DocumentID),
		DocumentID:  c.DocumentID,
	}
	if err := t.registry.Send(c, info); err != nil {
		logger.ErrorF("[%s] Fail to send session info, details: %v", c.ConnID(), err)
	}
}

// HandleLeave removes the client and, when the room survives, tells the
// remaining members. A destroyed room has nobody left to notify.
func (t *Tracker) HandleLeave(c *session.Client) {
	remaining := t.registry.Leave(c.DocumentID, c)
	if !remaining {
		return
	}

	left := message.UserLeft{
		Type:      message.TypeUserLeft,
		UserID:    c.UserID,
		Username:  c.Username,
		Timestamp: time.Now().UTC(),
	}
	if err := t.registry.Broadcast(c.DocumentID, left, nil); err != nil {
		logger.ErrorF("[%s] Fail to announce leave, details: %v", c.ConnID(), err)
	}
}
