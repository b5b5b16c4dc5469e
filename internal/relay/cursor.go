package relay

import (
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/logger"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/session"
)

type CursorRelay struct {
	registry *session.Registry
}

func NewCursorRelay(registry *session.Registry) *CursorRelay {
	return &CursorRelay{registry: registry}
}

// Handle stamps the position with the sender's identity, broadcasts it to
// the rest of the room, and replaces the room's entry for the sender's
// (user, section) pair.
func (r *CursorRelay) Handle(c *session.Client, pos message.CursorPosition) {
	out := message.CursorPosition{
		Type:     message.TypeCursorPosition,
		UserID:   c.UserID,
		Username: c.Username,
		Section:  pos.Section,
		Position: pos.Position,
	}
	if err := r.registry.Broadcast(c.DocumentID, out, c); err != nil {
		logger.ErrorF("[%s] Fail to relay cursor position, details: %v", c.ConnID(), err)
	}
	r.registry.SetCursor(c.DocumentID, out)
}
