// Package comment owns the lifecycle of inline comment threads: creation,
// persistence and fan-out of resolution events.
package comment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/database"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/logger"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/session"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/telemetry"
)

type Manager struct {
	registry *session.Registry
	store    database.CommentStore
	timeout  time.Duration
}

func NewManager(registry *session.Registry, store database.CommentStore, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{registry: registry, store: store, timeout: timeout}
}

// Add persists a new comment and broadcasts it to every member of the
// room, the author included: the author learns the assigned id and
// timestamps from the same frame everyone else sees.
func (m *Manager) Add(ctx context.Context, documentID int, author message.ActiveUser, section, content string) (*message.Comment, error) {
	now := time.Now().UTC()
	comment := &message.Comment{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		UserID:     author.UserID,
		Username:   author.Username,
		Section:    section,
		Content:    content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.store.CreateComment(ctx, comment); err != nil {
		telemetry.StoreFailures.Inc()
		logger.ErrorF("Error occured while creating comment for document %d, details: %v", documentID, err)
		return nil, err
	}

	out := message.NewComment{Type: message.TypeNewComment, Comment: *comment}
	if err := m.registry.Broadcast(documentID, out, nil); err != nil {
		logger.ErrorF("Fail to broadcast new comment %s, details: %v", comment.ID, err)
	}
	return comment, nil
}

// Resolve marks the comment resolved and broadcasts the resolution to the
// whole room. Resolving an already resolved comment rebroadcasts so every
// member converges on the same state.
func (m *Manager) Resolve(ctx context.Context, documentID int, resolver message.ActiveUser, commentID string) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.store.ResolveComment(ctx, commentID); err != nil {
		telemetry.StoreFailures.Inc()
		logger.ErrorF("Error occured while resolving comment %s, details: %v", commentID, err)
		return err
	}

	out := message.CommentResolved{
		Type:       message.TypeCommentResolved,
		CommentID:  commentID,
		ResolvedBy: resolver,
		Timestamp:  time.Now().UTC(),
	}
	if err := m.registry.Broadcast(documentID, out, nil); err != nil {
		logger.ErrorF("Fail to broadcast comment resolution %s, details: %v", commentID, err)
	}
	return nil
}

// List returns the document's comments, oldest first.
func (m *Manager) List(ctx context.Context, documentID int) ([]message.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	comments, err := m.store.ListComments(ctx, documentID)
	if err != nil {
		telemetry.StoreFailures.Inc()
		logger.ErrorF("Error occured while listing comments for document %d, details: %v", documentID, err)
		return nil, err
	}
	return comments, nil
}
