package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
)

const (
	DocumentCollectionName     = "documents"
	CommentCollectionName      = "comments"
	CollaboratorCollectionName = "collaborators"
	EditHistoryCollectionName  = "edit_history"
)

var ErrNotFound = errors.New("document does not exist")

// Document carries the owner metadata the gateway needs for its access
// check. The document body itself is edited elsewhere; the relay only
// reads identity fields.
type Document struct {
	ID        int       `bson:"_id" json:"id"`
	OwnerID   int       `bson:"owner_id" json:"ownerId"`
	Name      string    `bson:"name" json:"name"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Collaborator grants a user edit access to a document.
type Collaborator struct {
	DocumentID int       `bson:"document_id" json:"documentId"`
	UserID     int       `bson:"user_id" json:"userId"`
	Username   string    `bson:"username" json:"username"`
	Permission string    `bson:"permission" json:"permission"`
	InvitedAt  time.Time `bson:"invited_at" json:"invitedAt"`
}

// EditRecord is an audit snapshot of one content update.
type EditRecord struct {
	DocumentID int             `bson:"document_id" json:"documentId"`
	UserID     int             `bson:"user_id" json:"userId"`
	Username   string          `bson:"username" json:"username"`
	Section    string          `bson:"section" json:"section"`
	Snapshot   json.RawMessage `bson:"snapshot" json:"snapshot"`
	CreatedAt  time.Time       `bson:"created_at" json:"createdAt"`
}

type DocumentStore interface {
	GetDocument(ctx context.Context, id int) (*Document, error)
	SaveDocument(ctx context.Context, doc *Document) error
}

type CommentStore interface {
	CreateComment(ctx context.Context, comment *message.Comment) error
	GetComment(ctx context.Context, id string) (*message.Comment, error)
	ListComments(ctx context.Context, documentID int) ([]message.Comment, error)
	// ResolveComment flips resolved to true. Resolving an already resolved
	// comment is not an error.
	ResolveComment(ctx context.Context, id string) error
}

type CollaboratorStore interface {
	AddCollaborator(ctx context.Context, collaborator *Collaborator) error
	RemoveCollaborator(ctx context.Context, documentID, userID int) error
	ListCollaborators(ctx context.Context, documentID int) ([]Collaborator, error)
	IsCollaborator(ctx context.Context, documentID, userID int) (bool, error)
}

type HistoryStore interface {
	RecordEdit(ctx context.Context, record *EditRecord) error
}

// Store is the full storage collaborator surface the relay consumes.
type Store interface {
	DocumentStore
	CommentStore
	CollaboratorStore
	HistoryStore
}
