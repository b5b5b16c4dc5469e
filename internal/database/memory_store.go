package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
)

// MemoryStore is the in-process Store used for tests and single-node
// development runs (database.in_memory). Safe for concurrent use.
type MemoryStore struct {
	mu            sync.Mutex
	documents     map[int]Document
	comments      map[string]message.Comment
	collaborators map[int][]Collaborator
	history       []EditRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents:     make(map[int]Document),
		comments:      make(map[string]message.Comment),
		collaborators: make(map[int][]Collaborator),
	}
}

func (ms *MemoryStore) GetDocument(_ context.Context, id int) (*Document, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	doc, ok := ms.documents[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %d", ErrNotFound, id)
	}
	return &doc, nil
}

func (ms *MemoryStore) SaveDocument(_ context.Context, doc *Document) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.documents[doc.ID] = *doc
	return nil
}

func (ms *MemoryStore) CreateComment(_ context.Context, comment *message.Comment) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.comments[comment.ID] = *comment
	return nil
}

func (ms *MemoryStore) GetComment(_ context.Context, id string) (*message.Comment, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	comment, ok := ms.comments[id]
	if !ok {
		return nil, fmt.Errorf("%w: comment %s", ErrNotFound, id)
	}
	return &comment, nil
}

func (ms *MemoryStore) ListComments(_ context.Context, documentID int) ([]message.Comment, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var comments []message.Comment
	for _, c := range ms.comments {
		if c.DocumentID == documentID {
			comments = append(comments, c)
		}
	}
	sort.Slice(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments, nil
}

func (ms *MemoryStore) ResolveComment(_ context.Context, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	comment, ok := ms.comments[id]
	if !ok {
		return fmt.Errorf("%w: comment %s", ErrNotFound, id)
	}
	comment.Resolved = true
	ms.comments[id] = comment
	return nil
}

func (ms *MemoryStore) AddCollaborator(_ context.Context, collaborator *Collaborator) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	existing := ms.collaborators[collaborator.DocumentID]
	for i, c := range existing {
		if c.UserID == collaborator.UserID {
			existing[i] = *collaborator
			return nil
		}
	}
	ms.collaborators[collaborator.DocumentID] = append(existing, *collaborator)
	return nil
}

func (ms *MemoryStore) RemoveCollaborator(_ context.Context, documentID, userID int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	existing := ms.collaborators[documentID]
	for i, c := range existing {
		if c.UserID == userID {
			ms.collaborators[documentID] = append(existing[:i], existing[i+1:]...)
			return nil
		}
	}
	return nil
}

func (ms *MemoryStore) ListCollaborators(_ context.Context, documentID int) ([]Collaborator, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	existing := ms.collaborators[documentID]
	collaborators := make([]Collaborator, len(existing))
	copy(collaborators, existing)
	return collaborators, nil
}

func (ms *MemoryStore) IsCollaborator(_ context.Context, documentID, userID int) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, c := range ms.collaborators[documentID] {
		if c.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (ms *MemoryStore) RecordEdit(_ context.Context, record *EditRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.history = append(ms.history, *record)
	return nil
}

// EditHistory returns the recorded snapshots for a document, oldest first.
func (ms *MemoryStore) EditHistory(documentID int) []EditRecord {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var records []EditRecord
	for _, r := range ms.history {
		if r.DocumentID == documentID {
			records = append(records, r)
		}
	}
	return records
}
