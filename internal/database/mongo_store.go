package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/logger"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
)

// MongoStore persists documents, comments, collaborators and edit history
// in MongoDB. It relies on ConnectDatabase having been called.
type MongoStore struct {
	db *mongo.Database
}

var mongoStore *MongoStore

func NewMongoStore() *MongoStore {
	if mongoStore == nil {
		mongoStore = &MongoStore{db: Database}
	}
	return mongoStore
}

// commentDoc is the persisted shape of a wire comment.
type commentDoc struct {
	ID         string    `bson:"_id"`
	DocumentID int       `bson:"document_id"`
	UserID     int       `bson:"user_id"`
	Username   string    `bson:"username"`
	Section    string    `bson:"section"`
	Content    string    `bson:"content"`
	Resolved   bool      `bson:"resolved"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func toCommentDoc(c *message.Comment) *commentDoc {
	return &commentDoc{
		ID:         c.ID,
		DocumentID: c.DocumentID,
		UserID:     c.UserID,
		Username:   c.Username,
		Section:    c.Section,
		Content:    c.Content,
		Resolved:   c.Resolved,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func (d *commentDoc) toComment() message.Comment {
	return message.Comment{
		ID:         d.ID,
		DocumentID: d.DocumentID,
		UserID:     d.UserID,
		Username:   d.Username,
		Section:    d.Section,
		Content:    d.Content,
		Resolved:   d.Resolved,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func wrapMongoErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("unique key conflicts: %w", err)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return fmt.Errorf("database operation failed: %w", err)
}

func (ms *MongoStore) GetDocument(ctx context.Context, id int) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "_id", Value: id}}
	var doc Document

	startTime := time.Now()
	err := ms.db.Collection(DocumentCollectionName).FindOne(ctx, filter).Decode(&doc)
	logger.DebugF("document query cost: %v", time.Since(startTime))

	if err != nil {
		return nil, wrapMongoErr(err)
	}
	return &doc, nil
}

func (ms *MongoStore) SaveDocument(ctx context.Context, doc *Document) error {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "_id", Value: doc.ID}}
	opts := options.Replace().SetUpsert(true)

	result, err := ms.db.Collection(DocumentCollectionName).ReplaceOne(ctx, filter, doc, opts)
	if err != nil {
		return wrapMongoErr(err)
	}

	logger.InfoF("Document saved: id=%d, matched=%d, modified=%d, upserted=%v",
		doc.ID,
		result.MatchedCount,
		result.ModifiedCount,
		result.UpsertedID != nil,
	)
	return nil
}

func (ms *MongoStore) CreateComment(ctx context.Context, comment *message.Comment) error {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	_, err := ms.db.Collection(CommentCollectionName).InsertOne(ctx, toCommentDoc(comment))
	if err != nil {
		return wrapMongoErr(err)
	}

	logger.InfoF("Comment created: id=%s, document_id=%d, section=%s", comment.ID, comment.DocumentID, comment.Section)
	return nil
}

func (ms *MongoStore) GetComment(ctx context.Context, id string) (*message.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "_id", Value: id}}
	var doc commentDoc

	err := ms.db.Collection(CommentCollectionName).FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		return nil, wrapMongoErr(err)
	}

	comment := doc.toComment()
	return &comment, nil
}

func (ms *MongoStore) ListComments(ctx context.Context, documentID int) ([]message.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "document_id", Value: documentID}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := ms.db.Collection(CommentCollectionName).Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapMongoErr(err)
	}
	defer cursor.Close(ctx)

	var docs []commentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapMongoErr(err)
	}

	comments := make([]message.Comment, len(docs))
	for i, d := range docs {
		comments[i] = d.toComment()
	}
	return comments, nil
}

func (ms *MongoStore) ResolveComment(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "_id", Value: id}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "resolved", Value: true},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}

	result, err := ms.db.Collection(CommentCollectionName).UpdateOne(ctx, filter, update)
	if err != nil {
		return wrapMongoErr(err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: comment %s", ErrNotFound, id)
	}

	logger.InfoF("Comment resolved: id=%s, modified=%d", id, result.ModifiedCount)
	return nil
}

func (ms *MongoStore) AddCollaborator(ctx context.Context, collaborator *Collaborator) error {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	filter := bson.D{
		{Key: "document_id", Value: collaborator.DocumentID},
		{Key: "user_id", Value: collaborator.UserID},
	}
	opts := options.Replace().SetUpsert(true)

	_, err := ms.db.Collection(CollaboratorCollectionName).ReplaceOne(ctx, filter, collaborator, opts)
	if err != nil {
		return wrapMongoErr(err)
	}

	logger.InfoF("Collaborator saved: document_id=%d, user_id=%d, permission=%s",
		collaborator.DocumentID, collaborator.UserID, collaborator.Permission)
	return nil
}

func (ms *MongoStore) RemoveCollaborator(ctx context.Context, documentID, userID int) error {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "document_id", Value: documentID}, {Key: "user_id", Value: userID}}
	result, err := ms.db.Collection(CollaboratorCollectionName).DeleteOne(ctx, filter)
	if err != nil {
		return wrapMongoErr(err)
	}

	logger.InfoF("Collaborator removed: document_id=%d, user_id=%d, deleted=%d", documentID, userID, result.DeletedCount)
	return nil
}

func (ms *MongoStore) ListCollaborators(ctx context.Context, documentID int) ([]Collaborator, error) {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "document_id", Value: documentID}}
	cursor, err := ms.db.Collection(CollaboratorCollectionName).Find(ctx, filter)
	if err != nil {
		return nil, wrapMongoErr(err)
	}
	defer cursor.Close(ctx)

	var collaborators []Collaborator
	if err := cursor.All(ctx, &collaborators); err != nil {
		return nil, wrapMongoErr(err)
	}
	return collaborators, nil
}

func (ms *MongoStore) IsCollaborator(ctx context.Context, documentID, userID int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "document_id", Value: documentID}, {Key: "user_id", Value: userID}}
	err := ms.db.Collection(CollaboratorCollectionName).FindOne(ctx, filter).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, wrapMongoErr(err)
	}
	return true, nil
}

func (ms *MongoStore) RecordEdit(ctx context.Context, record *EditRecord) error {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	_, err := ms.db.Collection(EditHistoryCollectionName).InsertOne(ctx, record)
	if err != nil {
		return wrapMongoErr(err)
	}
	return nil
}
