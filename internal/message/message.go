// Package message defines the tagged JSON envelope exchanged on a
// collaboration connection and the codec for it.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type tags a message envelope.
type Type string

const (
	TypeSessionInfo     Type = "session-info"
	TypeUserJoined      Type = "user-joined"
	TypeUserLeft        Type = "user-left"
	TypeContentUpdate   Type = "content-update"
	TypeAddComment      Type = "add-comment"
	TypeNewComment      Type = "new-comment"
	TypeResolveComment  Type = "resolve-comment"
	TypeCommentResolved Type = "comment-resolved"
	TypeCursorPosition  Type = "cursor-position"
	TypeError           Type = "error"
)

// clientOrigin lists the message types a client is allowed to send.
// Everything else is server-originated.
var clientOrigin = map[Type]bool{
	TypeContentUpdate:  true,
	TypeAddComment:     true,
	TypeResolveComment: true,
	TypeCursorPosition: true,
}

func (t Type) String() string {
	return string(t)
}

// ClientOrigin reports whether a client may legitimately send this type.
func (t Type) ClientOrigin() bool {
	return clientOrigin[t]
}

var (
	ErrMissingType = errors.New("message has no type tag")
	ErrUnknownType = errors.New("unknown message type")
)

// Message is the closed set of envelope variants. Dispatch points switch on
// the concrete type, so adding a variant is a compile-checked change.
type Message interface {
	MessageType() Type
}

// ActiveUser identifies a distinct user present in a room.
type ActiveUser struct {
	UserID   int    `json:"userId"`
	Username string `json:"username"`
}

// Comment is the wire form of an inline comment thread entry.
type Comment struct {
	ID         string    `json:"id"`
	DocumentID int       `json:"documentId"`
	UserID     int       `json:"userId"`
	Username   string    `json:"username"`
	Section    string    `json:"section"`
	Content    string    `json:"content"`
	Resolved   bool      `json:"resolved"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type SessionInfo struct {
	Type        Type         `json:"type"`
	ActiveUsers []ActiveUser `json:"activeUsers"`
	DocumentID  int          `json:"documentId"`
}

func (SessionInfo) MessageType() Type { return TypeSessionInfo }

type UserJoined struct {
	Type      Type      `json:"type"`
	UserID    int       `json:"userId"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

func (UserJoined) MessageType() Type { return TypeUserJoined }

type UserLeft struct {
	Type      Type      `json:"type"`
	UserID    int       `json:"userId"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

func (UserLeft) MessageType() Type { return TypeUserLeft }

// ContentUpdate carries a section's new value. Clients send only section
// and content; the relay stamps identity and time before fan-out.
type ContentUpdate struct {
	Type      Type            `json:"type"`
	Section   string          `json:"section"`
	Content   json.RawMessage `json:"content"`
	UserID    int             `json:"userId,omitempty"`
	Username  string          `json:"username,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func (ContentUpdate) MessageType() Type { return TypeContentUpdate }

type AddComment struct {
	Type    Type   `json:"type"`
	Section string `json:"section"`
	Content string `json:"content"`
}

func (AddComment) MessageType() Type { return TypeAddComment }

type NewComment struct {
	Type    Type    `json:"type"`
	Comment Comment `json:"comment"`
}

func (NewComment) MessageType() Type { return TypeNewComment }

type ResolveComment struct {
	Type      Type   `json:"type"`
	CommentID string `json:"commentId"`
}

func (ResolveComment) MessageType() Type { return TypeResolveComment }

type CommentResolved struct {
	Type       Type       `json:"type"`
	CommentID  string     `json:"commentId"`
	ResolvedBy ActiveUser `json:"resolvedBy"`
	Timestamp  time.Time  `json:"timestamp"`
}

func (CommentResolved) MessageType() Type { return TypeCommentResolved }

// CursorPosition carries one user's editing location within a section.
// Clients send only section and position; identity is stamped server-side.
type CursorPosition struct {
	Type     Type   `json:"type"`
	UserID   int    `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Section  string `json:"section"`
	Position int    `json:"position"`
}

func (CursorPosition) MessageType() Type { return TypeCursorPosition }

type ErrorMessage struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

func (ErrorMessage) MessageType() Type { return TypeError }

func NewError(text string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: text}
}

// Encode serializes a message for the wire.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("fail to encode %s message: %w", m.MessageType(), err)
	}
	return data, nil
}

// Decode parses a raw frame into its concrete variant.
func Decode(data []byte) (Message, error) {
	var env struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed message envelope: %w", err)
	}

	switch env.Type {
	case TypeSessionInfo:
		return decodeAs[SessionInfo](data)
	case TypeUserJoined:
		return decodeAs[UserJoined](data)
	case TypeUserLeft:
		return decodeAs[UserLeft](data)
	case TypeContentUpdate:
		return decodeAs[ContentUpdate](data)
	case TypeAddComment:
		return decodeAs[AddComment](data)
	case TypeNewComment:
		return decodeAs[NewComment](data)
	case TypeResolveComment:
		return decodeAs[ResolveComment](data)
	case TypeCommentResolved:
		return decodeAs[CommentResolved](data)
	case TypeCursorPosition:
		return decodeAs[CursorPosition](data)
	case TypeError:
		return decodeAs[ErrorMessage](data)
	case "":
		return nil, ErrMissingType
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeAs[M Message](data []byte) (Message, error) {
	var m M
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("malformed %s message: %w", m.MessageType(), err)
	}
	return m, nil
}
