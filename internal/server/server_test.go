package server

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/config"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/database"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
)

func newTestServer(t *testing.T) (*httptest.Server, *database.MemoryStore) {
	t.Helper()

	store := database.NewMemoryStore()
	if err := store.SaveDocument(context.Background(), &database.Document{ID: 42, OwnerID: 1, Name: "draft"}); err != nil {
		t.Fatalf("Except no error but got %v", err)
	}
	if err := store.AddCollaborator(context.Background(), &database.Collaborator{DocumentID: 42, UserID: 2, Username: "B", Permission: "edit"}); err != nil {
		t.Fatalf("Except no error but got %v", err)
	}

	cfg := config.Config{
		Server: config.ServerConfig{
			OutboundQueueSize: 16,
			AccessCacheSize:   8,
			AccessCacheTTL:    "1m",
			WriteTimeout:      "5s",
		},
		Database: config.DatabaseConfig{OperationTimeout: "2s"},
	}

	ts := httptest.NewServer(New(cfg, store).Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func dial(t *testing.T, ts *httptest.Server, documentID, userID int, username string) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("%s/ws?documentId=%d&userId=%d&username=%s",
		strings.Replace(ts.URL, "http", "ws", 1), documentID, userID, username)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Except connection to succeed but got %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) message.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Except a frame but got %v", err)
	}
	msg, err := message.Decode(data)
	if err != nil {
		t.Fatalf("Except a decodable frame but got %v (%s)", err, data)
	}
	return msg
}

func TestAdmissionRejections(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name   string
		query  string
		reason string
	}{
		{"missing parameters", "", "Missing required parameters"},
		{"non-numeric user id", "documentId=42&userId=abc&username=A", "Missing required parameters"},
		{"unknown document", "documentId=99&userId=1&username=A", "Document not found"},
		{"unauthorized user", "documentId=42&userId=3&username=C", "Unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := strings.Replace(ts.URL, "http", "ws", 1) + "/ws?" + tt.query
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				t.Fatalf("Except the upgrade to succeed but got %v", err)
			}
			defer conn.Close()

			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, _, err = conn.ReadMessage()
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				t.Fatalf("Except a close error but got %v", err)
			}
			if ce.Code != websocket.ClosePolicyViolation {
				t.Errorf("Except close code 1008 but got %d", ce.Code)
			}
			if ce.Text != tt.reason {
				t.Errorf("Except close reason %q but got %q", tt.reason, ce.Text)
			}
		})
	}
}

func TestCollaborationSession(t *testing.T) {
	ts, _ := newTestServer(t)

	connA := dial(t, ts, 42, 1, "A")
	info, ok := readFrame(t, connA).(message.SessionInfo)
	if !ok || info.DocumentID != 42 {
		t.Fatalf("Except session-info for document 42 but got %+v", info)
	}
	if len(info.ActiveUsers) != 1 || info.ActiveUsers[0].UserID != 1 {
		t.Fatalf("Except the joining user in its own snapshot but got %+v", info.ActiveUsers)
	}

	connB := dial(t, ts, 42, 2, "B")
	infoB, ok := readFrame(t, connB).(message.SessionInfo)
	if !ok || len(infoB.ActiveUsers) != 2 {
		t.Fatalf("Except both users in second snapshot but got %+v", infoB)
	}

	joined, ok := readFrame(t, connA).(message.UserJoined)
	if !ok || joined.UserID != 2 || joined.Username != "B" {
		t.Fatalf("Except user-joined for user 2 but got %+v", joined)
	}

	// B edits; A receives the update stamped with B's identity.
	err := connB.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"content-update","section":"summary","content":"Shipped the relay"}`))
	if err != nil {
		t.Fatalf("Except write to succeed but got %v", err)
	}
	update, ok := readFrame(t, connA).(message.ContentUpdate)
	if !ok || update.UserID != 2 || update.Username != "B" || update.Section != "summary" {
		t.Fatalf("Except stamped content-update from B but got %+v", update)
	}
	if update.Timestamp.IsZero() {
		t.Error("Except a server-side timestamp")
	}

	// A edits; B's next frame is A's update. An echo of B's own edit
	// would have arrived first on this FIFO stream.
	err = connA.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"content-update","section":"skills","content":"Go"}`))
	if err != nil {
		t.Fatalf("Except write to succeed but got %v", err)
	}
	fromA, ok := readFrame(t, connB).(message.ContentUpdate)
	if !ok || fromA.UserID != 1 || fromA.Section != "skills" {
		t.Fatalf("Except A's update with no echo before it but got %+v", fromA)
	}

	// Cursor movement reaches the peer with stamped identity.
	err = connB.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"cursor-position","section":"summary","position":7}`))
	if err != nil {
		t.Fatalf("Except write to succeed but got %v", err)
	}
	cursor, ok := readFrame(t, connA).(message.CursorPosition)
	if !ok || cursor.UserID != 2 || cursor.Position != 7 {
		t.Fatalf("Except stamped cursor-position but got %+v", cursor)
	}

	// B disconnects; A is told.
	_ = connB.Close()
	left, ok := readFrame(t, connA).(message.UserLeft)
	if !ok || left.UserID != 2 {
		t.Fatalf("Except user-left for user 2 but got %+v", left)
	}
}

func TestCommentFlow(t *testing.T) {
	ts, store := newTestServer(t)

	connA := dial(t, ts, 42, 1, "A")
	if _, ok := readFrame(t, connA).(message.SessionInfo); !ok {
		t.Fatal("Except session-info first")
	}

	err := connA.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"add-comment","section":"summary","content":"quantify this"}`))
	if err != nil {
		t.Fatalf("Except write to succeed but got %v", err)
	}

	// new-comment comes back to the author too.
	created, ok := readFrame(t, connA).(message.NewComment)
	if !ok {
		t.Fatal("Except new-comment broadcast to include the author")
	}
	if created.Comment.ID == "" || created.Comment.UserID != 1 || created.Comment.Resolved {
		t.Fatalf("Except stamped unresolved comment but got %+v", created.Comment)
	}

	stored, err := store.GetComment(context.Background(), created.Comment.ID)
	if err != nil {
		t.Fatalf("Except persisted comment but got %v", err)
	}
	if stored.Content != "quantify this" {
		t.Errorf("Except persisted content, got %q", stored.Content)
	}

	// Resolving twice converges: both attempts broadcast.
	for i := 0; i < 2; i++ {
		err = connA.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"resolve-comment","commentId":"`+created.Comment.ID+`"}`))
		if err != nil {
			t.Fatalf("Except write to succeed but got %v", err)
		}
		resolved, ok := readFrame(t, connA).(message.CommentResolved)
		if !ok || resolved.CommentID != created.Comment.ID || resolved.ResolvedBy.UserID != 1 {
			t.Fatalf("Except comment-resolved broadcast %d but got %+v", i+1, resolved)
		}
	}

	// Unknown id fails back to the originator only.
	err = connA.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"resolve-comment","commentId":"missing"}`))
	if err != nil {
		t.Fatalf("Except write to succeed but got %v", err)
	}
	failure, ok := readFrame(t, connA).(message.ErrorMessage)
	if !ok || failure.Message != "Failed to resolve comment" {
		t.Fatalf("Except resolve failure message but got %+v", failure)
	}
}
