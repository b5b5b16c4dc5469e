package session

import (
	"testing"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
)

func newTestClient(documentID, userID int, username string) *Client {
	return NewClient(documentID, userID, username, nil, 8, 0)
}

func TestJoinLeaveActiveUsers(t *testing.T) {
	registry := NewRegistry()

	a := newTestClient(42, 1, "A")
	b := newTestClient(42, 2, "B")
	b2 := newTestClient(42, 2, "B") // second connection, same user

	registry.Join(42, a)
	registry.Join(42, b)
	registry.Join(42, b2)

	users := registry.ActiveUsers(42)
	if len(users) != 2 {
		t.Fatalf("Expect 2 distinct users, got %d", len(users))
	}
	if users[0].UserID != 1 || users[1].UserID != 2 {
		t.Errorf("Expect users [1 2], got %+v", users)
	}

	// user 2 still present through the second connection
	registry.Leave(42, b)
	users = registry.ActiveUsers(42)
	if len(users) != 2 {
		t.Errorf("Expect user 2 still active via second connection, got %+v", users)
	}

	registry.Leave(42, b2)
	users = registry.ActiveUsers(42)
	if len(users) != 1 || users[0].UserID != 1 {
		t.Errorf("Expect only user 1 active, got %+v", users)
	}
}

func TestRoomDestroyedWhenEmpty(t *testing.T) {
	registry := NewRegistry()
	a := newTestClient(42, 1, "A")

	registry.Join(42, a)
	if registry.RoomCount() != 1 {
		t.Fatalf("Expect 1 room, got %d", registry.RoomCount())
	}

	registry.SetCursor(42, message.CursorPosition{Type: message.TypeCursorPosition, UserID: 1, Section: "summary", Position: 3})

	if remaining := registry.Leave(42, a); remaining {
		t.Error("Expect Leave to report the room destroyed")
	}
	if registry.RoomCount() != 0 {
		t.Fatalf("Expect 0 rooms after last leave, got %d", registry.RoomCount())
	}

	// a subsequent join starts from empty state
	b := newTestClient(42, 2, "B")
	registry.Join(42, b)
	if cursors := registry.Cursors(42); len(cursors) != 0 {
		t.Errorf("Expect recreated room to have no cursors, got %+v", cursors)
	}
}

func TestCursorReplacePerUserSection(t *testing.T) {
	registry := NewRegistry()
	a := newTestClient(42, 1, "A")
	registry.Join(42, a)

	registry.SetCursor(42, message.CursorPosition{Type: message.TypeCursorPosition, UserID: 1, Username: "A", Section: "summary", Position: 3})
	registry.SetCursor(42, message.CursorPosition{Type: message.TypeCursorPosition, UserID: 1, Username: "A", Section: "summary", Position: 9})
	registry.SetCursor(42, message.CursorPosition{Type: message.TypeCursorPosition, UserID: 1, Username: "A", Section: "skills", Position: 1})

	cursors := registry.Cursors(42)
	if len(cursors) != 2 {
		t.Fatalf("Expect one entry per (user, section), got %+v", cursors)
	}
	if cursors[0].Section != "skills" || cursors[1].Section != "summary" {
		t.Fatalf("Expect deterministic order, got %+v", cursors)
	}
	if cursors[1].Position != 9 {
		t.Errorf("Expect latest position 9 to survive, got %d", cursors[1].Position)
	}
}

func TestCursorsPurgedOnLastClientOfUser(t *testing.T) {
	registry := NewRegistry()
	a := newTestClient(42, 1, "A")
	b := newTestClient(42, 2, "B")
	registry.Join(42, a)
	registry.Join(42, b)

	registry.SetCursor(42, message.CursorPosition{Type: message.TypeCursorPosition, UserID: 2, Username: "B", Section: "summary", Position: 5})
	registry.Leave(42, b)

	for _, pos := range registry.Cursors(42) {
		if pos.UserID == 2 {
			t.Errorf("Expect cursors of user 2 purged, got %+v", pos)
		}
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	registry := NewRegistry()
	a := newTestClient(42, 1, "A")
	b := newTestClient(42, 2, "B")
	registry.Join(42, a)
	registry.Join(42, b)

	msg := message.UserJoined{Type: message.TypeUserJoined, UserID: 1, Username: "A"}
	if err := registry.Broadcast(42, msg, a); err != nil {
		t.Fatal(err)
	}

	if frames := a.pendingFrames(); len(frames) != 0 {
		t.Errorf("Expect excluded client to receive nothing, got %d frames", len(frames))
	}
	if frames := b.pendingFrames(); len(frames) != 1 {
		t.Errorf("Expect other client to receive 1 frame, got %d", len(frames))
	}
}

func TestOutboxPrefersDroppingCursors(t *testing.T) {
	o := newOutbox(2)

	o.push(message.TypeCursorPosition, []byte("c1"))
	o.push(message.TypeContentUpdate, []byte("u1"))
	// full: the queued cursor frame is evicted before anything else
	if dropped := o.push(message.TypeContentUpdate, []byte("u2")); !dropped {
		t.Error("Expect overflow push to report a drop")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) != 2 {
		t.Fatalf("Expect queue capped at 2, got %d", len(o.queue))
	}
	for _, f := range o.queue {
		if f.typ == message.TypeCursorPosition {
			t.Error("Expect cursor frame to be evicted first")
		}
	}
}

func TestOutboxDropsIncomingCursorWhenFullOfContent(t *testing.T) {
	o := newOutbox(2)

	o.push(message.TypeContentUpdate, []byte("u1"))
	o.push(message.TypeNewComment, []byte("n1"))
	if dropped := o.push(message.TypeCursorPosition, []byte("c1")); !dropped {
		t.Error("Expect incoming cursor frame to be dropped")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if string(o.queue[0].data) != "u1" || string(o.queue[1].data) != "n1" {
		t.Errorf("Expect content frames preserved, got %+v", o.queue)
	}
}

func TestEnqueueToClosedClientIsSilentlySkipped(t *testing.T) {
	registry := NewRegistry()
	a := newTestClient(42, 1, "A")
	registry.Join(42, a)

	a.Close()
	msg := message.NewError("boom")
	if err := registry.Send(a, msg); err != nil {
		t.Fatalf("Expect no error sending to closed client, got %v", err)
	}
	if frames := a.pendingFrames(); len(frames) != 0 {
		t.Errorf("Expect no frames queued to closed client, got %d", len(frames))
	}
}
