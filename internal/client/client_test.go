package client

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/config"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/database"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/server"
)

func TestSubscriptionDispatchAndCancel(t *testing.T) {
	subs := newSubscriptions()

	var mu sync.Mutex
	got := make(map[string]int)
	record := func(name string) ContentHandler {
		return func(message.ContentUpdate) {
			mu.Lock()
			got[name]++
			mu.Unlock()
		}
	}

	summary := subs.add("summary", record("summary"))
	all := subs.add("", record("all"))

	subs.dispatch(message.ContentUpdate{Section: "summary"})
	subs.dispatch(message.ContentUpdate{Section: "skills"})

	mu.Lock()
	if got["summary"] != 1 {
		t.Errorf("Except section handler to fire once but got %d", got["summary"])
	}
	if got["all"] != 2 {
		t.Errorf("Except wildcard handler to fire twice but got %d", got["all"])
	}
	mu.Unlock()

	summary.Cancel()
	summary.Cancel() // cancelling twice is harmless
	subs.dispatch(message.ContentUpdate{Section: "summary"})

	mu.Lock()
	if got["summary"] != 1 {
		t.Errorf("Except no dispatch after cancel but got %d", got["summary"])
	}
	if got["all"] != 3 {
		t.Errorf("Except wildcard handler to keep firing but got %d", got["all"])
	}
	mu.Unlock()

	all.Cancel()
}

func TestCoalescerCollapsesBursts(t *testing.T) {
	var mu sync.Mutex
	var emitted []string
	c := newCoalescer(50*time.Millisecond, func(section string, content json.RawMessage) {
		mu.Lock()
		emitted = append(emitted, section+"="+string(content))
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		c.add("summary", json.RawMessage(`"v`+string(rune('0'+i))+`"`))
	}
	c.add("skills", json.RawMessage(`"Go"`))

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(emitted) != 2 {
		t.Fatalf("Except one emit per section but got %v", emitted)
	}
	for _, e := range emitted {
		if e == `summary="v4"` || e == `skills="Go"` {
			continue
		}
		t.Errorf("Except only the latest values but got %q", e)
	}
}

func TestCoalescerFlush(t *testing.T) {
	var mu sync.Mutex
	var emitted int
	c := newCoalescer(time.Hour, func(string, json.RawMessage) {
		mu.Lock()
		emitted++
		mu.Unlock()
	})

	c.add("summary", json.RawMessage(`"draft"`))
	c.flush()

	mu.Lock()
	if emitted != 1 {
		t.Errorf("Except flush to emit the pending update but got %d emits", emitted)
	}
	mu.Unlock()
}

func TestRetryPolicyBounds(t *testing.T) {
	p := RetryPolicy{
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     40 * time.Millisecond,
		Multiplier:      2,
		MaxAttempts:     3,
	}
	b := p.backoff()

	attempts := 0
	for {
		d := b.NextBackOff()
		if d < 0 {
			break
		}
		attempts++
		if d > 100*time.Millisecond {
			t.Errorf("Except interval at most near the cap but got %v", d)
		}
		if attempts > 10 {
			t.Fatal("Except the policy to stop after the attempt cap")
		}
	}
	if attempts != 2 {
		t.Errorf("Except 2 retries after the first attempt but got %d", attempts)
	}
}

func newRelay(t *testing.T) *httptest.Server {
	t.Helper()
	store := database.NewMemoryStore()
	if err := store.SaveDocument(context.Background(), &database.Document{ID: 42, OwnerID: 1, Name: "draft"}); err != nil {
		t.Fatalf("Except no error but got %v", err)
	}
	if err := store.AddCollaborator(context.Background(), &database.Collaborator{DocumentID: 42, UserID: 2, Username: "B", Permission: "edit"}); err != nil {
		t.Fatalf("Except no error but got %v", err)
	}
	cfg := config.Config{
		Server:   config.ServerConfig{OutboundQueueSize: 16, AccessCacheSize: 8, AccessCacheTTL: "1m", WriteTimeout: "5s"},
		Database: config.DatabaseConfig{OperationTimeout: "2s"},
	}
	ts := httptest.NewServer(server.New(cfg, store).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Except %s within the deadline", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClientMirrorsSession(t *testing.T) {
	ts := newRelay(t)
	wsURL := strings.Replace(ts.URL, "http", "ws", 1)

	a, err := Dial(Config{URL: wsURL, DocumentID: 42, UserID: 1, Username: "A"})
	if err != nil {
		t.Fatalf("Except dial to succeed but got %v", err)
	}
	defer a.Close()

	waitFor(t, "A to see itself", func() bool { return len(a.ActiveUsers()) == 1 })

	var mu sync.Mutex
	var updates []message.ContentUpdate
	sub := a.Subscribe("summary", func(u message.ContentUpdate) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})
	defer sub.Cancel()

	b, err := Dial(Config{URL: wsURL, DocumentID: 42, UserID: 2, Username: "B"})
	if err != nil {
		t.Fatalf("Except dial to succeed but got %v", err)
	}
	defer b.Close()

	waitFor(t, "both mirrors to converge", func() bool {
		return len(a.ActiveUsers()) == 2 && len(b.ActiveUsers()) == 2
	})

	b.SendContentUpdate("summary", json.RawMessage(`"Shipped the relay"`))
	waitFor(t, "A's subscription to fire", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) == 1
	})
	mu.Lock()
	upd := updates[0]
	mu.Unlock()
	if upd.UserID != 2 || upd.Username != "B" {
		t.Errorf("Except update stamped with B's identity but got %+v", upd)
	}

	if err := b.AddComment("summary", "add metrics"); err != nil {
		t.Fatalf("Except no error but got %v", err)
	}
	waitFor(t, "both mirrors to hold the comment", func() bool {
		return len(a.Comments()) == 1 && len(b.Comments()) == 1
	})

	created := a.Comments()[0]
	if err := a.ResolveComment(created.ID); err != nil {
		t.Fatalf("Except no error but got %v", err)
	}
	waitFor(t, "B's mirror to mark the comment resolved", func() bool {
		comments := b.Comments()
		return len(comments) == 1 && comments[0].Resolved
	})

	if err := b.UpdateCursor("summary", 5); err != nil {
		t.Fatalf("Except no error but got %v", err)
	}
	waitFor(t, "A to mirror B's cursor", func() bool {
		cursors := a.Cursors()
		return len(cursors) == 1 && cursors[0].UserID == 2 && cursors[0].Position == 5
	})

	_ = b.Close()
	waitFor(t, "A to drop B and its cursor", func() bool {
		return len(a.ActiveUsers()) == 1 && len(a.Cursors()) == 0
	})
}
