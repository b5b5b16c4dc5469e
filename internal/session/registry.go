package session

import (
	"sort"
	"sync"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/logger"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/telemetry"
)

type cursorKey struct {
	userID  int
	section string
}

// room holds every connected client for one document plus the live cursor
// set. It exists only while at least one client is joined.
type room struct {
	clients map[*Client]struct{}
	cursors map[cursorKey]message.CursorPosition
}

// Registry is the process-wide map from document id to room. All room
// state is mutated under its lock; other components go through these
// operations only, so a distributed registry can replace this one behind
// the same surface.
type Registry struct {
	mu    sync.Mutex
	rooms map[int]*room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[int]*room)}
}

// Join adds the client to the document's room, creating it lazily.
func (r *Registry) Join(documentID int, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[documentID]
	if !ok {
		rm = &room{
			clients: make(map[*Client]struct{}),
			cursors: make(map[cursorKey]message.CursorPosition),
		}
		r.rooms[documentID] = rm
		telemetry.RoomsActive.Inc()
		logger.DebugF("Room %d created", documentID)
	}
	rm.clients[c] = struct{}{}
	logger.InfoF("[%s] User %d joined document %d", c.connID, c.UserID, documentID)
}

// Leave removes the client. The user's cursor entries are purged when no
// other connection of theirs remains, and the room is destroyed when its
// client set empties. Reports whether the room still exists.
func (r *Registry) Leave(documentID int, c *Client) (remaining bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[documentID]
	if !ok {
		return false
	}
	if _, ok := rm.clients[c]; !ok {
		return len(rm.clients) > 0
	}
	delete(rm.clients, c)
	logger.InfoF("[%s] User %d left document %d", c.connID, c.UserID, documentID)

	userPresent := false
	for other := range rm.clients {
		if other.UserID == c.UserID {
			userPresent = true
			break
		}
	}
	if !userPresent {
		for key := range rm.cursors {
			if key.userID == c.UserID {
				delete(rm.cursors, key)
			}
		}
	}

	if len(rm.clients) == 0 {
		delete(r.rooms, documentID)
		telemetry.RoomsActive.Dec()
		logger.DebugF("Room %d destroyed", documentID)
		return false
	}
	return true
}

// Broadcast delivers msg to every open client in the room except exclude.
// The frame is encoded once; enqueueing never blocks.
func (r *Registry) Broadcast(documentID int, msg message.Message, exclude *Client) error {
	data, err := message.Encode(msg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[documentID]
	if !ok {
		return nil
	}
	typ := msg.MessageType()
	for c := range rm.clients {
		if c == exclude {
			continue
		}
		c.Enqueue(typ, data)
	}
	telemetry.MessagesRelayed.WithLabelValues(typ.String()).Inc()
	return nil
}

// Send delivers msg to a single client.
func (r *Registry) Send(c *Client, msg message.Message) error {
	data, err := message.Encode(msg)
	if err != nil {
		return err
	}
	c.Enqueue(msg.MessageType(), data)
	return nil
}

// ActiveUsers projects the distinct users present in a room, ordered by
// user id for deterministic snapshots.
func (r *Registry) ActiveUsers(documentID int) []message.ActiveUser {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[documentID]
	if !ok {
		return nil
	}

	seen := make(map[int]string, len(rm.clients))
	for c := range rm.clients {
		seen[c.UserID] = c.Username
	}
	users := make([]message.ActiveUser, 0, len(seen))
	for id, name := range seen {
		users = append(users, message.ActiveUser{UserID: id, Username: name})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

// SetCursor replaces the room's cursor entry for the position's
// (user, section) pair.
func (r *Registry) SetCursor(documentID int, pos message.CursorPosition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[documentID]
	if !ok {
		return
	}
	rm.cursors[cursorKey{userID: pos.UserID, section: pos.Section}] = pos
}

// Cursors snapshots the room's live cursor entries.
func (r *Registry) Cursors(documentID int) []message.CursorPosition {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[documentID]
	if !ok {
		return nil
	}
	positions := make([]message.CursorPosition, 0, len(rm.cursors))
	for _, pos := range rm.cursors {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].UserID != positions[j].UserID {
			return positions[i].UserID < positions[j].UserID
		}
		return positions[i].Section < positions[j].Section
	})
	return positions
}

// RoomCount reports how many rooms currently exist.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// ClientCount reports how many clients are joined to a document's room.
func (r *Registry) ClientCount(documentID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[documentID]
	if !ok {
		return 0
	}
	return len(rm.clients)
}
