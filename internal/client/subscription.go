package client

import (
	"sync"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
)

// ContentHandler receives remote content updates for a subscribed section.
type ContentHandler func(update message.ContentUpdate)

// Subscription is a cancellable handle on one registered handler.
type Subscription struct {
	cancel func()
	once   sync.Once
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

type subscriptions struct {
	mu   sync.Mutex
	seq  int
	subs map[string]map[int]ContentHandler
}

func newSubscriptions() *subscriptions {
	return &subscriptions{subs: make(map[string]map[int]ContentHandler)}
}

// add registers fn for a section. An empty section matches every update.
func (s *subscriptions) add(section string, fn ContentHandler) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := s.seq
	if s.subs[section] == nil {
		s.subs[section] = make(map[int]ContentHandler)
	}
	s.subs[section][id] = fn

	return &Subscription{cancel: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[section], id)
		if len(s.subs[section]) == 0 {
			delete(s.subs, section)
		}
	}}
}

// dispatch invokes the matching handlers outside the lock so a handler may
// subscribe or cancel without deadlocking.
func (s *subscriptions) dispatch(update message.ContentUpdate) {
	s.mu.Lock()
	handlers := make([]ContentHandler, 0, len(s.subs[update.Section])+len(s.subs[""]))
	for _, fn := range s.subs[update.Section] {
		handlers = append(handlers, fn)
	}
	if update.Section != "" {
		for _, fn := range s.subs[""] {
			handlers = append(handlers, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(update)
	}
}
