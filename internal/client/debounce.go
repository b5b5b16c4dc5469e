package client

import (
	"encoding/json"
	"sync"
	"time"
)

// coalescer collapses bursts of local edits to one section into a single
// outbound update, emitting the latest value once the section has been
// quiet for the configured delay.
type coalescer struct {
	mu     sync.Mutex
	delay  time.Duration
	emit   func(section string, content json.RawMessage)
	latest map[string]json.RawMessage
	timers map[string]*time.Timer
	closed bool
}

func newCoalescer(delay time.Duration, emit func(section string, content json.RawMessage)) *coalescer {
	return &coalescer{
		delay:  delay,
		emit:   emit,
		latest: make(map[string]json.RawMessage),
		timers: make(map[string]*time.Timer),
	}
}

func (c *coalescer) add(section string, content json.RawMessage) {
	if c.delay <= 0 {
		c.emit(section, content)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.latest[section] = content
	if t, ok := c.timers[section]; ok {
		t.Reset(c.delay)
		return
	}
	c.timers[section] = time.AfterFunc(c.delay, func() { c.fire(section) })
}

func (c *coalescer) fire(section string) {
	c.mu.Lock()
	content, ok := c.latest[section]
	delete(c.latest, section)
	delete(c.timers, section)
	c.mu.Unlock()

	if ok {
		c.emit(section, content)
	}
}

// flush emits everything pending immediately and stops the timers.
func (c *coalescer) flush() {
	c.mu.Lock()
	pending := c.latest
	c.latest = make(map[string]json.RawMessage)
	for section, t := range c.timers {
		t.Stop()
		delete(c.timers, section)
	}
	c.mu.Unlock()

	for section, content := range pending {
		c.emit(section, content)
	}
}

func (c *coalescer) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.flush()
}
