// Package testutil holds in-memory fakes shared by package tests.
package testutil

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// Conn is a core.Connection that records every frame it accepts.
type Conn struct {
	id core.ConnID

	mu     sync.Mutex
	user   domain.UserID
	authAt time.Time
	frames []core.Frame
	closed bool
	// Capacity, when positive, makes TrySend fail with ErrBackpressure once
	// that many frames are buffered.
	Capacity int
}

func NewConn() *Conn {
	return &Conn{id: core.NewConnID()}
}

// NewUserConn returns a connection already bound to user.
func NewUserConn(user domain.UserID) *Conn {
	c := NewConn()
	c.Bind(user, time.Now())
	return c
}

func (c *Conn) ID() core.ConnID { return c.id }

func (c *Conn) UserID() domain.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *Conn) AuthenticatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authAt
}

func (c *Conn) Bind(user domain.UserID, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user != 0 || c.closed {
		return false
	}
	c.user, c.authAt = user, at
	return true
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	if c.Capacity > 0 && len(c.frames) >= c.Capacity {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Event is a decoded frame. Type is lifted out for convenience.
type Event struct {
	Type string
	Raw  map[string]any
}

func (e Event) Int(key string) int64 {
	f, _ := e.Raw[key].(float64)
	return int64(f)
}

func (e Event) Str(key string) string {
	s, _ := e.Raw[key].(string)
	return s
}

func (e Event) Bool(key string) bool {
	b, _ := e.Raw[key].(bool)
	return b
}

// Events decodes every frame received so far.
func (c *Conn) Events(t testing.TB) []Event {
	t.Helper()
	c.mu.Lock()
	frames := append([]core.Frame(nil), c.frames...)
	c.mu.Unlock()

	out := make([]Event, 0, len(frames))
	for _, f := range frames {
		var raw map[string]any
		if err := json.Unmarshal(f, &raw); err != nil {
			t.Fatalf("bad frame %q: %v", f, err)
		}
		typ, _ := raw["type"].(string)
		out = append(out, Event{Type: typ, Raw: raw})
	}
	return out
}

// OfType returns the received events of type typ.
func (c *Conn) OfType(t testing.TB, typ string) []Event {
	t.Helper()
	var out []Event
	for _, e := range c.Events(t) {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets the frames received so far.
func (c *Conn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}
