package call

import (
	"sync"

	"github.com/dkeye/Parley/internal/domain"
)

// table holds the active sessions. The map lock only guards lookup and
// insertion; transitions take the per-session lock.
type table struct {
	mu       sync.RWMutex
	sessions map[domain.CallID]*Session
}

func newTable() *table {
	return &table{sessions: make(map[domain.CallID]*Session)}
}

// create inserts s unless its id is already active.
func (t *table) create(s *Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[s.id]; ok {
		return false
	}
	t.sessions[s.id] = s
	return true
}

func (t *table) get(id domain.CallID) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	return s, ok
}

// remove deletes id only if it still maps to s.
func (t *table) remove(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.sessions[s.id]; ok && cur == s {
		delete(t.sessions, s.id)
	}
}

func (t *table) list() []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}

func (t *table) drain() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Session, 0, len(t.sessions))
	for id, s := range t.sessions {
		out = append(out, s)
		delete(t.sessions, id)
	}
	return out
}

func (t *table) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
