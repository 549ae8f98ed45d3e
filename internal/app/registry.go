package app

import (
	"sort"
	"sync"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

const registryShards = 32

type userConns map[core.ConnID]core.Connection

type registryShard struct {
	mu    sync.RWMutex
	users map[domain.UserID]userConns
}

// Registry maps users to their live connections. Locking is per shard of
// users, so operations on different users rarely contend.
type Registry struct {
	shards [registryShards]*registryShard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &registryShard{users: make(map[domain.UserID]userConns)}
	}
	return r
}

func (r *Registry) shard(user domain.UserID) *registryShard {
	return r.shards[uint64(user)%registryShards]
}

// Register adds an authenticated connection under its user. It reports
// whether the user went from zero to one connection. Registering the same
// connection twice is a no-op.
func (r *Registry) Register(conn core.Connection) bool {
	user := conn.UserID()
	if user == 0 {
		log.Warn().Str("module", "app.registry").Str("conn", string(conn.ID())).Msg("register of unauthenticated connection ignored")
		return false
	}
	s := r.shard(user)
	s.mu.Lock()
	defer s.mu.Unlock()
	conns, ok := s.users[user]
	if !ok {
		conns = make(userConns)
		s.users[user] = conns
	}
	if _, dup := conns[conn.ID()]; dup {
		return false
	}
	conns[conn.ID()] = conn
	log.Info().Str("module", "app.registry").Str("user", user.String()).Str("conn", string(conn.ID())).Int("conns", len(conns)).Msg("registered connection")
	return len(conns) == 1
}

// Deregister removes conn and reports its user and whether that user now
// has no connections left. Unknown connections are a no-op.
func (r *Registry) Deregister(conn core.Connection) (domain.UserID, bool) {
	user := conn.UserID()
	if user == 0 {
		return 0, false
	}
	s := r.shard(user)
	s.mu.Lock()
	defer s.mu.Unlock()
	conns, ok := s.users[user]
	if !ok {
		return 0, false
	}
	if _, ok := conns[conn.ID()]; !ok {
		return 0, false
	}
	delete(conns, conn.ID())
	log.Info().Str("module", "app.registry").Str("user", user.String()).Str("conn", string(conn.ID())).Int("conns", len(conns)).Msg("deregistered connection")
	if len(conns) == 0 {
		delete(s.users, user)
		return user, true
	}
	return user, false
}

// Resolve returns a snapshot of the user's live connections (empty if offline).
func (r *Registry) Resolve(user domain.UserID) []core.Connection {
	s := r.shard(user)
	s.mu.RLock()
	defer s.mu.RUnlock()
	conns := s.users[user]
	out := make([]core.Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Online(user domain.UserID) bool {
	s := r.shard(user)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[user]) > 0
}

// All returns every registered connection.
func (r *Registry) All() []core.Connection {
	var out []core.Connection
	for _, s := range r.shards {
		s.mu.RLock()
		for _, conns := range s.users {
			for _, c := range conns {
				out = append(out, c)
			}
		}
		s.mu.RUnlock()
	}
	return out
}

// OnlineUsers returns the ids of every connected user in ascending order.
func (r *Registry) OnlineUsers() []domain.UserID {
	var out []domain.UserID
	for _, s := range r.shards {
		s.mu.RLock()
		for u := range s.users {
			out = append(out, u)
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close closes every registered connection. The adapters deregister them
// as their pumps exit.
func (r *Registry) Close() {
	conns := r.All()
	for _, c := range conns {
		c.Close()
	}
	log.Info().Str("module", "app.registry").Int("closed", len(conns)).Msg("registry closed")
}
