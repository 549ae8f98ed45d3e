package app

import (
	"context"
	"sync"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// Presence persists and broadcasts online/offline edges. It is the only
// writer of the persisted user status.
type Presence struct {
	Registry *Registry
	Users    core.UserStore
	Notify   *Notifier

	locks keyedMutex[domain.UserID]

	mu     sync.Mutex
	online map[domain.UserID]struct{} // last published state; absent means offline
}

func NewPresence(reg *Registry, users core.UserStore, n *Notifier) *Presence {
	return &Presence{
		Registry: reg,
		Users:    users,
		Notify:   n,
		online:   make(map[domain.UserID]struct{}),
	}
}

// Publish brings the published state of user in line with the registry.
// Concurrent calls for one user are serialized and each edge is published
// once. It reports whether anything was published.
func (p *Presence) Publish(ctx context.Context, user domain.UserID) bool {
	unlock := p.locks.Lock(user)
	defer unlock()

	now := p.Registry.Online(user)
	p.mu.Lock()
	_, was := p.online[user]
	if was == now {
		p.mu.Unlock()
		return false
	}
	if now {
		p.online[user] = struct{}{}
	} else {
		delete(p.online, user)
	}
	p.mu.Unlock()

	status := domain.StatusOf(now)
	if err := p.Users.SetUserStatus(ctx, user, status); err != nil {
		log.Error().Err(err).Str("module", "app.presence").Str("user", user.String()).Str("status", string(status)).Msg("persist status failed")
	}

	res := p.Notify.NotifyAll(core.PresenceEvent{Type: core.EventPresenceChanged, UserID: user, Status: status})
	log.Info().Str("module", "app.presence").Str("user", user.String()).Str("status", string(status)).Int("sent_to", res.SendTo).Msg("presence changed")
	return true
}

// Status is the last published state of user.
func (p *Presence) Status(user domain.UserID) domain.PresenceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.online[user]
	return domain.StatusOf(ok)
}
