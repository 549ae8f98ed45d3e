package orch

import (
	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/app/call"
	"github.com/dkeye/Parley/internal/core"
)

// Orchestrator ties one connection lifecycle to the registry, presence,
// router and call coordinator. Transport adapters talk only to it.
type Orchestrator struct {
	Registry *app.Registry
	Notify   *app.Notifier
	Presence *app.Presence
	Router   *app.Router
	Calls    *call.Coordinator
	Users    core.UserStore
	Auth     core.TokenVerifier
}

// Deps is everything New needs from outside the core.
type Deps struct {
	Users    core.UserStore
	Messages core.MessageStore
	Groups   core.GroupStore
	Auth     core.TokenVerifier
	Policy   app.Policy
	Calls    call.Options
}

// New builds the registry and every component on top of it.
func New(d Deps) *Orchestrator {
	policy := d.Policy
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	reg := app.NewRegistry()
	notify := app.NewNotifier(reg, policy)
	gate := app.NewGate(d.Groups)
	return &Orchestrator{
		Registry: reg,
		Notify:   notify,
		Presence: app.NewPresence(reg, d.Users, notify),
		Router:   app.NewRouter(d.Users, d.Messages, gate, notify),
		Calls:    call.NewCoordinator(notify, gate, d.Calls),
		Users:    d.Users,
		Auth:     d.Auth,
	}
}

// Shutdown closes every live connection and stops call timers.
func (o *Orchestrator) Shutdown() {
	o.Registry.Close()
	o.Calls.Close()
}
