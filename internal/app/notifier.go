package app

import (
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// PublishResult reports delivery stats/backpressure of one fan-out.
type PublishResult struct {
	SendTo  int
	Dropped []core.Connection
}

// Notifier encodes an event once and fans it out to registry-resolved
// connections. It never blocks: a full outbound buffer is handed to Policy.
type Notifier struct {
	Registry *Registry
	Policy   Policy
}

func NewNotifier(reg *Registry, policy Policy) *Notifier {
	return &Notifier{Registry: reg, Policy: policy}
}

// NotifyUser delivers v to every live connection of user and returns how
// many connections accepted it.
func (n *Notifier) NotifyUser(user domain.UserID, v any) int {
	return n.deliver(n.Registry.Resolve(user), v, "").SendTo
}

// NotifyUserExcept is NotifyUser that skips one connection (the origin).
func (n *Notifier) NotifyUserExcept(user domain.UserID, except core.ConnID, v any) int {
	return n.deliver(n.Registry.Resolve(user), v, except).SendTo
}

func (n *Notifier) NotifyAll(v any) PublishResult {
	return n.deliver(n.Registry.All(), v, "")
}

func (n *Notifier) NotifyConn(conn core.Connection, v any) error {
	f, err := core.Encode(v)
	if err != nil {
		return err
	}
	if err := conn.TrySend(f); err != nil {
		n.handleDropped([]core.Connection{conn}, err)
		return err
	}
	return nil
}

func (n *Notifier) deliver(conns []core.Connection, v any, except core.ConnID) PublishResult {
	res := PublishResult{}
	if len(conns) == 0 {
		return res
	}
	f, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.notifier").Msg("encode event")
		return res
	}
	var lastErr error
	for _, c := range conns {
		if except != "" && c.ID() == except {
			continue
		}
		if err := c.TrySend(f); err != nil {
			lastErr = err
			res.Dropped = append(res.Dropped, c)
			continue
		}
		res.SendTo++
	}
	n.handleDropped(res.Dropped, lastErr)
	return res
}

func (n *Notifier) handleDropped(dropped []core.Connection, cause error) {
	if len(dropped) == 0 || n.Policy == nil {
		return
	}
	for _, c := range dropped {
		switch n.Policy.OnBackPressure(c) {
		case KickConnection:
			log.Warn().Err(cause).Str("module", "app.notifier").Str("conn", string(c.ID())).Str("user", c.UserID().String()).Msg("kicking slow connection")
			c.Close()
		case NoAction:
		}
	}
}
