package app

import "github.com/dkeye/Parley/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickConnection
)

// Policy decides what happens to a connection whose outbound buffer is full.
type Policy interface {
	OnBackPressure(conn core.Connection) BackpressureAction
}

// SimplePolicy closes slow connections; the client is expected to reconnect
// and fetch history.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.Connection) BackpressureAction {
	return KickConnection
}
