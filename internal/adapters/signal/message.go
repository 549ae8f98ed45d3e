package signal

import (
	"context"
	"fmt"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

type messageSent struct {
	Type    string         `json:"type"`
	Ref     string         `json:"ref,omitempty"`
	Message domain.Message `json:"message"`
}

func (ctl *SignalWSController) allow(conn *WsSignalConn, env envelope) bool {
	if ctl.limiter.Allow(conn.UserID()) {
		return true
	}
	log.Warn().Str("module", "signal").Str("user", conn.UserID().String()).Msg("rate limited")
	ctl.sendError(conn, env.Ref, fmt.Errorf("too many messages: %w", domain.ErrValidation))
	return false
}

func (ctl *SignalWSController) handleSendDirect(
	ctx context.Context,
	conn *WsSignalConn,
	env envelope,
	data []byte,
) {
	type directPayload struct {
		To   domain.UserID `json:"to"`
		Body string        `json:"body"`
	}
	var p directPayload
	if !ctl.decode(conn, env, data, &p) || !ctl.allow(conn, env) {
		return
	}

	msg, err := ctl.Orch.Router.SendDirect(ctx, conn.UserID(), p.To, p.Body)
	if err != nil {
		ctl.sendError(conn, env.Ref, err)
		return
	}
	ctl.sendJSON(conn, messageSent{Type: core.EventMessageSent, Ref: env.Ref, Message: msg})
}

func (ctl *SignalWSController) handleSendGroup(
	ctx context.Context,
	conn *WsSignalConn,
	env envelope,
	data []byte,
) {
	type groupPayload struct {
		Group domain.GroupID `json:"group"`
		Body  string         `json:"body"`
	}
	var p groupPayload
	if !ctl.decode(conn, env, data, &p) || !ctl.allow(conn, env) {
		return
	}

	msg, err := ctl.Orch.Router.SendGroup(ctx, conn.UserID(), p.Group, p.Body)
	if err != nil {
		ctl.sendError(conn, env.Ref, err)
		return
	}
	ctl.sendJSON(conn, messageSent{Type: core.EventMessageSent, Ref: env.Ref, Message: msg})
}
