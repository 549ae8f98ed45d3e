package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Parley/internal/app/call"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

type callRef struct {
	CallID domain.CallID `json:"callId"`
}

type callState struct {
	Type string    `json:"type"`
	Ref  string    `json:"ref,omitempty"`
	Call call.Info `json:"call"`
}

func (ctl *SignalWSController) handleCallInitiate(
	ctx context.Context,
	conn *WsSignalConn,
	env envelope,
	data []byte,
) {
	type initiatePayload struct {
		CallID  domain.CallID `json:"callId"`
		Target  int64         `json:"target"`
		IsGroup bool          `json:"isGroup"`
	}
	var p initiatePayload
	if !ctl.decode(conn, env, data, &p) {
		return
	}

	info, err := ctl.Orch.Calls.Initiate(ctx, conn.UserID(), p.CallID, p.Target, p.IsGroup)
	if err != nil {
		ctl.sendError(conn, env.Ref, err)
		return
	}
	ctl.sendJSON(conn, callState{Type: core.EventCallRinging, Ref: env.Ref, Call: info})
}

func (ctl *SignalWSController) handleCallAccept(conn *WsSignalConn, env envelope, data []byte) {
	var p callRef
	if !ctl.decode(conn, env, data, &p) {
		return
	}
	// call-joined is broadcast to every participant, the accepter included.
	if _, err := ctl.Orch.Calls.Accept(conn.UserID(), p.CallID); err != nil {
		ctl.sendError(conn, env.Ref, err)
	}
}

func (ctl *SignalWSController) handleCallDecline(conn *WsSignalConn, env envelope, data []byte) {
	var p callRef
	if !ctl.decode(conn, env, data, &p) {
		return
	}
	if err := ctl.Orch.Calls.Decline(conn.UserID(), p.CallID); err != nil {
		ctl.sendError(conn, env.Ref, err)
	}
}

func (ctl *SignalWSController) handleCallLeave(conn *WsSignalConn, env envelope, data []byte) {
	var p callRef
	if !ctl.decode(conn, env, data, &p) {
		return
	}
	if err := ctl.Orch.Calls.Leave(conn.UserID(), p.CallID); err != nil {
		ctl.sendError(conn, env.Ref, err)
	}
}

func (ctl *SignalWSController) handleCallInvite(conn *WsSignalConn, env envelope, data []byte) {
	type invitePayload struct {
		CallID domain.CallID `json:"callId"`
		Target domain.UserID `json:"target"`
	}
	var p invitePayload
	if !ctl.decode(conn, env, data, &p) {
		return
	}
	if _, err := ctl.Orch.Calls.Invite(conn.UserID(), p.CallID, p.Target); err != nil {
		ctl.sendError(conn, env.Ref, err)
	}
}

func (ctl *SignalWSController) handleCallEnd(conn *WsSignalConn, env envelope, data []byte) {
	var p callRef
	if !ctl.decode(conn, env, data, &p) {
		return
	}
	if err := ctl.Orch.Calls.End(p.CallID, conn.UserID()); err != nil {
		ctl.sendError(conn, env.Ref, err)
	}
}

func (ctl *SignalWSController) handleRelay(conn *WsSignalConn, env envelope, data []byte) {
	type relayPayload struct {
		To     domain.UserID     `json:"to"`
		CallID domain.CallID     `json:"callId"`
		Kind   domain.SignalKind `json:"kind"`
		Body   json.RawMessage   `json:"body"`
	}
	var p relayPayload
	if !ctl.decode(conn, env, data, &p) {
		return
	}

	sent, err := ctl.Orch.Calls.RelaySignaling(conn.UserID(), domain.SignalingPayload{
		ToID:   p.To,
		CallID: p.CallID,
		Kind:   p.Kind,
		Body:   p.Body,
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", conn.UserID().String()).Str("kind", string(p.Kind)).Msg("signal rejected")
		ctl.sendError(conn, env.Ref, err)
		return
	}
	log.Debug().Str("module", "signal").Str("from", conn.UserID().String()).Str("to", p.To.String()).Str("kind", string(p.Kind)).Int("sent_to", sent).Msg("signal relayed")
}
