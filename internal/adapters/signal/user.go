package signal

import (
	"context"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleAuth(
	ctx context.Context,
	conn *WsSignalConn,
	env envelope,
	data []byte,
) {
	type authPayload struct {
		Token string `json:"token"`
	}
	var p authPayload
	if !ctl.decode(conn, env, data, &p) {
		return
	}

	user, err := ctl.Orch.Authenticate(ctx, conn, p.Token)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(conn.id)).Msg("auth failed")
		ctl.sendError(conn, env.Ref, err)
		return
	}

	resp := struct {
		Type   string          `json:"type"`
		User   *domain.User    `json:"user"`
		Online []domain.UserID `json:"online"`
	}{
		Type:   core.EventAuthenticated,
		User:   user,
		Online: ctl.Orch.Registry.OnlineUsers(),
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleWhoAmI(
	ctx context.Context,
	conn *WsSignalConn,
) {
	user, err := ctl.Orch.Users.GetUserByID(ctx, conn.UserID())
	if err != nil {
		ctl.sendError(conn, "", err)
		return
	}
	user.Status = ctl.Orch.Presence.Status(user.ID)

	resp := struct {
		Type        string       `json:"type"`
		User        *domain.User `json:"user"`
		Connections int          `json:"connections"`
	}{
		Type:        core.EventWhoAmI,
		User:        user,
		Connections: len(ctl.Orch.Registry.Resolve(user.ID)),
	}
	ctl.sendJSON(conn, resp)
}
