package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait         = 5 * time.Second
	disconnectTimeout = 5 * time.Second
)

func (ctl *SignalWSController) pongWait() time.Duration {
	return ctl.opts.PingPeriod * 10 / 9
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(c.id)).Str("user", c.UserID().String()).Msg("readPump closing")
		c.Close()
		ctl.limiter.Prune()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
		defer cancel()
		ctl.Orch.OnDisconnect(dctx, c)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(ctx, c, data)
	}
}

type envelope struct {
	Type string `json:"type"`
	Ref  string `json:"ref,omitempty"`
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, c *WsSignalConn, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "signal").Str("conn", string(c.id)).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("handler panic")
			ctl.sendError(c, "", fmt.Errorf("internal error"))
		}
	}()

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("bad json")
		ctl.sendError(c, "", fmt.Errorf("bad json: %w", domain.ErrValidation))
		return
	}

	if c.UserID() == 0 && env.Type != "auth" && env.Type != "ping" {
		ctl.sendError(c, env.Ref, fmt.Errorf("%s before auth: %w", env.Type, domain.ErrAuthentication))
		return
	}

	switch env.Type {
	case "auth":
		ctl.handleAuth(ctx, c, env, data)
	case "ping":
		ctl.handlePing(c)
	case "whoami":
		ctl.handleWhoAmI(ctx, c)
	case "send_direct":
		ctl.handleSendDirect(ctx, c, env, data)
	case "send_group":
		ctl.handleSendGroup(ctx, c, env, data)
	case "call_initiate":
		ctl.handleCallInitiate(ctx, c, env, data)
	case "call_accept":
		ctl.handleCallAccept(c, env, data)
	case "call_decline":
		ctl.handleCallDecline(c, env, data)
	case "call_leave":
		ctl.handleCallLeave(c, env, data)
	case "call_invite":
		ctl.handleCallInvite(c, env, data)
	case "call_end":
		ctl.handleCallEnd(c, env, data)
	case "signal":
		ctl.handleRelay(c, env, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, env.Ref, fmt.Errorf("unknown type %q: %w", env.Type, domain.ErrValidation))
	}
}

// decode unmarshals a frame into p, answering with an error frame on failure.
func (ctl *SignalWSController) decode(c *WsSignalConn, env envelope, data []byte, p any) bool {
	if err := json.Unmarshal(data, p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", env.Type).Msg("bad payload")
		ctl.sendError(c, env.Ref, fmt.Errorf("bad %s payload: %w", env.Type, domain.ErrValidation))
		return false
	}
	return true
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	if err := ctl.Orch.Notify.NotifyConn(c, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("sendJSON")
	}
}

// sendError answers with an error frame. Unknown call ids are only logged.
func (ctl *SignalWSController) sendError(c *WsSignalConn, ref string, err error) {
	if errors.Is(err, domain.ErrCallNotFound) {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("call not found")
		return
	}
	ctl.sendJSON(c, core.NewErrorEvent(ref, err))
}
