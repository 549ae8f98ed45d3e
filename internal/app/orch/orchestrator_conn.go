package orch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// Authenticate verifies token once for conn, binds the connection to the
// user, registers it and publishes presence.
func (o *Orchestrator) Authenticate(ctx context.Context, conn core.Connection, token string) (*domain.User, error) {
	if conn.UserID() != 0 {
		return nil, fmt.Errorf("connection already authenticated: %w", domain.ErrValidation)
	}
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, fmt.Errorf("missing token: %w", domain.ErrAuthentication)
	}
	uid, err := o.Auth.Verify(token)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn.ID())).Msg("token rejected")
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}
	user, err := o.Users.GetUserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("unknown user %s: %w", uid, domain.ErrAuthentication)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !conn.Bind(uid, time.Now()) {
		return nil, fmt.Errorf("connection already authenticated: %w", domain.ErrValidation)
	}
	o.Registry.Register(conn)
	o.Presence.Publish(ctx, uid)
	user.Status = domain.StatusOnline

	log.Info().Str("module", "orch").Str("conn", string(conn.ID())).Str("user", uid.String()).Str("name", user.Name).Msg("connection authenticated")
	return user, nil
}

// OnDisconnect deregisters conn. When its user has no connection left the
// offline edge is published and the user leaves their calls.
func (o *Orchestrator) OnDisconnect(ctx context.Context, conn core.Connection) {
	user, offline := o.Registry.Deregister(conn)
	if user == 0 {
		return
	}
	o.Presence.Publish(ctx, user)
	if offline && !o.Registry.Online(user) {
		o.Calls.UserOffline(user)
	}
}
