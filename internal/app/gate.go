package app

import (
	"context"
	"fmt"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// Gate checks group membership against group storage. It fails closed.
type Gate struct {
	Groups core.GroupStore
}

func NewGate(groups core.GroupStore) *Gate {
	return &Gate{Groups: groups}
}

func (g *Gate) IsMember(ctx context.Context, group domain.GroupID, user domain.UserID) bool {
	_, err := g.Members(ctx, group, user)
	return err == nil
}

// Members returns the member list of group if user belongs to it. Any
// lookup failure is reported as ErrAuthorization.
func (g *Gate) Members(ctx context.Context, group domain.GroupID, user domain.UserID) ([]domain.UserID, error) {
	if group == 0 || user == 0 {
		return nil, fmt.Errorf("group %s: %w", group, domain.ErrAuthorization)
	}
	members, err := g.Groups.GetGroupMembers(ctx, group)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.gate").Str("group", group.String()).Str("user", user.String()).Msg("membership lookup failed")
		return nil, fmt.Errorf("group %s: %w", group, domain.ErrAuthorization)
	}
	for _, m := range members {
		if m == user {
			return members, nil
		}
	}
	return nil, fmt.Errorf("user %s not in group %s: %w", user, group, domain.ErrAuthorization)
}
