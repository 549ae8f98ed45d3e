package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// Router persists messages and fans them out to live connections.
// Accept order equals delivery order per sender: a sender is serialized
// from persistence through fan-out.
type Router struct {
	Users    core.UserStore
	Messages core.MessageStore
	Gate     *Gate
	Notify   *Notifier

	senders keyedMutex[domain.UserID]
}

func NewRouter(users core.UserStore, msgs core.MessageStore, gate *Gate, n *Notifier) *Router {
	return &Router{Users: users, Messages: msgs, Gate: gate, Notify: n}
}

func validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("empty body: %w", domain.ErrValidation)
	}
	if len(body) > domain.MaxBodyLen {
		return fmt.Errorf("body longer than %d bytes: %w", domain.MaxBodyLen, domain.ErrValidation)
	}
	return nil
}

// SendDirect persists a direct message and delivers it to every live
// connection of the recipient. An offline recipient is not an error.
func (r *Router) SendDirect(ctx context.Context, from, to domain.UserID, body string) (domain.Message, error) {
	if from == 0 || to == 0 {
		return domain.Message{}, fmt.Errorf("missing sender or recipient: %w", domain.ErrValidation)
	}
	if err := validateBody(body); err != nil {
		return domain.Message{}, err
	}
	if _, err := r.Users.GetUserByID(ctx, to); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Message{}, fmt.Errorf("recipient %s: %w", to, domain.ErrUserNotFound)
		}
		return domain.Message{}, fmt.Errorf("lookup recipient: %w", persistence(err))
	}

	unlock := r.senders.Lock(from)
	defer unlock()

	msg, err := r.Messages.InsertMessage(ctx, from, to, body)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("from", from.String()).Str("to", to.String()).Msg("insert message failed")
		return domain.Message{}, fmt.Errorf("save message: %w", persistence(err))
	}

	sent := r.Notify.NotifyUser(to, core.MessageEvent{Type: core.EventMessageDelivered, Message: msg})
	log.Debug().Str("module", "app.router").Int64("id", int64(msg.ID)).Str("from", from.String()).Str("to", to.String()).Int("sent_to", sent).Msg("direct message")
	return msg, nil
}

// SendGroup persists a group message and delivers it to every other
// member's live connections. Non-members are rejected with no side effect.
func (r *Router) SendGroup(ctx context.Context, from domain.UserID, group domain.GroupID, body string) (domain.Message, error) {
	if from == 0 || group == 0 {
		return domain.Message{}, fmt.Errorf("missing sender or group: %w", domain.ErrValidation)
	}
	if err := validateBody(body); err != nil {
		return domain.Message{}, err
	}
	members, err := r.Gate.Members(ctx, group, from)
	if err != nil {
		return domain.Message{}, err
	}

	unlock := r.senders.Lock(from)
	defer unlock()

	msg, err := r.Messages.InsertGroupMessage(ctx, group, from, body)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("from", from.String()).Str("group", group.String()).Msg("insert group message failed")
		return domain.Message{}, fmt.Errorf("save group message: %w", persistence(err))
	}

	ev := core.MessageEvent{Type: core.EventMessageDelivered, Message: msg}
	sent := 0
	for _, m := range members {
		if m == from {
			continue
		}
		sent += r.Notify.NotifyUser(m, ev)
	}
	log.Debug().Str("module", "app.router").Int64("id", int64(msg.ID)).Str("from", from.String()).Str("group", group.String()).Int("members", len(members)).Int("sent_to", sent).Msg("group message")
	return msg, nil
}

// History returns the direct conversation between user and peer, oldest first.
func (r *Router) History(ctx context.Context, user, peer domain.UserID, limit int) ([]domain.Message, error) {
	if user == 0 || peer == 0 {
		return nil, fmt.Errorf("missing user: %w", domain.ErrValidation)
	}
	msgs, err := r.Messages.DirectHistory(ctx, user, peer, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("direct history: %w", persistence(err))
	}
	return msgs, nil
}

// GroupHistory returns the group conversation, oldest first, to members only.
func (r *Router) GroupHistory(ctx context.Context, user domain.UserID, group domain.GroupID, limit int) ([]domain.Message, error) {
	if _, err := r.Gate.Members(ctx, group, user); err != nil {
		return nil, err
	}
	msgs, err := r.Messages.GroupHistory(ctx, group, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("group history: %w", persistence(err))
	}
	return msgs, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// persistence tags err as a storage failure unless it already is one.
func persistence(err error) error {
	if errors.Is(err, domain.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
}
