// Package call coordinates call setup and teardown between users and
// relays WebRTC signaling between them. It never touches media.
package call

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultRingTimeout = 30 * time.Second

// Notifier is the only delivery surface the coordinator needs.
type Notifier interface {
	NotifyUser(user domain.UserID, v any) int
}

// MembershipGate resolves group members for group calls.
type MembershipGate interface {
	Members(ctx context.Context, group domain.GroupID, user domain.UserID) ([]domain.UserID, error)
}

type Options struct {
	RingTimeout time.Duration
	// StrictSignaling requires relayed payloads to name an active call
	// that both endpoints belong to.
	StrictSignaling bool
}

// Coordinator owns the active call sessions. Transitions of one call are
// serialized by the session lock; different calls proceed independently.
type Coordinator struct {
	table  *table
	notify Notifier
	gate   MembershipGate
	opts   Options
}

func NewCoordinator(n Notifier, gate MembershipGate, opts Options) *Coordinator {
	if opts.RingTimeout <= 0 {
		opts.RingTimeout = DefaultRingTimeout
	}
	return &Coordinator{table: newTable(), notify: n, gate: gate, opts: opts}
}

func validCallID(id domain.CallID) error {
	if id == "" {
		return fmt.Errorf("missing callId: %w", domain.ErrValidation)
	}
	if len(id) > domain.MaxCallIDLen {
		return fmt.Errorf("callId longer than %d: %w", domain.MaxCallIDLen, domain.ErrValidation)
	}
	return nil
}

// lookup returns the non-terminal session for id.
func (c *Coordinator) lookup(id domain.CallID) (*Session, error) {
	if err := validCallID(id); err != nil {
		return nil, err
	}
	s, ok := c.table.get(id)
	if !ok {
		log.Debug().Str("module", "call").Str("call", string(id)).Msg("unknown call")
		return nil, fmt.Errorf("call %q: %w", id, domain.ErrCallNotFound)
	}
	return s, nil
}

// Initiate creates a ringing session and invites every online participant
// except the caller. For group calls target is the group id.
func (c *Coordinator) Initiate(ctx context.Context, caller domain.UserID, id domain.CallID, target int64, isGroup bool) (Info, error) {
	if err := validCallID(id); err != nil {
		return Info{}, err
	}
	if caller == 0 || target <= 0 {
		return Info{}, fmt.Errorf("missing call target: %w", domain.ErrValidation)
	}

	var participants []domain.UserID
	if isGroup {
		members, err := c.gate.Members(ctx, domain.GroupID(target), caller)
		if err != nil {
			return Info{}, err
		}
		participants = members
	} else {
		if domain.UserID(target) == caller {
			return Info{}, fmt.Errorf("cannot call yourself: %w", domain.ErrValidation)
		}
		participants = []domain.UserID{caller, domain.UserID(target)}
	}

	s := newSession(id, caller, participants)
	if isGroup {
		s.isGroup = true
		s.groupID = domain.GroupID(target)
	}
	if len(s.participants) < 2 {
		return Info{}, fmt.Errorf("call needs at least two participants: %w", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !c.table.create(s) {
		return Info{}, fmt.Errorf("call %q: %w", id, domain.ErrCallExists)
	}
	s.timer = time.AfterFunc(c.opts.RingTimeout, func() { c.expire(s) })

	info := s.info()
	ev := core.CallEvent{
		Type:         core.EventCallInvited,
		CallID:       id,
		UserID:       caller,
		InitiatorID:  caller,
		IsGroup:      s.isGroup,
		GroupID:      s.groupID,
		State:        s.state,
		Participants: info.Participants,
	}
	invited := 0
	for p := range s.participants {
		if p == caller {
			continue
		}
		if c.notify.NotifyUser(p, ev) > 0 {
			invited++
		}
	}
	log.Info().Str("module", "call").Str("call", string(id)).Str("caller", caller.String()).Bool("group", isGroup).Int("participants", len(s.participants)).Int("invited_online", invited).Msg("call initiated")
	return info, nil
}

// Accept joins user to the call. The first acceptance moves the call to
// active and cancels the ringing timeout.
func (c *Coordinator) Accept(user domain.UserID, id domain.CallID) (Info, error) {
	s, err := c.lookup(id)
	if err != nil {
		return Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return Info{}, fmt.Errorf("call %q: %w", id, domain.ErrCallNotFound)
	}
	if !s.isParticipant(user) {
		return Info{}, fmt.Errorf("user %s not in call %q: %w", user, id, domain.ErrAuthorization)
	}
	if s.isJoined(user) {
		return s.info(), nil
	}

	s.joined[user] = struct{}{}
	delete(s.declined, user)
	started := false
	if s.state == domain.CallRinging {
		s.state = domain.CallActive
		s.stopTimer()
		started = true
	}

	info := s.info()
	c.broadcast(s, 0, core.CallEvent{
		Type:         core.EventCallJoined,
		CallID:       id,
		UserID:       user,
		InitiatorID:  s.initiator,
		IsGroup:      s.isGroup,
		GroupID:      s.groupID,
		State:        s.state,
		Participants: info.Joined,
		Started:      started,
	})
	log.Info().Str("module", "call").Str("call", string(id)).Str("user", user.String()).Bool("started", started).Int("joined", len(s.joined)).Msg("call accepted")
	return info, nil
}

// Decline notifies the other participants. When every invitee of a
// ringing call has declined the call is over.
func (c *Coordinator) Decline(user domain.UserID, id domain.CallID) error {
	s, err := c.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return fmt.Errorf("call %q: %w", id, domain.ErrCallNotFound)
	}
	if !s.isParticipant(user) {
		return fmt.Errorf("user %s not in call %q: %w", user, id, domain.ErrAuthorization)
	}
	if s.isJoined(user) {
		c.leaveLocked(s, user)
		return nil
	}
	if _, ok := s.declined[user]; ok {
		return nil
	}
	s.declined[user] = struct{}{}
	c.broadcast(s, user, core.CallEvent{Type: core.EventCallDeclined, CallID: id, UserID: user, State: s.state})
	log.Info().Str("module", "call").Str("call", string(id)).Str("user", user.String()).Msg("call declined")

	if s.state == domain.CallRinging && s.allDeclined() {
		c.finishLocked(s, domain.CallDeclined, user)
	}
	return nil
}

// Leave removes a joined participant. An active call with fewer than two
// joined participants ends; a ringing call left by its caller ends.
func (c *Coordinator) Leave(user domain.UserID, id domain.CallID) error {
	s, err := c.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return fmt.Errorf("call %q: %w", id, domain.ErrCallNotFound)
	}
	if !s.isJoined(user) {
		return fmt.Errorf("user %s has not joined call %q: %w", user, id, domain.ErrValidation)
	}
	c.leaveLocked(s, user)
	return nil
}

func (c *Coordinator) leaveLocked(s *Session, user domain.UserID) {
	delete(s.joined, user)
	if s.state == domain.CallRinging {
		// only the caller is joined while ringing
		c.finishLocked(s, domain.CallEnded, user)
		return
	}
	c.broadcast(s, user, core.CallEvent{
		Type:         core.EventCallLeft,
		CallID:       s.id,
		UserID:       user,
		State:        s.state,
		Participants: sortedIDs(s.joined),
	})
	log.Info().Str("module", "call").Str("call", string(s.id)).Str("user", user.String()).Int("joined", len(s.joined)).Msg("left call")
	if len(s.joined) < 2 {
		c.finishLocked(s, domain.CallEnded, user)
	}
}

// Invite adds target to a live call. Only joined participants may invite.
func (c *Coordinator) Invite(by domain.UserID, id domain.CallID, target domain.UserID) (Info, error) {
	s, err := c.lookup(id)
	if err != nil {
		return Info{}, err
	}
	if target == 0 || target == by {
		return Info{}, fmt.Errorf("bad invite target: %w", domain.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return Info{}, fmt.Errorf("call %q: %w", id, domain.ErrCallNotFound)
	}
	if !s.isJoined(by) {
		return Info{}, fmt.Errorf("user %s has not joined call %q: %w", by, id, domain.ErrAuthorization)
	}
	if s.isJoined(target) {
		return s.info(), nil
	}
	s.participants[target] = struct{}{}
	delete(s.declined, target)

	info := s.info()
	sent := c.notify.NotifyUser(target, core.CallEvent{
		Type:         core.EventCallInvited,
		CallID:       id,
		UserID:       by,
		InitiatorID:  s.initiator,
		IsGroup:      s.isGroup,
		GroupID:      s.groupID,
		State:        s.state,
		Participants: info.Participants,
	})
	log.Info().Str("module", "call").Str("call", string(id)).Str("by", by.String()).Str("target", target.String()).Int("sent_to", sent).Msg("participant invited")
	return info, nil
}

// End terminates the call on behalf of a participant. Later references to
// id are unknown.
func (c *Coordinator) End(id domain.CallID, by domain.UserID) error {
	s, err := c.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return fmt.Errorf("call %q: %w", id, domain.ErrCallNotFound)
	}
	if !s.isParticipant(by) {
		return fmt.Errorf("user %s not in call %q: %w", by, id, domain.ErrAuthorization)
	}
	c.finishLocked(s, domain.CallEnded, by)
	return nil
}

// expire fires from the ringing timer. It is a no-op unless the call is
// still ringing, so an acceptance that won the session lock takes effect.
func (c *Coordinator) expire(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.CallRinging {
		return
	}
	s.timer = nil
	c.notify.NotifyUser(s.initiator, core.CallEvent{Type: core.EventCallTimeout, CallID: s.id, InitiatorID: s.initiator, State: domain.CallTimedOut})
	c.finishLocked(s, domain.CallTimedOut, s.initiator)
}

// finishLocked moves s to a terminal state, tells everyone but by and frees it.
func (c *Coordinator) finishLocked(s *Session, state domain.CallState, by domain.UserID) {
	s.state = state
	s.stopTimer()
	c.table.remove(s)
	c.broadcast(s, by, core.CallEvent{Type: core.EventCallEnded, CallID: s.id, UserID: by, InitiatorID: s.initiator, State: state})
	log.Info().Str("module", "call").Str("call", string(s.id)).Str("by", by.String()).Str("state", string(state)).Dur("age", time.Since(s.createdAt)).Msg("call finished")
}

// broadcast sends ev to every participant except skip. Must hold s.mu.
func (c *Coordinator) broadcast(s *Session, skip domain.UserID, ev core.CallEvent) {
	for p := range s.participants {
		if p == skip {
			continue
		}
		c.notify.NotifyUser(p, ev)
	}
}

// UserOffline takes a disconnected user out of every call they joined.
func (c *Coordinator) UserOffline(user domain.UserID) {
	for _, s := range c.table.list() {
		s.mu.Lock()
		if !s.state.Terminal() && s.isJoined(user) {
			c.leaveLocked(s, user)
		}
		s.mu.Unlock()
	}
}

// Session returns a snapshot of the active call id.
func (c *Coordinator) Session(id domain.CallID) (Info, bool) {
	s, ok := c.table.get(id)
	if !ok {
		return Info{}, false
	}
	info := s.Info()
	if info.State.Terminal() {
		return Info{}, false
	}
	return info, true
}

func (c *Coordinator) ActiveCalls() int { return c.table.len() }

// Close stops every ringing timer and forgets all sessions.
func (c *Coordinator) Close() {
	sessions := c.table.drain()
	for _, s := range sessions {
		s.mu.Lock()
		s.stopTimer()
		s.state = domain.CallEnded
		s.mu.Unlock()
	}
	log.Info().Str("module", "call").Int("dropped", len(sessions)).Msg("coordinator closed")
}
