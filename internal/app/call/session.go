package call

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// Session is the in-memory record of one call negotiation. Every field
// below mu is guarded by it.
type Session struct {
	id        domain.CallID
	initiator domain.UserID
	isGroup   bool
	groupID   domain.GroupID

	mu           sync.Mutex
	state        domain.CallState
	participants map[domain.UserID]struct{}
	joined       map[domain.UserID]struct{}
	declined     map[domain.UserID]struct{}
	timer        *time.Timer
	createdAt    time.Time
}

// Info is a read-only snapshot of a session.
type Info struct {
	ID           domain.CallID    `json:"callId"`
	InitiatorID  domain.UserID    `json:"initiatorId"`
	IsGroup      bool             `json:"isGroup"`
	GroupID      domain.GroupID   `json:"groupId,omitempty"`
	State        domain.CallState `json:"state"`
	Participants []domain.UserID  `json:"participants"`
	Joined       []domain.UserID  `json:"joined"`
	CreatedAt    time.Time        `json:"createdAt"`
}

func newSession(id domain.CallID, initiator domain.UserID, participants []domain.UserID) *Session {
	s := &Session{
		id:           id,
		initiator:    initiator,
		state:        domain.CallRinging,
		participants: make(map[domain.UserID]struct{}, len(participants)),
		joined:       map[domain.UserID]struct{}{initiator: {}},
		declined:     make(map[domain.UserID]struct{}),
		createdAt:    time.Now(),
	}
	for _, p := range participants {
		s.participants[p] = struct{}{}
	}
	s.participants[initiator] = struct{}{}
	return s
}

func (s *Session) isParticipant(u domain.UserID) bool {
	_, ok := s.participants[u]
	return ok
}

func (s *Session) isJoined(u domain.UserID) bool {
	_, ok := s.joined[u]
	return ok
}

// stopTimer must be called with mu held.
func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// allDeclined reports whether every invitee has declined. Must hold mu.
func (s *Session) allDeclined() bool {
	for p := range s.participants {
		if p == s.initiator {
			continue
		}
		if _, ok := s.declined[p]; !ok {
			return false
		}
	}
	return true
}

func sortedIDs(set map[domain.UserID]struct{}) []domain.UserID {
	out := make([]domain.UserID, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// info must be called with mu held.
func (s *Session) info() Info {
	return Info{
		ID:           s.id,
		InitiatorID:  s.initiator,
		IsGroup:      s.isGroup,
		GroupID:      s.groupID,
		State:        s.state,
		Participants: sortedIDs(s.participants),
		Joined:       sortedIDs(s.joined),
		CreatedAt:    s.createdAt,
	}
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info()
}
