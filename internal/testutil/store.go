package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

var ErrInjected = errors.New("injected failure")

// Store is an in-memory UserStore, MessageStore and GroupStore.
type Store struct {
	mu       sync.Mutex
	users    map[domain.UserID]*domain.User
	groups   map[domain.GroupID][]domain.UserID
	messages []domain.Message
	statuses []StatusWrite

	// FailInsert and FailStatus make the matching writes fail.
	FailInsert bool
	FailStatus bool
	FailGroups bool
}

type StatusWrite struct {
	User   domain.UserID
	Status domain.PresenceStatus
}

func NewStore() *Store {
	return &Store{
		users:  make(map[domain.UserID]*domain.User),
		groups: make(map[domain.GroupID][]domain.UserID),
	}
}

func (s *Store) AddUser(id domain.UserID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &domain.User{ID: id, Name: name, Status: domain.StatusOffline}
}

func (s *Store) AddGroup(id domain.GroupID, members ...domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[id] = append([]domain.UserID(nil), members...)
}

func (s *Store) SetFail(insert, status, groups bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailInsert, s.FailStatus, s.FailGroups = insert, status, groups
}

func (s *Store) GetUserByID(_ context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) SetUserStatus(_ context.Context, id domain.UserID, status domain.PresenceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailStatus {
		return ErrInjected
	}
	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Status = status
	s.statuses = append(s.statuses, StatusWrite{User: id, Status: status})
	return nil
}

// Statuses returns every status write in order.
func (s *Store) Statuses() []StatusWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StatusWrite(nil), s.statuses...)
}

func (s *Store) insert(m domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsert {
		return domain.Message{}, ErrInjected
	}
	m.ID = domain.MessageID(len(s.messages) + 1)
	m.CreatedAt = time.Now().UTC()
	s.messages = append(s.messages, m)
	return m, nil
}

func (s *Store) InsertMessage(_ context.Context, from, to domain.UserID, body string) (domain.Message, error) {
	return s.insert(domain.Message{FromID: from, ToID: to, Body: body})
}

func (s *Store) InsertGroupMessage(_ context.Context, group domain.GroupID, from domain.UserID, body string) (domain.Message, error) {
	return s.insert(domain.Message{FromID: from, GroupID: group, Body: body})
}

func (s *Store) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages...)
}

func lastN(msgs []domain.Message, limit int) []domain.Message {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

func (s *Store) DirectHistory(_ context.Context, a, b domain.UserID, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.messages {
		if m.IsGroup() {
			continue
		}
		if (m.FromID == a && m.ToID == b) || (m.FromID == b && m.ToID == a) {
			out = append(out, m)
		}
	}
	return lastN(out, limit), nil
}

func (s *Store) GroupHistory(_ context.Context, group domain.GroupID, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.messages {
		if m.GroupID == group {
			out = append(out, m)
		}
	}
	return lastN(out, limit), nil
}

func (s *Store) GetGroupMembers(_ context.Context, group domain.GroupID) ([]domain.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailGroups {
		return nil, ErrInjected
	}
	members, ok := s.groups[group]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	return append([]domain.UserID(nil), members...), nil
}

// Tokens maps opaque tokens to users.
type Tokens map[string]domain.UserID

func (t Tokens) Verify(token string) (domain.UserID, error) {
	if id, ok := t[token]; ok {
		return id, nil
	}
	return 0, errors.New("unknown token")
}
