package core

import (
	"context"

	"github.com/dkeye/Parley/internal/domain"
)

// UserStore is the read/write contract the core needs from user storage.
type UserStore interface {
	GetUserByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	SetUserStatus(ctx context.Context, id domain.UserID, status domain.PresenceStatus) error
}

// MessageStore persists direct and group messages in one table.
type MessageStore interface {
	InsertMessage(ctx context.Context, from, to domain.UserID, body string) (domain.Message, error)
	InsertGroupMessage(ctx context.Context, group domain.GroupID, from domain.UserID, body string) (domain.Message, error)
	DirectHistory(ctx context.Context, a, b domain.UserID, limit int) ([]domain.Message, error)
	GroupHistory(ctx context.Context, group domain.GroupID, limit int) ([]domain.Message, error)
}

// GroupStore is read-only from the core's point of view.
type GroupStore interface {
	GetGroupMembers(ctx context.Context, group domain.GroupID) ([]domain.UserID, error)
}

// TokenVerifier turns a bearer credential into a user identity.
type TokenVerifier interface {
	Verify(token string) (domain.UserID, error)
}
