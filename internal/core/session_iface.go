package core

import (
	"time"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/google/uuid"
)

type ConnID string

func NewConnID() ConnID { return ConnID(uuid.NewString()) }

// Connection is one live transport session. UserID is zero until the
// connection authenticates; only authenticated connections are registered.
type Connection interface {
	SignalConnection
	ID() ConnID
	UserID() domain.UserID
	AuthenticatedAt() time.Time
	// Bind marks the connection as owned by user. It fails if the
	// connection is already bound.
	Bind(user domain.UserID, at time.Time) bool
}
