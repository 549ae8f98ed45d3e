package domain

import (
	"strconv"
	"time"
)

const MaxBodyLen = 4096

type MessageID int64

type GroupID int64

func (id GroupID) String() string { return strconv.FormatInt(int64(id), 10) }

// Message is immutable once persisted. Exactly one of ToID and GroupID is set.
type Message struct {
	ID        MessageID `json:"id"`
	FromID    UserID    `json:"fromId"`
	ToID      UserID    `json:"toId,omitempty"`
	GroupID   GroupID   `json:"groupId,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"timestamp"`
}

func (m Message) IsGroup() bool { return m.GroupID != 0 }

type Group struct {
	ID        GroupID   `json:"id"`
	Name      string    `json:"name"`
	CreatedBy UserID    `json:"createdBy"`
	Members   []UserID  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}
