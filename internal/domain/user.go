// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strconv"
)

const (
	MaxUsernameLen = 36
	MinPasswordLen = 6
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrPasswordShort   = errors.New("password too short")
)

type UserID int64

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

func StatusOf(online bool) PresenceStatus {
	if online {
		return StatusOnline
	}
	return StatusOffline
}

type User struct {
	ID     UserID         `json:"id"`
	Name   string         `json:"name"`
	Email  string         `json:"email,omitempty"`
	Status PresenceStatus `json:"status"`
}

// ValidateUsername keeps the limits in one place for the store and the HTTP layer.
func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return ErrPasswordShort
	}
	return nil
}
