package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Accounts is the slice of user storage signup and signin need.
type Accounts interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (*domain.User, error)
	Credentials(ctx context.Context, name string) (*domain.User, string, error)
}

type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user"`
}

type Service struct {
	Accounts Accounts
	Tokens   *Tokens
	Cost     int
}

func NewService(accounts Accounts, tokens *Tokens) *Service {
	return &Service{Accounts: accounts, Tokens: tokens, Cost: bcrypt.DefaultCost}
}

func (s *Service) Signup(ctx context.Context, name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	if err := domain.ValidateUsername(name); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.Cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.Accounts.CreateUser(ctx, name, strings.TrimSpace(email), string(hash))
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "auth").Str("user", user.ID.String()).Str("name", name).Msg("signed up")
	return s.issue(user)
}

func (s *Service) Signin(ctx context.Context, name, password string) (*Session, error) {
	user, hash, err := s.Accounts.Credentials(ctx, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("invalid credentials: %w", domain.ErrAuthentication)
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrAuthentication)
	}
	return s.issue(user)
}

func (s *Service) issue(user *domain.User) (*Session, error) {
	token, exp, err := s.Tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: user}, nil
}
