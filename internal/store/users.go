package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dkeye/Parley/internal/domain"
)

// CreateUser inserts a user with an already hashed password.
func (d *DB) CreateUser(ctx context.Context, name, email, passwordHash string) (*domain.User, error) {
	var exists int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM users WHERE name = ? OR (email <> '' AND email = ?)`, name, email,
	).Scan(&exists)
	if err != nil {
		return nil, storageErr("check user", err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrUserExists)
	}

	res, err := d.db.ExecContext(ctx,
		`INSERT INTO users (name, email, password, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		name, email, passwordHash, domain.StatusOffline, nowMillis(),
	)
	if err != nil {
		return nil, storageErr("insert user", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr("insert user", err)
	}
	return &domain.User{ID: domain.UserID(id), Name: name, Email: email, Status: domain.StatusOffline}, nil
}

func (d *DB) GetUserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var u domain.User
	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, email, status FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrUserNotFound)
	}
	if err != nil {
		return nil, storageErr("get user", err)
	}
	return &u, nil
}

// Credentials returns the user and password hash for name.
func (d *DB) Credentials(ctx context.Context, name string) (*domain.User, string, error) {
	var (
		u    domain.User
		hash string
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, email, status, password FROM users WHERE name = ?`, name,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Status, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("user %q: %w", name, domain.ErrUserNotFound)
	}
	if err != nil {
		return nil, "", storageErr("get credentials", err)
	}
	return &u, hash, nil
}

func (d *DB) SetUserStatus(ctx context.Context, id domain.UserID, status domain.PresenceStatus) error {
	res, err := d.db.ExecContext(ctx, `UPDATE users SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return storageErr("set status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrUserNotFound)
	}
	return nil
}
