package store

import (
	"context"
	"database/sql"

	"github.com/dkeye/Parley/internal/domain"
)

func (d *DB) InsertMessage(ctx context.Context, from, to domain.UserID, body string) (domain.Message, error) {
	created := nowMillis()
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO messages (from_user, to_user, body, created_at) VALUES (?, ?, ?, ?)`,
		from, to, body, created,
	)
	if err != nil {
		return domain.Message{}, storageErr("insert message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Message{}, storageErr("insert message", err)
	}
	return domain.Message{ID: domain.MessageID(id), FromID: from, ToID: to, Body: body, CreatedAt: fromMillis(created)}, nil
}

func (d *DB) InsertGroupMessage(ctx context.Context, group domain.GroupID, from domain.UserID, body string) (domain.Message, error) {
	created := nowMillis()
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO messages (from_user, group_id, body, created_at) VALUES (?, ?, ?, ?)`,
		from, group, body, created,
	)
	if err != nil {
		return domain.Message{}, storageErr("insert group message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Message{}, storageErr("insert group message", err)
	}
	return domain.Message{ID: domain.MessageID(id), FromID: from, GroupID: group, Body: body, CreatedAt: fromMillis(created)}, nil
}

// DirectHistory returns the latest limit messages between a and b, oldest first.
func (d *DB) DirectHistory(ctx context.Context, a, b domain.UserID, limit int) ([]domain.Message, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, from_user, to_user, group_id, body, created_at FROM messages
		WHERE (from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?)
		ORDER BY id DESC LIMIT ?`,
		a, b, b, a, limit,
	)
	if err != nil {
		return nil, storageErr("direct history", err)
	}
	return scanMessages(rows)
}

// GroupHistory returns the latest limit messages of group, oldest first.
func (d *DB) GroupHistory(ctx context.Context, group domain.GroupID, limit int) ([]domain.Message, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, from_user, to_user, group_id, body, created_at FROM messages
		WHERE group_id = ?
		ORDER BY id DESC LIMIT ?`,
		group, limit,
	)
	if err != nil {
		return nil, storageErr("group history", err)
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	defer rows.Close()
	var out []domain.Message
	for rows.Next() {
		var (
			m       domain.Message
			to      sql.NullInt64
			group   sql.NullInt64
			created int64
		)
		if err := rows.Scan(&m.ID, &m.FromID, &to, &group, &m.Body, &created); err != nil {
			return nil, storageErr("scan message", err)
		}
		m.ToID = domain.UserID(to.Int64)
		m.GroupID = domain.GroupID(group.Int64)
		m.CreatedAt = fromMillis(created)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan message", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
