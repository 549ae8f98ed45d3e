package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dkeye/Parley/internal/domain"
)

// CreateGroup inserts a group and its members in one transaction. The
// creator is always a member.
func (d *DB) CreateGroup(ctx context.Context, name string, createdBy domain.UserID, members []domain.UserID) (*domain.Group, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin create group", err)
	}
	defer tx.Rollback()

	created := nowMillis()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO chat_groups (name, created_by, created_at) VALUES (?, ?, ?)`,
		name, createdBy, created,
	)
	if err != nil {
		return nil, storageErr("insert group", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr("insert group", err)
	}

	seen := map[domain.UserID]struct{}{createdBy: {}}
	all := []domain.UserID{createdBy}
	for _, m := range members {
		if _, ok := seen[m]; ok || m == 0 {
			continue
		}
		seen[m] = struct{}{}
		all = append(all, m)
	}
	for _, m := range all {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id) VALUES (?, ?)`, id, m,
		); err != nil {
			return nil, storageErr(fmt.Sprintf("add member %s", m), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit create group", err)
	}
	return &domain.Group{ID: domain.GroupID(id), Name: name, CreatedBy: createdBy, Members: all, CreatedAt: fromMillis(created)}, nil
}

// GetGroupMembers returns the members of group or ErrGroupNotFound.
func (d *DB) GetGroupMembers(ctx context.Context, group domain.GroupID) ([]domain.UserID, error) {
	var one int
	err := d.db.QueryRowContext(ctx, `SELECT 1 FROM chat_groups WHERE id = ?`, group).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", group, domain.ErrGroupNotFound)
	}
	if err != nil {
		return nil, storageErr("get group", err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY user_id`, group,
	)
	if err != nil {
		return nil, storageErr("get group members", err)
	}
	defer rows.Close()
	var out []domain.UserID
	for rows.Next() {
		var u domain.UserID
		if err := rows.Scan(&u); err != nil {
			return nil, storageErr("scan member", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan member", err)
	}
	return out, nil
}

// GroupsOf lists the groups user belongs to, newest first.
func (d *DB) GroupsOf(ctx context.Context, user domain.UserID) ([]domain.Group, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.created_by, g.created_at FROM chat_groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = ?
		ORDER BY g.id DESC`, user,
	)
	if err != nil {
		return nil, storageErr("list groups", err)
	}
	var out []domain.Group
	for rows.Next() {
		var (
			g       domain.Group
			created int64
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedBy, &created); err != nil {
			rows.Close()
			return nil, storageErr("scan group", err)
		}
		g.CreatedAt = fromMillis(created)
		out = append(out, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan group", err)
	}
	for i := range out {
		members, err := d.GetGroupMembers(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Members = members
	}
	return out, nil
}
