package group

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("group not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the group and its roster in one transaction. The admin is
// always a member, whether or not the caller listed them.
func (r *Repository) Create(ctx context.Context, g *Group) (*Group, error) {
	g.ID = uuid.NewString()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO groups (id, name, description, admin_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, g.ID, g.Name, g.Description, g.AdminID).Scan(&g.CreatedAt)
	if err != nil {
		return nil, err
	}

	members := g.Members
	if !g.IsMember(g.AdminID) {
		members = append(members, g.AdminID)
	}
	for _, m := range members {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO group_members (group_id, user_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, g.ID, m); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	g.Members = members
	return g, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Group, error) {
	g := &Group{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, admin_id, created_at
		FROM groups WHERE id = $1
	`, id).Scan(&g.ID, &g.Name, &g.Description, &g.AdminID, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if g.Members, err = r.idList(ctx, `SELECT user_id FROM group_members WHERE group_id = $1`, id); err != nil {
		return nil, err
	}
	if g.Restricted, err = r.idList(ctx, `SELECT user_id FROM group_restricted WHERE group_id = $1`, id); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *Repository) GetForUser(ctx context.Context, userID string) ([]*Group, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT g.id FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	groups := make([]*Group, 0, len(ids))
	for _, id := range ids {
		g, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func (r *Repository) AddMember(ctx context.Context, groupID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, groupID, userID)
	return err
}

// RemoveMember drops the user from the roster and the restricted set.
func (r *Repository) RemoveMember(ctx context.Context, groupID, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM group_restricted WHERE group_id = $1 AND user_id = $2`, groupID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) SetRestricted(ctx context.Context, groupID, userID string, restricted bool) error {
	if restricted {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO group_restricted (group_id, user_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, groupID, userID)
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM group_restricted WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	return err
}

// RestrictAll puts every member except the admin on the restricted list.
func (r *Repository) RestrictAll(ctx context.Context, groupID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO group_restricted (group_id, user_id)
		SELECT m.group_id, m.user_id FROM group_members m
		JOIN groups g ON g.id = m.group_id
		WHERE m.group_id = $1 AND m.user_id <> g.admin_id
		ON CONFLICT DO NOTHING
	`, groupID)
	return err
}

func (r *Repository) UnrestrictAll(ctx context.Context, groupID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM group_restricted WHERE group_id = $1`, groupID)
	return err
}

func (r *Repository) idList(ctx context.Context, query, arg string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
