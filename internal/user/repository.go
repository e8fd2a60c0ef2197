package user

import (
	"context"
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("user not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, u *User) (*User, error) {
	query := `
		INSERT INTO users (id, email, username, full_name, password, bio)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		u.ID, u.Email, u.Username, u.FullName, u.Password, u.Bio,
	).Scan(&u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, `SELECT id, email, username, full_name, password, bio, created_at FROM users WHERE email = $1`, email)
}

func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getOne(ctx, `SELECT id, email, username, full_name, password, bio, created_at FROM users WHERE id = $1`, id)
}

func (r *Repository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = $1`, username).Scan(&n)
	return n > 0, err
}

func (r *Repository) getOne(ctx context.Context, query string, arg any) (*User, error) {
	u := &User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Username, &u.FullName, &u.Password, &u.Bio, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	q := `
		SELECT id, email, username, full_name, password, bio, created_at
		FROM users
		WHERE username ILIKE $1 OR full_name ILIKE $1
		LIMIT 10
	`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.Password, &u.Bio, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Password = ""
		users = append(users, u)
	}
	return users, rows.Err()
}

// ---------------------------------------------
// Friends & blocks (the relationship sets the moderation gate consults)
// ---------------------------------------------

func (r *Repository) AddFriend(ctx context.Context, userID, friendID string) error {
	// Friendship is symmetric; store both directions.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO friends (user_id, friend_id)
		VALUES ($1, $2), ($2, $1)
		ON CONFLICT DO NOTHING
	`, userID, friendID)
	return err
}

func (r *Repository) RemoveFriend(ctx context.Context, userID, friendID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM friends
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
	`, userID, friendID)
	return err
}

func (r *Repository) GetFriendIDs(ctx context.Context, userID string) ([]string, error) {
	return r.idList(ctx, `SELECT friend_id FROM friends WHERE user_id = $1`, userID)
}

func (r *Repository) Block(ctx context.Context, userID, blockedID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO blocks (user_id, blocked_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, blockedID)
	return err
}

func (r *Repository) Unblock(ctx context.Context, userID, blockedID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM blocks WHERE user_id = $1 AND blocked_id = $2
	`, userID, blockedID)
	return err
}

func (r *Repository) GetBlocked(ctx context.Context, userID string) ([]string, error) {
	return r.idList(ctx, `SELECT blocked_id FROM blocks WHERE user_id = $1`, userID)
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
