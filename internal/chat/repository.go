package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository is the postgres-backed MessageStore. Messages are soft-delete
// only; the deleted-for set lives in its own table so adds stay idempotent
// at the SQL level.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ MessageStore = (*Repository)(nil)

func (r *Repository) Append(ctx context.Context, msg *Message) (*Message, error) {
	query := `
		INSERT INTO messages
			(id, sender_id, receiver_id, group_id, text, image_url, file_url, lat, lon, seen, is_forwarded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	var lat, lon sql.NullFloat64
	if msg.Payload.Location != nil {
		lat = sql.NullFloat64{Float64: msg.Payload.Location.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: msg.Payload.Location.Lon, Valid: true}
	}
	// seen is NULL for group messages: the system tracks no per-viewer
	// seen state at group scale.
	var seen sql.NullBool
	if msg.GroupID == "" {
		seen = sql.NullBool{Bool: false, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.SenderID, nullable(msg.ReceiverID), nullable(msg.GroupID),
		msg.Payload.Text, nullable(msg.Payload.ImageURL), nullable(msg.Payload.FileURL),
		lat, lon, seen, msg.IsForwarded, msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	// A conflict means a retried send; hand back the row that won.
	return r.Get(ctx, msg.ID)
}

func (r *Repository) Get(ctx context.Context, id string) (*Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, group_id, text, image_url, file_url,
		       lat, lon, seen, is_forwarded, deleted_for_everyone, created_at
		FROM messages WHERE id = $1
	`
	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM message_deleted_for WHERE message_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var viewer string
		if err := rows.Scan(&viewer); err != nil {
			return nil, err
		}
		msg.DeletedFor = append(msg.DeletedFor, viewer)
	}
	return msg, rows.Err()
}

func (r *Repository) UpdateVisibility(ctx context.Context, id string, patch VisibilityPatch) error {
	if patch.Seen != nil {
		if _, err := r.db.ExecContext(ctx,
			`UPDATE messages SET seen = $2 WHERE id = $1`, id, *patch.Seen); err != nil {
			return err
		}
	}
	if patch.DeletedForEveryone != nil {
		if _, err := r.db.ExecContext(ctx,
			`UPDATE messages SET deleted_for_everyone = $2 WHERE id = $1`, id, *patch.DeletedForEveryone); err != nil {
			return err
		}
	}
	if patch.AddDeletedFor != "" {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO message_deleted_for (message_id, user_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, id, patch.AddDeletedFor); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) FindDirect(ctx context.Context, viewer, peer string, limit int) ([]*Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, group_id, text, image_url, file_url,
		       lat, lon, seen, is_forwarded, deleted_for_everyone, created_at
		FROM messages m
		WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		  AND NOT EXISTS (
			SELECT 1 FROM message_deleted_for d
			WHERE d.message_id = m.id AND d.user_id = $1
		  )
		ORDER BY created_at ASC
		LIMIT $3
	`
	return r.queryMessages(ctx, query, viewer, peer, limit)
}

func (r *Repository) FindGroup(ctx context.Context, viewer, groupID string, limit int) ([]*Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, group_id, text, image_url, file_url,
		       lat, lon, seen, is_forwarded, deleted_for_everyone, created_at
		FROM messages m
		WHERE group_id = $2
		  AND NOT EXISTS (
			SELECT 1 FROM message_deleted_for d
			WHERE d.message_id = m.id AND d.user_id = $1
		  )
		ORDER BY created_at ASC
		LIMIT $3
	`
	return r.queryMessages(ctx, query, viewer, groupID, limit)
}

func (r *Repository) CountUnseen(ctx context.Context, receiver, sender string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE sender_id = $2 AND receiver_id = $1 AND seen = FALSE
	`, receiver, sender).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unseen: %w", err)
	}
	return n, nil
}

func (r *Repository) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	msg := &Message{}
	var receiver, group, image, file sql.NullString
	var lat, lon sql.NullFloat64
	var seen sql.NullBool
	err := row.Scan(
		&msg.ID, &msg.SenderID, &receiver, &group, &msg.Payload.Text,
		&image, &file, &lat, &lon, &seen, &msg.IsForwarded,
		&msg.DeletedForEveryone, &msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.ReceiverID = receiver.String
	msg.GroupID = group.String
	msg.Payload.ImageURL = image.String
	msg.Payload.FileURL = file.String
	if lat.Valid && lon.Valid {
		msg.Payload.Location = &Location{Lat: lat.Float64, Lon: lon.Float64}
	}
	msg.Seen = seen.Valid && seen.Bool
	return msg, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
