package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            email VARCHAR(255) UNIQUE NOT NULL,
            username VARCHAR(50) UNIQUE NOT NULL,
            full_name VARCHAR(100) NOT NULL,
            password VARCHAR(255) NOT NULL,
            bio TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS friends (
            user_id UUID REFERENCES users(id) ON DELETE CASCADE,
            friend_id UUID REFERENCES users(id) ON DELETE CASCADE,
            PRIMARY KEY (user_id, friend_id)
        )`,

		`CREATE TABLE IF NOT EXISTS blocks (
            user_id UUID REFERENCES users(id) ON DELETE CASCADE,
            blocked_id UUID REFERENCES users(id) ON DELETE CASCADE,
            PRIMARY KEY (user_id, blocked_id)
        )`,

		`CREATE TABLE IF NOT EXISTS groups (
            id UUID PRIMARY KEY,
            name VARCHAR(100) NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            admin_id UUID NOT NULL REFERENCES users(id),
            created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS group_members (
            group_id UUID REFERENCES groups(id) ON DELETE CASCADE,
            user_id UUID REFERENCES users(id) ON DELETE CASCADE,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (group_id, user_id)
        )`,

		`CREATE TABLE IF NOT EXISTS group_restricted (
            group_id UUID REFERENCES groups(id) ON DELETE CASCADE,
            user_id UUID REFERENCES users(id) ON DELETE CASCADE,
            PRIMARY KEY (group_id, user_id)
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            sender_id UUID NOT NULL REFERENCES users(id),
            receiver_id UUID REFERENCES users(id),
            group_id UUID REFERENCES groups(id),
            text TEXT NOT NULL DEFAULT '',
            image_url TEXT,
            file_url TEXT,
            lat DOUBLE PRECISION,
            lon DOUBLE PRECISION,
            seen BOOLEAN,
            is_forwarded BOOLEAN NOT NULL DEFAULT FALSE,
            deleted_for_everyone BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL,
            CHECK ((receiver_id IS NULL) <> (group_id IS NULL))
        )`,

		`CREATE TABLE IF NOT EXISTS message_deleted_for (
            message_id UUID REFERENCES messages(id) ON DELETE CASCADE,
            user_id UUID REFERENCES users(id) ON DELETE CASCADE,
            PRIMARY KEY (message_id, user_id)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_messages_direct
            ON messages (sender_id, receiver_id, created_at)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_group
            ON messages (group_id, created_at)`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
