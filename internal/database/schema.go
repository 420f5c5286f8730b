package database

import (
	"context"
	"fmt"
)

// The users and friendships tables belong to the platform's CRUD service;
// they are created here only when missing so a fresh database is usable.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          SERIAL PRIMARY KEY,
		username    TEXT NOT NULL UNIQUE,
		tag         TEXT NOT NULL DEFAULT '',
		avatar_url  TEXT NOT NULL DEFAULT '',
		rank        INT NOT NULL DEFAULT 0,
		is_banned   BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen   TIMESTAMPTZ,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS friendships (
		user_id    INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		friend_id  INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, friend_id)
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id            BIGSERIAL PRIMARY KEY,
		sender_id     INT NOT NULL,
		sender_name   TEXT NOT NULL DEFAULT '',
		sender_avatar TEXT NOT NULL DEFAULT '',
		content       TEXT NOT NULL,
		channel_kind  TEXT NOT NULL,
		receiver_id   INT,
		team_id       TEXT,
		is_read       BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted    BOOLEAN NOT NULL DEFAULT FALSE,
		delete_at     TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT chat_messages_channel_check CHECK (
			(channel_kind = 'private' AND receiver_id IS NOT NULL AND team_id IS NULL) OR
			(channel_kind = 'team' AND team_id IS NOT NULL AND receiver_id IS NULL)
		)
	)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_private_idx
		ON chat_messages (sender_id, receiver_id, created_at DESC) WHERE channel_kind = 'private'`,
	`CREATE INDEX IF NOT EXISTS chat_messages_team_idx
		ON chat_messages (team_id, created_at DESC) WHERE channel_kind = 'team'`,
	`CREATE INDEX IF NOT EXISTS chat_messages_delete_at_idx
		ON chat_messages (delete_at) WHERE is_deleted`,
}

// Migrate creates the tables this service reads and writes if they are missing.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
