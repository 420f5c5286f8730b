package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arena-relay/internal/models"
	"arena-relay/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// User Repository Implementation
func (db *PostgresDB) GetProfile(ctx context.Context, userID int) (*models.Profile, error) {
	query := `SELECT id, username, tag, avatar_url, rank, is_banned, last_seen FROM users WHERE id = $1`

	p := &models.Profile{}
	err := db.pool.QueryRow(ctx, query, userID).Scan(
		&p.ID, &p.Username, &p.Tag, &p.AvatarURL, &p.Rank, &p.IsBanned, &p.LastSeen,
	)
	if err != nil {
		return nil, notFound(err)
	}

	return p, nil
}

func (db *PostgresDB) ListFriendIDs(ctx context.Context, userID int) ([]int, error) {
	// friendships rows may be stored one-way; treat them as symmetric
	query := `
		SELECT friend_id FROM friendships WHERE user_id = $1
		UNION
		SELECT user_id FROM friendships WHERE friend_id = $1`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, err
	}

	return ids, nil
}

func (db *PostgresDB) IsBanned(ctx context.Context, userID int) (bool, error) {
	var banned bool
	err := db.pool.QueryRow(ctx, `SELECT is_banned FROM users WHERE id = $1`, userID).Scan(&banned)
	if err != nil {
		return false, notFound(err)
	}
	return banned, nil
}

func (db *PostgresDB) UpdateLastSeen(ctx context.Context, userID int, at time.Time) error {
	_, err := db.pool.Exec(ctx, `UPDATE users SET last_seen = $2 WHERE id = $1`, userID, at)
	return err
}

// Message Repository Implementation
const messageColumns = `id, sender_id, sender_name, sender_avatar, content, channel_kind,
	receiver_id, team_id, is_read, is_deleted, delete_at, created_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	err := row.Scan(
		&msg.ID, &msg.SenderID, &msg.SenderName, &msg.SenderAvatar, &msg.Content, &msg.Channel,
		&msg.ReceiverID, &msg.TeamID, &msg.IsRead, &msg.IsDeleted, &msg.DeleteAt, &msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func collectMessages(rows pgx.Rows) ([]*models.Message, error) {
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// InsertMessage stamps created_at with the database clock, never the client's.
func (db *PostgresDB) InsertMessage(ctx context.Context, draft *models.MessageDraft) (*models.Message, error) {
	query := `
		INSERT INTO chat_messages (sender_id, sender_name, sender_avatar, content, channel_kind, receiver_id, team_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING ` + messageColumns

	msg, err := scanMessage(db.pool.QueryRow(ctx, query,
		draft.SenderID, draft.SenderName, draft.SenderAvatar, draft.Content, draft.Channel,
		draft.ReceiverID, draft.TeamID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	return msg, nil
}

func (db *PostgresDB) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM chat_messages WHERE id = $1 AND NOT is_deleted`

	msg, err := scanMessage(db.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return msg, nil
}

func (db *PostgresDB) ListPrivateMessages(ctx context.Context, userA, userB, limit int) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE channel_kind = 'private' AND NOT is_deleted
		  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	rows, err := db.pool.Query(ctx, query, userA, userB, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (db *PostgresDB) ListTeamMessages(ctx context.Context, teamID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE channel_kind = 'team' AND team_id = $1 AND NOT is_deleted
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, teamID, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (db *PostgresDB) MarkMessageRead(ctx context.Context, id int64) (*models.Message, error) {
	query := `UPDATE chat_messages SET is_read = TRUE WHERE id = $1 AND NOT is_deleted RETURNING ` + messageColumns

	msg, err := scanMessage(db.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return msg, nil
}

func (db *PostgresDB) softDelete(ctx context.Context, where string, args ...any) (int64, error) {
	query := `UPDATE chat_messages SET is_deleted = TRUE, delete_at = $1 WHERE NOT is_deleted AND ` + where
	tag, err := db.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (db *PostgresDB) SoftDeleteTeamMessagesBySender(ctx context.Context, teamID string, senderID int, at time.Time) (int64, error) {
	return db.softDelete(ctx, `channel_kind = 'team' AND team_id = $2 AND sender_id = $3`, at, teamID, senderID)
}

func (db *PostgresDB) SoftDeleteTeamMessages(ctx context.Context, teamID string, at time.Time) (int64, error) {
	return db.softDelete(ctx, `channel_kind = 'team' AND team_id = $2`, at, teamID)
}

func (db *PostgresDB) SoftDeletePrivateMessagesForUser(ctx context.Context, userID int, at time.Time) (int64, error) {
	return db.softDelete(ctx, `channel_kind = 'private' AND (sender_id = $2 OR receiver_id = $2)`, at, userID)
}

func (db *PostgresDB) SoftDeleteMessagesBefore(ctx context.Context, cutoff, at time.Time) (int64, error) {
	return db.softDelete(ctx, `created_at < $2`, at, cutoff)
}

// PurgeDeletedMessages physically removes soft-deleted rows whose delete_at has passed.
func (db *PostgresDB) PurgeDeletedMessages(ctx context.Context, now time.Time) (int64, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM chat_messages WHERE is_deleted AND delete_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
