package database

import (
	"context"
	"errors"
	"time"

	"arena-relay/internal/models"
)

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("record not found")

// UserRepository is the read side of the platform's user-profile store, plus
// the last-seen write this service owns.
type UserRepository interface {
	GetProfile(ctx context.Context, userID int) (*models.Profile, error)
	ListFriendIDs(ctx context.Context, userID int) ([]int, error)
	IsBanned(ctx context.Context, userID int) (bool, error)
	UpdateLastSeen(ctx context.Context, userID int, at time.Time) error
}

// MessageRepository is the sole writer of chat message rows.
type MessageRepository interface {
	InsertMessage(ctx context.Context, draft *models.MessageDraft) (*models.Message, error)
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	ListPrivateMessages(ctx context.Context, userA, userB, limit int) ([]*models.Message, error)
	ListTeamMessages(ctx context.Context, teamID string, limit int) ([]*models.Message, error)
	MarkMessageRead(ctx context.Context, id int64) (*models.Message, error)

	SoftDeleteTeamMessagesBySender(ctx context.Context, teamID string, senderID int, at time.Time) (int64, error)
	SoftDeleteTeamMessages(ctx context.Context, teamID string, at time.Time) (int64, error)
	SoftDeletePrivateMessagesForUser(ctx context.Context, userID int, at time.Time) (int64, error)
	SoftDeleteMessagesBefore(ctx context.Context, cutoff, at time.Time) (int64, error)
	PurgeDeletedMessages(ctx context.Context, now time.Time) (int64, error)
}

type Database interface {
	UserRepository
	MessageRepository
	Close() error
}
