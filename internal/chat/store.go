// Package chat persists and expires private and team chat messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"arena-relay/internal/database"
	"arena-relay/internal/models"
	"arena-relay/pkg/apperror"
	"arena-relay/pkg/logger"
)

type Config struct {
	MaxMessageLength int
	HistoryLimit     int
}

type Store struct {
	repo database.MessageRepository
	cfg  Config
	now  func() time.Time
}

func NewStore(repo database.MessageRepository, cfg Config) *Store {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 500
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &Store{repo: repo, cfg: cfg, now: time.Now}
}

// SetClock overrides the time source used for delete_at stamps, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func validateSelector(d *models.MessageDraft) error {
	switch d.Channel {
	case models.ChannelPrivate:
		if d.ReceiverID == nil || d.TeamID != nil {
			return apperror.ErrInvalidChannelSelector
		}
		if *d.ReceiverID == d.SenderID {
			return apperror.InvalidInput("cannot message yourself")
		}
	case models.ChannelTeam:
		if d.TeamID == nil || *d.TeamID == "" || d.ReceiverID != nil {
			return apperror.ErrInvalidChannelSelector
		}
	default:
		return apperror.ErrInvalidChannelSelector
	}
	return nil
}

// Send validates and persists a draft. The returned message carries the
// id and created_at assigned by the repository.
func (s *Store) Send(ctx context.Context, draft *models.MessageDraft) (*models.Message, error) {
	draft.Content = strings.TrimSpace(draft.Content)
	if draft.Content == "" {
		return nil, apperror.ErrMessageEmpty
	}
	if utf8.RuneCountInString(draft.Content) > s.cfg.MaxMessageLength {
		return nil, apperror.Detailf(apperror.ErrMessageTooLong, "limit is %d characters", s.cfg.MaxMessageLength)
	}
	if err := validateSelector(draft); err != nil {
		return nil, err
	}

	msg, err := s.repo.InsertMessage(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to persist %s message from user %d: %w", draft.Channel, draft.SenderID, err)
	}
	return msg, nil
}

func (s *Store) clampLimit(limit int) int {
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		return s.cfg.HistoryLimit
	}
	return limit
}

// History returns the newest messages of a channel first, excluding deleted ones.
func (s *Store) History(ctx context.Context, sel models.ChannelSelector, limit int) ([]*models.Message, error) {
	limit = s.clampLimit(limit)

	var (
		msgs []*models.Message
		err  error
	)
	switch sel.Kind {
	case models.ChannelPrivate:
		if sel.UserA == 0 || sel.UserB == 0 {
			return nil, apperror.ErrInvalidChannelSelector
		}
		msgs, err = s.repo.ListPrivateMessages(ctx, sel.UserA, sel.UserB, limit)
	case models.ChannelTeam:
		if sel.TeamID == "" {
			return nil, apperror.ErrInvalidChannelSelector
		}
		msgs, err = s.repo.ListTeamMessages(ctx, sel.TeamID, limit)
	default:
		return nil, apperror.ErrInvalidChannelSelector
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s history: %w", sel.Kind, err)
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	return msgs, nil
}

// MarkRead flags a message as read. For private messages only the receiver
// may do so; team membership is checked by the caller.
func (s *Store) MarkRead(ctx context.Context, messageID int64, readerID int) (*models.Message, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperror.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message %d: %w", messageID, err)
	}
	if msg.Channel == models.ChannelPrivate && (msg.ReceiverID == nil || *msg.ReceiverID != readerID) {
		return nil, apperror.ErrMessageNotFound
	}
	if msg.IsRead {
		return msg, nil
	}

	msg, err = s.repo.MarkMessageRead(ctx, messageID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperror.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark message %d read: %w", messageID, err)
	}
	return msg, nil
}

// Message loads a live message by id.
func (s *Store) Message(ctx context.Context, messageID int64) (*models.Message, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperror.ErrMessageNotFound
	}
	return msg, err
}

// PurgeForUserInTeam soft-deletes the messages userID authored in teamID.
func (s *Store) PurgeForUserInTeam(ctx context.Context, teamID string, userID int) (int64, error) {
	n, err := s.repo.SoftDeleteTeamMessagesBySender(ctx, teamID, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge messages of user %d in team %s: %w", userID, teamID, err)
	}
	if n > 0 {
		logger.Debug("Soft-deleted %d messages of user %d in team %s", n, userID, teamID)
	}
	return n, nil
}

// PurgeTeam soft-deletes every message of a team.
func (s *Store) PurgeTeam(ctx context.Context, teamID string) (int64, error) {
	n, err := s.repo.SoftDeleteTeamMessages(ctx, teamID, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge team %s: %w", teamID, err)
	}
	if n > 0 {
		logger.Debug("Soft-deleted %d messages of team %s", n, teamID)
	}
	return n, nil
}

// PurgePrivateForUser soft-deletes every private message the user sent or received.
func (s *Store) PurgePrivateForUser(ctx context.Context, userID int) (int64, error) {
	n, err := s.repo.SoftDeletePrivateMessagesForUser(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge private messages of user %d: %w", userID, err)
	}
	return n, nil
}

// SweepExpired soft-deletes messages older than the retention horizon.
func (s *Store) SweepExpired(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, apperror.InvalidInput("retention must be at least one day")
	}
	now := s.now()
	cutoff := now.AddDate(0, 0, -olderThanDays)
	n, err := s.repo.SoftDeleteMessagesBefore(ctx, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep messages before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return n, nil
}

// Reap physically removes soft-deleted rows whose delete_at has elapsed.
func (s *Store) Reap(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgeDeletedMessages(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to reap deleted messages: %w", err)
	}
	return n, nil
}

// RunSweeper applies the retention sweep every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration, olderThanDays int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.SweepExpired(ctx, olderThanDays)
			if err != nil {
				logger.Error("Retention sweep failed: %v", err)
				continue
			}
			if n > 0 {
				logger.Info("Retention sweep soft-deleted %d messages", n)
			}
		}
	}
}

// RunReaper physically removes expired soft-deleted rows every interval.
func (s *Store) RunReaper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Reap(ctx)
			if err != nil {
				logger.Error("Message reaper failed: %v", err)
				continue
			}
			if n > 0 {
				logger.Info("Reaped %d deleted messages", n)
			}
		}
	}
}
