package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"arena-relay/internal/database"
	"arena-relay/internal/models"
	"arena-relay/pkg/apperror"
	"arena-relay/pkg/logger"

	mapset "github.com/deckarep/golang-set/v2"
)

// Cache is the cache-aside store in front of the user-profile database.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
}

type ProfileService struct {
	users database.UserRepository
	cache Cache
}

// NewProfileService wraps users; cache may be nil.
func NewProfileService(users database.UserRepository, cache Cache) *ProfileService {
	return &ProfileService{users: users, cache: cache}
}

func profileKey(userID int) string { return "profile:" + strconv.Itoa(userID) }

func friendsKey(userID int) string { return "friends:" + strconv.Itoa(userID) }

func (s *ProfileService) cached(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		logger.Warn("Profile cache read failed for %s: %v", key, err)
		return false
	}
	return hit
}

func (s *ProfileService) store(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		logger.Warn("Profile cache write failed for %s: %v", key, err)
	}
}

func (s *ProfileService) Profile(ctx context.Context, userID int) (*models.Profile, error) {
	var p models.Profile
	if s.cached(ctx, profileKey(userID), &p) {
		return &p, nil
	}

	profile, err := s.users.GetProfile(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperror.NotFound(fmt.Sprintf("user %d not found", userID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %d: %w", userID, err)
	}

	s.store(ctx, profileKey(userID), profile)
	return profile, nil
}

// FriendIDs returns the user's friends as a set.
func (s *ProfileService) FriendIDs(ctx context.Context, userID int) (mapset.Set[int], error) {
	var ids []int
	if !s.cached(ctx, friendsKey(userID), &ids) {
		var err error
		ids, err = s.users.ListFriendIDs(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load friends of %d: %w", userID, err)
		}
		s.store(ctx, friendsKey(userID), ids)
	}
	return mapset.NewSet(ids...), nil
}

// IsBanned always reads through to the database; a ban must take effect on
// the next check, not after a cache TTL.
func (s *ProfileService) IsBanned(ctx context.Context, userID int) (bool, error) {
	banned, err := s.users.IsBanned(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return false, apperror.NotFound(fmt.Sprintf("user %d not found", userID))
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ban for %d: %w", userID, err)
	}
	return banned, nil
}

func (s *ProfileService) RecordLastSeen(ctx context.Context, userID int, at time.Time) error {
	if err := s.users.UpdateLastSeen(ctx, userID, at); err != nil {
		return fmt.Errorf("failed to record last seen for %d: %w", userID, err)
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, profileKey(userID)); err != nil {
			logger.Warn("Profile cache invalidation failed for %d: %v", userID, err)
		}
	}
	return nil
}
