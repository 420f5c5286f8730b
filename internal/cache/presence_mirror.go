package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceEntry is the slice of a live session other services may read.
type PresenceEntry struct {
	UserID   int
	Username string
	Status   string
	Activity string
	ConnID   string
	LastSeen time.Time
}

// PresenceMirror publishes presence outside the process. Implementations must
// tolerate being called from many goroutines.
type PresenceMirror interface {
	SetOnline(ctx context.Context, e PresenceEntry) error
	SetOffline(ctx context.Context, userID int, lastSeen time.Time) error
}

func presenceKey(userID int) string {
	return "presence:" + strconv.Itoa(userID)
}

// RedisPresenceMirror keeps one hash per online user with a TTL, so a crashed
// process cannot leave users online forever.
type RedisPresenceMirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPresenceMirror(client *redis.Client, ttl time.Duration) *RedisPresenceMirror {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisPresenceMirror{client: client, ttl: ttl}
}

func (m *RedisPresenceMirror) SetOnline(ctx context.Context, e PresenceEntry) error {
	key := presenceKey(e.UserID)
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"user_id", e.UserID,
			"username", e.Username,
			"status", e.Status,
			"activity", e.Activity,
			"conn_id", e.ConnID,
			"last_seen", e.LastSeen.UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, m.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mirror presence of user %d: %w", e.UserID, err)
	}
	return nil
}

// SetOffline removes the presence hash and keeps a last-seen marker.
func (m *RedisPresenceMirror) SetOffline(ctx context.Context, userID int, lastSeen time.Time) error {
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, presenceKey(userID))
		pipe.Set(ctx, presenceKey(userID)+":last_seen", lastSeen.UTC().Format(time.RFC3339Nano), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear presence of user %d: %w", userID, err)
	}
	return nil
}

// LastSeen returns the marker written by SetOffline.
func (m *RedisPresenceMirror) LastSeen(ctx context.Context, userID int) (time.Time, bool, error) {
	raw, err := m.client.Get(ctx, presenceKey(userID)+":last_seen").Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}

// NopPresenceMirror is used when no Redis is configured.
type NopPresenceMirror struct{}

func (NopPresenceMirror) SetOnline(context.Context, PresenceEntry) error { return nil }

func (NopPresenceMirror) SetOffline(context.Context, int, time.Time) error { return nil }

var (
	_ PresenceMirror = (*RedisPresenceMirror)(nil)
	_ PresenceMirror = NopPresenceMirror{}
)
