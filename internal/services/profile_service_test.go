package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"arena-relay/internal/database/dbtest"
	"arena-relay/internal/models"
	"arena-relay/pkg/apperror"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCache is an in-process Cache that round-trips through JSON like Redis does.
type mapCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return false, errors.New("cache down")
	}
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *mapCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

func seed() *dbtest.MemoryDB {
	db := dbtest.NewMemoryDB()
	db.AddUser(models.Profile{ID: 1, Username: "alice", Tag: "#0001", Rank: 1200})
	db.AddUser(models.Profile{ID: 2, Username: "bob", Tag: "#0002"})
	db.AddUser(models.Profile{ID: 3, Username: "carol", Tag: "#0003"})
	db.AddFriendship(1, 2)
	db.AddFriendship(3, 1)
	return db
}

func TestProfile(t *testing.T) {
	cache := newMapCache()
	svc := NewProfileService(seed(), cache)

	p, err := svc.Profile(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.True(t, cache.has("profile:1"))

	_, err = svc.Profile(context.Background(), 42)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestProfile_CacheFailureFallsThrough(t *testing.T) {
	cache := newMapCache()
	cache.failGet = true
	svc := NewProfileService(seed(), cache)

	p, err := svc.Profile(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "bob", p.Username)
}

func TestFriendIDs(t *testing.T) {
	for name, cache := range map[string]Cache{"uncached": nil, "cached": newMapCache()} {
		t.Run(name, func(t *testing.T) {
			svc := NewProfileService(seed(), cache)
			for i := 0; i < 2; i++ {
				ids, err := svc.FriendIDs(context.Background(), 1)
				require.NoError(t, err)
				assert.True(t, ids.Equal(mapset.NewSet(2, 3)))
			}
		})
	}
}

func TestIsBanned_ReadsThrough(t *testing.T) {
	db := seed()
	svc := NewProfileService(db, newMapCache())

	banned, err := svc.IsBanned(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, banned)

	db.SetBanned(2, true)
	banned, err = svc.IsBanned(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, banned)
}

func TestRecordLastSeen_InvalidatesProfile(t *testing.T) {
	cache := newMapCache()
	svc := NewProfileService(seed(), cache)

	_, err := svc.Profile(context.Background(), 1)
	require.NoError(t, err)

	at := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, svc.RecordLastSeen(context.Background(), 1, at))
	assert.False(t, cache.has("profile:1"))

	p, err := svc.Profile(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, p.LastSeen)
	assert.True(t, at.Equal(*p.LastSeen))
}
