// Package dbtest provides an in-memory database.Database for tests.
package dbtest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"arena-relay/internal/database"
	"arena-relay/internal/models"
)

type MemoryDB struct {
	mu       sync.Mutex
	users    map[int]*models.Profile
	friends  map[int]map[int]bool
	messages []*models.Message
	nextID   int64
	now      func() time.Time

	// FailInserts makes the next N InsertMessage calls fail.
	FailInserts int
	// Inserts counts InsertMessage attempts, successful or not.
	Inserts int
}

var ErrInjected = errors.New("dbtest: injected failure")

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:   make(map[int]*models.Profile),
		friends: make(map[int]map[int]bool),
		now:     time.Now,
	}
}

// SetClock overrides the clock used to stamp created_at.
func (db *MemoryDB) SetClock(now func() time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.now = now
}

func (db *MemoryDB) AddUser(p models.Profile) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := p
	db.users[p.ID] = &cp
}

func (db *MemoryDB) SetBanned(userID int, banned bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if u, ok := db.users[userID]; ok {
		u.IsBanned = banned
	}
}

func (db *MemoryDB) AddFriendship(a, b int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, pair := range [][2]int{{a, b}, {b, a}} {
		if db.friends[pair[0]] == nil {
			db.friends[pair[0]] = make(map[int]bool)
		}
		db.friends[pair[0]][pair[1]] = true
	}
}

// MessageCount counts stored rows, including soft-deleted ones.
func (db *MemoryDB) MessageCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.messages)
}

func (db *MemoryDB) Close() error { return nil }

func (db *MemoryDB) GetProfile(_ context.Context, userID int) (*models.Profile, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	u, ok := db.users[userID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (db *MemoryDB) ListFriendIDs(_ context.Context, userID int) ([]int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	ids := make([]int, 0, len(db.friends[userID]))
	for id := range db.friends[userID] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (db *MemoryDB) IsBanned(_ context.Context, userID int) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	u, ok := db.users[userID]
	if !ok {
		return false, database.ErrNotFound
	}
	return u.IsBanned, nil
}

func (db *MemoryDB) UpdateLastSeen(_ context.Context, userID int, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if u, ok := db.users[userID]; ok {
		t := at
		u.LastSeen = &t
	}
	return nil
}

func cloneMessage(m *models.Message) *models.Message {
	cp := *m
	return &cp
}

func (db *MemoryDB) InsertMessage(_ context.Context, draft *models.MessageDraft) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Inserts++
	if db.FailInserts > 0 {
		db.FailInserts--
		return nil, ErrInjected
	}
	db.nextID++
	msg := &models.Message{
		ID:           db.nextID,
		SenderID:     draft.SenderID,
		SenderName:   draft.SenderName,
		SenderAvatar: draft.SenderAvatar,
		Content:      draft.Content,
		Channel:      draft.Channel,
		ReceiverID:   draft.ReceiverID,
		TeamID:       draft.TeamID,
		CreatedAt:    db.now(),
	}
	db.messages = append(db.messages, msg)
	return cloneMessage(msg), nil
}

func (db *MemoryDB) GetMessage(_ context.Context, id int64) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, m := range db.messages {
		if m.ID == id && !m.IsDeleted {
			return cloneMessage(m), nil
		}
	}
	return nil, database.ErrNotFound
}

func (db *MemoryDB) list(limit int, match func(*models.Message) bool) []*models.Message {
	var out []*models.Message
	for _, m := range db.messages {
		if !m.IsDeleted && match(m) {
			out = append(out, cloneMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (db *MemoryDB) ListPrivateMessages(_ context.Context, userA, userB, limit int) ([]*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.list(limit, func(m *models.Message) bool {
		if m.Channel != models.ChannelPrivate || m.ReceiverID == nil {
			return false
		}
		r := *m.ReceiverID
		return (m.SenderID == userA && r == userB) || (m.SenderID == userB && r == userA)
	}), nil
}

func (db *MemoryDB) ListTeamMessages(_ context.Context, teamID string, limit int) ([]*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.list(limit, func(m *models.Message) bool {
		return m.Channel == models.ChannelTeam && m.TeamID != nil && *m.TeamID == teamID
	}), nil
}

func (db *MemoryDB) MarkMessageRead(_ context.Context, id int64) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, m := range db.messages {
		if m.ID == id && !m.IsDeleted {
			m.IsRead = true
			return cloneMessage(m), nil
		}
	}
	return nil, database.ErrNotFound
}

func (db *MemoryDB) softDelete(at time.Time, match func(*models.Message) bool) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	var n int64
	for _, m := range db.messages {
		if !m.IsDeleted && match(m) {
			t := at
			m.IsDeleted = true
			m.DeleteAt = &t
			n++
		}
	}
	return n
}

func inTeam(m *models.Message, teamID string) bool {
	return m.Channel == models.ChannelTeam && m.TeamID != nil && *m.TeamID == teamID
}

func (db *MemoryDB) SoftDeleteTeamMessagesBySender(_ context.Context, teamID string, senderID int, at time.Time) (int64, error) {
	return db.softDelete(at, func(m *models.Message) bool {
		return inTeam(m, teamID) && m.SenderID == senderID
	}), nil
}

func (db *MemoryDB) SoftDeleteTeamMessages(_ context.Context, teamID string, at time.Time) (int64, error) {
	return db.softDelete(at, func(m *models.Message) bool { return inTeam(m, teamID) }), nil
}

func (db *MemoryDB) SoftDeletePrivateMessagesForUser(_ context.Context, userID int, at time.Time) (int64, error) {
	return db.softDelete(at, func(m *models.Message) bool {
		return m.Channel == models.ChannelPrivate &&
			(m.SenderID == userID || (m.ReceiverID != nil && *m.ReceiverID == userID))
	}), nil
}

func (db *MemoryDB) SoftDeleteMessagesBefore(_ context.Context, cutoff, at time.Time) (int64, error) {
	return db.softDelete(at, func(m *models.Message) bool { return m.CreatedAt.Before(cutoff) }), nil
}

func (db *MemoryDB) PurgeDeletedMessages(_ context.Context, now time.Time) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	kept := db.messages[:0]
	var n int64
	for _, m := range db.messages {
		if m.IsDeleted && m.DeleteAt != nil && !m.DeleteAt.After(now) {
			n++
			continue
		}
		kept = append(kept, m)
	}
	db.messages = kept
	return n, nil
}

var _ database.Database = (*MemoryDB)(nil)
