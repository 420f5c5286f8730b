// Package presence tracks which users currently hold a live connection.
//
// Mutations for a user id are serialized on that id's shard; different users
// on different shards never contend. Nothing in this package performs network
// I/O while holding a lock.
package presence

import (
	"sync"
	"time"

	"arena-relay/internal/models"
	"arena-relay/pkg/apperror"

	mapset "github.com/deckarep/golang-set/v2"
)

const shardCount = 32

// Conn is the handle to the live channel behind a session. Close must not block.
type Conn interface {
	ID() string
	Close(reason string)
}

type Session struct {
	Conn        Conn            `json:"-"`
	ConnID      string          `json:"conn_id"`
	UserID      int             `json:"user_id"`
	Username    string          `json:"username"`
	Tag         string          `json:"tag"`
	AvatarURL   string          `json:"avatar_url,omitempty"`
	Rank        int             `json:"rank"`
	Status      models.Status   `json:"status"`
	Activity    models.Activity `json:"activity"`
	ConnectedAt time.Time       `json:"connected_at"`
	LastSeen    time.Time       `json:"last_seen"`
}

// SessionInfo is what the gateway knows about a freshly authenticated connection.
type SessionInfo struct {
	Conn    Conn
	Profile models.Profile
}

type shard struct {
	mu       sync.RWMutex
	sessions map[int]*Session
}

type Registry struct {
	shards [shardCount]shard
	now    func() time.Time
}

func NewRegistry() *Registry {
	r := &Registry{now: time.Now}
	for i := range r.shards {
		r.shards[i].sessions = make(map[int]*Session)
	}
	return r
}

// SetClock overrides the time source, for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

func (r *Registry) shardFor(userID int) *shard {
	i := userID % shardCount
	if i < 0 {
		i = -i
	}
	return &r.shards[i]
}

// Register installs a new session for the user. Any previous session is
// evicted and its connection closed; the evicted session is returned.
func (r *Registry) Register(info SessionInfo) (Session, *Session) {
	now := r.now()
	p := info.Profile
	s := &Session{
		Conn:        info.Conn,
		ConnID:      info.Conn.ID(),
		UserID:      p.ID,
		Username:    p.Username,
		Tag:         p.Tag,
		AvatarURL:   p.AvatarURL,
		Rank:        p.Rank,
		Status:      models.StatusOnline,
		Activity:    models.ActivityAvailable,
		ConnectedAt: now,
		LastSeen:    now,
	}

	sh := r.shardFor(p.ID)
	sh.mu.Lock()
	prev, had := sh.sessions[p.ID]
	sh.sessions[p.ID] = s
	installed := *s
	sh.mu.Unlock()

	if !had {
		return installed, nil
	}
	evicted := *prev
	if prev.Conn != nil && prev.ConnID != s.ConnID {
		prev.Conn.Close("session superseded by a new connection")
	}
	return installed, &evicted
}

// SetStatus updates status and, when non-empty, activity. It returns the
// session before and after the change.
func (r *Registry) SetStatus(userID int, status models.Status, activity models.Activity) (Session, Session, error) {
	if !status.Valid() {
		return Session{}, Session{}, apperror.InvalidInput("status must be online or away")
	}
	if activity != "" && !activity.Valid() {
		return Session{}, Session{}, apperror.InvalidInput("activity must be available or in-game")
	}

	sh := r.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[userID]
	if !ok {
		return Session{}, Session{}, apperror.ErrSessionNotFound
	}
	prev := *s
	s.Status = status
	if activity != "" {
		s.Activity = activity
	}
	s.LastSeen = r.now()
	return prev, *s, nil
}

// Unregister removes the user's session whichever connection owns it and
// returns the last-seen time.
func (r *Registry) Unregister(userID int) (time.Time, error) {
	s, err := r.remove(userID, "")
	if err != nil {
		return time.Time{}, err
	}
	return s.LastSeen, nil
}

// UnregisterConn removes the session only while it still belongs to connID,
// so a superseded connection going away cannot log out its replacement.
func (r *Registry) UnregisterConn(userID int, connID string) (Session, error) {
	if connID == "" {
		return Session{}, apperror.ErrSessionNotFound
	}
	return r.remove(userID, connID)
}

// remove deletes the user's session, restricted to connID when it is set.
func (r *Registry) remove(userID int, connID string) (Session, error) {
	sh := r.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[userID]
	if !ok || (connID != "" && s.ConnID != connID) {
		return Session{}, apperror.ErrSessionNotFound
	}
	delete(sh.sessions, userID)
	out := *s
	out.LastSeen = r.now()
	return out, nil
}

func (r *Registry) Get(userID int) (Session, bool) {
	sh := r.shardFor(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	s, ok := sh.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (r *Registry) IsOnline(userID int) bool {
	_, ok := r.Get(userID)
	return ok
}

// ListOnline returns the subset of ids that currently have a session.
func (r *Registry) ListOnline(ids mapset.Set[int]) mapset.Set[int] {
	online := mapset.NewSet[int]()
	if ids == nil {
		return online
	}
	ids.Each(func(id int) bool {
		if r.IsOnline(id) {
			online.Add(id)
		}
		return false
	})
	return online
}

// Touch refreshes LastSeen if connID still owns the user's session.
func (r *Registry) Touch(userID int, connID string) bool {
	sh := r.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[userID]
	if !ok || s.ConnID != connID {
		return false
	}
	s.LastSeen = r.now()
	return true
}

// Stale lists sessions whose LastSeen is before cutoff.
func (r *Registry) Stale(cutoff time.Time) []Session {
	var out []Session
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		for _, s := range sh.sessions {
			if s.LastSeen.Before(cutoff) {
				out = append(out, *s)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

func (r *Registry) Count() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}
