package relay

import (
	"context"
	"sort"
	"time"

	"arena-relay/internal/cache"
	"arena-relay/internal/models"
	"arena-relay/internal/presence"
	"arena-relay/pkg/logger"
)

// Connect registers a freshly authenticated connection and tells online
// friends the user came online. The returned reply is the caller's detail
// snapshot; the friend notices are already delivered.
func (r *Router) Connect(ctx context.Context, conn presence.Conn, profile *models.Profile) Outcome {
	defer r.users.lock(profile.ID)()

	s, evicted := r.presence.Register(presence.SessionInfo{Conn: conn, Profile: *profile})
	if evicted != nil {
		logger.Info("User %d reconnected, superseding connection %s", s.UserID, evicted.ConnID)
	} else {
		logger.Info("User %d (%s) connected", s.UserID, s.Username)
	}
	r.mirrorOnline(s)

	var out Outcome
	caller := Caller{UserID: s.UserID, ConnID: s.ConnID}
	details, err := r.details(ctx, caller)
	if err != nil {
		logger.Error("Failed to build details for user %d: %v", s.UserID, err)
	} else {
		out.Reply, _ = reply(models.EventDetailResp, details)
	}

	out.notify(r.onlineFriends(ctx, s.UserID), mustEnvelope(models.EventStatusUpdate, statusOf(s)))
	r.Deliver(out.Notify)
	return Outcome{Reply: out.Reply}
}

// Disconnect runs logout cleanup when connID still owns the user's session.
// A superseded connection going away changes nothing.
func (r *Router) Disconnect(ctx context.Context, userID int, connID string) {
	defer r.users.lock(userID)()

	s, err := r.presence.UnregisterConn(userID, connID)
	if err != nil {
		return
	}
	logger.Info("User %d disconnected", userID)
	out := r.cleanup(ctx, s, false)
	r.Deliver(out.Notify)
}

// cleanup tears down everything tied to a session that has just been removed
// from the presence registry. The caller holds the user's lock, so a
// reconnect cannot interleave with the offline writes below.
func (r *Router) cleanup(ctx context.Context, s presence.Session, purgePrivate bool) Outcome {
	var out Outcome

	if tm, ok := r.teams.TeamOf(s.UserID); ok {
		leaveOut, _, err := r.leaveTeam(ctx, tm.ID, s.UserID)
		if err != nil {
			logger.Warn("Failed to remove user %d from team %s: %v", s.UserID, tm.ID, err)
		}
		out.merge(leaveOut)
	}

	if purgePrivate {
		if _, err := r.store.PurgePrivateForUser(ctx, s.UserID); err != nil {
			logger.Error("%v", err)
		}
	}

	if err := r.profiles.RecordLastSeen(ctx, s.UserID, s.LastSeen); err != nil {
		logger.Error("%v", err)
	}
	r.mirrorOffline(s.UserID, s.LastSeen)

	out.notify(r.onlineFriends(ctx, s.UserID), mustEnvelope(models.EventStatusUpdate, models.StatusUpdate{
		UserID:   s.UserID,
		Username: s.Username,
		Status:   models.StatusOffline,
		LastSeen: s.LastSeen,
	}))
	return out
}

// CleanupStale closes sessions not seen since staleAfter and prunes dead
// invites. It returns how many sessions were dropped.
func (r *Router) CleanupStale(ctx context.Context, staleAfter time.Duration) int {
	stale := r.presence.Stale(r.now().Add(-staleAfter))
	for _, s := range stale {
		if s.Conn != nil {
			s.Conn.Close("connection timed out")
		}
		r.Disconnect(ctx, s.UserID, s.ConnID)
	}
	if n := r.teams.PruneInvites(); n > 0 {
		logger.Debug("Pruned %d invites", n)
	}
	return len(stale)
}

// RunCleanup calls CleanupStale every interval until ctx is done.
func (r *Router) RunCleanup(ctx context.Context, interval, staleAfter time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.CleanupStale(ctx, staleAfter); n > 0 {
				logger.Info("Dropped %d stale sessions", n)
			}
		}
	}
}

// onlineFriends lists the user's friends that currently hold a session.
func (r *Router) onlineFriends(ctx context.Context, userID int) []int {
	friends, err := r.profiles.FriendIDs(ctx, userID)
	if err != nil {
		logger.Warn("Could not load friends of user %d: %v", userID, err)
		return nil
	}
	ids := r.presence.ListOnline(friends).ToSlice()
	sort.Ints(ids)
	return ids
}

func statusOf(s presence.Session) models.StatusUpdate {
	return models.StatusUpdate{
		UserID:   s.UserID,
		Username: s.Username,
		Status:   s.Status,
		Activity: s.Activity,
		LastSeen: s.LastSeen,
	}
}

func (r *Router) mirrorOnline(s presence.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.MirrorTimeout)
	defer cancel()
	err := r.mirror.SetOnline(ctx, cache.PresenceEntry{
		UserID:   s.UserID,
		Username: s.Username,
		Status:   string(s.Status),
		Activity: string(s.Activity),
		ConnID:   s.ConnID,
		LastSeen: s.LastSeen,
	})
	if err != nil {
		logger.Warn("%v", err)
	}
}

func (r *Router) mirrorOffline(userID int, lastSeen time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.MirrorTimeout)
	defer cancel()
	if err := r.mirror.SetOffline(ctx, userID, lastSeen); err != nil {
		logger.Warn("%v", err)
	}
}
