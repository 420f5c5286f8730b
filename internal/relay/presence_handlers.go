package relay

import (
	"context"

	"arena-relay/internal/models"
	"arena-relay/pkg/apperror"
)

func (r *Router) details(ctx context.Context, c Caller) (*models.DetailResponse, error) {
	banned, err := r.profiles.IsBanned(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, apperror.ErrBanned
	}

	profile, err := r.profiles.Profile(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	s, err := r.session(c.UserID)
	if err != nil {
		return nil, err
	}

	resp := &models.DetailResponse{
		Profile:  *profile,
		Status:   s.Status,
		Activity: s.Activity,
		Friends:  []models.FriendStatus{},
	}
	if tm, ok := r.teams.TeamOf(c.UserID); ok {
		resp.Team = tm
	}
	for _, id := range r.onlineFriends(ctx, c.UserID) {
		fs, ok := r.presence.Get(id)
		if !ok {
			continue
		}
		resp.Friends = append(resp.Friends, models.FriendStatus{
			UserID:    fs.UserID,
			Username:  fs.Username,
			AvatarURL: fs.AvatarURL,
			Status:    fs.Status,
			Activity:  fs.Activity,
		})
	}
	return resp, nil
}

func (r *Router) handleGetDetails(ctx context.Context, c Caller, _ models.Envelope) (Outcome, error) {
	details, err := r.details(ctx, c)
	if err != nil {
		return Outcome{}, err
	}
	env, err := reply(models.EventDetailResp, details)
	return Outcome{Reply: env}, err
}

func (r *Router) handleUpdateStatus(ctx context.Context, c Caller, env models.Envelope) (Outcome, error) {
	var req models.UpdateStatusRequest
	if err := decode(env, &req); err != nil {
		return Outcome{}, err
	}

	_, next, err := r.presence.SetStatus(c.UserID, req.Status, req.Activity)
	if err != nil {
		return Outcome{}, err
	}
	r.mirrorOnline(next)

	update := statusOf(next)
	var out Outcome
	out.Reply, err = reply(models.EventStatusUpdate, update)
	if err != nil {
		return Outcome{}, err
	}
	out.notify(r.onlineFriends(ctx, c.UserID), mustEnvelope(models.EventStatusUpdate, update))
	return out, nil
}

// handleLogout ends the session the way a disconnect would, optionally purging
// the user's private chats, and asks the gateway to close the connection.
func (r *Router) handleLogout(ctx context.Context, c Caller, _ models.Envelope) (Outcome, error) {
	s, err := r.presence.UnregisterConn(c.UserID, c.ConnID)
	if err != nil {
		return Outcome{}, err
	}

	out := r.cleanup(ctx, s, r.cfg.PurgePrivateOnLogout)
	out.Reply, err = reply(models.EventLogoutConfirmed, models.LogoutConfirmed{UserID: c.UserID, LastSeen: s.LastSeen})
	if err != nil {
		return Outcome{}, err
	}
	out.Close = true
	return out, nil
}
