package relay

import (
	"context"

	"arena-relay/internal/events"
	"arena-relay/internal/models"
	"arena-relay/internal/team"
	"arena-relay/pkg/apperror"
	"arena-relay/pkg/logger"
)

const (
	reasonCreated      = "created"
	reasonMemberJoined = "member_joined"
	reasonMemberLeft   = "member_left"
	reasonMemberKicked = "member_kicked"
	reasonReadyChanged = "ready_changed"
	reasonPromoted     = "leader_promoted"
	reasonLeft         = "left"
	reasonKicked       = "kicked"
	reasonDisbanded    = "disbanded"
)

func (r *Router) member(userID int) (models.TeamMember, error) {
	s, err := r.session(userID)
	if err != nil {
		return models.TeamMember{}, err
	}
	return models.TeamMember{UserID: s.UserID, Username: s.Username, AvatarURL: s.AvatarURL, Rank: s.Rank}, nil
}

func (r *Router) callerTeam(userID int) (*models.Team, error) {
	tm, ok := r.teams.TeamOf(userID)
	if !ok {
		return nil, apperror.ErrNotOnTeam
	}
	return tm, nil
}

func teamUpdate(tm *models.Team, reason string, userID int) models.Envelope {
	return mustEnvelope(models.EventTeamUpdate, models.TeamUpdate{Team: tm, TeamID: tm.ID, Reason: reason, UserID: userID})
}

func (r *Router) publishReady(ctx context.Context, prev models.TeamState, next *models.Team) {
	if prev != models.TeamReady && next.State == models.TeamReady {
		logger.Info("Team %s is ready (%s)", next.ID, next.Mode)
		r.publish(ctx, events.TeamReady, next, 0)
	}
}

func (r *Router) handleTeamCreate(ctx context.Context, c Caller, env models.Envelope) (Outcome, error) {
	var req models.TeamCreateRequest
	if err := decode(env, &req); err != nil {
		return Outcome{}, err
	}
	leader, err := r.member(c.UserID)
	if err != nil {
		return Outcome{}, err
	}

	tm, err := r.teams.Create(leader, req.Mode, req.MaxSize)
	if err != nil {
		return Outcome{}, err
	}
	logger.Info("User %d created team %s (%s)", c.UserID, tm.ID, tm.Mode)
	r.publish(ctx, events.TeamCreated, tm, c.UserID)

	rep, err := reply(models.EventTeamUpdate, models.TeamUpdate{Team: tm, TeamID: tm.ID, Reason: reasonCreated, UserID: c.UserID})
	return Outcome{Reply: rep}, err
}

func (r *Router) handleTeamInvite(_ context.Context, c Caller, env models.Envelope) (Outcome, error) {
	var req models.TeamInviteRequest
	if err := decode(env, &req); err != nil {
		return Outcome{}, err
	}
	if req.UserID <= 0 {
		return Outcome{}, apperror.InvalidInput("user_id is required")
	}

	tm, err := r.callerTeam(c.UserID)
	if err != nil {
		return Outcome{}, err
	}
	if !r.presence.IsOnline(req.UserID) {
		return Outcome{}, apperror.ErrRecipientOffline
	}

	inv, err := r.teams.Invite(tm.ID, c.UserID, req.UserID)
	if err != nil {
		return Outcome{}, err
	}

	inviter, _ := tm.Member(c.UserID)
	notice := models.TeamInviteNotice{
		Token:       inv.Token,
		TeamID:      tm.ID,
		Mode:        tm.Mode,
		InviterID:   c.UserID,
		InviterName: inviter.Username,
		InviteeID:   req.UserID,
		ExpiresAt:   inv.ExpiresAt,
	}

	var out Outcome
	out.Reply, err = reply(models.EventTeamInviteSent, notice)
	if err != nil {
		return Outcome{}, err
	}
	out.notify([]int{req.UserID}, mustEnvelope(models.EventTeamInviteReceived, notice))
	return out, nil
}

func (r *Router) handleTeamAccept(ctx context.Context, c Caller, env models.Envelope) (Outcome, error) {
	var req models.TeamAcceptRequest
	if err := decode(env, &req); err != nil {
		return Outcome{}, err
	}
	if req.Token == "" {
		return Outcome{}, apperror.InvalidInput("token is required")
	}
	m, err := r.member(c.UserID)
	if err != nil {
		return Outcome{}, err
	}

	tm, err := r.teams.Accept(req.Token, m)
	if err != nil {
		return Outcome{}, err
	}
	logger.Info("User %d joined team %s", c.UserID, tm.ID)
	r.publish(ctx, events.TeamMemberJoined, tm, c.UserID)
	r.publishReady(ctx, models.TeamAssembling, tm)

	var out Outcome
	out.notify(tm.MemberIDs(), teamUpdate(tm, reasonMemberJoined, c.UserID))
	return out, nil
}

// leaveTeam removes userID from teamID with the chat purges that go with it
// and returns the fan-out for the remaining members.
func (r *Router) leaveTeam(ctx context.Context, teamID string, userID int) (Outcome, team.LeaveResult, error) {
	res, err := r.teams.Leave(teamID, userID)
	if err != nil {
		return Outcome{}, res, err
	}

	if _, err := r.store.PurgeForUserInTeam(ctx, teamID, userID); err != nil {
		logger.Error("%v", err)
	}
	r.publish(ctx, events.TeamMemberLeft, res.Team, userID)

	var out Outcome
	if res.Disbanded {
		if _, err := r.store.PurgeTeam(ctx, teamID); err != nil {
			logger.Error("%v", err)
		}
		logger.Info("Team %s disbanded after its last member left", teamID)
		r.publish(ctx, events.TeamDisbanded, res.Team, userID)
		return out, res, nil
	}

	reason := reasonMemberLeft
	if res.PromotedID != 0 {
		reason = reasonPromoted
	}
	out.notify(res.Team.MemberIDs(), teamUpdate(res.Team, reason, userID))
	return out, res, nil
}

func (r *Router) handleTeamLeave(ctx context.Context, c Caller, _ models.Envelope) (Outcome, error) {
	tm, err := r.callerTeam(c.UserID)
	if err != nil {
		return Outcome{}, err
	}

	out, res, err := r.leaveTeam(ctx, tm.ID, c.UserID)
	if err != nil {
		return Outcome{}, err
	}
	out.Reply, err = reply(models.EventTeamUpdate, models.TeamUpdate{
		TeamID:    tm.ID,
		Reason:    reasonLeft,
		UserID:    c.UserID,
		Left:      true,
		Disbanded: res.Disbanded,
	})
	return out, err
}

func (r *Router) handleTeamDisband(ctx context.Context, c Caller, _ models.Envelope) (Outcome, error) {
	tm, err := r.callerTeam(c.UserID)
	if err != nil {
		return Outcome{}, err
	}

	final, err := r.teams.Disband(tm.ID, c.UserID)
	if err != nil {
		return Outcome{}, err
	}
	if _, err := r.store.PurgeTeam(ctx, final.ID); err != nil {
		logger.Error("%v", err)
	}
	logger.Info("User %d disbanded team %s", c.UserID, final.ID)
	r.publish(ctx, events.TeamDisbanded, final, c.UserID)

	update := models.TeamUpdate{TeamID: final.ID, Reason: reasonDisbanded, UserID: c.UserID, Disbanded: true}
	var out Outcome
	out.Reply, err = reply(models.EventTeamUpdate, update)
	if err != nil {
		return Outcome{}, err
	}
	out.notify(without(final.MemberIDs(), c.UserID), mustEnvelope(models.EventTeamUpdate, update))
	return out, nil
}

func (r *Router) handleTeamKick(ctx context.Context, c Caller, env models.Envelope) (Outcome, error) {
	var req models.TeamKickRequest
	if err := decode(env, &req); err != nil {
		return Outcome{}, err
	}
	tm, err := r.callerTeam(c.UserID)
	if err != nil {
		return Outcome{}, err
	}

	next, err := r.teams.Kick(tm.ID, c.UserID, req.UserID)
	if err != nil {
		return Outcome{}, err
	}
	if _, err := r.store.PurgeForUserInTeam(ctx, tm.ID, req.UserID); err != nil {
		logger.Error("%v", err)
	}
	logger.Info("User %d kicked user %d from team %s", c.UserID, req.UserID, tm.ID)
	r.publish(ctx, events.TeamMemberLeft, next, req.UserID)

	update := teamUpdate(next, reasonMemberKicked, req.UserID)
	out := Outcome{Reply: &update}
	out.notify(without(next.MemberIDs(), c.UserID), update)
	out.notify([]int{req.UserID}, mustEnvelope(models.EventTeamUpdate, models.TeamUpdate{
		TeamID: tm.ID,
		Reason: reasonKicked,
		UserID: req.UserID,
		Left:   true,
	}))
	return out, nil
}

func (r *Router) handleTeamSetReady(ctx context.Context, c Caller, env models.Envelope) (Outcome, error) {
	var req models.TeamSetReadyRequest
	if err := decode(env, &req); err != nil {
		return Outcome{}, err
	}
	tm, err := r.callerTeam(c.UserID)
	if err != nil {
		return Outcome{}, err
	}

	next, err := r.teams.SetReady(tm.ID, c.UserID, req.Ready)
	if err != nil {
		return Outcome{}, err
	}
	r.publishReady(ctx, tm.State, next)

	var out Outcome
	out.notify(next.MemberIDs(), teamUpdate(next, reasonReadyChanged, c.UserID))
	return out, nil
}
