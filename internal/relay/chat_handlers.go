package relay

import (
	"context"

	"arena-relay/internal/models"
	"arena-relay/pkg/apperror"
	"arena-relay/pkg/logger"
)

const sendAttempts = 2

func (r *Router) teamMembership(teamID string, userID int) (*models.Team, error) {
	tm, ok := r.teams.Get(teamID)
	if !ok {
		return nil, apperror.ErrTeamNotFound
	}
	if !tm.HasMember(userID) {
		return nil, apperror.ErrNotOnTeam
	}
	return tm, nil
}

// persist stores the draft, retrying once when the failure is not the
// sender's fault.
func (r *Router) persist(ctx context.Context, draft *models.MessageDraft) (*models.Message, error) {
	var lastErr error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		msg, err := r.store.Send(ctx, draft)
		if err == nil {
			return msg, nil
		}
		if apperror.IsDomain(err) {
			return nil, err
		}
		lastErr = err
		logger.Warn("Persisting message from user %d failed (attempt %d/%d): %v", draft.SenderID, attempt, sendAttempts, err)
	}
	return nil, apperror.WithCause(apperror.ErrDeliveryFailed, lastErr)
}

func (r *Router) handleChatSend(ctx context.Context, c Caller, env models.Envelope) (Outcome, error) {
	var req models.ChatSendRequest
	if err := decode(env, &req); err != nil {
		return Outcome{}, err
	}
	sender, err := r.session(c.UserID)
	if err != nil {
		return Outcome{}, err
	}

	draft := &models.MessageDraft{
		SenderID:     c.UserID,
		SenderName:   sender.Username,
		SenderAvatar: sender.AvatarURL,
		Content:      req.Content,
		Channel:      req.Channel,
	}

	var recipients []int
	event := models.EventPrivateMessage
	switch req.Channel {
	case models.ChannelPrivate:
		if req.ReceiverID <= 0 || req.TeamID != "" {
			return Outcome{}, apperror.ErrInvalidChannelSelector
		}
		if !r.presence.IsOnline(req.ReceiverID) {
			return Outcome{}, apperror.ErrRecipientOffline
		}
		receiver := req.ReceiverID
		draft.ReceiverID = &receiver
		recipients = []int{receiver}
	case models.ChannelTeam:
		if req.TeamID == "" || req.ReceiverID != 0 {
			return Outcome{}, apperror.ErrInvalidChannelSelector
		}
		tm, err := r.teamMembership(req.TeamID, c.UserID)
		if err != nil {
			return Outcome{}, err
		}
		teamID := tm.ID
		draft.TeamID = &teamID
		recipients = without(tm.MemberIDs(), c.UserID)
		event = models.EventTeamMessage
	default:
		return Outcome{}, apperror.ErrInvalidChannelSelector
	}

	msg, err := r.persist(ctx, draft)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	out.Reply, err = reply(models.EventChatSent, msg)
	if err != nil {
		return Outcome{}, err
	}
	out.notify(recipients, mustEnvelope(event, msg))
	return out, nil
}

func (r *Router) handleChatHistory(ctx context.Context, c Caller, env models.Envelope) (Outcome, error) {
	var req models.ChatHistoryRequest
	if err := decode(env, &req); err != nil {
		return Outcome{}, err
	}

	var sel models.ChannelSelector
	switch req.Channel {
	case models.ChannelPrivate:
		if req.PeerID <= 0 {
			return Outcome{}, apperror.ErrInvalidChannelSelector
		}
		sel = models.PrivateChannel(c.UserID, req.PeerID)
	case models.ChannelTeam:
		if req.TeamID == "" {
			return Outcome{}, apperror.ErrInvalidChannelSelector
		}
		if _, err := r.teamMembership(req.TeamID, c.UserID); err != nil {
			return Outcome{}, err
		}
		sel = models.TeamChannel(req.TeamID)
	default:
		return Outcome{}, apperror.ErrInvalidChannelSelector
	}

	msgs, err := r.store.History(ctx, sel, req.Limit)
	if err != nil {
		return Outcome{}, err
	}
	rep, err := reply(models.EventChatHistoryResp, models.ChatHistoryResponse{
		Channel:  req.Channel,
		PeerID:   req.PeerID,
		TeamID:   req.TeamID,
		Messages: msgs,
	})
	return Outcome{Reply: rep}, err
}

// handleChatMarkRead acknowledges a message. The sender, if online, gets the
// same chat_read envelope as a read receipt.
func (r *Router) handleChatMarkRead(ctx context.Context, c Caller, env models.Envelope) (Outcome, error) {
	var req models.ChatMarkReadRequest
	if err := decode(env, &req); err != nil {
		return Outcome{}, err
	}
	if req.MessageID <= 0 {
		return Outcome{}, apperror.InvalidInput("message_id is required")
	}

	msg, err := r.store.Message(ctx, req.MessageID)
	if err != nil {
		return Outcome{}, err
	}
	if msg.Channel == models.ChannelTeam {
		if msg.TeamID == nil {
			return Outcome{}, apperror.ErrMessageNotFound
		}
		if _, err := r.teamMembership(*msg.TeamID, c.UserID); err != nil {
			return Outcome{}, apperror.ErrMessageNotFound
		}
	}

	read, err := r.store.MarkRead(ctx, req.MessageID, c.UserID)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	out.Reply, err = reply(models.EventChatRead, read)
	if err != nil {
		return Outcome{}, err
	}
	if read.SenderID != c.UserID {
		out.notify([]int{read.SenderID}, mustEnvelope(models.EventChatRead, read))
	}
	return out, nil
}
