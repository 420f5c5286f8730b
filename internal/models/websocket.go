package models

import (
	"encoding/json"
	"time"
)

type EventType string

// Inbound events
const (
	EventGetDetails   EventType = "get_details"
	EventUpdateStatus EventType = "update_status"
	EventTeamCreate   EventType = "team_create"
	EventTeamInvite   EventType = "team_invite"
	EventTeamAccept   EventType = "team_accept"
	EventTeamLeave    EventType = "team_leave"
	EventTeamDisband  EventType = "team_disband"
	EventTeamKick     EventType = "team_kick"
	EventTeamSetReady EventType = "team_set_ready"
	EventChatSend     EventType = "chat_send"
	EventChatHistory  EventType = "chat_history"
	EventChatMarkRead EventType = "chat_mark_read"
	EventUserLogout   EventType = "user_logout"
)

// Outbound events
const (
	EventDetailResp         EventType = "detail_resp"
	EventStatusUpdate       EventType = "status_update"
	EventTeamUpdate         EventType = "team_update"
	EventTeamInviteReceived EventType = "team_invite_received"
	EventTeamInviteSent     EventType = "team_invite_sent"
	EventPrivateMessage     EventType = "private_message"
	EventTeamMessage        EventType = "team_message"
	EventChatSent           EventType = "chat_sent"
	EventChatHistoryResp    EventType = "chat_history_resp"
	EventChatRead           EventType = "chat_read"
	EventLogoutConfirmed    EventType = "logout_confirmed"
	EventError              EventType = "error"
)

// Envelope is the single frame format in both directions.
type Envelope struct {
	Type      EventType       `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(t EventType, data any) (Envelope, error) {
	env := Envelope{Type: t}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = raw
	return env, nil
}

// Decode unmarshals the envelope payload into v. An empty payload leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Inbound payloads

type UpdateStatusRequest struct {
	Status   Status   `json:"status"`
	Activity Activity `json:"activity,omitempty"`
}

type TeamCreateRequest struct {
	Mode    string `json:"mode"`
	MaxSize int    `json:"max_size,omitempty"`
}

type TeamInviteRequest struct {
	UserID int `json:"user_id"`
}

type TeamAcceptRequest struct {
	Token string `json:"token"`
}

type TeamKickRequest struct {
	UserID int `json:"user_id"`
}

type TeamSetReadyRequest struct {
	Ready bool `json:"ready"`
}

type ChatSendRequest struct {
	Channel    ChannelKind `json:"channel"`
	ReceiverID int         `json:"receiver_id,omitempty"`
	TeamID     string      `json:"team_id,omitempty"`
	Content    string      `json:"content"`
}

type ChatHistoryRequest struct {
	Channel ChannelKind `json:"channel"`
	PeerID  int         `json:"peer_id,omitempty"`
	TeamID  string      `json:"team_id,omitempty"`
	Limit   int         `json:"limit,omitempty"`
}

type ChatMarkReadRequest struct {
	MessageID int64 `json:"message_id"`
}

// Outbound payloads

type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type StatusUpdate struct {
	UserID   int       `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Status   Status    `json:"status"`
	Activity Activity  `json:"activity,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

type FriendStatus struct {
	UserID    int      `json:"user_id"`
	Username  string   `json:"username"`
	AvatarURL string   `json:"avatar_url,omitempty"`
	Status    Status   `json:"status"`
	Activity  Activity `json:"activity,omitempty"`
}

type DetailResponse struct {
	Profile  Profile        `json:"profile"`
	Status   Status         `json:"status"`
	Activity Activity       `json:"activity"`
	Team     *Team          `json:"team,omitempty"`
	Friends  []FriendStatus `json:"friends"`
}

type TeamUpdate struct {
	Team      *Team  `json:"team,omitempty"`
	TeamID    string `json:"team_id"`
	Reason    string `json:"reason"`
	UserID    int    `json:"user_id,omitempty"`
	Disbanded bool   `json:"disbanded,omitempty"`
	Left      bool   `json:"left,omitempty"`
}

type TeamInviteNotice struct {
	Token       string    `json:"token"`
	TeamID      string    `json:"team_id"`
	Mode        string    `json:"mode"`
	InviterID   int       `json:"inviter_id"`
	InviterName string    `json:"inviter_name"`
	InviteeID   int       `json:"invitee_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type ChatHistoryResponse struct {
	Channel  ChannelKind `json:"channel"`
	PeerID   int         `json:"peer_id,omitempty"`
	TeamID   string      `json:"team_id,omitempty"`
	Messages []*Message  `json:"messages"`
}

type LogoutConfirmed struct {
	UserID   int       `json:"user_id"`
	LastSeen time.Time `json:"last_seen"`
}
