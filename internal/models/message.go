package models

import "time"

type ChannelKind string

const (
	ChannelPrivate ChannelKind = "private"
	ChannelTeam    ChannelKind = "team"
)

type Message struct {
	ID           int64       `json:"id"`
	SenderID     int         `json:"sender_id"`
	SenderName   string      `json:"sender_name"`
	SenderAvatar string      `json:"sender_avatar,omitempty"`
	Content      string      `json:"content"`
	Channel      ChannelKind `json:"channel"`
	ReceiverID   *int        `json:"receiver_id,omitempty"`
	TeamID       *string     `json:"team_id,omitempty"`
	IsRead       bool        `json:"is_read"`
	IsDeleted    bool        `json:"-"`
	DeleteAt     *time.Time  `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
}

// MessageDraft is what a sender supplies; id and timestamps are assigned on
// persistence.
type MessageDraft struct {
	SenderID     int
	SenderName   string
	SenderAvatar string
	Content      string
	Channel      ChannelKind
	ReceiverID   *int
	TeamID       *string
}

// ChannelSelector addresses a chat history: a private pair or a team.
type ChannelSelector struct {
	Kind   ChannelKind
	UserA  int
	UserB  int
	TeamID string
}

func PrivateChannel(a, b int) ChannelSelector {
	return ChannelSelector{Kind: ChannelPrivate, UserA: a, UserB: b}
}

func TeamChannel(teamID string) ChannelSelector {
	return ChannelSelector{Kind: ChannelTeam, TeamID: teamID}
}
