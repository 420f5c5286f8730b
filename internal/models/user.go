package models

import "time"

type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

type Activity string

const (
	ActivityAvailable Activity = "available"
	ActivityInGame    Activity = "in-game"
)

// Valid reports whether s may be set on a live session. Offline is implied by
// the absence of a session and cannot be set explicitly.
func (s Status) Valid() bool {
	return s == StatusOnline || s == StatusAway
}

func (a Activity) Valid() bool {
	return a == ActivityAvailable || a == ActivityInGame
}

// Profile is the slice of the platform user record this service reads.
type Profile struct {
	ID        int        `json:"id"`
	Username  string     `json:"username"`
	Tag       string     `json:"tag"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Rank      int        `json:"rank"`
	IsBanned  bool       `json:"-"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}
