package models

import "time"

type TeamState string

const (
	TeamForming    TeamState = "forming"
	TeamAssembling TeamState = "assembling"
	TeamReady      TeamState = "ready"
	TeamDisbanded  TeamState = "disbanded"
)

type Team struct {
	ID        string       `json:"id"`
	LeaderID  int          `json:"leader_id"`
	Mode      string       `json:"mode"`
	MaxSize   int          `json:"max_size"`
	Members   []TeamMember `json:"members"`
	State     TeamState    `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
}

// TeamMember entries are kept in join order; index 0 is the longest-tenured.
type TeamMember struct {
	UserID    int       `json:"user_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Rank      int       `json:"rank"`
	Ready     bool      `json:"ready"`
	JoinedAt  time.Time `json:"joined_at"`
}

func (t *Team) MemberIDs() []int {
	ids := make([]int, len(t.Members))
	for i, m := range t.Members {
		ids[i] = m.UserID
	}
	return ids
}

func (t *Team) HasMember(userID int) bool {
	return t.indexOf(userID) >= 0
}

func (t *Team) indexOf(userID int) int {
	for i, m := range t.Members {
		if m.UserID == userID {
			return i
		}
	}
	return -1
}

// Member returns the roster entry for userID.
func (t *Team) Member(userID int) (TeamMember, bool) {
	if i := t.indexOf(userID); i >= 0 {
		return t.Members[i], true
	}
	return TeamMember{}, false
}

// ComputeState derives the lifecycle state from the roster. Disbanded is
// terminal and never recomputed.
func (t *Team) ComputeState() TeamState {
	if t.State == TeamDisbanded {
		return TeamDisbanded
	}
	switch n := len(t.Members); {
	case n == 0:
		return TeamDisbanded
	case n == 1:
		return TeamForming
	case n < t.MaxSize:
		return TeamAssembling
	}
	for _, m := range t.Members {
		if !m.Ready {
			return TeamAssembling
		}
	}
	return TeamReady
}

// Clone returns a deep copy safe to hand outside the registry lock.
func (t *Team) Clone() *Team {
	c := *t
	c.Members = make([]TeamMember, len(t.Members))
	copy(c.Members, t.Members)
	return &c
}

type Invite struct {
	Token      string     `json:"token"`
	TeamID     string     `json:"team_id"`
	InviterID  int        `json:"inviter_id"`
	InviteeID  int        `json:"invitee_id"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}
