// Package team holds the in-memory registry of matchmaking teams.
//
// Each team has its own mutex; a registry-wide mutex guards the team map, the
// user->team index and nothing else. Whenever both are needed the team mutex
// is taken first.
package team

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"arena-relay/internal/models"
	"arena-relay/pkg/apperror"

	"github.com/google/uuid"
)

const MinSize = 2

type Config struct {
	MaxSize   int
	InviteTTL time.Duration
}

type entry struct {
	mu   sync.Mutex
	team *models.Team
}

type Registry struct {
	cfg Config
	now func() time.Time

	mu       sync.RWMutex
	teams    map[string]*entry
	memberOf map[int]string

	invMu   sync.Mutex
	invites map[string]*models.Invite
}

// LeaveResult describes the roster after a member left.
type LeaveResult struct {
	Team       *models.Team
	Disbanded  bool
	PromotedID int
}

func NewRegistry(cfg Config) *Registry {
	if cfg.MaxSize < MinSize {
		cfg.MaxSize = 5
	}
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = 2 * time.Minute
	}
	return &Registry{
		cfg:      cfg,
		now:      time.Now,
		teams:    make(map[string]*entry),
		memberOf: make(map[int]string),
		invites:  make(map[string]*models.Invite),
	}
}

// SetClock overrides the time source, for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// SizeForMode parses the team size from modes such as "3v3".
func SizeForMode(mode string) (int, bool) {
	left, right, ok := strings.Cut(strings.ToLower(strings.TrimSpace(mode)), "v")
	if !ok || left != right {
		return 0, false
	}
	n, err := strconv.Atoi(left)
	if err != nil {
		return 0, false
	}
	return n, true
}

// resolveSize derives the team size from the mode. An explicit maxSize is
// accepted only when it agrees with the mode.
func (r *Registry) resolveSize(mode string, maxSize int) (int, error) {
	modeSize, ok := SizeForMode(mode)
	if !ok {
		return 0, apperror.Newf(apperror.KindInvalidInput, "unsupported mode %q", mode)
	}
	if maxSize != 0 && maxSize != modeSize {
		return 0, apperror.Newf(apperror.KindInvalidInput, "max_size %d does not match mode %s", maxSize, mode)
	}
	if modeSize < MinSize || modeSize > r.cfg.MaxSize {
		return 0, apperror.Newf(apperror.KindInvalidInput, "team size must be between %d and %d", MinSize, r.cfg.MaxSize)
	}
	return modeSize, nil
}

// Create forms a new team with leader as its only member.
func (r *Registry) Create(leader models.TeamMember, mode string, maxSize int) (*models.Team, error) {
	size, err := r.resolveSize(mode, maxSize)
	if err != nil {
		return nil, err
	}

	now := r.now()
	leader.Ready = false
	leader.JoinedAt = now
	t := &models.Team{
		ID:        uuid.NewString(),
		LeaderID:  leader.UserID,
		Mode:      strings.ToLower(strings.TrimSpace(mode)),
		MaxSize:   size,
		Members:   []models.TeamMember{leader},
		CreatedAt: now,
	}
	t.State = t.ComputeState()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.memberOf[leader.UserID]; ok {
		return nil, apperror.ErrAlreadyOnTeam
	}
	r.teams[t.ID] = &entry{team: t}
	r.memberOf[leader.UserID] = t.ID
	return t.Clone(), nil
}

// lock returns the locked entry for teamID. Callers must unlock it.
func (r *Registry) lock(teamID string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.teams[teamID]
	r.mu.RUnlock()
	if !ok {
		return nil, apperror.ErrTeamNotFound
	}
	e.mu.Lock()
	if e.team.State == models.TeamDisbanded {
		e.mu.Unlock()
		return nil, apperror.ErrTeamNotFound
	}
	return e, nil
}

func (r *Registry) Get(teamID string) (*models.Team, bool) {
	e, err := r.lock(teamID)
	if err != nil {
		return nil, false
	}
	defer e.mu.Unlock()
	return e.team.Clone(), true
}

// TeamOf returns the team the user currently belongs to.
func (r *Registry) TeamOf(userID int) (*models.Team, bool) {
	r.mu.RLock()
	teamID, ok := r.memberOf[userID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	t, ok := r.Get(teamID)
	if !ok || !t.HasMember(userID) {
		return nil, false
	}
	return t, true
}

func (r *Registry) onTeam(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.memberOf[userID]
	return ok
}

// Invite issues a single-use token for inviteeID. Any member may invite.
func (r *Registry) Invite(teamID string, inviterID, inviteeID int) (*models.Invite, error) {
	if inviterID == inviteeID {
		return nil, apperror.InvalidInput("cannot invite yourself")
	}

	e, err := r.lock(teamID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if !e.team.HasMember(inviterID) {
		return nil, apperror.ErrNotOnTeam
	}
	if len(e.team.Members) >= e.team.MaxSize {
		return nil, apperror.ErrTeamFull
	}
	if r.onTeam(inviteeID) {
		return nil, apperror.ErrAlreadyOnTeam
	}

	inv := &models.Invite{
		Token:     uuid.NewString(),
		TeamID:    teamID,
		InviterID: inviterID,
		InviteeID: inviteeID,
		ExpiresAt: r.now().Add(r.cfg.InviteTTL),
	}
	r.invMu.Lock()
	r.invites[inv.Token] = inv
	r.invMu.Unlock()

	out := *inv
	return &out, nil
}

func (r *Registry) lookupInvite(token string, inviteeID int) (models.Invite, error) {
	r.invMu.Lock()
	defer r.invMu.Unlock()

	inv, ok := r.invites[token]
	if !ok {
		return models.Invite{}, apperror.ErrInviteNotFound
	}
	if inv.InviteeID != inviteeID {
		return models.Invite{}, apperror.ErrInviteNotForYou
	}
	if inv.ConsumedAt != nil {
		return models.Invite{}, apperror.ErrInviteConsumed
	}
	if !r.now().Before(inv.ExpiresAt) {
		return models.Invite{}, apperror.ErrInviteExpired
	}
	return *inv, nil
}

// Accept joins invitee to the invite's team. Capacity and membership are
// re-validated under the team lock; on any failure the roster is untouched and
// the invite stays unconsumed.
func (r *Registry) Accept(token string, invitee models.TeamMember) (*models.Team, error) {
	inv, err := r.lookupInvite(token, invitee.UserID)
	if err != nil {
		return nil, err
	}

	e, err := r.lock(inv.TeamID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if len(e.team.Members) >= e.team.MaxSize {
		return nil, apperror.ErrTeamFull
	}

	// Consume before claiming membership so two accepts of one token cannot both win.
	r.invMu.Lock()
	stored, ok := r.invites[token]
	if !ok || stored.ConsumedAt != nil {
		r.invMu.Unlock()
		return nil, apperror.ErrInviteConsumed
	}
	now := r.now()
	if !now.Before(stored.ExpiresAt) {
		r.invMu.Unlock()
		return nil, apperror.ErrInviteExpired
	}
	stored.ConsumedAt = &now
	r.invMu.Unlock()

	r.mu.Lock()
	if _, taken := r.memberOf[invitee.UserID]; taken {
		r.mu.Unlock()
		r.invMu.Lock()
		stored.ConsumedAt = nil
		r.invMu.Unlock()
		return nil, apperror.ErrAlreadyOnTeam
	}
	r.memberOf[invitee.UserID] = inv.TeamID
	r.mu.Unlock()

	invitee.Ready = false
	invitee.JoinedAt = now
	e.team.Members = append(e.team.Members, invitee)
	e.team.State = e.team.ComputeState()
	return e.team.Clone(), nil
}

func (r *Registry) SetReady(teamID string, userID int, ready bool) (*models.Team, error) {
	e, err := r.lock(teamID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	found := false
	for i := range e.team.Members {
		if e.team.Members[i].UserID == userID {
			e.team.Members[i].Ready = ready
			found = true
			break
		}
	}
	if !found {
		return nil, apperror.ErrNotOnTeam
	}
	e.team.State = e.team.ComputeState()
	return e.team.Clone(), nil
}

// removeLocked drops userID from the locked team, promoting the
// longest-tenured remaining member if the leader left and disbanding when no
// one is left.
func (r *Registry) removeLocked(e *entry, userID int) (LeaveResult, error) {
	t := e.team
	idx := -1
	for i, m := range t.Members {
		if m.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return LeaveResult{}, apperror.ErrNotOnTeam
	}
	t.Members = append(t.Members[:idx], t.Members[idx+1:]...)

	r.mu.Lock()
	delete(r.memberOf, userID)
	if len(t.Members) == 0 {
		delete(r.teams, t.ID)
	}
	r.mu.Unlock()

	res := LeaveResult{}
	if len(t.Members) == 0 {
		t.State = models.TeamDisbanded
		res.Disbanded = true
		res.Team = t.Clone()
		return res, nil
	}
	if t.LeaderID == userID {
		t.LeaderID = t.Members[0].UserID
		res.PromotedID = t.LeaderID
	}
	t.State = t.ComputeState()
	res.Team = t.Clone()
	return res, nil
}

func (r *Registry) Leave(teamID string, userID int) (LeaveResult, error) {
	e, err := r.lock(teamID)
	if err != nil {
		return LeaveResult{}, err
	}
	defer e.mu.Unlock()
	return r.removeLocked(e, userID)
}

// Kick removes targetID from the team. Only the leader may kick, and not themself.
func (r *Registry) Kick(teamID string, leaderID, targetID int) (*models.Team, error) {
	e, err := r.lock(teamID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if e.team.LeaderID != leaderID {
		return nil, apperror.ErrNotLeader
	}
	if leaderID == targetID {
		return nil, apperror.InvalidInput("use team_leave to leave your own team")
	}
	res, err := r.removeLocked(e, targetID)
	if err != nil {
		return nil, err
	}
	return res.Team, nil
}

// Disband ends the team. The returned snapshot carries the final roster so
// callers can notify everyone who was on it.
func (r *Registry) Disband(teamID string, requesterID int) (*models.Team, error) {
	e, err := r.lock(teamID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if e.team.LeaderID != requesterID {
		return nil, apperror.ErrNotLeader
	}

	final := e.team.Clone()
	final.State = models.TeamDisbanded

	r.mu.Lock()
	for _, m := range e.team.Members {
		delete(r.memberOf, m.UserID)
	}
	delete(r.teams, teamID)
	r.mu.Unlock()

	e.team.State = models.TeamDisbanded
	return final, nil
}

// PruneInvites forgets invites that are consumed or expired.
func (r *Registry) PruneInvites() int {
	now := r.now()
	r.invMu.Lock()
	defer r.invMu.Unlock()
	n := 0
	for token, inv := range r.invites {
		if inv.ConsumedAt != nil || !now.Before(inv.ExpiresAt) {
			delete(r.invites, token)
			n++
		}
	}
	return n
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.teams)
}
