package team

import (
	"sync"
	"testing"
	"time"

	"arena-relay/internal/models"
	"arena-relay/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(id int, name string) models.TeamMember {
	return models.TeamMember{UserID: id, Username: name}
}

func newTestRegistry(t *testing.T) (*Registry, *time.Time) {
	t.Helper()
	now := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	r := NewRegistry(Config{MaxSize: 5, InviteTTL: 2 * time.Minute})
	r.SetClock(func() time.Time { return now })
	return r, &now
}

func invite(t *testing.T, r *Registry, teamID string, from, to int) string {
	t.Helper()
	inv, err := r.Invite(teamID, from, to)
	require.NoError(t, err)
	return inv.Token
}

func TestSizeForMode(t *testing.T) {
	tests := []struct {
		mode string
		size int
		ok   bool
	}{
		{"3v3", 3, true},
		{" 5V5 ", 5, true},
		{"2v3", 0, false},
		{"solo", 0, false},
		{"xvx", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			size, ok := SizeForMode(tt.mode)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.size, size)
		})
	}
}

func TestCreate(t *testing.T) {
	r, _ := newTestRegistry(t)

	team, err := r.Create(member(1, "alice"), "3v3", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, team.LeaderID)
	assert.Equal(t, 3, team.MaxSize)
	assert.Equal(t, models.TeamForming, team.State)
	assert.Equal(t, []int{1}, team.MemberIDs())

	got, ok := r.TeamOf(1)
	require.True(t, ok)
	assert.Equal(t, team.ID, got.ID)

	_, err = r.Create(member(1, "alice"), "2v2", 0)
	assert.ErrorIs(t, err, apperror.ErrAlreadyOnTeam)
}

func TestCreate_InvalidSize(t *testing.T) {
	r, _ := newTestRegistry(t)

	for _, tc := range []struct {
		name    string
		mode    string
		maxSize int
	}{
		{"unknown mode", "battle-royale", 0},
		{"too large", "6v6", 0},
		{"explicit too small", "3v3", 1},
		{"explicit size disagrees with mode", "3v3", 5},
		{"one a side", "1v1", 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Create(member(1, "alice"), tc.mode, tc.maxSize)
			assert.Equal(t, apperror.KindInvalidInput, apperror.KindOf(err))
		})
	}
	assert.Equal(t, 0, r.Count())

	team, err := r.Create(member(1, "alice"), "3v3", 3)
	require.NoError(t, err, "a matching explicit size is accepted")
	assert.Equal(t, 3, team.MaxSize)
}

func TestThreeVersusThreeReadyFlow(t *testing.T) {
	r, _ := newTestRegistry(t)
	team, err := r.Create(member(1, "alice"), "3v3", 0)
	require.NoError(t, err)

	team, err = r.Accept(invite(t, r, team.ID, 1, 2), member(2, "bob"))
	require.NoError(t, err)
	assert.Equal(t, models.TeamAssembling, team.State)

	team, err = r.Accept(invite(t, r, team.ID, 2, 3), member(3, "carol"))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, team.MemberIDs())
	assert.Equal(t, models.TeamAssembling, team.State, "full but nobody ready")

	for _, id := range []int{1, 2} {
		team, err = r.SetReady(team.ID, id, true)
		require.NoError(t, err)
		assert.Equal(t, models.TeamAssembling, team.State)
	}
	team, err = r.SetReady(team.ID, 3, true)
	require.NoError(t, err)
	assert.Equal(t, models.TeamReady, team.State)

	team, err = r.SetReady(team.ID, 2, false)
	require.NoError(t, err)
	assert.Equal(t, models.TeamAssembling, team.State)
}

func TestInvite_Errors(t *testing.T) {
	r, _ := newTestRegistry(t)
	team, err := r.Create(member(1, "alice"), "2v2", 0)
	require.NoError(t, err)
	other, err := r.Create(member(9, "zed"), "2v2", 0)
	require.NoError(t, err)

	_, err = r.Invite(team.ID, 1, 1)
	assert.Equal(t, apperror.KindInvalidInput, apperror.KindOf(err))

	_, err = r.Invite(team.ID, 5, 2)
	assert.ErrorIs(t, err, apperror.ErrNotOnTeam)

	_, err = r.Invite(team.ID, 1, 9)
	assert.ErrorIs(t, err, apperror.ErrAlreadyOnTeam)

	_, err = r.Invite("missing", 1, 2)
	assert.ErrorIs(t, err, apperror.ErrTeamNotFound)

	_, err = r.Accept(invite(t, r, team.ID, 1, 2), member(2, "bob"))
	require.NoError(t, err)
	_, err = r.Invite(team.ID, 1, 3)
	assert.ErrorIs(t, err, apperror.ErrTeamFull)

	assert.NotEqual(t, team.ID, other.ID)
}

func TestAccept_TeamFullLeavesRosterUnchanged(t *testing.T) {
	r, _ := newTestRegistry(t)
	team, err := r.Create(member(1, "alice"), "2v2", 0)
	require.NoError(t, err)

	first := invite(t, r, team.ID, 1, 2)
	second := invite(t, r, team.ID, 1, 3)

	_, err = r.Accept(first, member(2, "bob"))
	require.NoError(t, err)

	_, err = r.Accept(second, member(3, "carol"))
	assert.ErrorIs(t, err, apperror.ErrTeamFull)

	got, ok := r.Get(team.ID)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, got.MemberIDs())
	_, onTeam := r.TeamOf(3)
	assert.False(t, onTeam)
}

func TestAccept_TokenRules(t *testing.T) {
	r, now := newTestRegistry(t)
	team, err := r.Create(member(1, "alice"), "4v4", 0)
	require.NoError(t, err)

	_, err = r.Accept("nope", member(2, "bob"))
	assert.ErrorIs(t, err, apperror.ErrInviteNotFound)

	token := invite(t, r, team.ID, 1, 2)
	_, err = r.Accept(token, member(3, "carol"))
	assert.ErrorIs(t, err, apperror.ErrInviteNotForYou)

	_, err = r.Accept(token, member(2, "bob"))
	require.NoError(t, err)
	_, err = r.Accept(token, member(2, "bob"))
	assert.ErrorIs(t, err, apperror.ErrInviteConsumed)

	expiring := invite(t, r, team.ID, 1, 3)
	*now = now.Add(2 * time.Minute)
	_, err = r.Accept(expiring, member(3, "carol"))
	assert.ErrorIs(t, err, apperror.ErrInviteExpired)

	got, _ := r.Get(team.ID)
	assert.Equal(t, []int{1, 2}, got.MemberIDs())
}

func TestAccept_ConcurrentLastSlot(t *testing.T) {
	r, _ := newTestRegistry(t)
	team, err := r.Create(member(1, "alice"), "2v2", 0)
	require.NoError(t, err)

	const contenders = 8
	tokens := make([]string, contenders)
	for i := range tokens {
		tokens[i] = invite(t, r, team.ID, 1, 100+i)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.Accept(tokens[i], member(100+i, "p")); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, apperror.ErrTeamFull)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	got, _ := r.Get(team.ID)
	assert.Len(t, got.Members, 2)
}

func TestLeave_PromotesLongestTenured(t *testing.T) {
	r, _ := newTestRegistry(t)
	team, err := r.Create(member(1, "alice"), "3v3", 0)
	require.NoError(t, err)
	_, err = r.Accept(invite(t, r, team.ID, 1, 2), member(2, "bob"))
	require.NoError(t, err)
	_, err = r.Accept(invite(t, r, team.ID, 1, 3), member(3, "carol"))
	require.NoError(t, err)

	res, err := r.Leave(team.ID, 1)
	require.NoError(t, err)
	assert.False(t, res.Disbanded)
	assert.Equal(t, 2, res.PromotedID)
	assert.Equal(t, 2, res.Team.LeaderID)
	assert.Equal(t, []int{2, 3}, res.Team.MemberIDs())

	_, onTeam := r.TeamOf(1)
	assert.False(t, onTeam)
}

func TestLeave_LastMemberDisbands(t *testing.T) {
	r, _ := newTestRegistry(t)
	team, err := r.Create(member(1, "alice"), "2v2", 0)
	require.NoError(t, err)

	res, err := r.Leave(team.ID, 1)
	require.NoError(t, err)
	assert.True(t, res.Disbanded)
	assert.Equal(t, models.TeamDisbanded, res.Team.State)
	assert.Equal(t, 0, r.Count())

	_, ok := r.Get(team.ID)
	assert.False(t, ok)

	_, err = r.Leave(team.ID, 1)
	assert.ErrorIs(t, err, apperror.ErrTeamNotFound)
}

func TestKick(t *testing.T) {
	r, _ := newTestRegistry(t)
	team, err := r.Create(member(1, "alice"), "3v3", 0)
	require.NoError(t, err)
	_, err = r.Accept(invite(t, r, team.ID, 1, 2), member(2, "bob"))
	require.NoError(t, err)

	_, err = r.Kick(team.ID, 2, 1)
	assert.ErrorIs(t, err, apperror.ErrNotLeader)

	_, err = r.Kick(team.ID, 1, 1)
	assert.Equal(t, apperror.KindInvalidInput, apperror.KindOf(err))

	_, err = r.Kick(team.ID, 1, 7)
	assert.ErrorIs(t, err, apperror.ErrNotOnTeam)

	got, err := r.Kick(team.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, got.MemberIDs())
	assert.Equal(t, models.TeamForming, got.State)
}

func TestDisband(t *testing.T) {
	r, _ := newTestRegistry(t)
	team, err := r.Create(member(1, "alice"), "2v2", 0)
	require.NoError(t, err)
	_, err = r.Accept(invite(t, r, team.ID, 1, 2), member(2, "bob"))
	require.NoError(t, err)

	_, err = r.Disband(team.ID, 2)
	assert.ErrorIs(t, err, apperror.ErrNotLeader)

	final, err := r.Disband(team.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.TeamDisbanded, final.State)
	assert.Equal(t, []int{1, 2}, final.MemberIDs())

	for _, id := range []int{1, 2} {
		_, onTeam := r.TeamOf(id)
		assert.False(t, onTeam)
	}

	// Members are free to form a new team.
	_, err = r.Create(member(2, "bob"), "2v2", 0)
	assert.NoError(t, err)
}

func TestPruneInvites(t *testing.T) {
	r, now := newTestRegistry(t)
	team, err := r.Create(member(1, "alice"), "5v5", 0)
	require.NoError(t, err)

	used := invite(t, r, team.ID, 1, 2)
	_, err = r.Accept(used, member(2, "bob"))
	require.NoError(t, err)
	invite(t, r, team.ID, 1, 3)

	assert.Equal(t, 1, r.PruneInvites())

	*now = now.Add(3 * time.Minute)
	assert.Equal(t, 1, r.PruneInvites())
	assert.Equal(t, 0, r.PruneInvites())
}
