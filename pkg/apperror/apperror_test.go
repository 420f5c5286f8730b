package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"sentinel", ErrTeamFull, KindTeamFull},
		{"wrapped sentinel", fmt.Errorf("invite: %w", ErrAlreadyOnTeam), KindAlreadyOnTeam},
		{"plain error", errors.New("boom"), KindInternal},
		{"nil", nil, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsMatchesOnKind(t *testing.T) {
	err := Wrap(KindTeamFull, "team 42 is full", nil)
	assert.ErrorIs(t, err, ErrTeamFull)
	assert.NotErrorIs(t, err, ErrNotLeader)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrBanned))
	assert.True(t, IsFatal(ErrInvalidToken))
	assert.False(t, IsFatal(ErrTeamFull))
	assert.False(t, IsFatal(errors.New("db down")))
}

func TestPublicMessageHidesCause(t *testing.T) {
	err := Wrap(KindInternal, "could not save", errors.New("pq: connection refused"))
	assert.Equal(t, "could not save", PublicMessage(err))
	assert.Equal(t, "internal error", PublicMessage(errors.New("pq: connection refused")))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWithCauseKeepsSentinelFace(t *testing.T) {
	cause := errors.New("signature is invalid")
	err := WithCause(ErrInvalidToken, cause)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, PublicMessage(ErrInvalidToken), PublicMessage(err))
	assert.True(t, IsFatal(err))
}

func TestDetailf(t *testing.T) {
	err := Detailf(ErrMessageTooLong, "limit is %d characters", 500)

	assert.ErrorIs(t, err, ErrMessageTooLong)
	assert.Equal(t, "message exceeds maximum length: limit is 500 characters", PublicMessage(err))
}
