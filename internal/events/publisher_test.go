package events

import (
	"context"
	"encoding/json"
	"testing"

	"arena-relay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "team-events")
	assert.Error(t, err)

	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "team-events")
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestEncode_KeyedByTeam(t *testing.T) {
	team := &models.Team{ID: "team-1", LeaderID: 1, Mode: "2v2", MaxSize: 2, State: models.TeamReady}
	ev := NewTeamEvent(TeamReady, team, 0)

	msg, err := encode(ev)
	require.NoError(t, err)
	assert.Equal(t, []byte("team-1"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "team.ready", string(msg.Headers[0].Value))

	var decoded TeamEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, TeamReady, decoded.Type)
	assert.Equal(t, "team-1", decoded.TeamID)
	require.NotNil(t, decoded.Team)
	assert.Equal(t, models.TeamReady, decoded.Team.State)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), TeamEvent{Type: TeamCreated, TeamID: "x"}))
	assert.NoError(t, p.Close())
}
