// Package events publishes team lifecycle events for other platform services.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"arena-relay/internal/models"
	"arena-relay/pkg/logger"

	"github.com/segmentio/kafka-go"
)

type Type string

const (
	TeamCreated      Type = "team.created"
	TeamMemberJoined Type = "team.member.joined"
	TeamMemberLeft   Type = "team.member.left"
	TeamReady        Type = "team.ready"
	TeamDisbanded    Type = "team.disbanded"
)

// TeamEvent is the Kafka message value. The message key is the team id so
// every event for a team lands on one partition, in order.
type TeamEvent struct {
	Type       Type         `json:"type"`
	TeamID     string       `json:"team_id"`
	UserID     int          `json:"user_id,omitempty"`
	Team       *models.Team `json:"team,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

func NewTeamEvent(t Type, team *models.Team, userID int) TeamEvent {
	return TeamEvent{
		Type:       t,
		TeamID:     team.ID,
		UserID:     userID,
		Team:       team,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev TeamEvent) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher writes asynchronously; delivery failures are logged by the
// completion hook rather than surfaced to the websocket caller.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			Async:                  true,
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					logger.Error("Failed to publish %d team events: %v", len(messages), err)
				}
			},
		},
	}, nil
}

func encode(ev TeamEvent) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode %s event: %w", ev.Type, err)
	}
	return kafka.Message{
		Key:   []byte(ev.TeamID),
		Value: payload,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev TeamEvent) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, TeamEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = NopPublisher{}
)
