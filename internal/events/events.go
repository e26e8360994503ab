package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/novaangola/apiserver/internal/mq"
)

// Event types.
const (
	TypeRiskAreaCreated   = "risk_area.created"
	TypeRiskAreaConfirmed = "risk_area.confirmed"
)

// AttrType is the message attribute carrying the event type.
const AttrType = "type"

// Event is a domain event emitted after a write commits.
type Event struct {
	Type       string    `json:"type"`
	RiskAreaID string    `json:"riskAreaId"`
	UserID     string    `json:"userId,omitempty"`
	Categoria  string    `json:"categoria,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher encodes events and sends them on a single channel.
// A nil *Publisher discards events.
type Publisher struct {
	queue   *mq.MQ
	channel string
}

// NewPublisher returns nil when queue is nil so callers can always hold a
// *Publisher.
func NewPublisher(queue *mq.MQ, channel string) *Publisher {
	if queue == nil {
		return nil
	}
	return &Publisher{queue: queue, channel: channel}
}

// Publish sends the event and returns the broker message id.
func (p *Publisher) Publish(ctx context.Context, event Event) (string, error) {
	if p == nil {
		return "", nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	return p.queue.Publish(ctx, p.channel, data, map[string]string{
		AttrType:           event.Type,
		mq.AttrContentType: "application/json",
		mq.AttrOrderingKey: event.RiskAreaID,
	})
}

// Decode parses an event received from the queue.
func Decode(msg mq.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return Event{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	if event.Type == "" {
		event.Type = msg.Attributes[AttrType]
	}
	return event, nil
}
