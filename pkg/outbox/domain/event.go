package domain

import (
	"encoding/json"
	"time"
)

// OutboxEvent is an integration event waiting to be relayed to Kafka.
// Payload holds the {event, payload} envelope consumers switch on.
type OutboxEvent struct {
	ID            int64           `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	CreatedAt     time.Time       `db:"created_at"`
	PublishedAt   *time.Time      `db:"published_at"`
	Attempts      int64           `db:"attempts"`
	LastError     *string         `db:"last_error"`
	Topic         string          `db:"topic"`
}

type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func NewOutboxEvent(aggregateType, aggregateID, eventType, topic string, payload any) (*OutboxEvent, error) {
	raw, err := json.Marshal(Envelope{Event: eventType, Payload: payload})
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
		Topic:         topic,
	}, nil
}
