package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	"go.uber.org/zap"
)

type Producer interface {
	ProduceMessage(ctx context.Context, topic, key string, message any) error
}

type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Relay shares pushes between storefront instances over a Kafka topic.
// Every instance consumes the topic in its own group, so each one delivers
// every push to its locally connected clients.
type Relay struct {
	producer Producer
	topic    string
	instance string
	hub      *Hub
	logger   *zap.Logger
}

func NewRelay(producer Producer, topic, instance string, hub *Hub, logger *zap.Logger) *Relay {
	return &Relay{
		producer: producer,
		topic:    topic,
		instance: instance,
		hub:      hub,
		logger:   logger,
	}
}

func (r *Relay) Forward(ctx context.Context, channel string, msg Message) error {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	return r.producer.ProduceMessage(ctx, r.topic, channel, relayEnvelope{
		Origin:  r.instance,
		Channel: channel,
		Event:   msg.Event,
		Data:    data,
	})
}

// Handle is the consumer group callback for the relay topic.
func (r *Relay) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var env relayEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		mylogger.Warn(ctx, r.logger, "Skipping malformed relay message",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
			zap.Int32("partition", msg.Partition),
		)
		return nil
	}

	delivered := r.hub.Deliver(env.Channel, Message{Event: env.Event, Data: env.Data})
	mylogger.Debug(ctx, r.logger, "Relayed push delivered",
		zap.String("channel", env.Channel),
		zap.String("event", env.Event),
		zap.String("origin", env.Origin),
		zap.Int("connections", delivered),
	)
	return nil
}

// GroupID is the per-instance consumer group for the relay topic.
func GroupID(prefix, instance string) string {
	return prefix + "-" + instance
}
