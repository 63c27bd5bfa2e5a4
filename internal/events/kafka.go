package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes events to a single topic keyed by aggregate.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a publisher for brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// Publish sends the batch in one write call.
func (p *KafkaPublisher) Publish(ctx context.Context, batch []Event) error {
	msgs, err := Messages(batch)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// Messages encodes events as Kafka messages keyed by aggregate so one
// aggregate's events stay on one partition.
func Messages(batch []Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, evt := range batch {
		data, err := json.Marshal(evt)
		if err != nil {
			return nil, fmt.Errorf("events: encode %s: %w", evt.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(evt.AggregateType + ":" + evt.AggregateID),
			Value: data,
			Time:  evt.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event-id", Value: []byte(evt.ID.String())},
				{Key: "event-type", Value: []byte(evt.Type)},
				{Key: "company-id", Value: []byte(strconv.FormatInt(evt.CompanyID, 10))},
			},
		})
	}
	return msgs, nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, []Event) error { return nil }
