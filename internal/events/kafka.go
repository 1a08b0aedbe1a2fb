package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/xtrntr/otcexchange/internal/metrics"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes trade events to a Kafka topic keyed by buy order id, so
// all fills of one buy order land on the same partition in order.
//
// The writer is asynchronous: Send only enqueues, and delivery failures are
// reported through the completion callback.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a sink writing to topic on brokers
func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) *KafkaSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion:   completion(logger),
	}}
}

func completion(logger *zap.Logger) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		metrics.PublishFailures.WithLabelValues("kafka").Add(float64(len(msgs)))
		logger.Warn("kafka delivery failed", zap.Int("messages", len(msgs)), zap.Error(err))
	}
}

// Name implements Sink
func (k *KafkaSink) Name() string { return "kafka" }

// Send implements Sink
func (k *KafkaSink) Send(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Trade.BuyOrderID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
		Time: ev.Trade.CreatedAt,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write trade %s: %w", ev.Trade.ID, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
