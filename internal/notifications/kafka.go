package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kjannette/trahn-swap/internal/models"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes terminal swap events as JSON, keyed by wallet so a
// wallet's events stay ordered within a partition.
type KafkaPublisher struct {
	writer  MessageWriter
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return NewKafkaPublisherWithWriter(w)
}

func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, timeout: 5 * time.Second}
}

// Publish writes ev and returns the write error.
func (p *KafkaPublisher) Publish(ctx context.Context, ev models.SwapEvent) error {
	value, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("marshal swap event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Wallet),
		Value: value,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "state", Value: []byte(ev.State)},
			{Key: "chain_id", Value: []byte(strconv.FormatInt(ev.ChainID, 10))},
		},
	})
}

// SwapFinished publishes ev, logging failures.
func (p *KafkaPublisher) SwapFinished(ctx context.Context, ev models.SwapEvent) {
	if err := p.Publish(ctx, ev); err != nil {
		fmt.Printf("[KAFKA] Failed to publish attempt %d: %v\n", ev.AttemptID, err)
	}
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }
