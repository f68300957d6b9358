package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReaderConfig selects the topic and consumer group.
type ReaderConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewReader builds a group reader with manual commits; readers sharing a
// GroupID compete for partitions.
func NewReader(cfg ReaderConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0, // commits are explicit, see Ack
		StartOffset:    kafka.FirstOffset,
	})
}

// Delivery is one fetched message awaiting Ack.
type Delivery struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64

	msg kafka.Message
}

// Consumer fetches and acknowledges deliveries.
type Consumer struct {
	reader Reader
}

// NewConsumer wraps a reader.
func NewConsumer(reader Reader) *Consumer {
	return &Consumer{reader: reader}
}

// Fetch blocks until a message arrives or ctx is done.
func (c *Consumer) Fetch(ctx context.Context) (Delivery, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return Delivery{}, err
	}
	return Delivery{
		Key:       m.Key,
		Value:     m.Value,
		Partition: m.Partition,
		Offset:    m.Offset,
		msg:       m,
	}, nil
}

// Ack commits the delivery's offset.
func (c *Consumer) Ack(ctx context.Context, d Delivery) error {
	if err := c.reader.CommitMessages(ctx, d.msg); err != nil {
		return fmt.Errorf("commit offset %d/%d: %w", d.Partition, d.Offset, err)
	}
	return nil
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Ping dials the first reachable broker, used to fail fast at startup.
func Ping(ctx context.Context, brokers []string) error {
	var lastErr error
	for _, b := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no brokers configured")
	}
	return fmt.Errorf("kafka unreachable: %w", lastErr)
}
