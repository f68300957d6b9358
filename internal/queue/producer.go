package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/minions/internal/models"
)

const (
	writeTimeout = 5 * time.Second

	// HeaderError carries the last handler error on dead-lettered records.
	HeaderError = "x-error"
)

// Writer is the subset of *kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// WriterConfig selects fire-and-forget or acknowledged writes.
type WriterConfig struct {
	Brokers []string
	Topic   string

	// Async returns from WriteMessages immediately; delivery errors are only logged.
	Async bool
}

// NewWriter builds a Kafka writer keyed by symbol so each symbol keeps its
// partition and its order.
func NewWriter(cfg WriterConfig, logger *logrus.Entry) *kafka.Writer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		Async:                  cfg.Async,
		Compression:            kafka.Zstd,
		AllowAutoTopicCreation: true,
	}
	if cfg.Async {
		w.Completion = func(messages []kafka.Message, err error) {
			if err != nil {
				logger.WithError(err).WithField("count", len(messages)).Error("Kafka delivery failed")
			}
		}
	}
	return w
}

// Producer publishes envelopes to one topic.
type Producer struct {
	writer Writer
}

// NewProducer wraps a writer.
func NewProducer(writer Writer) *Producer {
	return &Producer{writer: writer}
}

// PublishTrade publishes a trade record keyed by symbol.
func (p *Producer) PublishTrade(ctx context.Context, t models.TradeRecord) error {
	env, err := NewEnvelope(EventTrade, t)
	if err != nil {
		return err
	}
	return p.Publish(ctx, []byte(t.Symbol), env)
}

// PublishKline publishes a kline record keyed by symbol.
func (p *Producer) PublishKline(ctx context.Context, k models.KlineRecord) error {
	env, err := NewEnvelope(EventKline, k)
	if err != nil {
		return err
	}
	return p.Publish(ctx, []byte(k.Symbol), env)
}

// Publish writes one envelope.
func (p *Producer) Publish(ctx context.Context, key []byte, env Envelope, headers ...kafka.Header) error {
	value, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err = p.writer.WriteMessages(writeCtx, kafka.Message{Key: key, Value: value, Headers: headers})
	if err != nil {
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

// Redeliver publishes the next attempt of env.
func (p *Producer) Redeliver(ctx context.Context, key []byte, env Envelope) error {
	return p.Publish(ctx, key, env.Retry())
}

// DeadLetter publishes env with the error that exhausted it.
func (p *Producer) DeadLetter(ctx context.Context, key []byte, env Envelope, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return p.Publish(ctx, key, env, kafka.Header{Key: HeaderError, Value: []byte(reason)})
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
