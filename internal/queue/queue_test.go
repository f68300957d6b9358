package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/minions/internal/models"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	queue     []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.queue[0]
	r.queue = r.queue[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestEnvelopeTrade(t *testing.T) {
	trade := models.TradeRecord{Exchange: "binance", Symbol: "BTCUSDT", TradeID: 7, Price: 10.5, Quantity: 2, TradeTime: 1000}
	env, err := NewEnvelope(EventTrade, trade)
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)
	assert.Zero(t, env.Attempt)

	raw, err := env.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	got, err := decoded.Trade()
	require.NoError(t, err)
	assert.Equal(t, trade, got)

	_, err = decoded.Kline()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeEnvelopeRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"garbage", `{{`, ErrMalformed},
		{"unknown event", `{"eventType":"depth","payload":{}}`, ErrUnknownEventType},
		{"missing event", `{"payload":{}}`, ErrUnknownEventType},
		{"no payload", `{"eventType":"trade"}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewEnvelopeUnknownType(t *testing.T) {
	_, err := NewEnvelope("depth", struct{}{})
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestProducerKeysBySymbol(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducer(w)
	ctx := context.Background()

	require.NoError(t, p.PublishTrade(ctx, models.TradeRecord{Symbol: "BTCUSDT"}))
	require.NoError(t, p.PublishKline(ctx, models.KlineRecord{Symbol: "ETHUSDT", Interval: "1h"}))

	require.Len(t, w.messages, 2)
	assert.Equal(t, "BTCUSDT", string(w.messages[0].Key))
	assert.Equal(t, "ETHUSDT", string(w.messages[1].Key))

	env, err := DecodeEnvelope(w.messages[1].Value)
	require.NoError(t, err)
	assert.Equal(t, EventKline, env.EventType)
}

func TestProducerRedeliverAndDeadLetter(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducer(w)
	ctx := context.Background()
	env, err := NewEnvelope(EventTrade, models.TradeRecord{Symbol: "BTCUSDT"})
	require.NoError(t, err)

	require.NoError(t, p.Redeliver(ctx, []byte("BTCUSDT"), env))
	require.NoError(t, p.DeadLetter(ctx, []byte("BTCUSDT"), env, errors.New("sink down")))

	retried, err := DecodeEnvelope(w.messages[0].Value)
	require.NoError(t, err)
	assert.Equal(t, 1, retried.Attempt)
	assert.Equal(t, env.ID, retried.ID)

	require.Len(t, w.messages[1].Headers, 1)
	assert.Equal(t, HeaderError, w.messages[1].Headers[0].Key)
	assert.Equal(t, "sink down", string(w.messages[1].Headers[0].Value))
}

func TestProducerWrapsWriteError(t *testing.T) {
	boom := errors.New("broker gone")
	p := NewProducer(&fakeWriter{err: boom})
	err := p.PublishTrade(context.Background(), models.TradeRecord{Symbol: "BTCUSDT"})
	assert.ErrorIs(t, err, boom)
}

func TestConsumerFetchAck(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Key: []byte("BTCUSDT"), Value: []byte(`{}`), Partition: 2, Offset: 41}}}
	c := NewConsumer(r)

	d, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(41), d.Offset)
	assert.Equal(t, 2, d.Partition)

	require.NoError(t, c.Ack(context.Background(), d))
	require.Len(t, r.committed, 1)
	assert.Equal(t, int64(41), r.committed[0].Offset)
}
