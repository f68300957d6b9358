package hopper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/minions/internal/models"
	"github.com/navid-fn/minions/internal/queue"
	"github.com/navid-fn/minions/internal/storage"
)

type fakeSink struct {
	points []storage.Point
	err    error
}

func (f *fakeSink) WritePoints(_ context.Context, points []storage.Point) error {
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, points...)
	return nil
}

func envelope(t *testing.T, eventType queue.EventType, payload any) queue.Envelope {
	t.Helper()
	env, err := queue.NewEnvelope(eventType, payload)
	require.NoError(t, err)
	return env
}

func TestSinkHandlersWritePoints(t *testing.T) {
	sink := &fakeSink{}
	handlers := SinkHandlers(sink)
	ctx := context.Background()

	require.NoError(t, handlers[queue.EventTrade].Handle(ctx, envelope(t, queue.EventTrade, models.TradeRecord{Exchange: "binance", Symbol: "BTCUSDT", Price: 1, Quantity: 2, TradeTime: 1000})))
	require.NoError(t, handlers[queue.EventKline].Handle(ctx, envelope(t, queue.EventKline, models.KlineRecord{Exchange: "binance", Symbol: "BTCUSDT", Interval: "1h", CloseTime: 2000})))

	require.Len(t, sink.points, 2)
	assert.Equal(t, storage.MeasurementTrade, sink.points[0].Measurement)
	assert.Equal(t, storage.MeasurementKline, sink.points[1].Measurement)
	assert.Equal(t, "1h", sink.points[1].Tags["interval"])
}

func TestSinkHandlersFailures(t *testing.T) {
	boom := errors.New("clickhouse down")
	handlers := SinkHandlers(&fakeSink{err: boom})
	ctx := context.Background()

	err := handlers[queue.EventTrade].Handle(ctx, envelope(t, queue.EventTrade, models.TradeRecord{Price: 1}))
	assert.ErrorIs(t, err, boom)

	err = SinkHandlers(&fakeSink{})[queue.EventTrade].Handle(ctx, envelope(t, queue.EventTrade, models.TradeRecord{Price: -1}))
	assert.Error(t, err)

	err = handlers[queue.EventKline].Handle(ctx, envelope(t, queue.EventTrade, models.TradeRecord{Price: 1}))
	assert.ErrorIs(t, err, queue.ErrMalformed, "a trade payload is not a kline")
}
