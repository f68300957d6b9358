package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/minions/internal/models"
)

func TestTradePoint(t *testing.T) {
	p := TradePoint(models.TradeRecord{
		Exchange: "binance", Symbol: "BTCUSDT", TradeID: 99,
		Price: 37000.5, Quantity: 0.25, TradeTime: 1700000000123, IsBuyerMaker: true,
	})

	assert.Equal(t, MeasurementTrade, p.Measurement)
	assert.Equal(t, map[string]string{
		"exchange": "binance", "symbol": "BTCUSDT", "type": "trade", "source": "minions",
		"trade_id": "99", "is_buyer_maker": "true",
	}, p.Tags)
	assert.Equal(t, 37000.5, p.Fields["price"])
	assert.Equal(t, int64(1700000000123), p.Time.UnixMilli())
}

func TestKlinePointUsesCloseTime(t *testing.T) {
	p := KlinePoint(models.KlineRecord{
		Exchange: "binance", Symbol: "ETHUSDT", Interval: "4h",
		OpenTime: 1000, CloseTime: 2000, High: 3, Low: 1, Trades: 12,
	})

	assert.Equal(t, "4h", p.Tags["interval"])
	assert.Equal(t, "kline", p.Tags["type"])
	assert.Equal(t, 12.0, p.Fields["trades"])
	assert.Equal(t, int64(2000), p.Time.UnixMilli())
}

func TestTableRowOrder(t *testing.T) {
	tbl := tables[MeasurementTrade]
	assert.Equal(t,
		"INSERT INTO trade (exchange, symbol, type, source, trade_id, is_buyer_maker, price, quantity, event_time)",
		tbl.insertSQL(),
	)

	at := time.UnixMilli(5).UTC()
	row := tbl.row(Point{
		Measurement: MeasurementTrade,
		Tags:        map[string]string{"exchange": "binance", "symbol": "BTCUSDT"},
		Fields:      map[string]float64{"price": 2},
		Time:        at,
	})
	assert.Equal(t, []any{"binance", "BTCUSDT", "", "", "", "", 2.0, 0.0, at}, row)
}

func TestGroupByMeasurement(t *testing.T) {
	points := []Point{
		{Measurement: MeasurementKline},
		{Measurement: MeasurementTrade},
		{Measurement: MeasurementKline},
	}
	order, groups, err := groupByMeasurement(points)
	require.NoError(t, err)
	assert.Equal(t, []string{MeasurementKline, MeasurementTrade}, order)
	assert.Len(t, groups[MeasurementKline], 2)

	_, _, err = groupByMeasurement([]Point{{Measurement: "depth"}})
	assert.ErrorIs(t, err, ErrUnknownMeasurement)
}

func TestWritePointsRejectsUnknownBeforeConnecting(t *testing.T) {
	s := &clickhouseSink{}
	err := s.WritePoints(context.Background(), []Point{{Measurement: "depth"}})
	assert.ErrorIs(t, err, ErrUnknownMeasurement)
	assert.NoError(t, s.WritePoints(context.Background(), nil))
}

type fakeBatch struct {
	driver.Batch
	rows [][]any
	sent bool
}

func (b *fakeBatch) Append(v ...any) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Send() error {
	b.sent = true
	return nil
}

type fakeConn struct {
	driver.Conn

	mu      sync.Mutex
	ctxs    []context.Context
	queries []string
	batches []*fakeBatch
}

func (c *fakeConn) PrepareBatch(ctx context.Context, query string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := &fakeBatch{}
	c.ctxs = append(c.ctxs, ctx)
	c.queries = append(c.queries, query)
	c.batches = append(c.batches, b)
	return b, nil
}

func TestWritePointsUsesAsyncInsert(t *testing.T) {
	assert.Equal(t, 1, asyncInsert["async_insert"])
	assert.Equal(t, 1, asyncInsert["wait_for_async_insert"])

	conn := &fakeConn{}
	s := &clickhouseSink{conn: conn}
	parent := context.Background()

	points := []Point{
		TradePoint(models.TradeRecord{Exchange: "binance", Symbol: "BTCUSDT", Price: 1, TradeTime: 1000}),
		KlinePoint(models.KlineRecord{Exchange: "binance", Symbol: "BTCUSDT", Interval: "1h", CloseTime: 2000}),
		TradePoint(models.TradeRecord{Exchange: "binance", Symbol: "BTCUSDT", Price: 2, TradeTime: 1001}),
	}
	require.NoError(t, s.WritePoints(parent, points))

	require.Len(t, conn.batches, 2, "one batch per measurement")
	assert.Equal(t, tables[MeasurementTrade].insertSQL(), conn.queries[0])
	assert.Len(t, conn.batches[0].rows, 2)
	assert.Len(t, conn.batches[1].rows, 1)
	for i, b := range conn.batches {
		assert.True(t, b.sent)
		assert.NotEqual(t, parent, conn.ctxs[i], "insert must carry the async settings context")
	}
}
