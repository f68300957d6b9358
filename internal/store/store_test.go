package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "trade:BTCUSDT:binance", TradeKey("BTCUSDT", "binance"))
	assert.Equal(t, "kline:BTCUSDT:1h:binance", KlineKey("BTCUSDT", "1h", "binance"))
	assert.Equal(t, "high:900:BTCUSDT:binance", HighKey("900", "BTCUSDT", "binance"))
	assert.Equal(t, "low:inf:BTCUSDT:binance", LowKey("inf", "BTCUSDT", "binance"))
}

func TestListsPushRemove(t *testing.T) {
	client, _ := newTestClient(t)
	lists := NewLists(client)
	ctx := context.Background()

	require.NoError(t, lists.Push(ctx, "watches", "BTCUSDT", "ETHUSDT", "XRPUSDT"))
	require.NoError(t, lists.Remove(ctx, "watches", "ETHUSDT"))
	require.NoError(t, lists.Push(ctx, "watches"))

	got, err := lists.List(ctx, "watches")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "XRPUSDT"}, got)

	require.NoError(t, lists.Replace(ctx, "watches", "SOLUSDT"))
	got, err = lists.List(ctx, "watches")
	require.NoError(t, err)
	assert.Equal(t, []string{"SOLUSDT"}, got)

	require.NoError(t, lists.Replace(ctx, "watches"))
	got, err = lists.List(ctx, "watches")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecencyPrunesOnInsert(t *testing.T) {
	client, srv := newTestClient(t)
	recency := NewRecency(client, time.Hour)
	now := time.UnixMilli(1_700_000_000_000)
	recency.now = func() time.Time { return now }
	ctx := context.Background()
	key := TradeKey("BTCUSDT", "binance")

	old := now.Add(-2 * time.Hour).UnixMilli()
	edge := now.Add(-time.Hour).UnixMilli()
	fresh := now.Add(-time.Minute).UnixMilli()

	require.NoError(t, recency.Insert(ctx, key, old, []byte(`{"tradeId":1}`)))
	require.NoError(t, recency.Insert(ctx, key, edge, []byte(`{"tradeId":2}`)))
	require.NoError(t, recency.Insert(ctx, key, fresh, []byte(`{"tradeId":3}`)))

	members, err := srv.ZMembers(key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{`{"tradeId":2}`, `{"tradeId":3}`}, members)

	for _, m := range members {
		score, err := srv.ZScore(key, m)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, int64(score), now.Add(-time.Hour).UnixMilli())
	}

	window, err := recency.Window(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"tradeId":2}`, `{"tradeId":3}`}, window)
}

func TestRecencyHorizonIsOneHour(t *testing.T) {
	client, _ := newTestClient(t)

	assert.Equal(t, 3600*time.Second, DefaultHorizon)
	assert.Equal(t, DefaultHorizon, NewRecency(client, DefaultHorizon).horizon)
	assert.Equal(t, DefaultHorizon, NewRecency(client, 0).horizon)
}

func TestExtremaSetLoad(t *testing.T) {
	client, _ := newTestClient(t)
	extrema := NewExtrema(client)
	ctx := context.Background()

	require.NoError(t, extrema.Set(ctx, "binance", "BTCUSDT", "5", 101.5, 99.25, 1000))

	got, err := extrema.Load(ctx, "binance", "BTCUSDT", []string{"5", "10"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "5", got[0].Bucket)
	assert.Equal(t, &Extremum{Interval: "5", Price: 101.5, Time: 1000}, got[0].High)
	assert.Equal(t, &Extremum{Interval: "5", Price: 99.25, Time: 1000}, got[0].Low)
}
