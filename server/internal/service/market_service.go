package service

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/navid-fn/minions/internal/store"
	"github.com/navid-fn/minions/internal/stream"
	"github.com/navid-fn/minions/server/internal/repository"
)

type MarketService struct {
	repo      repository.MarketRepository
	exchange  string
	intervals []string
}

func NewMarketService(repo repository.MarketRepository, exchange string, intervals []string) *MarketService {
	return &MarketService{repo: repo, exchange: exchange, intervals: intervals}
}

// GetRecent returns the Recency Store window of trades, or of klines when
// interval is set, oldest first.
func (ms *MarketService) GetRecent(ctx context.Context, symbol, interval string) ([]json.RawMessage, error) {
	symbol = NormalizeSymbol(symbol)
	if !ValidSymbol(symbol) {
		return nil, ErrInvalidSymbol
	}

	key := store.TradeKey(symbol, ms.exchange)
	if interval != "" {
		key = store.KlineKey(symbol, interval, ms.exchange)
	}

	members, err := ms.repo.GetRecent(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, len(members))
	for i, m := range members {
		out[i] = json.RawMessage(m)
	}
	return out, nil
}

// GetExtrema returns the published highs and lows of every trade bucket and
// kline interval.
func (ms *MarketService) GetExtrema(ctx context.Context, symbol string) ([]store.BucketExtrema, error) {
	symbol = NormalizeSymbol(symbol)
	if !ValidSymbol(symbol) {
		return nil, ErrInvalidSymbol
	}

	labels := slices.Concat(stream.Labels(stream.DefaultBuckets), ms.intervals)
	extrema, err := ms.repo.GetExtrema(ctx, ms.exchange, symbol, labels)
	if err != nil {
		return nil, err
	}
	if extrema == nil {
		extrema = []store.BucketExtrema{}
	}
	return extrema, nil
}
