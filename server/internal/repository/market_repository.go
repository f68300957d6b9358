package repository

import (
	"context"

	"github.com/navid-fn/minions/internal/store"
)

// MarketRepository reads what the adapters publish to Redis.
type MarketRepository interface {
	GetRecent(ctx context.Context, key string) ([]string, error)
	GetExtrema(ctx context.Context, exchange, symbol string, buckets []string) ([]store.BucketExtrema, error)
}

type redisMarketRepository struct {
	recency *store.Recency
	extrema *store.Extrema
}

func NewRedisMarketRepository(recency *store.Recency, extrema *store.Extrema) MarketRepository {
	return &redisMarketRepository{recency: recency, extrema: extrema}
}

func (r *redisMarketRepository) GetRecent(ctx context.Context, key string) ([]string, error) {
	return r.recency.Window(ctx, key)
}

func (r *redisMarketRepository) GetExtrema(ctx context.Context, exchange, symbol string, buckets []string) ([]store.BucketExtrema, error) {
	return r.extrema.Load(ctx, exchange, symbol, buckets)
}
