package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultHorizon is how long recency entries are retained.
const DefaultHorizon = time.Hour

// Recency is a timestamp-scored window per (symbol, metric) key.
// Entries are scored in Unix milliseconds.
type Recency struct {
	client  redis.UniversalClient
	horizon time.Duration
	now     func() time.Time
}

// NewRecency creates a recency store; a non-positive horizon means DefaultHorizon.
func NewRecency(client redis.UniversalClient, horizon time.Duration) *Recency {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Recency{client: client, horizon: horizon, now: time.Now}
}

// Insert adds member at score and prunes everything older than the horizon
// in one MULTI/EXEC so readers never see a half-applied window.
func (r *Recency) Insert(ctx context.Context, key string, score int64, member []byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(r.cutoff(), 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("recency insert %s: %w", key, err)
	}
	return nil
}

// Window returns the members still inside the horizon, oldest first.
func (r *Recency) Window(ctx context.Context, key string) ([]string, error) {
	members, err := r.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(r.cutoff(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("recency window %s: %w", key, err)
	}
	return members, nil
}

func (r *Recency) cutoff() int64 {
	return r.now().Add(-r.horizon).UnixMilli()
}
