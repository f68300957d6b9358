package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Extremum is the published form of one bucket's high or low.
type Extremum struct {
	Interval string  `json:"interval"`
	Price    float64 `json:"price"`
	Time     int64   `json:"time"`
}

// BucketExtrema pairs the high and low of one bucket.
type BucketExtrema struct {
	Bucket string    `json:"bucket"`
	High   *Extremum `json:"high,omitempty"`
	Low    *Extremum `json:"low,omitempty"`
}

// Extrema publishes per-bucket highs and lows as plain keys.
type Extrema struct {
	client redis.UniversalClient
}

// NewExtrema creates an extrema store on the given client.
func NewExtrema(client redis.UniversalClient) *Extrema {
	return &Extrema{client: client}
}

// Set writes high and low of one bucket together.
func (e *Extrema) Set(ctx context.Context, exchange, symbol, bucket string, high, low float64, at int64) error {
	highRaw, err := json.Marshal(Extremum{Interval: bucket, Price: high, Time: at})
	if err != nil {
		return fmt.Errorf("encode high: %w", err)
	}
	lowRaw, err := json.Marshal(Extremum{Interval: bucket, Price: low, Time: at})
	if err != nil {
		return fmt.Errorf("encode low: %w", err)
	}

	_, err = e.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, HighKey(bucket, symbol, exchange), highRaw, 0)
		pipe.Set(ctx, LowKey(bucket, symbol, exchange), lowRaw, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set extrema %s/%s: %w", symbol, bucket, err)
	}
	return nil
}

// Load reads the published extrema of the given buckets. Buckets that were
// never published are skipped.
func (e *Extrema) Load(ctx context.Context, exchange, symbol string, buckets []string) ([]BucketExtrema, error) {
	if len(buckets) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, 2*len(buckets))
	for _, b := range buckets {
		keys = append(keys, HighKey(b, symbol, exchange), LowKey(b, symbol, exchange))
	}

	values, err := e.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load extrema %s: %w", symbol, err)
	}

	var out []BucketExtrema
	for i, b := range buckets {
		item := BucketExtrema{Bucket: b}
		item.High = decodeExtremum(values[2*i])
		item.Low = decodeExtremum(values[2*i+1])
		if item.High != nil || item.Low != nil {
			out = append(out, item)
		}
	}
	return out, nil
}

func decodeExtremum(v any) *Extremum {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	var ext Extremum
	if err := json.Unmarshal([]byte(s), &ext); err != nil {
		return nil
	}
	return &ext
}
