package stream

import (
	"context"
	"slices"
	"time"

	"github.com/navid-fn/minions/internal/registry"
)

// Factory launches adapters that share one set of collaborators.
type Factory struct {
	Exchange     string
	Buckets      []Bucket
	Grace        time.Duration
	WriteTimeout time.Duration
	Deps         Deps
}

// Launch builds and starts an adapter for symbol.
func (f *Factory) Launch(ctx context.Context, symbol string, intervals []string) (registry.Handle, error) {
	a := NewAdapter(Config{
		Exchange:     f.Exchange,
		Symbol:       symbol,
		Intervals:    slices.Clone(intervals),
		Buckets:      f.Buckets,
		Grace:        f.Grace,
		WriteTimeout: f.WriteTimeout,
	}, f.Deps)

	if err := a.Start(ctx); err != nil {
		return nil, err
	}
	return a, nil
}
