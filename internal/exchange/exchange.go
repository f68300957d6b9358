// Package exchange defines what the pipeline needs from an exchange: a typed
// event stream per symbol and a 24h ticker snapshot for ranking.
package exchange

import (
	"context"

	"github.com/navid-fn/minions/internal/models"
)

// EventType discriminates stream events.
type EventType string

const (
	EventTrade EventType = "trade"
	EventKline EventType = "kline"
)

// Event is one typed stream event. Only the field matching Type is set.
type Event struct {
	Type  EventType
	Trade models.TradeRecord
	Kline models.KlineRecord
}

// Stream is one live subscription. Events is closed when the transport ends;
// Err then reports why (nil after Close).
type Stream interface {
	Events() <-chan Event
	Err() error
	Close() error
}

// Exchange is the connectivity collaborator.
type Exchange interface {
	Name() string
	Subscribe(ctx context.Context, symbol string, intervals []string) (Stream, error)
	Ticker24h(ctx context.Context) ([]models.Ticker, error)
}
