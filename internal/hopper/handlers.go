package hopper

import (
	"context"
	"fmt"
	"math"

	"github.com/navid-fn/minions/internal/queue"
	"github.com/navid-fn/minions/internal/storage"
)

// Handler turns one envelope into sink writes.
type Handler interface {
	Handle(ctx context.Context, env queue.Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env queue.Envelope) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, env queue.Envelope) error {
	return f(ctx, env)
}

// PointWriter is the sink side of a handler.
type PointWriter interface {
	WritePoints(ctx context.Context, points []storage.Point) error
}

// SinkHandlers returns the handler table writing every event type to sink.
func SinkHandlers(sink PointWriter) map[queue.EventType]Handler {
	return map[queue.EventType]Handler{
		queue.EventTrade: HandlerFunc(func(ctx context.Context, env queue.Envelope) error {
			t, err := env.Trade()
			if err != nil {
				return err
			}
			if err := validNumbers(t.Price, t.Quantity); err != nil {
				return fmt.Errorf("trade %d: %w", t.TradeID, err)
			}
			return sink.WritePoints(ctx, []storage.Point{storage.TradePoint(t)})
		}),
		queue.EventKline: HandlerFunc(func(ctx context.Context, env queue.Envelope) error {
			k, err := env.Kline()
			if err != nil {
				return err
			}
			if err := validNumbers(k.Open, k.High, k.Low, k.Close, k.Volume); err != nil {
				return fmt.Errorf("kline %s@%d: %w", k.Interval, k.OpenTime, err)
			}
			return sink.WritePoints(ctx, []storage.Point{storage.KlinePoint(k)})
		}),
	}
}

func validNumbers(values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("corrupted numeric data")
		}
		if v < 0 {
			return fmt.Errorf("negative value %v", v)
		}
	}
	return nil
}
