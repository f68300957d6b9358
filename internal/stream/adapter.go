// Package stream runs one adapter per watched symbol: it owns the exchange
// subscription, tracks price extrema and fans records out to the ingestion
// queue and the Recency Store.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/minions/internal/exchange"
	"github.com/navid-fn/minions/internal/models"
	"github.com/navid-fn/minions/internal/store"
)

const (
	DefaultGrace        = 6 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

var ErrAlreadyStarted = errors.New("stream: adapter already started")

// State is the adapter lifecycle: Starting -> Streaming -> Draining -> Stopped.
// A stream that fails on its own goes from Streaming straight to Stopped.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateStreaming
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Subscriber opens exchange streams.
type Subscriber interface {
	Subscribe(ctx context.Context, symbol string, intervals []string) (exchange.Stream, error)
}

// Publisher writes records to the ingestion queue.
type Publisher interface {
	PublishTrade(ctx context.Context, t models.TradeRecord) error
	PublishKline(ctx context.Context, k models.KlineRecord) error
}

// RecencyStore inserts a scored entry and prunes the key's window atomically.
type RecencyStore interface {
	Insert(ctx context.Context, key string, score int64, member []byte) error
}

// ExtremaStore publishes a bucket's high and low.
type ExtremaStore interface {
	Set(ctx context.Context, exchange, symbol, bucket string, high, low float64, at int64) error
}

// Config describes one adapter.
type Config struct {
	Exchange     string
	Symbol       string
	Intervals    []string
	Buckets      []Bucket
	Grace        time.Duration
	WriteTimeout time.Duration
}

// Deps are the collaborators shared by every adapter.
type Deps struct {
	Source    Subscriber
	Publisher Publisher
	Recency   RecencyStore
	Extrema   ExtremaStore
	Logger    *logrus.Entry
}

// Adapter streams one symbol.
type Adapter struct {
	cfg     Config
	deps    Deps
	logger  *logrus.Entry
	tracker *Tracker

	state    atomic.Int32
	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// NewAdapter builds an idle adapter; call Start to open the stream.
func NewAdapter(cfg Config, deps Deps) *Adapter {
	if cfg.Buckets == nil {
		cfg.Buckets = DefaultBuckets
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	return &Adapter{
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger.WithField("symbol", cfg.Symbol),
		tracker: NewTracker(cfg.Buckets),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start opens the exchange subscription and begins streaming in the
// background. A failed subscription leaves the adapter Stopped with Done closed.
func (a *Adapter) Start(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	a.setState(StateStarting)
	a.tracker.Reset()

	s, err := a.deps.Source.Subscribe(ctx, a.cfg.Symbol, a.cfg.Intervals)
	if err != nil {
		err = fmt.Errorf("subscribe %s: %w", a.cfg.Symbol, err)
		a.setErr(err)
		a.setState(StateStopped)
		close(a.done)
		return err
	}

	a.setState(StateStreaming)
	a.logger.WithField("intervals", a.cfg.Intervals).Info("Adapter streaming")

	// writes must survive the caller's cancellation; Stop is the only way out
	go a.run(context.WithoutCancel(ctx), s)
	return nil
}

// Stop asks the adapter to drain. It does not block; wait on Done.
func (a *Adapter) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// Done is closed once the adapter reaches Stopped.
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}

// Err reports why the stream ended on its own; nil after a requested stop.
func (a *Adapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// State returns the current lifecycle state.
func (a *Adapter) State() State {
	return State(a.state.Load())
}

// Symbol returns the streamed symbol.
func (a *Adapter) Symbol() string {
	return a.cfg.Symbol
}

// Extremum exposes the tracker for a bucket or kline interval label.
func (a *Adapter) Extremum(label string) (Extremum, bool) {
	return a.tracker.Get(label)
}

func (a *Adapter) setState(s State) {
	a.state.Store(int32(s))
}

func (a *Adapter) setErr(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

func (a *Adapter) run(ctx context.Context, s exchange.Stream) {
	defer close(a.done)

	halt := make(chan struct{})
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		a.consume(ctx, s, halt)
	}()

	select {
	case <-a.stop:
		a.setState(StateDraining)
		close(halt)

		grace := time.NewTimer(a.cfg.Grace)
		defer grace.Stop()
		select {
		case <-consumed:
		case <-grace.C:
			a.logger.WithField("grace", a.cfg.Grace).Warn("Drain grace elapsed, force closing stream")
		}

	case <-consumed:
		if err := s.Err(); err != nil {
			a.setErr(err)
			a.logger.WithError(err).Error("Stream failed")
		} else {
			a.setErr(errors.New("stream ended"))
			a.logger.Warn("Stream ended")
		}
	}

	if err := s.Close(); err != nil {
		a.logger.WithError(err).Debug("Stream close")
	}
	a.setState(StateStopped)
	a.logger.Info("Adapter stopped")
}

func (a *Adapter) consume(ctx context.Context, s exchange.Stream, halt <-chan struct{}) {
	events := s.Events()
	for {
		select {
		case <-halt:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.handle(ctx, ev)
		}
	}
}

func (a *Adapter) handle(ctx context.Context, ev exchange.Event) {
	switch ev.Type {
	case exchange.EventTrade:
		a.onTrade(ctx, ev.Trade)
	case exchange.EventKline:
		a.onKline(ctx, ev.Kline)
	default:
		a.logger.WithField("type", ev.Type).Debug("Ignoring event")
	}
}

func (a *Adapter) onTrade(ctx context.Context, t models.TradeRecord) {
	for _, u := range a.tracker.ObserveTrade(t.TradeTime, t.Price) {
		a.publishExtremum(ctx, u, t.TradeTime)
	}

	a.write(ctx, "publish trade", func(ctx context.Context) error {
		return a.deps.Publisher.PublishTrade(ctx, t)
	})
	a.write(ctx, "recency trade", func(ctx context.Context) error {
		member, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return a.deps.Recency.Insert(ctx, store.TradeKey(a.cfg.Symbol, a.cfg.Exchange), t.TradeTime, member)
	})
}

func (a *Adapter) onKline(ctx context.Context, k models.KlineRecord) {
	a.publishExtremum(ctx, a.tracker.ObserveKline(k.Interval, k.High, k.Low), k.CloseTime)

	a.write(ctx, "publish kline", func(ctx context.Context) error {
		return a.deps.Publisher.PublishKline(ctx, k)
	})
	a.write(ctx, "recency kline", func(ctx context.Context) error {
		member, err := json.Marshal(k)
		if err != nil {
			return err
		}
		return a.deps.Recency.Insert(ctx, store.KlineKey(a.cfg.Symbol, k.Interval, a.cfg.Exchange), k.CloseTime, member)
	})
}

func (a *Adapter) publishExtremum(ctx context.Context, u Update, at int64) {
	if a.deps.Extrema == nil {
		return
	}
	a.write(ctx, "extrema", func(ctx context.Context) error {
		return a.deps.Extrema.Set(ctx, a.cfg.Exchange, a.cfg.Symbol, u.Label, u.High, u.Low, at)
	})
}

// write runs one external write under the per-write timeout; failures are
// logged and the event is not retried.
func (a *Adapter) write(ctx context.Context, what string, fn func(context.Context) error) {
	writeCtx, cancel := context.WithTimeout(ctx, a.cfg.WriteTimeout)
	defer cancel()

	if err := fn(writeCtx); err != nil {
		a.logger.WithError(err).WithField("op", what).Warn("Write failed")
	}
}
