// Package ranking periodically ranks symbols by 24h volume and announces
// changes on the Control Channel.
package ranking

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/minions/internal/control"
	"github.com/navid-fn/minions/internal/models"
)

const (
	MaxTop          = 100
	DefaultInterval = 15 * time.Second
)

// TickerSource answers 24h ticker snapshot queries.
type TickerSource interface {
	Ticker24h(ctx context.Context) ([]models.Ticker, error)
}

// Publisher sends control messages.
type Publisher interface {
	Publish(ctx context.Context, p control.Payload) error
}

// ListStore persists the last published ranking.
type ListStore interface {
	List(ctx context.Context, key string) ([]string, error)
	Replace(ctx context.Context, key string, items ...string) error
}

// TopSymbols keeps symbols ending in quote, sorts them by volume descending
// and returns the first k. Ties are broken by symbol so the order is stable.
func TopSymbols(tickers []models.Ticker, quote string, k int) []string {
	k = min(max(k, 1), MaxTop)
	quote = strings.ToUpper(quote)

	matched := make([]models.Ticker, 0, len(tickers))
	for _, t := range tickers {
		if strings.HasSuffix(strings.ToUpper(t.Symbol), quote) {
			matched = append(matched, t)
		}
	}

	slices.SortFunc(matched, func(a, b models.Ticker) int {
		if c := cmp.Compare(b.Volume, a.Volume); c != 0 {
			return c
		}
		return cmp.Compare(a.Symbol, b.Symbol)
	})

	n := min(k, len(matched))
	out := make([]string, n)
	for i := range n {
		out[i] = strings.ToUpper(matched[i].Symbol)
	}
	return out
}

// Config tunes the loop.
type Config struct {
	Quote    string
	TopCount int
	Interval time.Duration
	Key      string
}

// Loop is the Ranking Loop. It is not safe for concurrent Ticks.
type Loop struct {
	cfg       Config
	source    TickerSource
	publisher Publisher
	store     ListStore
	logger    *logrus.Entry

	last []string
}

// New builds a loop; call Restore to seed the last published ranking.
func New(cfg Config, source TickerSource, publisher Publisher, store ListStore, logger *logrus.Entry) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Loop{
		cfg:       cfg,
		source:    source,
		publisher: publisher,
		store:     store,
		logger:    logger,
	}
}

// Restore loads the last published ranking so an unchanged ranking is not
// republished after a restart.
func (l *Loop) Restore(ctx context.Context) error {
	last, err := l.store.List(ctx, l.cfg.Key)
	if err != nil {
		return fmt.Errorf("load ranking: %w", err)
	}
	l.last = last
	return nil
}

// Last returns the last published ranking.
func (l *Loop) Last() []string {
	return slices.Clone(l.last)
}

// Tick runs one ranking cycle and reports whether a new ranking was
// published. A failed cycle leaves the last ranking untouched so the next
// tick retries.
func (l *Loop) Tick(ctx context.Context) (bool, error) {
	tickers, err := l.source.Ticker24h(ctx)
	if err != nil {
		return false, fmt.Errorf("ticker snapshot: %w", err)
	}

	top := TopSymbols(tickers, l.cfg.Quote, l.cfg.TopCount)
	if len(top) == 0 {
		l.logger.WithField("quote", l.cfg.Quote).Warn("No symbols matched the quote asset, keeping current ranking")
		return false, nil
	}
	if slices.Equal(top, l.last) {
		l.logger.Debug("Ranking unchanged")
		return false, nil
	}

	if err := l.store.Replace(ctx, l.cfg.Key, top...); err != nil {
		return false, fmt.Errorf("persist ranking: %w", err)
	}
	if err := l.publisher.Publish(ctx, control.TopSymbols{Symbols: top}); err != nil {
		return false, fmt.Errorf("publish ranking: %w", err)
	}

	l.last = top
	l.logger.WithField("symbols", top).Info("Published new ranking")
	return true, nil
}

// Run ticks immediately and then every interval until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.WithFields(logrus.Fields{
		"interval": l.cfg.Interval,
		"top":      l.cfg.TopCount,
		"quote":    l.cfg.Quote,
	}).Info("Starting ranking loop")

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := l.Tick(ctx); err != nil {
			l.logger.WithError(err).Error("Ranking cycle failed")
		}
		select {
		case <-ctx.Done():
			l.logger.Info("Ranking loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}
