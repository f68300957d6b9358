// Package orchestrator keeps the set of streamed symbols in line with the
// commands and rankings arriving on the Control Channel.
//
// The Watch Registry is the only place membership is decided: a subscribe
// must win Reserve before an adapter is launched and an unsubscribe must win
// BeginRemove before the adapter is stopped, so concurrent commands and
// reconciliations can never double-subscribe or double-unsubscribe a symbol.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/navid-fn/minions/internal/control"
	"github.com/navid-fn/minions/internal/registry"
)

const persistTimeout = 5 * time.Second

var (
	ErrStopped     = errors.New("orchestrator: stopped")
	ErrBusy        = errors.New("orchestrator: symbol is starting or stopping")
	ErrEmptySymbol = errors.New("orchestrator: empty symbol")
	ErrNoIntervals = errors.New("orchestrator: no intervals")
)

// Launcher starts a stream adapter for one symbol.
type Launcher interface {
	Launch(ctx context.Context, symbol string, intervals []string) (registry.Handle, error)
}

// Replier answers list_watch commands.
type Replier interface {
	PublishJSON(ctx context.Context, v any) error
}

// SettingsStore persists the default interval set.
type SettingsStore interface {
	List(ctx context.Context, key string) ([]string, error)
	Replace(ctx context.Context, key string, items ...string) error
}

// Config holds the exchange this orchestrator serves and its default
// kline intervals.
type Config struct {
	Exchange     string
	Intervals    []string
	IntervalsKey string
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Registry *registry.Registry
	Launcher Launcher
	Replier  Replier
	Settings SettingsStore
	Logger   *logrus.Entry
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	reg    *registry.Registry
	logger *logrus.Entry

	mu        sync.RWMutex
	intervals []string

	stopped atomic.Bool
}

// New builds an orchestrator over an existing registry.
func New(cfg Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		deps:      deps,
		reg:       deps.Registry,
		logger:    deps.Logger,
		intervals: cleanList(cfg.Intervals, false),
	}
}

// Intervals returns the kline intervals used for new subscriptions.
func (o *Orchestrator) Intervals() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.intervals)
}

// List returns the active watches.
func (o *Orchestrator) List() []registry.WatchedSymbol {
	return o.reg.Snapshot()
}

// Subscribe starts streaming symbol. It is a no-op returning the existing
// watch when symbol is already streamed. Nil intervals select the defaults.
func (o *Orchestrator) Subscribe(ctx context.Context, symbol string, intervals []string) (registry.WatchedSymbol, error) {
	symbol = normalize(symbol)
	if symbol == "" {
		return registry.WatchedSymbol{}, ErrEmptySymbol
	}
	if o.stopped.Load() {
		return registry.WatchedSymbol{}, ErrStopped
	}
	if intervals == nil {
		intervals = o.Intervals()
	}

	if !o.reg.Reserve(symbol) {
		if w, ok := o.reg.Get(symbol); ok {
			return w, nil
		}
		return registry.WatchedSymbol{}, fmt.Errorf("%w: %s", ErrBusy, symbol)
	}

	handle, err := o.deps.Launcher.Launch(ctx, symbol, intervals)
	if err != nil {
		o.reg.Release(symbol)
		return registry.WatchedSymbol{}, fmt.Errorf("launch %s: %w", symbol, err)
	}

	w, err := o.reg.Commit(ctx, symbol, intervals, handle)
	if err != nil {
		o.logger.WithError(err).WithField("symbol", symbol).Warn("Watch is live but was not persisted")
	}

	go o.watch(symbol, handle)
	if o.stopped.Load() {
		// lost a race with Shutdown
		handle.Stop()
	}

	o.logger.WithFields(logrus.Fields{"symbol": symbol, "intervals": intervals}).Info("Subscribed")
	return w, nil
}

// Unsubscribe stops the adapter for symbol and waits for it to drain. It
// reports whether a watch was removed; an absent symbol is a no-op.
func (o *Orchestrator) Unsubscribe(ctx context.Context, symbol string) (bool, error) {
	symbol = normalize(symbol)
	w, ok := o.reg.BeginRemove(symbol)
	if !ok {
		return false, nil
	}

	// Done is bounded by the adapter's drain grace
	w.Adapter.Stop()
	<-w.Adapter.Done()

	if err := o.reg.FinishRemove(ctx, symbol); err != nil {
		return true, err
	}
	o.logger.WithField("symbol", symbol).Info("Unsubscribed")
	return true, nil
}

// watch evicts the registry entry of an adapter that exits on its own.
func (o *Orchestrator) watch(symbol string, h registry.Handle) {
	<-h.Done()

	if o.stopped.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	removed, err := o.reg.Evict(ctx, symbol, h)
	if !removed {
		return
	}
	logger := o.logger.WithField("symbol", symbol)
	if cause := h.Err(); cause != nil {
		logger = logger.WithField("cause", cause.Error())
	}
	if err != nil {
		logger.WithError(err).Warn("Adapter exited, removal not persisted")
		return
	}
	logger.Warn("Adapter exited, watch removed")
}

// Result describes one reconciliation.
type Result struct {
	Added   []string
	Removed []string
	Failed  map[string]error
	Watches []registry.WatchedSymbol
}

// Reconcile applies the minimal subscribe/unsubscribe delta to reach target.
// The delta comes from a single registry snapshot; every operation runs
// concurrently and a failed symbol never aborts its siblings.
func (o *Orchestrator) Reconcile(ctx context.Context, target []string) Result {
	toAdd, toRemove := Diff(o.reg.Symbols(), target)

	var (
		mu  sync.Mutex
		res = Result{Failed: make(map[string]error)}
		g   errgroup.Group
	)
	record := func(symbol string, list *[]string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Failed[symbol] = err
			return
		}
		*list = append(*list, symbol)
	}

	for _, symbol := range toAdd {
		g.Go(func() error {
			_, err := o.Subscribe(ctx, symbol, nil)
			record(symbol, &res.Added, err)
			return nil
		})
	}
	for _, symbol := range toRemove {
		g.Go(func() error {
			_, err := o.Unsubscribe(ctx, symbol)
			record(symbol, &res.Removed, err)
			return nil
		})
	}
	_ = g.Wait()

	for symbol, err := range res.Failed {
		o.logger.WithError(err).WithField("symbol", symbol).Error("Reconcile failed for symbol")
	}
	res.Watches = o.reg.Snapshot()

	o.logger.WithFields(logrus.Fields{
		"added":   len(res.Added),
		"removed": len(res.Removed),
		"failed":  len(res.Failed),
		"watches": len(res.Watches),
	}).Info("Reconciled watches")
	return res
}

// Diff returns target minus current and current minus target. Target is
// normalized and deduplicated; both results keep input order.
func Diff(current, target []string) (toAdd, toRemove []string) {
	want := cleanList(target, true)
	wanted := make(map[string]struct{}, len(want))
	for _, s := range want {
		wanted[s] = struct{}{}
	}
	have := make(map[string]struct{}, len(current))
	for _, s := range current {
		have[s] = struct{}{}
	}

	for _, s := range want {
		if _, ok := have[s]; !ok {
			toAdd = append(toAdd, s)
		}
	}
	for _, s := range current {
		if _, ok := wanted[s]; !ok {
			toRemove = append(toRemove, s)
		}
	}
	return toAdd, toRemove
}

// SetIntervals replaces the default intervals and persists them.
func (o *Orchestrator) SetIntervals(ctx context.Context, intervals []string) error {
	intervals = cleanList(intervals, false)
	if len(intervals) == 0 {
		return ErrNoIntervals
	}

	o.mu.Lock()
	o.intervals = intervals
	o.mu.Unlock()

	o.logger.WithField("intervals", intervals).Info("Default intervals updated")
	if o.deps.Settings == nil {
		return nil
	}
	return o.deps.Settings.Replace(ctx, o.cfg.IntervalsKey, intervals...)
}

// Restore loads persisted intervals and reconciles to the persisted watch
// list. Run it once before consuming control messages.
func (o *Orchestrator) Restore(ctx context.Context) (Result, error) {
	if o.deps.Settings != nil {
		stored, err := o.deps.Settings.List(ctx, o.cfg.IntervalsKey)
		if err != nil {
			o.logger.WithError(err).Warn("Failed to load persisted intervals")
		} else if stored = cleanList(stored, false); len(stored) > 0 {
			o.mu.Lock()
			o.intervals = stored
			o.mu.Unlock()
		}
	}

	persisted, err := o.reg.Persisted(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := o.reg.ClearPersisted(ctx, persisted); err != nil {
		return Result{}, err
	}

	o.logger.WithField("symbols", persisted).Info("Restoring watches")
	return o.Reconcile(ctx, persisted), nil
}

// Run reads raw control messages until ctx is done or messages closes.
// Messages are handled one at a time.
func (o *Orchestrator) Run(ctx context.Context, messages <-chan []byte) error {
	o.logger.Info("Orchestrator listening for control messages")
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-messages:
			if !ok {
				return nil
			}
			p, err := control.Decode(raw)
			if err != nil {
				o.logger.WithError(err).Warn("Dropping control message")
				continue
			}
			o.Dispatch(ctx, p)
		}
	}
}

// Dispatch handles one decoded control message.
func (o *Orchestrator) Dispatch(ctx context.Context, p control.Payload) {
	switch m := p.(type) {
	case control.Command:
		o.command(ctx, m)
	case control.TopSymbols:
		o.Reconcile(ctx, m.Symbols)
	case control.Intervals:
		if err := o.SetIntervals(ctx, m.Intervals); err != nil {
			o.logger.WithError(err).Warn("Intervals update failed")
		}
	default:
		o.logger.WithField("payload", fmt.Sprintf("%T", p)).Warn("Unhandled control payload")
	}
}

func (o *Orchestrator) command(ctx context.Context, cmd control.Command) {
	logger := o.logger.WithFields(logrus.Fields{"command": cmd.Command, "symbol": cmd.Symbol})
	if !strings.EqualFold(cmd.Exchange, o.cfg.Exchange) {
		logger.WithField("exchange", cmd.Exchange).Debug("Ignoring command for another exchange")
		return
	}

	switch cmd.Command {
	case control.AddWatch:
		if _, err := o.Subscribe(ctx, cmd.Symbol, nil); err != nil {
			logger.WithError(err).Error("add_watch failed")
		}
	case control.DelWatch:
		if _, err := o.Unsubscribe(ctx, cmd.Symbol); err != nil {
			logger.WithError(err).Error("del_watch failed")
		}
	case control.ListWatch:
		if o.deps.Replier == nil {
			return
		}
		if err := o.deps.Replier.PublishJSON(ctx, o.reg.Symbols()); err != nil {
			logger.WithError(err).Error("list_watch reply failed")
		}
	default:
		logger.Warn("Unknown command")
	}
}

// Shutdown stops every adapter concurrently and waits for them to drain or
// for ctx to expire. The persisted watch list is left intact so a restart
// restores it.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if o.stopped.Swap(true) {
		return nil
	}

	watches := o.reg.Snapshot()
	o.logger.WithField("watches", len(watches)).Info("Stopping adapters")

	var g errgroup.Group
	for _, w := range watches {
		g.Go(func() error {
			if _, ok := o.reg.BeginRemove(w.Symbol); !ok {
				return nil
			}
			w.Adapter.Stop()
			select {
			case <-w.Adapter.Done():
				return nil
			case <-ctx.Done():
				return fmt.Errorf("stop %s: %w", w.Symbol, ctx.Err())
			}
		})
	}
	return g.Wait()
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// cleanList trims, drops empties and duplicates, optionally upper-casing.
func cleanList(items []string, upper bool) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if upper {
			s = strings.ToUpper(s)
		}
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
