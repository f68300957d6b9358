// Package registry is the authoritative record of which symbols are streamed.
//
// Membership lives in a map keyed by symbol; the ordered list in the backing
// ListStore mirrors it so the watch set survives restarts. A symbol moves
// through pending (adapter starting), active and stopping (adapter draining);
// while it is in any of these states no second adapter can be reserved for it.
package registry

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ListStore persists ordered string lists.
type ListStore interface {
	List(ctx context.Context, key string) ([]string, error)
	Push(ctx context.Context, key string, items ...string) error
	Remove(ctx context.Context, key string, items ...string) error
}

// Handle is the running adapter behind a watch.
type Handle interface {
	Stop()
	Done() <-chan struct{}
	Err() error
}

// WatchedSymbol is one active watch.
type WatchedSymbol struct {
	Symbol    string    `json:"symbol"`
	Intervals []string  `json:"intervals"`
	CreatedAt time.Time `json:"createdAt"`
	Adapter   Handle    `json:"-"`
}

type state int

const (
	statePending state = iota
	stateActive
	stateStopping
)

type entry struct {
	watch WatchedSymbol
	state state
	seq   uint64
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	seq     uint64

	store ListStore
	key   string
	now   func() time.Time
}

// New creates an empty registry persisted under key.
func New(store ListStore, key string) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		store:   store,
		key:     key,
		now:     time.Now,
	}
}

// Reserve claims symbol for a starting adapter. It returns false when the
// symbol is already pending, active or stopping.
func (r *Registry) Reserve(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[symbol]; ok {
		return false
	}
	r.seq++
	r.entries[symbol] = &entry{watch: WatchedSymbol{Symbol: symbol}, state: statePending, seq: r.seq}
	return true
}

// Release drops a reservation whose adapter failed to start.
func (r *Registry) Release(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[symbol]; ok && e.state == statePending {
		delete(r.entries, symbol)
	}
}

// Commit turns a reservation into an active watch and persists it. The
// in-memory entry stays active even when persisting fails.
func (r *Registry) Commit(ctx context.Context, symbol string, intervals []string, adapter Handle) (WatchedSymbol, error) {
	r.mu.Lock()
	e, ok := r.entries[symbol]
	if !ok || e.state != statePending {
		r.mu.Unlock()
		return WatchedSymbol{}, fmt.Errorf("commit %s: no reservation", symbol)
	}
	e.watch = WatchedSymbol{
		Symbol:    symbol,
		Intervals: slices.Clone(intervals),
		CreatedAt: r.now(),
		Adapter:   adapter,
	}
	e.state = stateActive
	watch := e.watch
	r.mu.Unlock()

	if err := r.store.Push(ctx, r.key, symbol); err != nil {
		return watch, fmt.Errorf("persist %s: %w", symbol, err)
	}
	return watch, nil
}

// BeginRemove marks an active watch as stopping and returns it. Only one
// caller can begin removing a given watch.
func (r *Registry) BeginRemove(symbol string) (WatchedSymbol, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[symbol]
	if !ok || e.state != stateActive {
		return WatchedSymbol{}, false
	}
	e.state = stateStopping
	return e.watch, true
}

// FinishRemove deletes a stopping watch and persists the removal.
func (r *Registry) FinishRemove(ctx context.Context, symbol string) error {
	r.mu.Lock()
	e, ok := r.entries[symbol]
	if !ok || e.state != stateStopping {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, symbol)
	r.mu.Unlock()

	return r.unpersist(ctx, symbol)
}

// Evict removes an active watch only if it is still backed by adapter.
// It reports whether anything was removed.
func (r *Registry) Evict(ctx context.Context, symbol string, adapter Handle) (bool, error) {
	r.mu.Lock()
	e, ok := r.entries[symbol]
	if !ok || e.state != stateActive || e.watch.Adapter != adapter {
		r.mu.Unlock()
		return false, nil
	}
	delete(r.entries, symbol)
	r.mu.Unlock()

	return true, r.unpersist(ctx, symbol)
}

func (r *Registry) unpersist(ctx context.Context, symbol string) error {
	if err := r.store.Remove(ctx, r.key, symbol); err != nil {
		return fmt.Errorf("unpersist %s: %w", symbol, err)
	}
	return nil
}

// Contains reports whether symbol has an active watch.
func (r *Registry) Contains(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[symbol]
	return ok && e.state == stateActive
}

// Get returns the active watch for symbol.
func (r *Registry) Get(symbol string) (WatchedSymbol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[symbol]
	if !ok || e.state != stateActive {
		return WatchedSymbol{}, false
	}
	return e.watch, true
}

// Snapshot returns the active watches in the order they were reserved.
func (r *Registry) Snapshot() []WatchedSymbol {
	r.mu.RLock()
	active := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.state == stateActive {
			active = append(active, e)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(active, func(a, b *entry) int { return cmp.Compare(a.seq, b.seq) })

	out := make([]WatchedSymbol, len(active))
	for i, e := range active {
		out[i] = e.watch
		out[i].Intervals = slices.Clone(e.watch.Intervals)
	}
	return out
}

// Symbols returns the active symbols in reservation order.
func (r *Registry) Symbols() []string {
	snapshot := r.Snapshot()
	symbols := make([]string, len(snapshot))
	for i, w := range snapshot {
		symbols[i] = w.Symbol
	}
	return symbols
}

// Len returns the number of active watches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.state == stateActive {
			n++
		}
	}
	return n
}

// Persisted returns the persisted watch list, deduplicated, in stored order.
func (r *Registry) Persisted(ctx context.Context) ([]string, error) {
	items, err := r.store.List(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("load watches: %w", err)
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

// ClearPersisted drops persisted symbols that have no active watch, used
// before restoring the watch set at startup.
func (r *Registry) ClearPersisted(ctx context.Context, symbols []string) error {
	var stale []string
	for _, s := range symbols {
		if !r.Contains(s) {
			stale = append(stale, s)
		}
	}
	if err := r.store.Remove(ctx, r.key, stale...); err != nil {
		return fmt.Errorf("clear watches: %w", err)
	}
	return nil
}
