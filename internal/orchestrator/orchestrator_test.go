package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/minions/internal/control"
	"github.com/navid-fn/minions/internal/registry"
	"github.com/navid-fn/minions/internal/store"
)

const (
	watchesKey   = "system:config:websockets"
	intervalsKey = "system:config:intervals"
)

type fakeHandle struct {
	done  chan struct{}
	once  sync.Once
	stops atomic.Int32
	err   error
}

func newFakeHandle() *fakeHandle { return &fakeHandle{done: make(chan struct{})} }

func (h *fakeHandle) Stop() {
	h.stops.Add(1)
	h.once.Do(func() { close(h.done) })
}

func (h *fakeHandle) fail(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) Err() error            { return h.err }

type fakeLauncher struct {
	mu      sync.Mutex
	calls   []string
	handles map[string]*fakeHandle
	fail    map[string]error
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{handles: make(map[string]*fakeHandle), fail: make(map[string]error)}
}

func (l *fakeLauncher) Launch(_ context.Context, symbol string, _ []string) (registry.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, symbol)
	if err := l.fail[symbol]; err != nil {
		return nil, err
	}
	h := newFakeHandle()
	l.handles[symbol] = h
	return h, nil
}

func (l *fakeLauncher) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func (l *fakeLauncher) handle(symbol string) *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handles[symbol]
}

type fakeReplier struct {
	mu      sync.Mutex
	replies []any
}

func (r *fakeReplier) PublishJSON(_ context.Context, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, v)
	return nil
}

func (r *fakeReplier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.replies)
}

type fixture struct {
	orch     *Orchestrator
	reg      *registry.Registry
	lists    *store.Lists
	launcher *fakeLauncher
	replier  *fakeReplier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = client.Close() })

	lists := store.NewLists(client)
	reg := registry.New(lists, watchesKey)
	launcher := newFakeLauncher()
	replier := &fakeReplier{}
	logger, _ := test.NewNullLogger()

	orch := New(Config{
		Exchange:     "binance",
		Intervals:    []string{"1h", "4h"},
		IntervalsKey: intervalsKey,
	}, Deps{
		Registry: reg,
		Launcher: launcher,
		Replier:  replier,
		Settings: lists,
		Logger:   logrus.NewEntry(logger),
	})
	return &fixture{orch: orch, reg: reg, lists: lists, launcher: launcher, replier: replier}
}

func (f *fixture) persisted(t *testing.T) []string {
	t.Helper()
	got, err := f.lists.List(context.Background(), watchesKey)
	require.NoError(t, err)
	return got
}

func TestSubscribeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.orch.Subscribe(ctx, "BTCUSDT", nil)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", w.Symbol)
	assert.Equal(t, []string{"1h", "4h"}, w.Intervals)

	_, err = f.orch.Subscribe(ctx, " btcusdt ", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT"}, f.reg.Symbols())
	assert.Equal(t, 1, f.launcher.callCount())
	assert.Equal(t, []string{"BTCUSDT"}, f.persisted(t))
}

func TestConcurrentSubscribeLaunchesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.orch.Subscribe(ctx, "ETHUSDT", nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.launcher.callCount())
	assert.Equal(t, 1, f.reg.Len())
}

func TestSubscribeLaunchFailureReleases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.launcher.fail["BTCUSDT"] = errors.New("dial refused")

	_, err := f.orch.Subscribe(ctx, "BTCUSDT", nil)
	require.Error(t, err)
	assert.False(t, f.reg.Contains("BTCUSDT"))

	delete(f.launcher.fail, "BTCUSDT")
	_, err = f.orch.Subscribe(ctx, "BTCUSDT", nil)
	require.NoError(t, err)
	assert.True(t, f.reg.Contains("BTCUSDT"))
}

func TestSubscribeRejectsEmptySymbol(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Subscribe(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, ErrEmptySymbol)
}

func TestUnsubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	removed, err := f.orch.Unsubscribe(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = f.orch.Subscribe(ctx, "BTCUSDT", nil)
	require.NoError(t, err)

	removed, err = f.orch.Unsubscribe(ctx, "btcusdt")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, int32(1), f.launcher.handle("BTCUSDT").stops.Load())
	assert.Zero(t, f.reg.Len())
	assert.Empty(t, f.persisted(t))
}

func TestReconcileAppliesDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, s := range []string{"BTCUSDT", "XRPUSDT"} {
		_, err := f.orch.Subscribe(ctx, s, nil)
		require.NoError(t, err)
	}

	res := f.orch.Reconcile(ctx, []string{"BTCUSDT", "ETHUSDT"})

	assert.Equal(t, []string{"ETHUSDT"}, res.Added)
	assert.Equal(t, []string{"XRPUSDT"}, res.Removed)
	assert.Empty(t, res.Failed)
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, f.reg.Symbols())
	assert.Len(t, res.Watches, 2)
	assert.Equal(t, int32(1), f.launcher.handle("XRPUSDT").stops.Load())
	assert.Zero(t, f.launcher.handle("BTCUSDT").stops.Load())
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, f.persisted(t))
}

func TestReconcileTwiceIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

	f.orch.Reconcile(ctx, target)
	launches := f.launcher.callCount()

	res := f.orch.Reconcile(ctx, target)
	assert.Empty(t, res.Added)
	assert.Empty(t, res.Removed)
	assert.Equal(t, launches, f.launcher.callCount())
	for _, s := range target {
		assert.Zero(t, f.launcher.handle(s).stops.Load(), s)
	}
}

func TestReconcileIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("exchange rejected symbol")
	f.launcher.fail["BADUSDT"] = boom

	res := f.orch.Reconcile(ctx, []string{"BTCUSDT", "BADUSDT", "ETHUSDT"})

	require.Contains(t, res.Failed, "BADUSDT")
	assert.ErrorIs(t, res.Failed["BADUSDT"], boom)
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, res.Added)
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, f.reg.Symbols())
	assert.NotContains(t, f.persisted(t), "BADUSDT")
}

func TestAdapterExitEvictsWatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Subscribe(ctx, "BTCUSDT", nil)
	require.NoError(t, err)

	f.launcher.handle("BTCUSDT").fail(errors.New("connection reset"))

	require.Eventually(t, func() bool { return !f.reg.Contains("BTCUSDT") }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		got, err := f.lists.List(ctx, watchesKey)
		return err == nil && len(got) == 0
	}, time.Second, 5*time.Millisecond)

	_, err = f.orch.Subscribe(ctx, "BTCUSDT", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, f.launcher.callCount())
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name       string
		current    []string
		target     []string
		wantAdd    []string
		wantRemove []string
	}{
		{"empty", nil, nil, nil, nil},
		{"add all", nil, []string{"BTCUSDT", "ETHUSDT"}, []string{"BTCUSDT", "ETHUSDT"}, nil},
		{"remove all", []string{"BTCUSDT"}, nil, nil, []string{"BTCUSDT"}},
		{"swap", []string{"BTCUSDT", "XRPUSDT"}, []string{"BTCUSDT", "ETHUSDT"}, []string{"ETHUSDT"}, []string{"XRPUSDT"}},
		{"normalized and deduplicated", []string{"BTCUSDT"}, []string{"btcusdt", "ETHUSDT", "ethusdt", ""}, []string{"ETHUSDT"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			add, remove := Diff(tt.current, tt.target)
			assert.Equal(t, tt.wantAdd, add)
			assert.Equal(t, tt.wantRemove, remove)
		})
	}
}

func encode(t *testing.T, p control.Payload) []byte {
	t.Helper()
	raw, err := control.Encode(p)
	require.NoError(t, err)
	return raw
}

func TestRunDispatchesMessages(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages := make(chan []byte, 16)
	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx, messages) }()

	messages <- []byte("{not json")
	messages <- []byte(`{"type":"depth","data":[]}`)
	messages <- encode(t, control.Command{Exchange: "kucoin", Command: control.AddWatch, Symbol: "DOGEUSDT"})
	messages <- encode(t, control.Command{Exchange: "binance", Command: control.AddWatch, Symbol: "btcusdt"})
	messages <- encode(t, control.Intervals{Intervals: []string{"1d"}})
	messages <- encode(t, control.TopSymbols{Symbols: []string{"BTCUSDT", "ETHUSDT"}})
	messages <- encode(t, control.Command{Exchange: "binance", Command: control.DelWatch, Symbol: "BTCUSDT"})
	messages <- encode(t, control.Command{Exchange: "BINANCE", Command: control.ListWatch})

	require.Eventually(t, func() bool { return f.replier.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"ETHUSDT"}, f.reg.Symbols())
	assert.False(t, f.reg.Contains("DOGEUSDT"))
	assert.Equal(t, []string{"1d"}, f.orch.Intervals())

	eth, ok := f.reg.Get("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, []string{"1d"}, eth.Intervals)

	stored, err := f.lists.List(context.Background(), intervalsKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"1d"}, stored)

	f.replier.mu.Lock()
	reply, err := json.Marshal(f.replier.replies[0])
	f.replier.mu.Unlock()
	require.NoError(t, err)
	assert.JSONEq(t, `["ETHUSDT"]`, string(reply))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSetIntervalsRejectsEmpty(t *testing.T) {
	f := newFixture(t)
	err := f.orch.SetIntervals(context.Background(), []string{" ", ""})
	assert.ErrorIs(t, err, ErrNoIntervals)
	assert.Equal(t, []string{"1h", "4h"}, f.orch.Intervals())
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.lists.Push(ctx, watchesKey, "ETHUSDT", "BTCUSDT", "ETHUSDT"))
	require.NoError(t, f.lists.Replace(ctx, intervalsKey, "15m", "1h"))

	res, err := f.orch.Restore(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"ETHUSDT", "BTCUSDT"}, res.Added)
	assert.ElementsMatch(t, []string{"ETHUSDT", "BTCUSDT"}, f.reg.Symbols())
	assert.ElementsMatch(t, []string{"ETHUSDT", "BTCUSDT"}, f.persisted(t))
	assert.Equal(t, []string{"15m", "1h"}, f.orch.Intervals())
	assert.Equal(t, 2, f.launcher.callCount())
}

func TestShutdownKeepsPersistedWatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orch.Reconcile(ctx, []string{"BTCUSDT", "ETHUSDT"})

	require.NoError(t, f.orch.Shutdown(ctx))

	assert.Equal(t, int32(1), f.launcher.handle("BTCUSDT").stops.Load())
	assert.Equal(t, int32(1), f.launcher.handle("ETHUSDT").stops.Load())
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, f.persisted(t))

	_, err := f.orch.Subscribe(ctx, "SOLUSDT", nil)
	assert.ErrorIs(t, err, ErrStopped)
	require.NoError(t, f.orch.Shutdown(ctx))
}
