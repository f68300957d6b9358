package stream

import (
	"math"
	"strconv"
	"sync"
)

// AllTimeLabel names the unbounded bucket.
const AllTimeLabel = "inf"

// Bucket is one extremum window. Width is compared against the raw
// millisecond timestamp; zero means the unbounded all-time bucket.
type Bucket struct {
	Width int64
	Label string
}

// Aligned reports whether a trade at ts samples this bucket. The all-time
// bucket has an infinite width and ts mod infinity is ts, so it only
// samples a trade at timestamp zero.
func (b Bucket) Aligned(ts int64) bool {
	if b.Width == 0 {
		return ts == 0
	}
	return ts%b.Width == 0
}

// DefaultBuckets are the widths sampled for every symbol, smallest first,
// ending with the all-time bucket.
var DefaultBuckets = NewBuckets(
	5, 10, 15, 30, 60, 900, 1800, 3600,
	86400, 604800, 2592000, 7776000, 15552000, 31536000,
	0,
)

// NewBuckets labels widths by their decimal value; 0 becomes AllTimeLabel.
func NewBuckets(widths ...int64) []Bucket {
	out := make([]Bucket, len(widths))
	for i, w := range widths {
		label := strconv.FormatInt(w, 10)
		if w == 0 {
			label = AllTimeLabel
		}
		out[i] = Bucket{Width: w, Label: label}
	}
	return out
}

// Extremum is a running {high, low} pair.
type Extremum struct {
	High float64
	Low  float64
}

func emptyExtremum() Extremum {
	return Extremum{High: math.Inf(-1), Low: math.Inf(1)}
}

func (e *Extremum) observe(high, low float64) {
	e.High = max(e.High, high)
	e.Low = min(e.Low, low)
}

// Update is one bucket changed by an observation.
type Update struct {
	Label string
	Extremum
}

// Tracker keeps process-local extrema for one symbol: the fixed trade
// buckets plus one entry per kline interval label.
type Tracker struct {
	mu      sync.Mutex
	buckets []Bucket
	trades  []Extremum
	klines  map[string]*Extremum
}

// NewTracker starts with every bucket at {-Inf, +Inf}.
func NewTracker(buckets []Bucket) *Tracker {
	t := &Tracker{buckets: buckets}
	t.Reset()
	return t
}

// Reset returns every bucket to {-Inf, +Inf}.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.trades = make([]Extremum, len(t.buckets))
	for i := range t.trades {
		t.trades[i] = emptyExtremum()
	}
	t.klines = make(map[string]*Extremum)
}

// ObserveTrade samples price into every bucket aligned with ts.
func (t *Tracker) ObserveTrade(ts int64, price float64) []Update {
	t.mu.Lock()
	defer t.mu.Unlock()

	var updates []Update
	for i, b := range t.buckets {
		if !b.Aligned(ts) {
			continue
		}
		t.trades[i].observe(price, price)
		updates = append(updates, Update{Label: b.Label, Extremum: t.trades[i]})
	}
	return updates
}

// ObserveKline folds a candle's high and low into its interval's entry.
func (t *Tracker) ObserveKline(interval string, high, low float64) Update {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.klines[interval]
	if !ok {
		fresh := emptyExtremum()
		e = &fresh
		t.klines[interval] = e
	}
	e.observe(high, low)
	return Update{Label: interval, Extremum: *e}
}

// Get returns the current extremum of a trade bucket or kline interval.
func (t *Tracker) Get(label string) (Extremum, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, b := range t.buckets {
		if b.Label == label {
			return t.trades[i], true
		}
	}
	if e, ok := t.klines[label]; ok {
		return *e, true
	}
	return Extremum{}, false
}

// Labels returns the labels of the configured trade buckets.
func Labels(buckets []Bucket) []string {
	out := make([]string, len(buckets))
	for i, b := range buckets {
		out[i] = b.Label
	}
	return out
}
