package hopper

import (
	"sync/atomic"

	"github.com/navid-fn/minions/internal/queue"
)

// Counts is one event type's outcome tally.
type Counts struct {
	Success int64 `json:"success"`
	Failure int64 `json:"failure"`
}

type counter struct {
	success atomic.Int64
	failure atomic.Int64
}

// Stats aggregates outcomes across all workers. The set of event types is
// fixed at construction so the map itself is never written concurrently.
type Stats struct {
	counters map[queue.EventType]*counter
}

// NewStats tracks every known event type.
func NewStats() *Stats {
	s := &Stats{counters: make(map[queue.EventType]*counter)}
	for _, t := range queue.EventTypes() {
		s.counters[t] = &counter{}
	}
	return s
}

// Success counts one handled record.
func (s *Stats) Success(t queue.EventType) {
	if c, ok := s.counters[t]; ok {
		c.success.Add(1)
	}
}

// Failure counts one failed record.
func (s *Stats) Failure(t queue.EventType) {
	if c, ok := s.counters[t]; ok {
		c.failure.Add(1)
	}
}

// Snapshot reads the current tallies.
func (s *Stats) Snapshot() map[queue.EventType]Counts {
	out := make(map[queue.EventType]Counts, len(s.counters))
	for t, c := range s.counters {
		out[t] = Counts{Success: c.success.Load(), Failure: c.failure.Load()}
	}
	return out
}

// Reset returns the tallies since the previous Reset and zeroes them.
func (s *Stats) Reset() map[queue.EventType]Counts {
	out := make(map[queue.EventType]Counts, len(s.counters))
	for t, c := range s.counters {
		out[t] = Counts{Success: c.success.Swap(0), Failure: c.failure.Swap(0)}
	}
	return out
}
