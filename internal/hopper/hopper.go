// Package hopper drains the ingestion queue into the sink with a fixed pool
// of competing consumers.
package hopper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/minions/internal/queue"
)

var ErrMissingHandler = errors.New("hopper: missing handler")

// Consumer is one worker's view of the queue.
type Consumer interface {
	Fetch(ctx context.Context) (queue.Delivery, error)
	Ack(ctx context.Context, d queue.Delivery) error
	Close() error
}

// ConsumerFactory opens the consumer owned by one worker.
type ConsumerFactory func(workerID int) Consumer

// Redeliverer republishes a failed record for another attempt.
type Redeliverer interface {
	Redeliver(ctx context.Context, key []byte, env queue.Envelope) error
}

// DeadLetterer parks a record that exhausted its attempts.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, key []byte, env queue.Envelope, cause error) error
}

// Config holds pool settings.
type Config struct {
	Workers        int
	ReportInterval time.Duration
	MaxAttempts    int
	PollTimeout    time.Duration
	HandlerTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = 10 * time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 2 * time.Second
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
}

// WorkerState is the lifecycle of one consumer loop.
type WorkerState int32

const (
	WorkerRunning WorkerState = iota
	WorkerStopping
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerRunning:
		return "running"
	case WorkerStopping:
		return "stopping"
	case WorkerStopped:
		return "stopped"
	default:
		return fmt.Sprintf("worker_state(%d)", int32(s))
	}
}

// Worker is one consumption loop.
type Worker struct {
	ID    int
	state atomic.Int32
}

// State returns the worker's lifecycle state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Hopper is the worker pool.
type Hopper struct {
	cfg         Config
	handlers    map[queue.EventType]Handler
	consumers   ConsumerFactory
	redeliverer Redeliverer
	deadLetter  DeadLetterer
	stats       *Stats
	logger      *logrus.Entry

	workers []*Worker
	stopped atomic.Bool
}

// New validates that every event type has a handler.
func New(
	cfg Config,
	handlers map[queue.EventType]Handler,
	consumers ConsumerFactory,
	redeliverer Redeliverer,
	deadLetter DeadLetterer,
	logger *logrus.Entry,
) (*Hopper, error) {
	cfg.applyDefaults()

	for _, t := range queue.EventTypes() {
		if handlers[t] == nil {
			return nil, fmt.Errorf("%w for %q", ErrMissingHandler, t)
		}
	}

	workers := make([]*Worker, cfg.Workers)
	for i := range workers {
		workers[i] = &Worker{ID: i + 1}
	}

	return &Hopper{
		cfg:         cfg,
		handlers:    handlers,
		consumers:   consumers,
		redeliverer: redeliverer,
		deadLetter:  deadLetter,
		stats:       NewStats(),
		logger:      logger,
		workers:     workers,
	}, nil
}

// Stats exposes the rolling counters.
func (h *Hopper) Stats() *Stats {
	return h.stats
}

// Workers returns the pool members.
func (h *Hopper) Workers() []*Worker {
	return h.workers
}

// Stop asks every worker to exit after its current message.
func (h *Hopper) Stop() {
	if h.stopped.Swap(true) {
		return
	}
	for _, w := range h.workers {
		w.state.CompareAndSwap(int32(WorkerRunning), int32(WorkerStopping))
	}
	h.logger.Info("Stopping hopper workers")
}

// Run starts the workers and the reporter and blocks until every worker has
// exited. Cancelling ctx is equivalent to Stop.
func (h *Hopper) Run(ctx context.Context) error {
	defer context.AfterFunc(ctx, h.Stop)()

	h.logger.WithFields(logrus.Fields{
		"workers":      len(h.workers),
		"max_attempts": h.cfg.MaxAttempts,
	}).Info("Starting hopper")

	var wg sync.WaitGroup
	for _, w := range h.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			h.work(ctx, w, h.consumers(w.ID))
		}(w)
	}

	reportDone := make(chan struct{})
	reporterExited := make(chan struct{})
	go func() {
		defer close(reporterExited)
		h.report(reportDone)
	}()

	wg.Wait()
	close(reportDone)
	<-reporterExited

	h.logReport(h.stats.Reset())
	h.logger.Info("Hopper stopped")
	return nil
}

func (h *Hopper) report(done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.logReport(h.stats.Reset())
		}
	}
}

func (h *Hopper) logReport(counts map[queue.EventType]Counts) {
	fields := logrus.Fields{}
	for t, c := range counts {
		fields[string(t)+"_success"] = c.Success
		fields[string(t)+"_failure"] = c.Failure
	}
	h.logger.WithFields(fields).Info("Hopper stats")
}

func (h *Hopper) work(ctx context.Context, w *Worker, c Consumer) {
	logger := h.logger.WithField("worker", w.ID)
	logger.Info("Worker started")

	defer func() {
		if err := c.Close(); err != nil {
			logger.WithError(err).Warn("Consumer close failed")
		}
		w.state.Store(int32(WorkerStopped))
		logger.Info("Worker stopped")
	}()

	// handlers and acks must not be cut short by shutdown
	work := context.WithoutCancel(ctx)

	for !h.stopped.Load() {
		fetchCtx, cancel := context.WithTimeout(ctx, h.cfg.PollTimeout)
		d, err := c.Fetch(fetchCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.WithError(err).Error("Kafka fetch error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		h.process(work, logger, c, d)
	}
}

func (h *Hopper) process(ctx context.Context, logger *logrus.Entry, c Consumer, d queue.Delivery) {
	defer h.ack(ctx, logger, c, d)

	env, err := queue.DecodeEnvelope(d.Value)
	if err != nil {
		logger.WithError(err).WithField("offset", d.Offset).Warn("Dropping malformed message")
		return
	}

	if err := h.invoke(ctx, h.handlers[env.EventType], env); err != nil {
		h.stats.Failure(env.EventType)
		logger.WithError(err).WithFields(logrus.Fields{
			"id":      env.ID,
			"event":   env.EventType,
			"attempt": env.Attempt,
		}).Warn("Handler failed")
		h.retry(ctx, logger, d, env, err)
		return
	}
	h.stats.Success(env.EventType)
}

// invoke runs the handler and turns a panic into an error.
func (h *Hopper) invoke(ctx context.Context, handler Handler, env queue.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	handlerCtx, cancel := context.WithTimeout(ctx, h.cfg.HandlerTimeout)
	defer cancel()
	return handler.Handle(handlerCtx, env)
}

// retry redelivers env until MaxAttempts deliveries were tried, then
// dead-letters it.
func (h *Hopper) retry(ctx context.Context, logger *logrus.Entry, d queue.Delivery, env queue.Envelope, cause error) {
	if env.Attempt+1 < h.cfg.MaxAttempts {
		err := h.redeliverer.Redeliver(ctx, d.Key, env)
		if err == nil {
			return
		}
		logger.WithError(err).WithField("id", env.ID).Error("Redelivery failed, dead-lettering")
	}

	if err := h.deadLetter.DeadLetter(ctx, d.Key, env, cause); err != nil {
		logger.WithError(err).WithField("id", env.ID).Error("Dead-letter failed, record dropped")
		return
	}
	logger.WithFields(logrus.Fields{"id": env.ID, "attempt": env.Attempt}).Warn("Record dead-lettered")
}

func (h *Hopper) ack(ctx context.Context, logger *logrus.Entry, c Consumer, d queue.Delivery) {
	if err := c.Ack(ctx, d); err != nil {
		logger.WithError(err).Warn("Failed to commit offsets")
	}
}
