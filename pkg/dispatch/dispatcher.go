// Package dispatch submits work items to a queue under a fixed concurrency
// limit, retrying failed submissions with exponential backoff.
//
// Items are ordered by the canonical JSON encoding of their payload before
// dispatch starts, so submission order does not depend on how the batch was
// assembled. Each item holds one concurrency permit per attempt and gives it
// back before sleeping between attempts.
package dispatch

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for dispatch.
var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termsync_dispatch_attempts_total",
		Help: "Total work item submission attempts by result",
	}, []string{"result"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "termsync_dispatch_retries_total",
		Help: "Total work item submission retries",
	})

	backoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "termsync_dispatch_backoff_seconds",
		Help:    "Backoff delay before a submission retry",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
	})

	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termsync_dispatch_items_total",
		Help: "Total dispatched work items by terminal state",
	}, []string{"state"})

	inflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "termsync_dispatch_inflight",
		Help: "Submission attempts currently holding a permit",
	})
)

// WorkItem is one unit of queued work.
type WorkItem struct {
	Reference string
	Payload   map[string]any
}

// Submitter hands a single item to the work queue. Calls may block.
type Submitter interface {
	AddItem(ctx context.Context, payload map[string]any, reference string) error
}

// Config holds the dispatch parameters.
type Config struct {
	// MaxConcurrency is the number of submissions allowed in flight at once.
	MaxConcurrency int

	// MaxRetries is the total number of attempts per item, including the first.
	MaxRetries int

	// BaseDelay is the backoff after the first failed attempt; it doubles
	// after each further failure.
	BaseDelay time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		MaxRetries:     3,
		BaseDelay:      1 * time.Second,
	}
}

// State is the lifecycle state of one work item.
type State int

const (
	StatePending State = iota
	StateAttempting
	StateRetrying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAttempting:
		return "attempting"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result for one item.
type Outcome struct {
	Reference string
	State     State
	Attempts  int
	// Err is a *DispatchError when State is StateFailed.
	Err error
}

// Succeeded reports whether the item reached the queue.
func (o Outcome) Succeeded() bool {
	return o.State == StateSucceeded
}

// Summary aggregates a dispatch run. Outcomes are in submission order.
type Summary struct {
	Succeeded int
	Failed    int
	Total     int
	Outcomes  []Outcome
}

// Dispatcher submits batches of work items.
type Dispatcher struct {
	submitter Submitter
	config    Config
	logger    zerolog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates a dispatcher. Non-positive limits fall back to 1.
func New(submitter Submitter, config Config, logger zerolog.Logger) *Dispatcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}
	return &Dispatcher{
		submitter: submitter,
		config:    config,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		sleep:     sleepContext,
	}
}

// SetSleepFunc replaces the backoff wait (for testing).
func (d *Dispatcher) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	d.sleep = fn
}

// Order returns the items sorted by canonical payload encoding, ties broken by
// reference. The input slice is not modified.
func Order(items []WorkItem) []WorkItem {
	type keyed struct {
		item WorkItem
		key  []byte
	}
	ks := make([]keyed, len(items))
	for i, it := range items {
		key, err := Canonical(it.Payload)
		if err != nil {
			// Unencodable payloads sort last; submission reports the error.
			key = []byte{0xff}
		}
		ks[i] = keyed{item: it, key: key}
	}

	sort.SliceStable(ks, func(i, j int) bool {
		if c := bytes.Compare(ks[i].key, ks[j].key); c != 0 {
			return c < 0
		}
		return ks[i].item.Reference < ks[j].item.Reference
	})

	out := make([]WorkItem, len(ks))
	for i, k := range ks {
		out[i] = k.item
	}
	return out
}

// Dispatch submits every item and waits until each one has succeeded or
// exhausted its attempts. An empty batch returns immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, items []WorkItem) Summary {
	if len(items) == 0 {
		d.logger.Info().Msg("No new items to add")
		return Summary{}
	}

	ordered := Order(items)
	d.logger.Info().Int("items", len(ordered)).Msg("Dispatching items in canonical order")

	permits := make(chan struct{}, d.config.MaxConcurrency)
	for i := 0; i < d.config.MaxConcurrency; i++ {
		permits <- struct{}{}
	}

	// First attempts take their permit here, in order; retries queue behind
	// them on the same channel.
	outcomes := make([]Outcome, len(ordered))
	var wg sync.WaitGroup
	for i, item := range ordered {
		if err := acquire(ctx, permits); err != nil {
			outcomes[i] = d.fail(Outcome{Reference: item.Reference, State: StatePending}, 0, err)
			continue
		}
		wg.Add(1)
		go func(i int, item WorkItem) {
			defer wg.Done()
			outcomes[i] = d.run(ctx, permits, item)
		}(i, item)
	}
	wg.Wait()

	summary := Summary{Total: len(outcomes), Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Succeeded() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		itemsTotal.WithLabelValues(o.State.String()).Inc()
	}

	d.logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("total", summary.Total).
		Msg("Dispatch finished")

	return summary
}

// acquire takes a permit unless ctx is already done or ends first.
func acquire(ctx context.Context, permits chan struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-permits:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drives one item to a terminal state. The caller holds the permit for
// the first attempt.
func (d *Dispatcher) run(ctx context.Context, permits chan struct{}, item WorkItem) Outcome {
	out := Outcome{Reference: item.Reference, State: StatePending}

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			if err := acquire(ctx, permits); err != nil {
				return d.fail(out, attempt-1, err)
			}
		}

		out.State = StateAttempting
		out.Attempts = attempt
		err := d.attempt(ctx, item)
		permits <- struct{}{}

		if err == nil {
			out.State = StateSucceeded
			d.logger.Info().
				Str("reference", item.Reference).
				Int("attempt", attempt).
				Msg("Added item to queue")
			return out
		}

		if attempt >= d.config.MaxRetries || IsNoRetry(err) {
			return d.fail(out, attempt, err)
		}

		out.State = StateRetrying
		delay := Backoff(d.config.BaseDelay, attempt)
		retriesTotal.Inc()
		backoffSeconds.Observe(delay.Seconds())
		d.logger.Warn().
			Err(err).
			Str("reference", item.Reference).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying item")

		if err := d.sleep(ctx, delay); err != nil {
			return d.fail(out, attempt, err)
		}
	}
}

func (d *Dispatcher) attempt(ctx context.Context, item WorkItem) error {
	inflight.Inc()
	defer inflight.Dec()

	err := d.submitter.AddItem(ctx, item.Payload, item.Reference)
	if err != nil {
		attemptsTotal.WithLabelValues("error").Inc()
		return err
	}
	attemptsTotal.WithLabelValues("ok").Inc()
	return nil
}

func (d *Dispatcher) fail(out Outcome, attempts int, err error) Outcome {
	out.State = StateFailed
	out.Attempts = attempts
	out.Err = &DispatchError{Reference: out.Reference, Attempts: attempts, Err: err}

	d.logger.Error().
		Err(err).
		Str("reference", out.Reference).
		Int("attempts", attempts).
		Msg("Failed to add item")
	return out
}
