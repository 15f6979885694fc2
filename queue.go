package beacon

import (
	"context"
	"sync"
	"time"
)

// NotifyConfig carries the persistence status-code allow-list the replay
// driver uses when deciding whether a failed replay should be requeued.
type NotifyConfig struct {
	AllowedStatusCodes []int
}

// Backend is the storage-agnostic contract both etcdqueue and rediskv
// implement. Queue hosts the throttle/replay logic exactly once against
// this interface — see SPEC_FULL.md §4.4.
type Backend interface {
	// Push enqueues entry, applying the backend's eviction policy.
	Push(ctx context.Context, entry RetryEntry) error
	// Shift pops the oldest entry (FIFO by Timestamp). ok is false when the
	// backend is empty.
	Shift(ctx context.Context) (entry RetryEntry, ok bool, err error)
	// PushIfNotClearing re-enqueues entry unless token is stale, i.e. a
	// Clear advanced the backend's token after token was captured.
	PushIfNotClearing(ctx context.Context, entry RetryEntry, token string) error
	// ClearToken returns the backend's current clear token.
	ClearToken(ctx context.Context) (string, error)
	// Clear deletes every entry and advances the clear token.
	Clear(ctx context.Context) error
	// Peek returns up to count of the oldest entries without removing them.
	Peek(ctx context.Context, count int) ([]RetryEntry, error)
	// PeekBack returns up to count of the newest entries without removing them.
	PeekBack(ctx context.Context, count int) ([]RetryEntry, error)
}

// Queue wraps a Backend with throttled notify-driven replay, clear
// listeners, and a fail-closed latch on backend error.
type Queue struct {
	backend   Backend
	transport Transport
	persist   PersistenceRetryConfig
	compress  bool
	scheduler Scheduler
	clock     Clock
	logger    Logger
	metrics   Metrics

	latch *latch

	mu         sync.Mutex
	lastNotify time.Time

	listenersMu  sync.Mutex
	listeners    map[int]func()
	nextListener int
}

// NewQueue builds a Queue over backend. Callers normally get a Queue via
// Client.Queue instead of calling this directly.
func NewQueue(backend Backend, transport Transport, persist PersistenceRetryConfig, compress bool, opts ...QueueOption) *Queue {
	persist = persist.withDefaults()
	q := &Queue{
		backend:   backend,
		transport: transport,
		persist:   persist,
		compress:  compress,
		scheduler: defaultScheduler(persist.UseIdle),
		clock:     SystemClock{},
		logger:    NopLogger{},
		metrics:   NopMetrics{},
		latch:     newLatch("beacon-persistence-queue"),
		listeners: make(map[int]func()),
	}
	for _, opt := range opts {
		opt(q)
	}

	return q
}

func defaultScheduler(useIdle bool) Scheduler {
	if useIdle {
		return IdleScheduler{}
	}

	return TickScheduler{}
}

// QueueOption configures a Queue built via NewQueue.
type QueueOption func(*Queue)

// WithQueueClock overrides the queue's time source.
func WithQueueClock(clock Clock) QueueOption {
	return func(q *Queue) {
		if clock != nil {
			q.clock = clock
		}
	}
}

// WithQueueLogger overrides the queue's logger.
func WithQueueLogger(logger Logger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithQueueMetrics overrides the queue's metrics recorder.
func WithQueueMetrics(metrics Metrics) QueueOption {
	return func(q *Queue) {
		if metrics != nil {
			q.metrics = metrics
		}
	}
}

// WithQueueScheduler overrides the queue's replay scheduler, taking
// precedence over persist.UseIdle.
func WithQueueScheduler(scheduler Scheduler) QueueOption {
	return func(q *Queue) {
		if scheduler != nil {
			q.scheduler = scheduler
		}
	}
}

// Push enqueues entry. A backend failure latches the queue disabled and is
// logged, never returned, except for entry validation failures (a caller
// programming error, not a store failure).
func (q *Queue) Push(ctx context.Context, entry RetryEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if q.latch.disabled() {
		return nil
	}

	if err := q.latch.do(func() error { return q.backend.Push(ctx, entry) }); err != nil {
		q.logger.Error("beacon queue push failed", "err", err)

		return nil
	}

	q.mu.Lock()
	q.lastNotify = time.Time{}
	q.mu.Unlock()
	q.metrics.AddPersisted(1)

	return nil
}

// Notify signals that a replay burst may proceed, throttled to at most one
// burst per PersistenceRetryConfig.ThrottleWait window. A successful Push
// resets the throttle so the very next Notify drains immediately.
func (q *Queue) Notify(ctx context.Context, cfg NotifyConfig) {
	if q.latch.disabled() {
		return
	}

	q.mu.Lock()
	now := q.clock.Now()
	if !q.lastNotify.IsZero() && now.Before(q.lastNotify.Add(q.persist.ThrottleWait)) {
		q.mu.Unlock()

		return
	}
	q.lastNotify = now
	q.mu.Unlock()

	q.scheduler.Schedule(func() {
		q.drainOnce(ctx, cfg)
	})
}

// Clear invokes every registered listener synchronously, then deletes all
// entries. Backend failures are logged, not returned.
func (q *Queue) Clear(ctx context.Context) error {
	q.listenersMu.Lock()
	cbs := make([]func(), 0, len(q.listeners))
	for _, cb := range q.listeners {
		cbs = append(cbs, cb)
	}
	q.listenersMu.Unlock()

	for _, cb := range cbs {
		cb()
	}

	if q.latch.disabled() {
		return nil
	}

	if err := q.latch.do(func() error { return q.backend.Clear(ctx) }); err != nil {
		q.logger.Error("beacon queue clear failed", "err", err)
	}
	q.metrics.SetQueueDepth(0)

	return nil
}

// Peek returns up to count of the oldest persisted entries. A latched queue
// returns an empty slice rather than an error.
func (q *Queue) Peek(ctx context.Context, count int) ([]RetryEntry, error) {
	if q.latch.disabled() {
		return nil, nil
	}

	entries, err := doValue(q.latch, func() ([]RetryEntry, error) { return q.backend.Peek(ctx, count) })
	if err != nil {
		return nil, nil
	}

	return entries, nil
}

// PeekBack returns up to count of the newest persisted entries. A latched
// queue returns an empty slice rather than an error.
func (q *Queue) PeekBack(ctx context.Context, count int) ([]RetryEntry, error) {
	if q.latch.disabled() {
		return nil, nil
	}

	entries, err := doValue(q.latch, func() ([]RetryEntry, error) { return q.backend.PeekBack(ctx, count) })
	if err != nil {
		return nil, nil
	}

	return entries, nil
}

// OnClear registers cb to run synchronously on every Clear call and returns
// a function that removes it.
func (q *Queue) OnClear(cb func()) (unregister func()) {
	q.listenersMu.Lock()
	defer q.listenersMu.Unlock()

	id := q.nextListener
	q.nextListener++
	q.listeners[id] = cb

	return func() {
		q.listenersMu.Lock()
		defer q.listenersMu.Unlock()
		delete(q.listeners, id)
	}
}

type shiftResult struct {
	entry RetryEntry
	ok    bool
}

// drainOnce is one replay burst: it pops and sends entries until the
// backend is empty or a send fails, per SPEC_FULL.md §4.4.
func (q *Queue) drainOnce(ctx context.Context, cfg NotifyConfig) {
	for {
		if q.latch.disabled() {
			return
		}

		token, err := doValue(q.latch, func() (string, error) { return q.backend.ClearToken(ctx) })
		if err != nil {
			return
		}

		sr, err := doValue(q.latch, func() (shiftResult, error) {
			entry, ok, shiftErr := q.backend.Shift(ctx)

			return shiftResult{entry: entry, ok: ok}, shiftErr
		})
		if err != nil || !sr.ok {
			return
		}
		entry := sr.entry

		headers := BuildHeaders(entry.Headers, q.persist.HeaderName, entry.AttemptCount, entry.StatusCode)
		result := q.transport.Send(ctx, Request{
			URL:      entry.URL,
			Body:     entry.Body,
			Headers:  headers,
			Compress: q.compress,
		})

		if result.Type == ResultSuccess || result.Type == ResultUnknown {
			q.metrics.AddSent(1)

			continue
		}

		q.handleReplayFailure(ctx, entry, result, cfg, token)

		return
	}
}

func (q *Queue) handleReplayFailure(ctx context.Context, entry RetryEntry, result Result, cfg NotifyConfig, token string) {
	nextAttempt := entry.AttemptCount + 1
	if nextAttempt > q.persist.AttemptLimit {
		q.metrics.AddDropped(1)

		return
	}

	retryable := result.Type == ResultNetwork || result.isRetryableStatus(cfg.AllowedStatusCodes)
	if !retryable {
		q.metrics.AddDropped(1)

		return
	}

	requeued := entry.WithAttempt(nextAttempt)
	requeued.StatusCode = result.statusCodePtr()

	if err := q.latch.do(func() error { return q.backend.PushIfNotClearing(ctx, requeued, token) }); err != nil {
		q.logger.Warn("beacon queue requeue failed", "err", err)
	}
}
