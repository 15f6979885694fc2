package beacon

import (
	"context"
	"sync/atomic"
)

// persistenceFacade is the narrow view of the queue a Beacon needs: push an
// entry, report whether persistence is available, and name the status codes
// that trigger it.
type persistenceFacade struct {
	queue       *Queue
	disabled    bool
	statusCodes []int
}

// Beacon is a single send attempt sequence: one per Client.Beacon call. It
// is not reused across calls.
type Beacon struct {
	url     string
	body    []byte
	headers map[string]string

	inMemory    InMemoryRetryConfig
	persistence persistenceFacade
	compress    bool
	offline     func() bool

	transport Transport
	logger    Logger
	metrics   Metrics
	clock     Clock

	timestamp int64

	clearPending atomic.Bool
}

func newBeacon(
	url, body string,
	headers map[string]string,
	transport Transport,
	inMemory InMemoryRetryConfig,
	persistence persistenceFacade,
	compress bool,
	offline func() bool,
	logger Logger,
	metrics Metrics,
	clock Clock,
) *Beacon {
	if offline == nil {
		offline = func() bool { return false }
	}

	return &Beacon{
		url:         url,
		body:        []byte(body),
		headers:     headers,
		transport:   transport,
		inMemory:    inMemory,
		persistence: persistence,
		compress:    compress,
		offline:     offline,
		logger:      logger,
		metrics:     metrics,
		clock:       clock,
		timestamp:   clock.Now().UnixMilli(),
	}
}

// send runs the attempt loop described in SPEC_FULL.md §4.3 and returns the
// final tagged Result.
func (b *Beacon) send(ctx context.Context) Result {
	var unregister func()
	if b.persistence.queue != nil {
		unregister = b.persistence.queue.OnClear(func() { b.clearPending.Store(true) })
		defer unregister()
	}

	retryCountLeft := b.inMemory.AttemptLimit
	var lastErrorCode *int

	for {
		attempt := b.inMemory.AttemptLimit - retryCountLeft + 1

		headers := BuildHeaders(b.headers, b.inMemory.HeaderName, attempt-1, lastErrorCode)
		result := b.transport.Send(ctx, Request{
			URL:      b.url,
			Body:     b.body,
			Headers:  headers,
			Compress: b.compress,
		})

		switch result.Type {
		case ResultSuccess, ResultUnknown:
			b.metrics.AddSent(1)
			if !b.clearPending.Load() && !b.persistence.disabled && b.persistence.queue != nil {
				b.persistence.queue.Notify(ctx, NotifyConfig{AllowedStatusCodes: b.persistence.statusCodes})
			}

			return result
		default:
			if final, done := b.handleFailure(ctx, result, attempt, retryCountLeft); done {
				return final
			}

			retryCountLeft--
			lastErrorCode = result.statusCodePtr()
		}
	}
}

// handleFailure implements the persist/retry/drop decision for a single
// response or network failure. done is true once a final Result has been
// produced; the caller must return it rather than looping.
func (b *Beacon) handleFailure(ctx context.Context, result Result, attempt, retryCountLeft int) (Result, bool) {
	shouldPersist := !b.clearPending.Load() && !b.persistence.disabled && b.persistence.queue != nil &&
		(b.offline() ||
			(retryCountLeft == 0 && result.Type == ResultNetwork) ||
			(result.Type == ResultResponse && result.isRetryableStatus(b.persistence.statusCodes)))

	if shouldPersist {
		entry := RetryEntry{
			URL:          b.url,
			Body:         b.body,
			Headers:      b.headers,
			StatusCode:   result.statusCodePtr(),
			Timestamp:    b.timestamp,
			AttemptCount: attempt,
		}
		if err := b.persistence.queue.Push(ctx, entry); err != nil {
			// Push only returns an error for a rejected RetryEntry (a
			// construction bug, not a backend failure, which Queue.Push
			// swallows and logs itself). The payload did not survive, so
			// the result must say so rather than falsely claiming
			// ResultPersisted.
			b.logger.Error("beacon persist failed", "err", err)
			result.Drop = true
			b.metrics.AddDropped(1)

			return result, true
		}

		return Result{Type: ResultPersisted, StatusCode: result.StatusCode}, true
	}

	shouldRetry := retryCountLeft > 0 &&
		(result.Type == ResultNetwork || result.isRetryableStatus(b.inMemory.StatusCodes))
	if shouldRetry {
		b.metrics.AddRetried(1)
		delay := b.inMemory.CalculateRetryDelay(attempt, retryCountLeft)
		if err := sleepContext(ctx, delay); err != nil {
			result.Drop = true
			b.metrics.AddDropped(1)

			return result, true
		}

		return Result{}, false
	}

	result.Drop = true
	b.metrics.AddDropped(1)

	return result, true
}
