package beacon

import (
	"context"
)

// Client sends payloads through a Transport, falling back to a shared
// persistence Queue when in-process retry is exhausted or disabled.
type Client struct {
	transport Transport
	queue     *Queue
	cfg       Config
}

// New assembles a Client from a Transport and a Backend, applying opts over
// the package defaults. transport is always required; a nil backend is only
// valid alongside WithDisablePersistenceRetry.
func New(transport Transport, backend Backend, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}

	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	if backend == nil && !cfg.DisablePersistenceRetry {
		return nil, ErrNilBackend
	}

	var queue *Queue
	if backend != nil {
		queue = NewQueue(backend, transport, cfg.Persistence, cfg.Compress,
			WithQueueClock(cfg.Clock), WithQueueLogger(cfg.Logger), WithQueueMetrics(cfg.Metrics))
	}

	return &Client{transport: transport, queue: queue, cfg: cfg}, nil
}

// Beacon sends body to url once, retrying in-process and then persisting
// per the configured policy. It never returns an error; callers that need
// to know the outcome inspect Result.Type.
func (c *Client) Beacon(ctx context.Context, url, body string, headers map[string]string) Result {
	facade := persistenceFacade{
		queue:       c.queue,
		disabled:    c.cfg.DisablePersistenceRetry || c.queue == nil,
		statusCodes: c.cfg.Persistence.StatusCodes,
	}

	b := newBeacon(url, body, headers, c.transport, c.cfg.InMemory, facade, c.cfg.Compress,
		c.cfg.OfflineHint, c.cfg.Logger, c.cfg.Metrics, c.cfg.Clock)

	return b.send(ctx)
}

// Queue returns the shared persistence queue, or nil when persistence is
// disabled.
func (c *Client) Queue() *Queue {
	return c.queue
}
