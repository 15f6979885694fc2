package beacon

import "time"

const (
	defaultStoreName            = "beacon-transporter"
	defaultInMemoryAttemptLimit = 0
	defaultPersistAttemptLimit  = 3
	defaultMaxNumber            = 1000
	defaultBatchEvictionNumber  = 300
	defaultThrottleWait         = 5 * time.Minute
	defaultLinearDelayBase      = 2 * time.Second
)

func defaultInMemoryStatusCodes() []int { return []int{502, 504} }

func defaultPersistStatusCodes() []int { return []int{429, 503} }

// InMemoryRetryConfig governs the in-process retry loop a Beacon runs before
// falling back to persistence.
type InMemoryRetryConfig struct {
	// AttemptLimit is the number of in-process retries after the first
	// attempt. Zero disables in-process retry entirely.
	AttemptLimit int
	// StatusCodes lists response codes that trigger an in-process retry.
	StatusCodes []int
	// HeaderName, when set, names the header carrying retry-context JSON.
	HeaderName string
	// CalculateRetryDelay computes the sleep before the next attempt.
	CalculateRetryDelay DelayFunc
}

func (c InMemoryRetryConfig) withDefaults() InMemoryRetryConfig {
	if c.StatusCodes == nil {
		c.StatusCodes = defaultInMemoryStatusCodes()
	}
	if c.CalculateRetryDelay == nil {
		c.CalculateRetryDelay = LinearDelay(defaultLinearDelayBase)
	}

	return c
}

// PersistenceRetryConfig governs the durable queue a Beacon falls back to
// once in-process retry is exhausted or the response demands persistence.
type PersistenceRetryConfig struct {
	// StoreName names the store. Queue does not read it or pass it to the
	// Backend; the keyspace is set on the backend itself (etcdqueue.WithPrefix,
	// rediskv.WithKey).
	StoreName string
	// AttemptLimit caps the total attempts (in-process plus replayed) before
	// an entry is dropped.
	AttemptLimit int
	// StatusCodes lists response codes that trigger persistence (on first
	// attempt) or requeue (on replay).
	StatusCodes []int
	// MaxNumber is the entry cap before eviction. Queue does not read it or
	// pass it to the Backend; the cap in force is the backend's own
	// (etcdqueue.WithMaxNumber, rediskv.WithMaxNumber).
	MaxNumber int
	// BatchEvictionNumber is how many oldest entries are trimmed at once when
	// the cap is exceeded. Queue does not read it or pass it to the Backend;
	// the batch in force is set by etcdqueue.WithBatchEvictionNumber.
	BatchEvictionNumber int
	// ThrottleWait bounds replay bursts to at most one per window.
	ThrottleWait time.Duration
	// HeaderName, when unset, inherits InMemoryRetryConfig.HeaderName.
	HeaderName string
	// UseIdle routes replay dispatch through IdleScheduler instead of TickScheduler.
	UseIdle bool
}

func (c PersistenceRetryConfig) withDefaults() PersistenceRetryConfig {
	if c.StoreName == "" {
		c.StoreName = defaultStoreName
	}
	if c.AttemptLimit == 0 {
		c.AttemptLimit = defaultPersistAttemptLimit
	}
	if c.StatusCodes == nil {
		c.StatusCodes = defaultPersistStatusCodes()
	}
	if c.MaxNumber == 0 {
		c.MaxNumber = defaultMaxNumber
	}
	if c.BatchEvictionNumber == 0 {
		c.BatchEvictionNumber = defaultBatchEvictionNumber
	}
	if c.ThrottleWait == 0 {
		c.ThrottleWait = defaultThrottleWait
	}

	return c
}

// Config is the top-level assembly handed to New.
type Config struct {
	// Compress gzips every payload when true.
	Compress bool
	// DisablePersistenceRetry skips the durable queue entirely; exhausting
	// in-process retry drops the payload instead of persisting it.
	DisablePersistenceRetry bool
	// OfflineHint, when non-nil, lets a caller report connectivity loss so a
	// Beacon persists immediately instead of retrying in-process.
	OfflineHint func() bool
	InMemory    InMemoryRetryConfig
	Persistence PersistenceRetryConfig
	Logger      Logger
	Metrics     Metrics
	Clock       Clock
}

func (c Config) withDefaults() Config {
	c.InMemory = c.InMemory.withDefaults()
	c.Persistence = c.Persistence.withDefaults()
	if c.Persistence.HeaderName == "" {
		c.Persistence.HeaderName = c.InMemory.HeaderName
	}
	if c.OfflineHint == nil {
		c.OfflineHint = func() bool { return false }
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}

	return c
}

// Option configures a Client built via New.
type Option func(*Config)

// WithCompress enables gzip compression of every outgoing payload.
func WithCompress() Option {
	return func(c *Config) { c.Compress = true }
}

// WithDisablePersistenceRetry turns off the durable queue fallback.
func WithDisablePersistenceRetry() Option {
	return func(c *Config) { c.DisablePersistenceRetry = true }
}

// WithInMemoryRetryConfig overrides the in-process retry configuration.
func WithInMemoryRetryConfig(cfg InMemoryRetryConfig) Option {
	return func(c *Config) { c.InMemory = cfg }
}

// WithPersistenceRetryConfig overrides the persistence queue configuration.
func WithPersistenceRetryConfig(cfg PersistenceRetryConfig) Option {
	return func(c *Config) { c.Persistence = cfg }
}

// WithOfflineHint supplies a connectivity probe a Beacon consults before
// committing to in-process retry.
func WithOfflineHint(hint func() bool) Option {
	return func(c *Config) { c.OfflineHint = hint }
}

// WithLogger overrides the client's logger.
func WithLogger(logger Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithMetrics overrides the client's metrics recorder.
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) { c.Metrics = metrics }
}

// WithClock overrides the client's time source, primarily for tests.
func WithClock(clock Clock) Option {
	return func(c *Config) { c.Clock = clock }
}
