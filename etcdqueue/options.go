package etcdqueue

import (
	"time"

	"github.com/feltlabs/beacon"
)

const (
	defaultPrefix              = "beacon-transporter"
	defaultMaxNumber           = 1000
	defaultBatchEvictionNumber = 300
	defaultRequestTimeout      = 5 * time.Second
)

// Config defines the etcd-backed store's behavior.
type Config struct {
	// Prefix namespaces every key this store touches.
	Prefix string
	// MaxNumber caps the number of entries before eviction trims the oldest.
	MaxNumber int
	// BatchEvictionNumber is how many oldest entries are trimmed in one
	// transaction once MaxNumber is exceeded.
	BatchEvictionNumber int
	// RequestTimeout bounds each individual etcd RPC.
	RequestTimeout time.Duration
	// Clock is the time source for the key sequencer.
	Clock beacon.Clock
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if c.MaxNumber <= 0 {
		c.MaxNumber = defaultMaxNumber
	}
	if c.BatchEvictionNumber <= 0 {
		c.BatchEvictionNumber = defaultBatchEvictionNumber
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.Clock == nil {
		c.Clock = beacon.SystemClock{}
	}

	return c
}

// Option configures a Store built via NewStore.
type Option func(*Config)

// WithPrefix sets the etcd key prefix namespacing this store's keyspace.
func WithPrefix(prefix string) Option {
	return func(c *Config) { c.Prefix = prefix }
}

// WithMaxNumber sets the entry cap before eviction.
func WithMaxNumber(n int) Option {
	return func(c *Config) { c.MaxNumber = n }
}

// WithBatchEvictionNumber sets how many oldest entries are trimmed per eviction.
func WithBatchEvictionNumber(n int) Option {
	return func(c *Config) { c.BatchEvictionNumber = n }
}

// WithRequestTimeout bounds each etcd RPC the store issues.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}

// WithClock overrides the store's time source, primarily for tests.
func WithClock(clock beacon.Clock) Option {
	return func(c *Config) { c.Clock = clock }
}
