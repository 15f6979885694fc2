package rediskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/feltlabs/beacon"
)

// state is the whole-value payload stored under Config.Key.
type state struct {
	Version int                  `json:"version"`
	Entries []beacon.RetryEntry  `json:"entries"`
}

// Store implements beacon.Backend over a single Redis key.
type Store struct {
	client redis.UniversalClient
	rs     *redsync.Redsync
	cfg    Config
}

var _ beacon.Backend = (*Store)(nil)

// NewStore constructs a Redis-backed Store with validated configuration.
func NewStore(client redis.UniversalClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, ErrClientRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	pool := goredis.NewPool(client)
	rs := redsync.New(pool)

	return &Store{client: client, rs: rs, cfg: cfg}, nil
}

func (s *Store) mutex() *redsync.Mutex {
	return s.rs.NewMutex(s.cfg.lockKey(),
		redsync.WithExpiry(s.cfg.LockExpiry),
		redsync.WithTries(s.cfg.LockTries),
		redsync.WithRetryDelay(s.cfg.LockDelay),
	)
}

func (s *Store) withLock(ctx context.Context, fn func() error) error {
	mutex := s.mutex()
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrLockFailed, err)
	}
	defer func() { _, _ = mutex.UnlockContext(ctx) }()

	return fn()
}

func (s *Store) readState(ctx context.Context) (state, error) {
	raw, err := s.client.Get(ctx, s.cfg.Key).Result()
	if errors.Is(err, redis.Nil) {
		return state{}, nil
	}
	if err != nil {
		return state{}, fmt.Errorf("rediskv: get: %w", err)
	}

	var st state
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return state{}, fmt.Errorf("rediskv: unmarshal: %w", err)
	}

	return st, nil
}

func (s *Store) writeState(ctx context.Context, st state) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("rediskv: marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.cfg.Key, payload, 0).Err(); err != nil {
		return fmt.Errorf("rediskv: set: %w", err)
	}

	return nil
}

// Push implements beacon.Backend.
func (s *Store) Push(ctx context.Context, entry beacon.RetryEntry) error {
	return s.withLock(ctx, func() error {
		st, err := s.readState(ctx)
		if err != nil {
			return err
		}

		st.Entries = append(st.Entries, entry)
		if len(st.Entries) > s.cfg.MaxNumber {
			// The synchronous-kv backend has no cheap "trim the oldest N"
			// operation the way an ordered log does, so an overflowing push
			// wipes the whole slot instead of evicting a batch.
			st.Entries = nil
		}

		return s.writeState(ctx, st)
	})
}

// Shift implements beacon.Backend.
func (s *Store) Shift(ctx context.Context) (beacon.RetryEntry, bool, error) {
	var (
		entry beacon.RetryEntry
		found bool
	)

	err := s.withLock(ctx, func() error {
		st, err := s.readState(ctx)
		if err != nil {
			return err
		}
		if len(st.Entries) == 0 {
			return nil
		}

		entry = st.Entries[0]
		found = true
		st.Entries = st.Entries[1:]

		return s.writeState(ctx, st)
	})

	return entry, found, err
}

// PushIfNotClearing implements beacon.Backend.
func (s *Store) PushIfNotClearing(ctx context.Context, entry beacon.RetryEntry, token string) error {
	return s.withLock(ctx, func() error {
		st, err := s.readState(ctx)
		if err != nil {
			return err
		}
		if strconv.Itoa(st.Version) != token {
			return nil
		}

		// Requeued entries are older than anything concurrently appended by
		// a plain Push, so they go back to the front of the array rather
		// than the end — otherwise a requeued entry drains behind every
		// newer push and can be starved indefinitely.
		st.Entries = append([]beacon.RetryEntry{entry}, st.Entries...)
		if len(st.Entries) > s.cfg.MaxNumber {
			st.Entries = nil
		}

		return s.writeState(ctx, st)
	})
}

// ClearToken implements beacon.Backend.
func (s *Store) ClearToken(ctx context.Context) (string, error) {
	st, err := s.readState(ctx)
	if err != nil {
		return "", err
	}

	return strconv.Itoa(st.Version), nil
}

// Clear implements beacon.Backend.
func (s *Store) Clear(ctx context.Context) error {
	return s.withLock(ctx, func() error {
		st, err := s.readState(ctx)
		if err != nil {
			return err
		}

		return s.writeState(ctx, state{Version: st.Version + 1})
	})
}

// Peek implements beacon.Backend.
func (s *Store) Peek(ctx context.Context, count int) ([]beacon.RetryEntry, error) {
	st, err := s.readState(ctx)
	if err != nil {
		return nil, err
	}
	if count > len(st.Entries) {
		count = len(st.Entries)
	}

	return st.Entries[:count], nil
}

// PeekBack implements beacon.Backend.
func (s *Store) PeekBack(ctx context.Context, count int) ([]beacon.RetryEntry, error) {
	st, err := s.readState(ctx)
	if err != nil {
		return nil, err
	}
	if count > len(st.Entries) {
		count = len(st.Entries)
	}

	return st.Entries[len(st.Entries)-count:], nil
}
