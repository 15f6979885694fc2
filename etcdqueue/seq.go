package etcdqueue

import (
	"sync"
	"time"

	"github.com/feltlabs/beacon"
)

const sequencerClockSleepStep = 1 * time.Millisecond

// sequencer disambiguates entries sharing the same millisecond Timestamp,
// adapted from a UUIDv7 generator's clock-and-counter
// technique: the counter resets whenever the wall clock advances and
// otherwise increments, sleeping briefly to force the clock forward on the
// rare wraparound.
type sequencer struct {
	mu     sync.Mutex
	clock  beacon.Clock
	lastMS int64
	n      uint32
}

func newSequencer(clock beacon.Clock) *sequencer {
	if clock == nil {
		clock = beacon.SystemClock{}
	}

	return &sequencer{clock: clock}
}

func (s *sequencer) next() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UnixMilli()
	if now != s.lastMS {
		s.lastMS = now
		s.n = 0

		return s.n
	}

	s.n++
	if s.n == 0 {
		for now == s.lastMS {
			time.Sleep(sequencerClockSleepStep)
			now = s.clock.Now().UnixMilli()
		}
		s.lastMS = now
	}

	return s.n
}
