package beacon

import "time"

const (
	// idleWindow is the fixed delay the idle scheduler waits before running,
	// approximating requestIdleCallback's deadline budget.
	idleWindow = 5 * time.Millisecond
	// idleAbsoluteTimeout is the idle scheduler's outer timer. It is longer
	// than idleWindow, so it never fires first.
	idleAbsoluteTimeout = 10 * time.Second
	// tickDelay is the fixed delay TickScheduler waits before running fn.
	tickDelay = 10 * time.Millisecond
)

// Scheduler decides when a scheduled drain step actually runs.
type Scheduler interface {
	// Schedule arranges for fn to run, possibly on another goroutine.
	Schedule(fn func())
}

// TickScheduler runs fn after a short, fixed delay — the "next task tick"
// fallback used when UseIdle is false.
type TickScheduler struct{}

// Schedule implements Scheduler.
func (TickScheduler) Schedule(fn func()) {
	time.AfterFunc(tickDelay, fn)
}

// IdleScheduler runs fn on a new goroutine after the fixed idleWindow delay —
// a short-timeout stand-in for requestIdleCallback, which Go has no native
// equivalent of. It does not detect whether the process is actually idle.
type IdleScheduler struct{}

// Schedule implements Scheduler.
func (IdleScheduler) Schedule(fn func()) {
	go func() {
		timer := time.NewTimer(idleWindow)
		defer timer.Stop()
		deadline := time.NewTimer(idleAbsoluteTimeout)
		defer deadline.Stop()

		select {
		case <-timer.C:
		case <-deadline.C:
		}
		fn()
	}()
}

// SyncScheduler runs fn inline on the calling goroutine before Schedule
// returns. It has no browser analogue — the spec assumes a page that stays
// alive long enough for an async tick or idle callback to fire — but an
// operator-driven one-shot tool has no such guarantee, so it needs a replay
// burst to complete before the process is allowed to exit.
type SyncScheduler struct{}

// Schedule implements Scheduler.
func (SyncScheduler) Schedule(fn func()) { fn() }
