package beacon

import "time"

// Metrics captures beacon-level telemetry.
type Metrics interface {
	// ObserveSendDuration records the time from the first attempt to final settlement.
	ObserveSendDuration(duration time.Duration)
	// AddSent increments the count of successful deliveries.
	AddSent(count int)
	// AddRetried increments the count of in-process retry attempts.
	AddRetried(count int)
	// AddPersisted increments the count of entries handed to the queue.
	AddPersisted(count int)
	// AddDropped increments the count of payloads abandoned without persistence.
	AddDropped(count int)
	// SetQueueDepth updates the current persisted-entry count.
	SetQueueDepth(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveSendDuration implements Metrics.
func (NopMetrics) ObserveSendDuration(time.Duration) {}

// AddSent implements Metrics.
func (NopMetrics) AddSent(int) {}

// AddRetried implements Metrics.
func (NopMetrics) AddRetried(int) {}

// AddPersisted implements Metrics.
func (NopMetrics) AddPersisted(int) {}

// AddDropped implements Metrics.
func (NopMetrics) AddDropped(int) {}

// SetQueueDepth implements Metrics.
func (NopMetrics) SetQueueDepth(int) {}
