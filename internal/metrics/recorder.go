package metrics

import "time"

// Recorder defines observability hooks for event store operations.
// Implementations may forward to Prometheus, OpenTelemetry, etc. The
// NoopRecorder default lets components skip nil checks entirely.
type Recorder interface {
	// IncAppend counts a successful append operation.
	IncAppend()
	// IncAppendConflict counts an append rejected on version mismatch.
	IncAppendConflict()
	// ObserveAppendDuration records end-to-end append latency.
	ObserveAppendDuration(d time.Duration)
	// AddEventsReplayed counts events served by replay reads.
	AddEventsReplayed(n int)
	// IncCacheHit / IncCacheMiss count read cache lookups.
	IncCacheHit()
	IncCacheMiss()
	// IncLiveDelivery counts events delivered to live subscribers.
	IncLiveDelivery()
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncAppend()                            {}
func (NoopRecorder) IncAppendConflict()                    {}
func (NoopRecorder) ObserveAppendDuration(time.Duration)   {}
func (NoopRecorder) AddEventsReplayed(int)                 {}
func (NoopRecorder) IncCacheHit()                          {}
func (NoopRecorder) IncCacheMiss()                         {}
func (NoopRecorder) IncLiveDelivery()                      {}
