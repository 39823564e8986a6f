package pagetree

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    putCounter   prometheus.Counter
//	    getHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordPut(duration time.Duration, err error) {
//	    p.putCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordGet is called after each lookup.
	// hit reports whether the key was present, err is nil if successful.
	RecordGet(duration time.Duration, hit bool, err error)

	// RecordPut is called after Put, PutIfAbsent, Increment and Update.
	RecordPut(duration time.Duration, err error)

	// RecordRemove is called after Remove and CompareAndRemove.
	RecordRemove(duration time.Duration, err error)

	// RecordReplace is called after Replace and CompareAndReplace.
	// swapped reports whether the value changed.
	RecordReplace(duration time.Duration, swapped bool, err error)

	// RecordCapacityError is called whenever an operation fails because a
	// page or the address space is full.
	RecordCapacityError()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGet(time.Duration, bool, error)     {}
func (NoopMetricsCollector) RecordPut(time.Duration, error)           {}
func (NoopMetricsCollector) RecordRemove(time.Duration, error)        {}
func (NoopMetricsCollector) RecordReplace(time.Duration, bool, error) {}
func (NoopMetricsCollector) RecordCapacityError()                     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	GetCount       atomic.Int64
	GetHits        atomic.Int64
	GetErrors      atomic.Int64
	GetTotalNanos  atomic.Int64
	PutCount       atomic.Int64
	PutErrors      atomic.Int64
	PutTotalNanos  atomic.Int64
	RemoveCount    atomic.Int64
	RemoveErrors   atomic.Int64
	ReplaceCount   atomic.Int64
	ReplaceSwapped atomic.Int64
	ReplaceErrors  atomic.Int64
	CapacityErrors atomic.Int64
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(duration time.Duration, hit bool, err error) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if hit {
		b.GetHits.Add(1)
	}
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(duration time.Duration, err error) {
	b.PutCount.Add(1)
	b.PutTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PutErrors.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(duration time.Duration, err error) {
	b.RemoveCount.Add(1)
	if err != nil {
		b.RemoveErrors.Add(1)
	}
}

// RecordReplace implements MetricsCollector.
func (b *BasicMetricsCollector) RecordReplace(duration time.Duration, swapped bool, err error) {
	b.ReplaceCount.Add(1)
	if swapped {
		b.ReplaceSwapped.Add(1)
	}
	if err != nil {
		b.ReplaceErrors.Add(1)
	}
}

// RecordCapacityError implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCapacityError() {
	b.CapacityErrors.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		GetCount:       b.GetCount.Load(),
		GetHits:        b.GetHits.Load(),
		GetErrors:      b.GetErrors.Load(),
		GetAvgNanos:    avgNanos(&b.GetTotalNanos, &b.GetCount),
		PutCount:       b.PutCount.Load(),
		PutErrors:      b.PutErrors.Load(),
		PutAvgNanos:    avgNanos(&b.PutTotalNanos, &b.PutCount),
		RemoveCount:    b.RemoveCount.Load(),
		RemoveErrors:   b.RemoveErrors.Load(),
		ReplaceCount:   b.ReplaceCount.Load(),
		ReplaceSwapped: b.ReplaceSwapped.Load(),
		ReplaceErrors:  b.ReplaceErrors.Load(),
		CapacityErrors: b.CapacityErrors.Load(),
	}
}

func avgNanos(total, count *atomic.Int64) int64 {
	n := count.Load()
	if n == 0 {
		return 0
	}
	return total.Load() / n
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	GetCount       int64
	GetHits        int64
	GetErrors      int64
	GetAvgNanos    int64
	PutCount       int64
	PutErrors      int64
	PutAvgNanos    int64
	RemoveCount    int64
	RemoveErrors   int64
	ReplaceCount   int64
	ReplaceSwapped int64
	ReplaceErrors  int64
	CapacityErrors int64
}
