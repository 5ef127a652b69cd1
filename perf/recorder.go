// Package perf accumulates the client-wide call counters: call and failure
// totals, and total/min/max/average call time.
package perf

import (
	"sync"
	"time"

	"github.com/sarchlab/dtesn/core"
)

// A CallRecord describes one completed public operation. It is delivered as
// the Item at the CallEnd hook position.
type CallRecord struct {
	Op    string
	Start time.Time
	End   time.Time
	OK    bool
}

// Duration returns the wall time the call took.
func (r CallRecord) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// A Recorder accumulates the global performance counters. All methods are
// safe for concurrent use. The internal lock is independent of the instance
// table lock and is never held across a provider call.
type Recorder struct {
	lock sync.Mutex

	totalCalls  uint64
	totalTime   time.Duration
	minCallTime time.Duration
	maxCallTime time.Duration
	failedCalls uint32
}

// NewRecorder creates a Recorder with zeroed counters.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record accounts one completed call that started at the given time.
func (r *Recorder) Record(start time.Time, ok bool) {
	r.RecordDuration(time.Since(start), ok)
}

// RecordDuration accounts one completed call of a known duration. The first
// recorded call seeds both the minimum and the maximum call time; failures
// count toward the totals like any other call.
func (r *Recorder) RecordDuration(d time.Duration, ok bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.totalCalls++
	r.totalTime += d

	if r.totalCalls == 1 {
		r.minCallTime = d
		r.maxCallTime = d
	} else {
		if d < r.minCallTime {
			r.minCallTime = d
		}
		if d > r.maxCallTime {
			r.maxCallTime = d
		}
	}

	if !ok {
		r.failedCalls++
	}
}

// Snapshot returns the counters as they stand. ActiveInstances and
// MemoryUsageBytes are owned by the registry and stay zero here.
func (r *Recorder) Snapshot() core.PerfStats {
	r.lock.Lock()
	defer r.lock.Unlock()

	stats := core.PerfStats{
		TotalAPICalls:      r.totalCalls,
		TotalExecutionTime: r.totalTime,
		MinCallTime:        r.minCallTime,
		MaxCallTime:        r.maxCallTime,
		FailedCalls:        r.failedCalls,
	}

	if r.totalCalls > 0 {
		stats.AvgCallOverhead = r.totalTime / time.Duration(r.totalCalls)
	}

	return stats
}

// Reset zeroes every counter.
func (r *Recorder) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.totalCalls = 0
	r.totalTime = 0
	r.minCallTime = 0
	r.maxCallTime = 0
	r.failedCalls = 0
}
