package core

import "time"

// PerfStats is a snapshot of a client's global performance counters. Min
// and max are seeded by the first recorded call; AvgCallOverhead is total
// time divided by total calls.
type PerfStats struct {
	TotalAPICalls      uint64
	TotalExecutionTime time.Duration
	AvgCallOverhead    time.Duration
	MinCallTime        time.Duration
	MaxCallTime        time.Duration
	ActiveInstances    uint32
	FailedCalls        uint32
	MemoryUsageBytes   uint64
}
