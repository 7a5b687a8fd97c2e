// Package profiler records stage timings and memory usage of a run.
package profiler

import (
	"runtime"
	"sort"
	"sync"
	"time"
)

// TimeTracker tracks timing statistics for one operation.
type TimeTracker struct {
	name      string
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// OperationStats is a snapshot of a TimeTracker.
type OperationStats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Mean  time.Duration `json:"mean"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// Timings collects operation durations. It is safe for concurrent use.
type Timings struct {
	mu         sync.Mutex
	operations map[string]*TimeTracker
	order      []string
}

// NewTimings creates an empty collector.
func NewTimings() *Timings {
	return &Timings{operations: make(map[string]*TimeTracker)}
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (t *Timings) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		t.Record(name, time.Since(start))
	}
}

// Record adds one completed operation.
func (t *Timings) Record(name string, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tracker, exists := t.operations[name]
	if !exists {
		tracker = &TimeTracker{
			name:    name,
			minTime: duration,
			maxTime: duration,
		}
		t.operations[name] = tracker
		t.order = append(t.order, name)
	}

	tracker.totalTime += duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Stats returns a snapshot of every operation in first-seen order.
func (t *Timings) Stats() []OperationStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]OperationStats, 0, len(t.order))
	for _, name := range t.order {
		tracker := t.operations[name]
		out = append(out, OperationStats{
			Name:  name,
			Count: tracker.count,
			Total: tracker.totalTime,
			Mean:  tracker.totalTime / time.Duration(tracker.count),
			Min:   tracker.minTime,
			Max:   tracker.maxTime,
		})
	}
	return out
}

// Names returns the tracked operation names, sorted.
func (t *Timings) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := append([]string(nil), t.order...)
	sort.Strings(names)
	return names
}

// MemoryMetrics captures memory usage statistics.
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
}

// Memory reads the current runtime memory statistics.
func Memory() MemoryMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryMetrics{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
		HeapAllocBytes:  m.HeapAlloc,
	}
}
