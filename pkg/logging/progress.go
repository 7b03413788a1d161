package logging

import (
	"sync"
	"sync/atomic"
	"time"
)

// ProgressTracker counts completed items and estimates the time left from
// a moving average of recent item durations. It is safe for concurrent use.
type ProgressTracker struct {
	phase     string
	total     int64
	completed atomic.Int64
	startTime time.Time

	mu     sync.Mutex
	recent []time.Duration
}

const recentWindow = 10

// NewProgressTracker creates a tracker for total items.
func NewProgressTracker(phase string, total int64) *ProgressTracker {
	return &ProgressTracker{
		phase:     phase,
		total:     total,
		startTime: time.Now(),
		recent:    make([]time.Duration, 0, recentWindow),
	}
}

// RecordCompletion records that an item completed in d.
func (pt *ProgressTracker) RecordCompletion(d time.Duration) {
	pt.completed.Add(1)

	pt.mu.Lock()
	if len(pt.recent) == recentWindow {
		copy(pt.recent, pt.recent[1:])
		pt.recent = pt.recent[:recentWindow-1]
	}
	pt.recent = append(pt.recent, d)
	pt.mu.Unlock()
}

// Progress returns the completed and total counts.
func (pt *ProgressTracker) Progress() (completed, total int64) {
	return pt.completed.Load(), pt.total
}

// Phase returns the phase name the tracker was created with.
func (pt *ProgressTracker) Phase() string {
	return pt.phase
}

// ETA returns the estimated time remaining.
func (pt *ProgressTracker) ETA() time.Duration {
	completed := pt.completed.Load()
	if completed == 0 {
		return 0
	}
	remaining := pt.total - completed
	if remaining <= 0 {
		return 0
	}

	pt.mu.Lock()
	var avg time.Duration
	if len(pt.recent) > 0 {
		var sum time.Duration
		for _, d := range pt.recent {
			sum += d
		}
		avg = sum / time.Duration(len(pt.recent))
	} else {
		avg = time.Since(pt.startTime) / time.Duration(completed)
	}
	pt.mu.Unlock()

	return avg * time.Duration(remaining)
}

// Elapsed returns time since tracking started.
func (pt *ProgressTracker) Elapsed() time.Duration {
	return time.Since(pt.startTime)
}
