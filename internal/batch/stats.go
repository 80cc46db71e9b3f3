package batch

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time read of processing state. Individual fields are
// never torn, but the snapshot is not transactional across fields; a reader
// polling during an update may be one item behind on a single field. JSON
// field names match the original queue status payload.
type Snapshot struct {
	IsRunning           bool    `json:"is_running"`
	QueueSize           int     `json:"queue_size"`
	CurrentFile         string  `json:"current_file,omitempty"`
	TotalProcessed      int64   `json:"total_processed"`
	SuccessfulProcessed int64   `json:"successful_processed"`
	FailedProcessed     int64   `json:"failed_processed"`
	TotalTime           float64 `json:"total_time"`
	AverageTime         float64 `json:"average_time"`
}

// Tracker holds the worker's mutable counters behind a mutex. The worker is
// the only writer; status queries read concurrently via Snapshot. Both
// counters of an item outcome are applied under one critical section, so
// successful + failed == total holds after every completed update.
type Tracker struct {
	mu           sync.Mutex
	current      string
	processed    int64
	succeeded    int64
	failed       int64
	totalSeconds float64
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) SetCurrent(name string) {
	t.mu.Lock()
	t.current = name
	t.mu.Unlock()
}

func (t *Tracker) ClearCurrent() {
	t.SetCurrent("")
}

func (t *Tracker) RecordSuccess(elapsed time.Duration) {
	t.mu.Lock()
	t.processed++
	t.succeeded++
	t.totalSeconds += elapsed.Seconds()
	t.mu.Unlock()
}

// RecordFailure accumulates elapsed time like RecordSuccess does, so the
// average reflects real throughput including failed attempts.
func (t *Tracker) RecordFailure(elapsed time.Duration) {
	t.mu.Lock()
	t.processed++
	t.failed++
	t.totalSeconds += elapsed.Seconds()
	t.mu.Unlock()
}

// Snapshot fills the counter fields; IsRunning and QueueSize belong to the
// Processor and are filled by its Status method.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		CurrentFile:         t.current,
		TotalProcessed:      t.processed,
		SuccessfulProcessed: t.succeeded,
		FailedProcessed:     t.failed,
		TotalTime:           t.totalSeconds,
	}
	if t.processed > 0 {
		snap.AverageTime = t.totalSeconds / float64(t.processed)
	}
	return snap
}
