package batch

import "time"

// WorkItem is one unit of deferred work: a source audio file and the
// directory its transcript will be written to. Items are owned by the Store
// until dequeued, then exclusively by the worker until dropped.
type WorkItem struct {
	SourcePath string
	OutputDir  string
	EnqueuedAt time.Time
}
