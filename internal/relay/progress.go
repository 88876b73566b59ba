// Package relay delivers a topic's full message list to one destination,
// one item at a time, with at-least-once semantics: rate-limit waits are
// honored in full and retried forever, transient failures retry until a
// per-item cutover, and permanently failed items are skipped and counted.
package relay

import (
	"sync"
	"time"
)

// ItemState is the delivery state of the item currently being processed.
type ItemState string

const (
	// StatePending means the item has not been attempted yet.
	StatePending ItemState = "pending"
	// StateAttempting means a relay call is in flight.
	StateAttempting ItemState = "attempting"
	// StateRetryWait means the item is sleeping out a backoff or
	// rate-limit wait before the next attempt.
	StateRetryWait ItemState = "retry_wait"
	// StateDelivered means the item reached the destination.
	StateDelivered ItemState = "delivered"
	// StateSkipped means the item permanently failed and was passed over.
	StateSkipped ItemState = "skipped"
)

// JobStatus is the overall state of a relay job.
type JobStatus string

const (
	// StatusRunning means items are still being processed.
	StatusRunning JobStatus = "running"
	// StatusDone means the job ran to completion.
	StatusDone JobStatus = "done"
	// StatusCancelled means the job stopped early on a cancellation
	// request and reported a partial summary.
	StatusCancelled JobStatus = "cancelled"
	// StatusFailed means the job could not start (topic not found).
	StatusFailed JobStatus = "failed"
)

// Summary is the terminal report of a relay job. Partial success is a
// normal outcome, not an error state.
type Summary struct {
	Delivered int `json:"delivered"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

// Snapshot is an immutable view of a job's progress.
type Snapshot struct {
	Status         JobStatus `json:"status"`
	ItemState      ItemState `json:"item_state"`
	CurrentIndex   int       `json:"current_index"`
	Delivered      int       `json:"delivered"`
	Skipped        int       `json:"skipped"`
	Total          int       `json:"total"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
}

// Progress tracks a relay job's state for concurrent observers.
type Progress struct {
	mu sync.RWMutex

	status    JobStatus
	itemState ItemState
	current   int
	delivered int
	skipped   int
	total     int
	started   time.Time
}

// NewProgress creates a progress tracker for a job over total items.
func NewProgress(total int) *Progress {
	return &Progress{
		status:    StatusRunning,
		itemState: StatePending,
		total:     total,
		started:   time.Now(),
	}
}

// SetItemState records the state of the in-flight item.
func (p *Progress) SetItemState(index int, state ItemState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = index
	p.itemState = state
}

// MarkDelivered counts one delivered item.
func (p *Progress) MarkDelivered() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delivered++
	p.itemState = StateDelivered
}

// MarkSkipped counts one permanently skipped item.
func (p *Progress) MarkSkipped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skipped++
	p.itemState = StateSkipped
}

// Finish records the job's terminal status.
func (p *Progress) Finish(status JobStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

// Summary returns the current counters as a terminal summary.
func (p *Progress) Summary() Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Summary{Delivered: p.delivered, Skipped: p.skipped, Total: p.total}
}

// Snapshot returns an immutable copy of the current progress.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		Status:         p.status,
		ItemState:      p.itemState,
		CurrentIndex:   p.current,
		Delivered:      p.delivered,
		Skipped:        p.skipped,
		Total:          p.total,
		ElapsedSeconds: int(time.Since(p.started).Seconds()),
	}
}
