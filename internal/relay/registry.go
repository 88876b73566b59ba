package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ecervera/temario/internal/platform"
)

// Job is one registered relay request driven to completion in the
// background.
type Job struct {
	ID          string
	TopicID     string
	Destination string
	Progress    *Progress

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	summary Summary
	err     error
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel requests cancellation; the in-flight attempt finishes first.
func (j *Job) Cancel() { j.cancel() }

// Result returns the terminal summary and the start error, if any.
// Valid once Done is closed.
func (j *Job) Result() (Summary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.summary, j.err
}

// Registry launches relay jobs and tracks them until collected. Jobs are
// independent of each other; no cross-job ordering is guaranteed.
type Registry struct {
	engine *Engine

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewRegistry creates a registry over engine.
func NewRegistry(engine *Engine) *Registry {
	return &Registry{engine: engine, jobs: make(map[string]*Job)}
}

// Start resolves the topic's entry count and launches the job in its own
// goroutine. mode is fixed for the job's lifetime; empty falls back to the
// engine default. The returned job is registered until Remove is called.
func (r *Registry) Start(ctx context.Context, topicID, originChat, destination string, mode platform.RelayMode) (*Job, error) {
	topic, err := r.engine.store.Get(ctx, topicID)
	if err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:          uuid.NewString(),
		TopicID:     topicID,
		Destination: destination,
		Progress:    NewProgress(len(topic.Entries)),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	go func() {
		defer cancel()
		defer close(job.done)
		summary, runErr := r.engine.Run(jobCtx, topicID, originChat, destination, mode, job.Progress)
		job.mu.Lock()
		job.summary = summary
		job.err = runErr
		job.mu.Unlock()
	}()

	return job, nil
}

// Get returns a registered job by id.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

// Remove forgets a finished job.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

// Active returns snapshots of every registered job.
func (r *Registry) Active() map[string]Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Snapshot, len(r.jobs))
	for id, j := range r.jobs {
		out[id] = j.Progress.Snapshot()
	}
	return out
}
