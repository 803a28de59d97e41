package pipeline

import (
	"context"
	"sync"
)

// Registry owns the in-flight runs. It gives the cancel path an explicit
// in-process signal to the executor, on top of the job-record write: cancel
// marks the record failed first, then signals here so the run stops at the
// next stage boundary instead of grinding on.
type Registry struct {
	mu      sync.Mutex
	cancels map[uint]context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{cancels: make(map[uint]context.CancelFunc)}
}

func (r *Registry) register(ctx context.Context, jobID uint) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancels[jobID] = cancel
	r.mu.Unlock()
	return ctx
}

func (r *Registry) release(jobID uint) {
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	delete(r.cancels, jobID)
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// Cancel signals the in-flight run for a job, if any. Returns whether a run
// was signalled; false means the run already finished or never started here.
func (r *Registry) Cancel(jobID uint) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// InFlight reports the number of runs currently registered.
func (r *Registry) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}
