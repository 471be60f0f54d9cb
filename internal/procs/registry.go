// Package procs tracks external processes spawned on behalf of jobs so they
// can be terminated when a job is cancelled.
package procs

import (
	"os"
	"sync"
)

// Handle is the part of an external process the registry needs to stop it.
// *os.Process satisfies it.
type Handle interface {
	Kill() error
}

var _ Handle = (*os.Process)(nil)

// Registry maps job ids to their live external processes.
type Registry struct {
	mu    sync.Mutex
	byJob map[string]map[Handle]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byJob: make(map[string]map[Handle]struct{}),
	}
}

// Register records a live process for a job.
func (r *Registry) Register(jobID string, h Handle) {
	if h == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byJob[jobID]
	if !ok {
		set = make(map[Handle]struct{})
		r.byJob[jobID] = set
	}
	set[h] = struct{}{}
}

// Unregister removes a process after it exits. Unknown handles are ignored.
func (r *Registry) Unregister(jobID string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byJob[jobID]
	if !ok {
		return
	}
	delete(set, h)
	if len(set) == 0 {
		delete(r.byJob, jobID)
	}
}

// Cancel kills every process registered for the job and clears its set.
// Cancelling a job with no registered processes is a no-op.
func (r *Registry) Cancel(jobID string) {
	r.mu.Lock()
	set := r.byJob[jobID]
	delete(r.byJob, jobID)
	r.mu.Unlock()

	for h := range set {
		// Kill errors are expected for processes that already exited.
		_ = h.Kill()
	}
}

// Count returns the number of live processes tracked for a job.
func (r *Registry) Count(jobID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byJob[jobID])
}
