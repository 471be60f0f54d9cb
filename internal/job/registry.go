package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scribehq/scribe/internal/procs"
)

// RunFunc drives one job to a terminal state. It receives the job's context,
// the job, and its progress channel.
type RunFunc func(ctx context.Context, j *Job, events *Channel)

// Registry owns every live job: its record, its progress channel, and its
// cancellation. It runs a fixed worker pool so at most maxConcurrent jobs
// are in flight.
type Registry struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	channels map[string]*Channel

	queue         chan *Job
	maxConcurrent int
	run           RunFunc
	procs         *procs.Registry
	log           *logrus.Entry

	wg             sync.WaitGroup
	sweepTicker    *time.Ticker
	stopSweep      chan struct{}
	retainTerminal time.Duration
}

// NewRegistry creates a registry backed by the given process registry.
func NewRegistry(maxConcurrent int, pr *procs.Registry, log *logrus.Entry) *Registry {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Registry{
		jobs:           make(map[string]*Job),
		channels:       make(map[string]*Channel),
		queue:          make(chan *Job, 100),
		maxConcurrent:  maxConcurrent,
		procs:          pr,
		log:            log,
		stopSweep:      make(chan struct{}),
		retainTerminal: time.Hour,
	}
}

// Start launches the worker pool and the terminal-job sweeper.
func (r *Registry) Start(run RunFunc) {
	r.run = run

	for i := 0; i < r.maxConcurrent; i++ {
		r.wg.Add(1)
		go r.worker()
	}

	r.sweepTicker = time.NewTicker(10 * time.Minute)
	go r.sweepLoop()
}

// Stop drains the queue and waits for in-flight jobs to finish.
func (r *Registry) Stop() {
	close(r.queue)
	close(r.stopSweep)
	if r.sweepTicker != nil {
		r.sweepTicker.Stop()
	}
	r.wg.Wait()
}

func (r *Registry) worker() {
	defer r.wg.Done()

	for j := range r.queue {
		events := r.channel(j.ID)
		if events == nil {
			// Swept before a worker picked it up.
			continue
		}
		r.run(j.ctx, j, events)
	}
}

// Add creates a job for an uploaded file and queues it for processing.
func (r *Registry) Add(sourcePath, filename string, opts Options) (*Job, error) {
	ctx, cancel := context.WithCancel(context.Background())

	now := time.Now()
	j := &Job{
		ID:         uuid.NewString(),
		Filename:   filename,
		Options:    opts,
		State:      StateCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
		sourcePath: sourcePath,
		ctx:        ctx,
		cancel:     cancel,
	}

	r.mu.Lock()
	r.jobs[j.ID] = j
	r.channels[j.ID] = newChannel()
	r.mu.Unlock()

	select {
	case r.queue <- j:
		return j, nil
	default:
		r.mu.Lock()
		delete(r.jobs, j.ID)
		delete(r.channels, j.ID)
		r.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("job queue is full")
	}
}

// Get returns a copy of the job record, or nil if unknown.
func (r *Registry) Get(id string) *Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if j, ok := r.jobs[id]; ok {
		cp := *j
		return &cp
	}
	return nil
}

// Subscribe returns the job's progress channel. The channel carries events
// for exactly one consumer; a second subscriber would race the first.
func (r *Registry) Subscribe(id string) (<-chan Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[id]
	if !ok {
		return nil, false
	}
	return ch.Events(), true
}

func (r *Registry) channel(id string) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[id]
}

// Cancel signals the job's context and kills its registered external
// processes. Cancelling an unknown or already-terminal job is a no-op.
func (r *Registry) Cancel(id string) bool {
	// State is written by workers under the write lock; read it and take
	// the cancel func while still holding the lock.
	r.mu.RLock()
	var cancel context.CancelFunc
	if j, ok := r.jobs[id]; ok && !j.State.Terminal() {
		cancel = j.cancel
	}
	r.mu.RUnlock()

	if cancel == nil {
		return false
	}

	cancel()
	if r.procs != nil {
		r.procs.Cancel(id)
	}
	return true
}

// SetState records a state transition and publishes a status event.
func (r *Registry) SetState(id string, state State) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	var ch *Channel
	if ok {
		j.State = state
		j.UpdatedAt = time.Now()
		ch = r.channels[id]
	}
	r.mu.Unlock()

	if ch != nil {
		ch.Publish(Event{JobID: id, Type: EventStatus, State: state})
	}
}

// AppendTranscript appends one unit's text to the accumulated transcripts.
func (r *Registry) AppendTranscript(id, plain, formatted string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j, ok := r.jobs[id]; ok {
		if j.Transcript != "" && plain != "" {
			j.Transcript += "\n"
		}
		j.Transcript += plain
		if j.Formatted != "" && formatted != "" {
			j.Formatted += "\n"
		}
		j.Formatted += formatted
		j.UpdatedAt = time.Now()
	}
}

// SetSummary records the job's summary text and extracted key points.
func (r *Registry) SetSummary(id, summary string, keyPoints []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j, ok := r.jobs[id]; ok {
		j.Summary = summary
		j.KeyPoints = keyPoints
		j.UpdatedAt = time.Now()
	}
}

// SetError records the job's fatal error detail.
func (r *Registry) SetError(id, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j, ok := r.jobs[id]; ok {
		j.Error = detail
		j.UpdatedAt = time.Now()
	}
}

func (r *Registry) sweepLoop() {
	for {
		select {
		case <-r.sweepTicker.C:
			r.sweepTerminal()
		case <-r.stopSweep:
			return
		}
	}
}

// sweepTerminal drops terminal jobs that nobody has looked at in a while.
func (r *Registry) sweepTerminal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.retainTerminal)
	for id, j := range r.jobs {
		if j.State.Terminal() && j.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			delete(r.channels, id)
		}
	}
}
