package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/codebuildervaibhav/memo-transcriber/internal/types"
)

// Job is a snapshot of one processing request
type Job struct {
	ID          string                  `json:"id"`
	Source      types.AudioSource       `json:"source"`
	SourceType  string                  `json:"source_type"`
	Status      string                  `json:"status"`
	SubmittedAt time.Time               `json:"submitted_at"`
	StartedAt   time.Time               `json:"started_at,omitzero"`
	FinishedAt  time.Time               `json:"finished_at,omitzero"`
	Result      *types.ProcessingResult `json:"result,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

// Terminal reports whether the job has finished, successfully or not
func (j Job) Terminal() bool {
	return j.Status == types.StatusCompleted || j.Status == types.StatusFailed
}

// EventType classifies job state transitions
type EventType string

const (
	EventQueued    EventType = "job.queued"
	EventStarted   EventType = "job.started"
	EventCompleted EventType = "job.completed"
	EventFailed    EventType = "job.failed"
)

// Event is one sequenced state transition
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Job       Job       `json:"job"`
}

// Registry tracks every submitted job and fans out its transitions.
// Subscribers are called synchronously in sequence order and must not block.
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	order   []string
	nextSeq int64

	// pubMu orders delivery; held across mutation and fan-out
	pubMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// NewRegistry creates an empty job registry
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*Job),
		subs: make(map[int]func(Event)),
	}
}

// Get returns a snapshot of the job with the given id
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns snapshots of all known jobs, newest submission first
func (r *Registry) List() []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.jobs[id])
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

// Subscribe registers fn for every future event and returns its cancel func
func (r *Registry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.pubMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.pubMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.pubMu.Lock()
			delete(r.subs, id)
			r.pubMu.Unlock()
		})
	}
}

// Prune drops terminal jobs that finished more than olderThan ago
func (r *Registry) Prune(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.order[:0]
	removed := 0
	for _, id := range r.order {
		job := r.jobs[id]
		if job.Terminal() && !job.FinishedAt.After(cutoff) {
			delete(r.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed
}

// Len returns the number of tracked jobs
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func (r *Registry) add(job *Job) {
	r.apply(EventQueued, func() *Job {
		r.jobs[job.ID] = job
		r.order = append(r.order, job.ID)
		return job
	})
}

func (r *Registry) start(id string) {
	r.apply(EventStarted, func() *Job {
		job, ok := r.jobs[id]
		if !ok {
			return nil
		}
		job.Status = types.StatusRunning
		job.StartedAt = time.Now()
		return job
	})
}

func (r *Registry) finish(id string, result *types.ProcessingResult, err error) {
	eventType := EventCompleted
	if err != nil {
		eventType = EventFailed
	}
	r.apply(eventType, func() *Job {
		job, ok := r.jobs[id]
		if !ok {
			return nil
		}
		job.FinishedAt = time.Now()
		if err != nil {
			job.Status = types.StatusFailed
			job.Error = err.Error()
			return job
		}
		job.Status = types.StatusCompleted
		job.Result = result
		return job
	})
}

// apply mutates under the write lock, then delivers the resulting snapshot
func (r *Registry) apply(eventType EventType, mutate func() *Job) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	r.mu.Lock()
	job := mutate()
	if job == nil {
		r.mu.Unlock()
		return
	}
	r.nextSeq++
	event := Event{
		Seq:       r.nextSeq,
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Job:       *job,
	}
	r.mu.Unlock()

	for _, fn := range r.subs {
		fn(event)
	}
}
