package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/memo-transcriber/internal/types"
)

// Overflow policies for a full queue
const (
	OverflowReject = "reject"
	OverflowBlock  = "block"
)

var (
	// ErrQueueFull is returned by Submit when the queue is full and the policy is reject
	ErrQueueFull = errors.New("job queue is full")
	// ErrStopped is returned by Submit after Stop has been called
	ErrStopped = errors.New("dispatcher stopped")
)

// Processor runs the whole pipeline for one source
type Processor interface {
	Process(ctx context.Context, source types.AudioSource) (*types.ProcessingResult, error)
}

// Options configures a Dispatcher
type Options struct {
	Workers   int
	QueueSize int
	Overflow  string
}

// JobHandle is returned by Submit for the caller to observe its job
type JobHandle struct {
	ID       string
	done     <-chan struct{}
	registry *Registry
}

// Done is closed once the job reaches COMPLETED or FAILED
func (h *JobHandle) Done() <-chan struct{} {
	return h.done
}

// Job returns the current snapshot of the job
func (h *JobHandle) Job() Job {
	job, _ := h.registry.Get(h.ID)
	return job
}

type task struct {
	id     string
	source types.AudioSource
	done   chan struct{}
}

// Dispatcher runs submitted jobs on a fixed pool of workers
type Dispatcher struct {
	processor Processor
	registry  *Registry
	queue     chan *task
	workers   int
	overflow  string
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex // guards stopped and the queue close
	sendMu   sync.Mutex   // serializes capacity check and send under reject
	stopped  bool
	quit     chan struct{}
	stopOnce sync.Once
}

// NewDispatcher creates a dispatcher; call Start to launch its workers
func NewDispatcher(processor Processor, registry *Registry, opts Options, logger zerolog.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.Overflow == "" {
		opts.Overflow = OverflowReject
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		processor: processor,
		registry:  registry,
		queue:     make(chan *task, opts.QueueSize),
		workers:   opts.Workers,
		overflow:  opts.Overflow,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		quit:      make(chan struct{}),
	}
}

// Registry returns the job registry backing this dispatcher
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Start launches the workers
func (d *Dispatcher) Start() {
	d.logger.Info().Msgf("Starting worker pool with %d workers", d.workers)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Submit enqueues source and returns without waiting for processing.
// Under the block policy it waits for queue space until ctx is done.
func (d *Dispatcher) Submit(ctx context.Context, source types.AudioSource, sourceType string) (*JobHandle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return nil, ErrStopped
	}

	job := &Job{
		ID:          uuid.New().String(),
		Source:      source,
		SourceType:  sourceType,
		Status:      types.StatusQueued,
		SubmittedAt: time.Now(),
	}
	t := &task{id: job.ID, source: source, done: make(chan struct{})}

	if d.overflow == OverflowBlock {
		d.registry.add(job)
		select {
		case d.queue <- t:
		case <-ctx.Done():
			d.abandon(t, ctx.Err())
			return nil, ctx.Err()
		case <-d.quit:
			d.abandon(t, ErrStopped)
			return nil, ErrStopped
		}
	} else {
		d.sendMu.Lock()
		if len(d.queue) == cap(d.queue) {
			d.sendMu.Unlock()
			return nil, ErrQueueFull
		}
		d.registry.add(job)
		d.queue <- t
		d.sendMu.Unlock()
	}

	d.logger.Info().
		Str("job_id", job.ID).
		Str("source", sourceType).
		Str("file", source.Path).
		Msg("Job enqueued")
	return &JobHandle{ID: job.ID, done: t.done, registry: d.registry}, nil
}

func (d *Dispatcher) abandon(t *task, err error) {
	d.registry.finish(t.id, nil, fmt.Errorf("not enqueued: %w", err))
	close(t.done)
}

// Stop refuses new submissions, lets queued and in-flight jobs finish, and
// cancels them if ctx expires first.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		close(d.quit)
		d.mu.Lock()
		d.stopped = true
		close(d.queue)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	log := d.logger.With().Int("worker", id).Logger()
	log.Debug().Msg("Worker started")

	for t := range d.queue {
		d.run(log, t)
	}
}

func (d *Dispatcher) run(log zerolog.Logger, t *task) {
	defer close(t.done)

	d.registry.start(t.id)
	log.Info().Str("job_id", t.id).Msg("Processing job")

	result, err := d.process(log, t)
	d.registry.finish(t.id, result, err)
	if err != nil {
		log.Error().Err(err).Str("job_id", t.id).Str("file", t.source.Path).Msg("Job failed")
		return
	}
	log.Info().Str("job_id", t.id).Int("segments", len(result.Segments)).Msg("Job completed")
}

// process runs one job with panic recovery so only that job fails
func (d *Dispatcher) process(log zerolog.Logger, t *task) (result *types.ProcessingResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("job_id", t.id).
				Str("stack", string(debug.Stack())).
				Msgf("PANIC processing job: %v", r)
			result = nil
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()

	result, err = d.processor.Process(d.ctx, t.source)
	if err == nil && result == nil {
		err = errors.New("processor returned no result")
	}
	return result, err
}
