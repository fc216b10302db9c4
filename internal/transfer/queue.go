package transfer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned when the job buffer has no room; the caller
// should ask the user to retry.
var ErrQueueFull = errors.New("transfer queue full")

// Queue runs orchestrations on a fixed worker pool. Enqueue means "job
// accepted", not "job done": the request handler returns before the transfer
// resolves, and nothing downstream reports back to it.
type Queue struct {
	orch    *Orchestrator
	jobs    chan Intent
	workers int
	log     *slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once

	// mu orders Enqueue against Stop: webhook goroutines may still hold
	// the queue after the server shuts down, and a send on the closed
	// jobs channel would panic.
	mu      sync.RWMutex
	stopped bool
}

// NewQueue creates a Queue with the given buffer size and worker count.
func NewQueue(orch *Orchestrator, size, workers int, log *slog.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		orch:    orch,
		jobs:    make(chan Intent, size),
		workers: workers,
		log:     log,
	}
}

// Start launches the worker pool.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.log.Info("transfer workers started", "workers", q.workers, "queue_size", cap(q.jobs))
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for intent := range q.jobs {
		// Orchestrations are never cancelled once started; a fresh
		// context detaches them from whatever request enqueued them.
		q.orch.Execute(context.Background(), intent)
	}
}

// Enqueue accepts a job for background execution. It never blocks. After
// Stop it rejects with ErrQueueFull so a straggling request handler gets the
// same "try again" outcome as a full buffer.
func (q *Queue) Enqueue(intent Intent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.stopped {
		return ErrQueueFull
	}

	select {
	case q.jobs <- intent:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop drains accepted jobs and waits for workers to finish.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		close(q.jobs)
		q.mu.Unlock()
	})
	q.wg.Wait()
}
