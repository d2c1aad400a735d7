package host

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

var (
	ErrExecutorFull   = errors.New("executor queue is full")
	ErrExecutorClosed = errors.New("executor is closed")
)

// ExecutorStats is a point-in-time view of the worker pool.
type ExecutorStats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Executor runs blocking jobs on a fixed pool of workers.
// Job results are logged and discarded.
type Executor struct {
	logger  *log.Logger
	workers int
	jobs    chan func() error

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewExecutor starts workers goroutines reading from a queue of queueSize jobs.
func NewExecutor(workers, queueSize int, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	e := &Executor{
		logger:  logger,
		workers: workers,
		jobs:    make(chan func() error, queueSize),
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Submit queues a job without blocking.
func (e *Executor) Submit(job func() error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrExecutorClosed
	}
	select {
	case e.jobs <- job:
		e.submitted.Add(1)
		return nil
	default:
		return ErrExecutorFull
	}
}

// Close stops accepting jobs and waits for queued jobs to finish.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.jobs)
	e.mu.Unlock()

	e.wg.Wait()
}

// Stats returns current counters.
func (e *Executor) Stats() ExecutorStats {
	return ExecutorStats{
		Workers:   e.workers,
		Queued:    len(e.jobs),
		Submitted: e.submitted.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
	}
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for job := range e.jobs {
		if err := e.run(job); err != nil {
			e.failed.Add(1)
			e.logger.Printf("HOST: executor job failed: %v", err)
			continue
		}
		e.completed.Add(1)
	}
}

func (e *Executor) run(job func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return job()
}
