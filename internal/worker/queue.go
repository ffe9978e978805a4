package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned by MemoryQueue.Schedule when every slot is taken.
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueClosed is returned after Shutdown has been called.
	ErrQueueClosed = errors.New("job queue is closed")
)

// JobQueue schedules the processing run of an article. Schedule returns as
// soon as the job is accepted; it never waits for the run. The state machine
// does not know which implementation dispatched it.
type JobQueue interface {
	Schedule(ctx context.Context, articleID uint) error
}

// Handler runs the job for one article.
type Handler func(ctx context.Context, articleID uint) error

// MemoryQueue runs jobs on a fixed pool of goroutines in this process. Jobs
// are lost if the process exits before they start; the pending sweep at
// startup picks those articles up again.
type MemoryQueue struct {
	jobs    chan uint
	handler Handler
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewMemoryQueue starts workers goroutines draining a buffer of capacity
// jobs. Each job runs with its own context bounded by timeout (0 means no
// bound), detached from whatever request scheduled it.
func NewMemoryQueue(handler Handler, workers, capacity int, timeout time.Duration, logger *slog.Logger) *MemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	if capacity < 0 {
		capacity = 0
	}

	q := &MemoryQueue{
		jobs:    make(chan uint, capacity),
		handler: handler,
		timeout: timeout,
		logger:  logger,
	}

	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.work()
	}

	logger.Info("Memory job queue started", "workers", workers, "capacity", capacity)
	return q
}

// Schedule hands articleID to a worker without blocking. It fails with
// ErrQueueFull when the buffer is full and ErrQueueClosed after Shutdown.
func (q *MemoryQueue) Schedule(ctx context.Context, articleID uint) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- articleID:
		return nil
	default:
		return fmt.Errorf("failed to schedule article %d: %w", articleID, ErrQueueFull)
	}
}

// Shutdown stops accepting jobs and waits until queued and running jobs
// finish or ctx is done.
func (q *MemoryQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) work() {
	defer q.wg.Done()
	for articleID := range q.jobs {
		q.run(articleID)
	}
}

func (q *MemoryQueue) run(articleID uint) {
	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Job panicked", "article_id", articleID, "panic", fmt.Sprint(r))
		}
	}()

	if err := q.handler(ctx, articleID); err != nil {
		q.logger.Error("Job execution failed", "article_id", articleID, "error", err)
	}
}
