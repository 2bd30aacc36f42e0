package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/movra/payout-service/internal/service"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the local queue has no free slot
	ErrQueueFull = errors.New("payout queue is full")
	// ErrQueueClosed is returned after Stop
	ErrQueueClosed = errors.New("payout queue is closed")
)

// Runner executes one queued task
type Runner interface {
	Run(ctx context.Context, payoutID string) (service.Result, error)
}

// LocalQueue is an in-process job queue drained by a fixed pool of
// goroutines. Jobs still buffered at Stop are processed before Stop
// returns.
type LocalQueue struct {
	jobs    chan string
	runner  Runner
	workers int
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocalQueue creates a queue holding up to size pending jobs
func NewLocalQueue(runner Runner, size, workers int, logger *zap.Logger) *LocalQueue {
	if workers < 1 {
		workers = 1
	}
	return &LocalQueue{
		jobs:    make(chan string, size),
		runner:  runner,
		workers: workers,
		logger:  logger,
	}
}

// Start launches the worker goroutines. ctx is handed to every task.
func (q *LocalQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(worker int) {
			defer q.wg.Done()
			for id := range q.jobs {
				if _, err := q.runner.Run(ctx, id); err != nil {
					q.logger.Error("Queued payout task failed",
						zap.Int("worker", worker),
						zap.String("payoutId", id),
						zap.Error(err),
					)
				}
			}
		}(i)
	}
	q.logger.Info("Local payout queue started", zap.Int("workers", q.workers))
}

// Enqueue schedules one processing run without blocking
func (q *LocalQueue) Enqueue(ctx context.Context, payoutID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- payoutID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new jobs and waits for queued and running ones to finish
func (q *LocalQueue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	q.wg.Wait()
}
