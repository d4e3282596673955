package notification

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("notification queue is full")

// Queue hands a confirmed registration to delivery without waiting for it.
type Queue interface {
	Enqueue(ctx context.Context, registrationID string) error
}

type deliverer interface {
	DeliverByID(ctx context.Context, id string) (Outcome, error)
}

// AsyncQueue runs deliveries on a fixed pool of goroutines inside the process.
type AsyncQueue struct {
	dispatcher deliverer
	logger     *zap.Logger
	jobs       chan string
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAsyncQueue(dispatcher deliverer, workers, buffer int, logger *zap.Logger) *AsyncQueue {
	if workers <= 0 {
		workers = 1
	}
	q := &AsyncQueue{
		dispatcher: dispatcher,
		logger:     logger,
		jobs:       make(chan string, buffer),
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.work()
	}
	return q
}

func (q *AsyncQueue) work() {
	defer q.wg.Done()
	for id := range q.jobs {
		// Deliveries outlive the request that enqueued them.
		if _, err := q.dispatcher.DeliverByID(context.Background(), id); err != nil {
			q.logger.Error("queued delivery failed", zap.String("registration_id", id), zap.Error(err))
		}
	}
}

// Enqueue never blocks; a full buffer is reported as ErrQueueFull.
func (q *AsyncQueue) Enqueue(_ context.Context, registrationID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errors.New("notification queue is closed")
	}
	select {
	case q.jobs <- registrationID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for the queued ones to finish.
func (q *AsyncQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	q.wg.Wait()
}

var _ Queue = (*AsyncQueue)(nil)
