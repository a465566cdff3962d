package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/epetcare/notifier/pkg/logger"
	"github.com/epetcare/notifier/pkg/metrics"
)

// Queue hands notification dispatches to a bounded pool of background
// workers so the clinical write path never waits on a mail provider. A full
// queue is not an error: the job is dropped and the catch-up sweeper will
// deliver the row on its next pass.
type Queue struct {
	pipeline *Pipeline
	jobs     chan string
	wg       sync.WaitGroup
	log      *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewQueue builds a dispatch queue with the given buffer size.
func NewQueue(pipeline *Pipeline, size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{
		pipeline: pipeline,
		jobs:     make(chan string, size),
		log:      logger.WithModule("dispatch.queue"),
	}
}

// Start launches the worker goroutines. Workers exit when the context is
// cancelled or the queue is closed.
func (q *Queue) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-q.jobs:
			if !ok {
				return
			}
			if err := q.pipeline.DispatchNotification(ctx, id); err != nil {
				// Left for the sweeper; delivery failure never propagates.
				q.log.Warn("inline dispatch failed",
					zap.String("notification_id", id),
					zap.Error(err))
			}
		}
	}
}

// Enqueue submits a notification for background dispatch. It never blocks;
// the return value reports whether the job was accepted.
func (q *Queue) Enqueue(notificationID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}

	select {
	case q.jobs <- notificationID:
		return true
	default:
		metrics.QueueDropped.Inc()
		q.log.Warn("dispatch queue full, leaving row for sweeper",
			zap.String("notification_id", notificationID))
		return false
	}
}

// Close stops accepting jobs and waits for in-flight dispatches to finish.
func (q *Queue) Close() {
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
