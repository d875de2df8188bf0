package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/raysh454/zapscan/internal/logging"
	"github.com/raysh454/zapscan/internal/model"
	"github.com/raysh454/zapscan/internal/zap"
)

var (
	ErrTaskExists  = errors.New("a task for this scan is already queued or running")
	ErrQueueFull   = errors.New("scan queue is full")
	ErrQueueClosed = errors.New("scan queue is shut down")
)

// ScanTask is one unit of background work. Auth carries credentials for
// authenticated front-end scans; it lives only in memory.
type ScanTask struct {
	ScanID string
	Kind   model.ScanKind
	Auth   *zap.AuthSettings
}

// TaskHandler runs a task. ctx is cancelled by Cancel or by a forced
// shutdown.
type TaskHandler func(ctx context.Context, task ScanTask)

type queuedTask struct {
	ctx  context.Context
	task ScanTask
}

// TaskQueue is a bounded worker pool that runs at most one task per scan id.
type TaskQueue struct {
	workers int
	handler TaskHandler
	logger  logging.Logger

	tasks chan queuedTask

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	closed   bool
	started  bool

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

func NewTaskQueue(workers, size int, handler TaskHandler, logger logging.Logger) *TaskQueue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	base, stop := context.WithCancel(context.Background())
	return &TaskQueue{
		workers:  workers,
		handler:  handler,
		logger:   logger.With(logging.Field{Key: "component", Value: "queue"}),
		tasks:    make(chan queuedTask, size),
		inflight: make(map[string]context.CancelFunc),
		base:     base,
		stop:     stop,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (q *TaskQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	q.logger.Info("task queue started", logging.Field{Key: "workers", Value: q.workers})
}

// Enqueue schedules task without blocking.
func (q *TaskQueue) Enqueue(task ScanTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.inflight[task.ScanID]; ok {
		return fmt.Errorf("%w: %s", ErrTaskExists, task.ScanID)
	}

	ctx, cancel := context.WithCancel(q.base)
	select {
	case q.tasks <- queuedTask{ctx: ctx, task: task}:
		q.inflight[task.ScanID] = cancel
		return nil
	default:
		cancel()
		return ErrQueueFull
	}
}

// Cancel cancels the context of a queued or running task. It reports
// whether a task was found.
func (q *TaskQueue) Cancel(scanID string) bool {
	q.mu.Lock()
	cancel, ok := q.inflight[scanID]
	q.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Pending reports whether a task for scanID is queued or running.
func (q *TaskQueue) Pending(scanID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inflight[scanID]
	return ok
}

// Shutdown stops accepting tasks and waits for queued and running ones to
// finish. When ctx expires first, the remaining tasks are cancelled.
func (q *TaskQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
		if !q.started {
			// Nobody will drain the channel; run the backlog as cancelled.
			q.started = true
			q.wg.Add(1)
			go q.work()
			q.stop()
		}
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.stop()
		return nil
	case <-ctx.Done():
		q.logger.Warn("shutdown deadline reached, cancelling running scans")
		q.stop()
		<-done
		return ctx.Err()
	}
}

func (q *TaskQueue) work() {
	defer q.wg.Done()
	for item := range q.tasks {
		q.run(item)
	}
}

func (q *TaskQueue) run(item queuedTask) {
	defer func() {
		q.mu.Lock()
		if cancel, ok := q.inflight[item.task.ScanID]; ok {
			cancel()
			delete(q.inflight, item.task.ScanID)
		}
		q.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("scan task panicked",
				logging.Field{Key: "scan_id", Value: item.task.ScanID},
				logging.Field{Key: "error", Value: fmt.Sprint(r)})
		}
	}()
	q.handler(item.ctx, item.task)
}
