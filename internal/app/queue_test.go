package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raysh454/zapscan/internal/testutil"
)

func TestTaskQueue_RunsTasks(t *testing.T) {
	t.Parallel()
	var (
		mu  sync.Mutex
		ran []string
		wg  sync.WaitGroup
	)
	wg.Add(3)
	q := NewTaskQueue(2, 4, func(ctx context.Context, task ScanTask) {
		defer wg.Done()
		mu.Lock()
		ran = append(ran, task.ScanID)
		mu.Unlock()
	}, &testutil.DummyLogger{})
	q.Start()
	defer q.Shutdown(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ScanTask{ScanID: id}); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 3 {
		t.Errorf("ran %d tasks, want 3", len(ran))
	}
}

func TestTaskQueue_OneTaskPerScan(t *testing.T) {
	t.Parallel()
	q := NewTaskQueue(1, 4, func(context.Context, ScanTask) {}, &testutil.DummyLogger{})

	if err := q.Enqueue(ScanTask{ScanID: "a"}); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := q.Enqueue(ScanTask{ScanID: "a"}); !errors.Is(err, ErrTaskExists) {
		t.Errorf("second Enqueue err = %v, want ErrTaskExists", err)
	}
	if !q.Pending("a") {
		t.Error("expected task a to be pending")
	}
}

func TestTaskQueue_FullAndClosed(t *testing.T) {
	t.Parallel()
	q := NewTaskQueue(1, 1, func(context.Context, ScanTask) {}, &testutil.DummyLogger{})

	if err := q.Enqueue(ScanTask{ScanID: "a"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ScanTask{ScanID: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
	if q.Pending("b") {
		t.Error("rejected task must not be tracked")
	}

	if err := q.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := q.Enqueue(ScanTask{ScanID: "c"}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("err = %v, want ErrQueueClosed", err)
	}
}

func TestTaskQueue_CancelReachesHandler(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	result := make(chan error, 1)
	q := NewTaskQueue(1, 1, func(ctx context.Context, task ScanTask) {
		close(started)
		<-ctx.Done()
		result <- ctx.Err()
	}, &testutil.DummyLogger{})
	q.Start()
	defer q.Shutdown(context.Background())

	if err := q.Enqueue(ScanTask{ScanID: "a"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-started
	if !q.Cancel("a") {
		t.Fatal("Cancel reported no task")
	}
	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("handler ctx err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not observe cancellation")
	}
	if q.Cancel("unknown") {
		t.Error("Cancel of unknown id should report false")
	}
}

func TestTaskQueue_ShutdownDeadlineCancelsRunning(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	q := NewTaskQueue(1, 1, func(ctx context.Context, task ScanTask) {
		close(started)
		<-ctx.Done()
	}, &testutil.DummyLogger{})
	q.Start()

	if err := q.Enqueue(ScanTask{ScanID: "a"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown err = %v, want DeadlineExceeded", err)
	}
}

func TestTaskQueue_RecoversPanics(t *testing.T) {
	t.Parallel()
	logger := &testutil.DummyLogger{}
	var calls int32
	done := make(chan struct{})
	q := NewTaskQueue(1, 2, func(ctx context.Context, task ScanTask) {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
		close(done)
	}, logger)
	q.Start()
	defer q.Shutdown(context.Background())

	_ = q.Enqueue(ScanTask{ScanID: "a"})
	_ = q.Enqueue(ScanTask{ScanID: "b"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}
	if len(logger.Errors) == 0 {
		t.Error("expected the panic to be logged")
	}
}
