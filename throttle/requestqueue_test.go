package throttle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// startBlockedQueue enqueues a gate item that holds the provider's
// worker so subsequent enqueues land in the pending queue.
func startBlockedQueue(t *testing.T, q *RequestQueue, provider string) (release func(), gateDone <-chan Result) {
	t.Helper()
	gate := make(chan struct{})
	running := make(chan struct{})
	done := q.Enqueue(provider, 0, func(ctx context.Context) (interface{}, error) {
		close(running)
		<-gate
		return "gate", nil
	})
	select {
	case <-running:
	case <-time.After(2 * time.Second):
		t.Fatal("gate item never started")
	}
	return func() { close(gate) }, done
}

// TestRequestQueuePriorityOrder checks items execute in ascending
// (priority, arrival) order.
func TestRequestQueuePriorityOrder(t *testing.T) {
	q := NewRequestQueue(0)
	defer q.Close()
	release, _ := startBlockedQueue(t, q, "tts")

	var mu sync.Mutex
	var order []int
	var results []<-chan Result

	for i, priority := range []int{2, 1, 2, 1} {
		idx := i
		pr := priority
		results = append(results, q.Enqueue("tts", pr, func(ctx context.Context) (interface{}, error) {
			mu.Lock()
			order = append(order, pr)
			mu.Unlock()
			_ = idx
			return pr, nil
		}))
	}

	release()
	for _, ch := range results {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("queued item never completed")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{1, 1, 2, 2}
	if len(order) != len(want) {
		t.Fatalf("executed %d items, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("execution order = %v, want %v", order, want)
		}
	}
}

// TestRequestQueueFailureIsolation checks one item's failure never
// blocks or corrupts subsequent items.
func TestRequestQueueFailureIsolation(t *testing.T) {
	q := NewRequestQueue(0)
	defer q.Close()
	release, _ := startBlockedQueue(t, q, "tts")

	failErr := errors.New("synthesis exploded")
	first := q.Enqueue("tts", 0, func(ctx context.Context) (interface{}, error) {
		return nil, failErr
	})
	second := q.Enqueue("tts", 0, func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})

	release()

	res := <-first
	if !errors.Is(res.Err, failErr) {
		t.Fatalf("first item err = %v, want %v", res.Err, failErr)
	}
	res = <-second
	if res.Err != nil {
		t.Fatalf("second item err = %v, want nil", res.Err)
	}
	if res.Value != "ok" {
		t.Fatalf("second item value = %v, want ok", res.Value)
	}
}

// TestRequestQueuePanicIsolation checks a panicking item resolves its
// own result and leaves the worker loop alive.
func TestRequestQueuePanicIsolation(t *testing.T) {
	q := NewRequestQueue(0)
	defer q.Close()
	release, _ := startBlockedQueue(t, q, "tts")

	bad := q.Enqueue("tts", 0, func(ctx context.Context) (interface{}, error) {
		panic("boom")
	})
	good := q.Enqueue("tts", 0, func(ctx context.Context) (interface{}, error) {
		return "alive", nil
	})

	release()

	res := <-bad
	if res.Err == nil {
		t.Fatal("panicking item should resolve with an error")
	}
	res = <-good
	if res.Err != nil || res.Value != "alive" {
		t.Fatalf("worker loop died after panic: %+v", res)
	}
}

// TestRequestQueueClear checks pending items are rejected with the
// cancellation error while the executing item is unaffected.
func TestRequestQueueClear(t *testing.T) {
	q := NewRequestQueue(0)
	defer q.Close()
	release, gateDone := startBlockedQueue(t, q, "tts")

	pending1 := q.Enqueue("tts", 0, func(ctx context.Context) (interface{}, error) {
		return 1, nil
	})
	pending2 := q.Enqueue("tts", 0, func(ctx context.Context) (interface{}, error) {
		return 2, nil
	})

	if cleared := q.Clear("tts"); cleared != 2 {
		t.Fatalf("cleared = %d, want 2", cleared)
	}
	if depth := q.Depth("tts"); depth != 0 {
		t.Fatalf("depth after clear = %d, want 0", depth)
	}

	for _, ch := range []<-chan Result{pending1, pending2} {
		res := <-ch
		if !errors.Is(res.Err, ErrQueueCancelled) {
			t.Fatalf("pending item err = %v, want %v", res.Err, ErrQueueCancelled)
		}
	}

	release()
	res := <-gateDone
	if res.Err != nil || res.Value != "gate" {
		t.Fatalf("executing item was affected by clear: %+v", res)
	}
}

// TestRequestQueueSingleWorkerPerProvider checks no two items of the
// same provider execute concurrently.
func TestRequestQueueSingleWorkerPerProvider(t *testing.T) {
	q := NewRequestQueue(0)
	defer q.Close()

	var mu sync.Mutex
	active := 0
	maxActive := 0
	var results []<-chan Result

	for i := 0; i < 5; i++ {
		results = append(results, q.Enqueue("tts", 0, func(ctx context.Context) (interface{}, error) {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			return nil, nil
		}))
	}

	for _, ch := range results {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatal("item never completed")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if maxActive != 1 {
		t.Fatalf("max concurrent executions = %d, want 1", maxActive)
	}
}

// TestRequestQueueClose checks shutdown: pending items and later
// enqueues are rejected, the in-flight item still completes, and the
// worker loop exits instead of lingering.
func TestRequestQueueClose(t *testing.T) {
	q := NewRequestQueue(0)
	release, gateDone := startBlockedQueue(t, q, "tts")

	pending := q.Enqueue("tts", 0, func(ctx context.Context) (interface{}, error) {
		return "never", nil
	})

	q.Close()

	res := <-pending
	if !errors.Is(res.Err, ErrQueueCancelled) {
		t.Fatalf("pending item err = %v, want %v", res.Err, ErrQueueCancelled)
	}

	release()
	res = <-gateDone
	if res.Err != nil || res.Value != "gate" {
		t.Fatalf("in-flight item was affected by close: %+v", res)
	}

	res = <-q.Enqueue("tts", 0, func(ctx context.Context) (interface{}, error) {
		t.Fatal("work must not run after close")
		return nil, nil
	})
	if !errors.Is(res.Err, ErrQueueCancelled) {
		t.Fatalf("post-close enqueue err = %v, want %v", res.Err, ErrQueueCancelled)
	}

	// Closing twice is a no-op.
	q.Close()
}
