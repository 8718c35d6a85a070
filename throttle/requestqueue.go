package throttle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrQueueCancelled is delivered to callers whose queued work was
// cleared before it started executing.
var ErrQueueCancelled = errors.New("queued request cancelled")

// Work is one deferred provider call
type Work func(ctx context.Context) (interface{}, error)

// Result is the outcome of one queued work item
type Result struct {
	Value interface{}
	Err   error
}

// queueItem pairs deferred work with its result channel
type queueItem struct {
	work       Work
	priority   int
	seq        uint64
	enqueuedAt time.Time
	result     chan Result
}

// RequestQueue absorbs backpressure per provider instead of rejecting.
// Each provider owns an independent priority queue and a single worker
// goroutine, so no two items for the same provider execute
// concurrently and provider state updates are funneled through one
// serialized path.
type RequestQueue struct {
	mu        sync.Mutex
	pacing    time.Duration
	providers map[string]*providerQueue
	done      chan struct{}
}

// providerQueue is the pending items and worker handle for one provider
type providerQueue struct {
	items []*queueItem
	seq   uint64
	wake  chan struct{}
}

// NewRequestQueue creates a queue with a fixed pacing delay inserted
// between consecutive items of the same provider.
func NewRequestQueue(pacing time.Duration) *RequestQueue {
	return &RequestQueue{
		pacing:    pacing,
		providers: make(map[string]*providerQueue),
		done:      make(chan struct{}),
	}
}

// Enqueue schedules work for the provider and returns a channel that
// receives exactly one Result. Items execute in ascending
// (priority, arrival) order.
func (q *RequestQueue) Enqueue(provider string, priority int, work Work) <-chan Result {
	q.mu.Lock()
	select {
	case <-q.done:
		q.mu.Unlock()
		rejected := make(chan Result, 1)
		rejected <- Result{Err: ErrQueueCancelled}
		return rejected
	default:
	}

	pq, ok := q.providers[provider]
	if !ok {
		pq = &providerQueue{wake: make(chan struct{}, 1)}
		q.providers[provider] = pq
		go q.run(provider, pq)
	}

	pq.seq++
	item := &queueItem{
		work:       work,
		priority:   priority,
		seq:        pq.seq,
		enqueuedAt: time.Now(),
		result:     make(chan Result, 1),
	}
	pq.items = append(pq.items, item)
	q.mu.Unlock()

	select {
	case pq.wake <- struct{}{}:
	default:
	}
	return item.result
}

// Clear rejects all pending items for the provider with
// ErrQueueCancelled and empties the queue. The currently executing
// item, if any, is unaffected.
func (q *RequestQueue) Clear(provider string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	pq, ok := q.providers[provider]
	if !ok {
		return 0
	}
	cleared := len(pq.items)
	for _, item := range pq.items {
		item.result <- Result{Err: ErrQueueCancelled}
	}
	pq.items = nil
	return cleared
}

// Depth returns the number of pending items for the provider
func (q *RequestQueue) Depth(provider string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if pq, ok := q.providers[provider]; ok {
		return len(pq.items)
	}
	return 0
}

// Close stops every provider worker and rejects all pending items with
// ErrQueueCancelled. The currently executing item, if any, still
// completes and delivers its result. Enqueue after Close rejects
// immediately.
func (q *RequestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-q.done:
		return
	default:
	}
	close(q.done)

	for _, pq := range q.providers {
		for _, item := range pq.items {
			item.result <- Result{Err: ErrQueueCancelled}
		}
		pq.items = nil
	}
}

// run is the single worker loop for one provider
func (q *RequestQueue) run(provider string, pq *providerQueue) {
	for {
		item := q.pop(pq)
		if item == nil {
			select {
			case <-pq.wake:
				continue
			case <-q.done:
				return
			}
		}

		item.result <- q.execute(provider, item)

		if q.pacing > 0 {
			time.Sleep(q.pacing)
		}
	}
}

// pop removes the highest-priority, oldest pending item
func (q *RequestQueue) pop(pq *providerQueue) *queueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(pq.items) == 0 {
		return nil
	}
	best := 0
	for i, item := range pq.items[1:] {
		if item.priority < pq.items[best].priority ||
			(item.priority == pq.items[best].priority && item.seq < pq.items[best].seq) {
			best = i + 1
		}
	}
	item := pq.items[best]
	pq.items = append(pq.items[:best], pq.items[best+1:]...)
	return item
}

// execute runs one item, isolating panics so a bad item never kills
// the worker loop or corrupts other items' results.
func (q *RequestQueue) execute(provider string, item *queueItem) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered panic in %s queue item: %v", provider, r)
			res = Result{Err: fmt.Errorf("queued request panicked: %v", r)}
		}
	}()

	value, err := item.work(context.Background())
	return Result{Value: value, Err: err}
}
