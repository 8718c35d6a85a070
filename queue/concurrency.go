package queue

import (
	"context"
	"log"
	"sync"
)

// waiter is one job suspended until a concurrency slot frees
type waiter struct {
	jobID string
	ready chan struct{}
}

// JobConcurrencyLimiter bounds the number of simultaneously running
// conversion jobs. Saturated callers suspend on a strict FIFO wait
// list; Release promotes the longest-waiting job.
type JobConcurrencyLimiter struct {
	mu      sync.Mutex
	max     int
	running map[string]bool
	waiters []*waiter
}

// NewJobConcurrencyLimiter creates a limiter allowing max running jobs
func NewJobConcurrencyLimiter(max int) *JobConcurrencyLimiter {
	return &JobConcurrencyLimiter{
		max:     max,
		running: make(map[string]bool),
	}
}

// Acquire registers the job as running, suspending while the limiter
// is saturated. A job that acquires a slot must call Release on every
// exit path or the slot leaks permanently.
func (l *JobConcurrencyLimiter) Acquire(ctx context.Context, jobID string) error {
	l.mu.Lock()
	if len(l.running) < l.max {
		l.running[jobID] = true
		l.mu.Unlock()
		return nil
	}

	w := &waiter{jobID: jobID, ready: make(chan struct{})}
	l.waiters = append(l.waiters, w)
	l.mu.Unlock()
	log.Printf("Job %s waiting for a concurrency slot", jobID)

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		l.abandon(w)
		return ctx.Err()
	}
}

// abandon removes a cancelled waiter, releasing its slot if it was
// promoted concurrently with cancellation.
func (l *JobConcurrencyLimiter) abandon(w *waiter) {
	l.mu.Lock()
	for i, cand := range l.waiters {
		if cand == w {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			l.mu.Unlock()
			return
		}
	}
	// Already promoted: give the slot back.
	delete(l.running, w.jobID)
	l.promoteLocked()
	l.mu.Unlock()
}

// Release removes the job from the running set and promotes the
// oldest waiting job, if any.
func (l *JobConcurrencyLimiter) Release(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running[jobID] {
		return
	}
	delete(l.running, jobID)
	l.promoteLocked()
}

// promoteLocked resumes the oldest waiter; caller must hold l.mu
func (l *JobConcurrencyLimiter) promoteLocked() {
	if len(l.waiters) == 0 || len(l.running) >= l.max {
		return
	}
	w := l.waiters[0]
	l.waiters = l.waiters[1:]
	l.running[w.jobID] = true
	close(w.ready)
}

// Running returns the number of jobs holding a slot
func (l *JobConcurrencyLimiter) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.running)
}

// Waiting returns the number of suspended jobs
func (l *JobConcurrencyLimiter) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}
