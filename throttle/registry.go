package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RahulByline/pdf-to-epub-sub002/provider"
)

// ErrResourceExhausted is returned when the rate limiter or circuit
// breaker denies admission. It means "retry later", not hard failure.
var ErrResourceExhausted = errors.New("provider resources exhausted")

// Config aggregates the throttling settings for one registry
type Config struct {
	RateLimiter RateLimiterConfig
	Breaker     BreakerConfig
	QueuePacing time.Duration
}

// Registry owns all per-provider throttling state for one process:
// rate limiter buckets, breaker state machines and request queues.
// Constructed once at startup and passed by reference; there are no
// package-level globals.
type Registry struct {
	limiter *RateLimiter
	breaker *CircuitBreaker
	queue   *RequestQueue
}

// NewRegistry creates a registry with fresh per-provider state
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		limiter: NewRateLimiter(cfg.RateLimiter),
		breaker: NewCircuitBreaker(cfg.Breaker),
		queue:   NewRequestQueue(cfg.QueuePacing),
	}
}

// Limiter exposes the rate limiter for observability
func (r *Registry) Limiter() *RateLimiter { return r.limiter }

// Breaker exposes the circuit breaker for observability
func (r *Registry) Breaker() *CircuitBreaker { return r.breaker }

// Queue exposes the request queue for observability
func (r *Registry) Queue() *RequestQueue { return r.queue }

// Close stops the per-provider queue workers and rejects pending items
func (r *Registry) Close() {
	r.queue.Close()
}

// Call is the single throttled path for every external provider call:
// breaker admission, then rate limiter, then serialized execution on
// the provider's queue, with the outcome recorded back into the
// breaker from the queue's worker goroutine.
func (r *Registry) Call(ctx context.Context, providerName string, priority int, work Work) (interface{}, error) {
	if !r.breaker.CanMakeRequest(providerName) {
		return nil, fmt.Errorf("%w: circuit open for %s", ErrResourceExhausted, providerName)
	}
	if !r.limiter.Acquire(providerName) {
		// A limiter denial is not a probe outcome.
		r.breaker.RefundProbe(providerName)
		wait := r.limiter.TimeUntilNextToken(providerName)
		return nil, fmt.Errorf("%w: rate limited for %s, retry in %s", ErrResourceExhausted, providerName, wait.Round(time.Millisecond))
	}

	resultCh := r.queue.Enqueue(providerName, priority, func(workCtx context.Context) (interface{}, error) {
		value, err := work(workCtx)
		if err != nil {
			r.breaker.RecordFailure(providerName, provider.IsOverload(err))
			return nil, err
		}
		r.breaker.RecordSuccess(providerName)
		return value, nil
	})

	select {
	case res := <-resultCh:
		return res.Value, res.Err
	case <-ctx.Done():
		// The queued call may still complete after this; callers must
		// tolerate late completion.
		return nil, ctx.Err()
	}
}

// ProviderStats is an observability snapshot for one provider
type ProviderStats struct {
	BreakerState    BreakerState `json:"breaker_state"`
	RemainingTokens int          `json:"remaining_tokens"`
	QueueDepth      int          `json:"queue_depth"`
}

// Stats returns the current state of every known provider
func (r *Registry) Stats() map[string]ProviderStats {
	out := make(map[string]ProviderStats)
	for name, state := range r.breaker.Snapshot() {
		out[name] = ProviderStats{
			BreakerState:    state,
			RemainingTokens: r.limiter.RemainingTokens(name),
			QueueDepth:      r.queue.Depth(name),
		}
	}
	return out
}
