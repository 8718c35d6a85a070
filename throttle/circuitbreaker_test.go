package throttle

import (
	"testing"
	"time"
)

// testBreaker returns a breaker with a controllable clock
func testBreaker(cfg BreakerConfig) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(cfg)
	now := time.Now()
	cb.now = func() time.Time { return now }
	return cb, &now
}

// TestBreakerOpensAfterConsecutiveOverloads checks CLOSED -> OPEN at
// exactly the configured threshold.
func TestBreakerOpensAfterConsecutiveOverloads(t *testing.T) {
	cb, _ := testBreaker(BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenDuration:     time.Minute,
		HalfOpenMaxCalls: 3,
	})

	for i := 0; i < 4; i++ {
		cb.RecordFailure("tts", true)
		if !cb.CanMakeRequest("tts") {
			t.Fatalf("breaker opened after %d failures, want 5", i+1)
		}
	}

	cb.RecordFailure("tts", true)
	if cb.CanMakeRequest("tts") {
		t.Fatal("breaker should deny requests after 5 consecutive overload failures")
	}
	if got := cb.State("tts"); got != BreakerOpen {
		t.Fatalf("state = %s, want %s", got, BreakerOpen)
	}
}

// TestBreakerIgnoresNonOverloadFailures checks that ordinary errors
// never open the circuit.
func TestBreakerIgnoresNonOverloadFailures(t *testing.T) {
	cb, _ := testBreaker(BreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OpenDuration:     time.Minute,
		HalfOpenMaxCalls: 3,
	})

	for i := 0; i < 10; i++ {
		cb.RecordFailure("tts", false)
	}
	if !cb.CanMakeRequest("tts") {
		t.Fatal("non-overload failures must not open the circuit")
	}
	if got := cb.State("tts"); got != BreakerClosed {
		t.Fatalf("state = %s, want %s", got, BreakerClosed)
	}
}

// TestBreakerSuccessResetsFailureCount checks that an intervening
// success breaks the consecutive-failure streak.
func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb, _ := testBreaker(BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		OpenDuration:     time.Minute,
		HalfOpenMaxCalls: 3,
	})

	cb.RecordFailure("tts", true)
	cb.RecordFailure("tts", true)
	cb.RecordSuccess("tts")
	cb.RecordFailure("tts", true)
	cb.RecordFailure("tts", true)

	if !cb.CanMakeRequest("tts") {
		t.Fatal("streak was reset by success; circuit must remain closed")
	}
}

// TestBreakerHalfOpenAfterCooldown checks OPEN -> HALF_OPEN on the
// first request check after the cooldown elapses.
func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	cb, now := testBreaker(BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenDuration:     time.Minute,
		HalfOpenMaxCalls: 3,
	})

	cb.RecordFailure("tts", true)
	if cb.CanMakeRequest("tts") {
		t.Fatal("circuit should be open")
	}

	*now = now.Add(59 * time.Second)
	if cb.CanMakeRequest("tts") {
		t.Fatal("cooldown has not elapsed yet")
	}

	*now = now.Add(2 * time.Second)
	if !cb.CanMakeRequest("tts") {
		t.Fatal("first check after cooldown should be admitted as a probe")
	}
	if got := cb.State("tts"); got != BreakerHalfOpen {
		t.Fatalf("state = %s, want %s", got, BreakerHalfOpen)
	}
}

// TestBreakerHalfOpenClosesAfterSuccesses checks HALF_OPEN -> CLOSED
// after the configured success threshold.
func TestBreakerHalfOpenClosesAfterSuccesses(t *testing.T) {
	cb, now := testBreaker(BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenDuration:     time.Minute,
		HalfOpenMaxCalls: 5,
	})

	cb.RecordFailure("tts", true)
	*now = now.Add(2 * time.Minute)

	if !cb.CanMakeRequest("tts") {
		t.Fatal("probe should be admitted")
	}
	cb.RecordSuccess("tts")
	if got := cb.State("tts"); got != BreakerHalfOpen {
		t.Fatalf("state after one success = %s, want %s", got, BreakerHalfOpen)
	}

	if !cb.CanMakeRequest("tts") {
		t.Fatal("second probe should be admitted")
	}
	cb.RecordSuccess("tts")
	if got := cb.State("tts"); got != BreakerClosed {
		t.Fatalf("state after two successes = %s, want %s", got, BreakerClosed)
	}
}

// TestBreakerHalfOpenReopensOnFailure checks that any overload
// failure while half-open reopens the circuit with a fresh cooldown.
func TestBreakerHalfOpenReopensOnFailure(t *testing.T) {
	cb, now := testBreaker(BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenDuration:     time.Minute,
		HalfOpenMaxCalls: 5,
	})

	cb.RecordFailure("tts", true)
	*now = now.Add(2 * time.Minute)
	if !cb.CanMakeRequest("tts") {
		t.Fatal("probe should be admitted")
	}

	cb.RecordFailure("tts", true)
	if got := cb.State("tts"); got != BreakerOpen {
		t.Fatalf("state = %s, want %s", got, BreakerOpen)
	}

	// Cooldown restarted at the half-open failure.
	*now = now.Add(30 * time.Second)
	if cb.CanMakeRequest("tts") {
		t.Fatal("fresh cooldown has not elapsed")
	}
	*now = now.Add(31 * time.Second)
	if !cb.CanMakeRequest("tts") {
		t.Fatal("circuit should probe again after the fresh cooldown")
	}
}

// TestBreakerHalfOpenProbeCap checks HALF_OPEN -> OPEN after the
// probe attempt cap is exhausted without closing.
func TestBreakerHalfOpenProbeCap(t *testing.T) {
	cb, now := testBreaker(BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 10,
		OpenDuration:     time.Minute,
		HalfOpenMaxCalls: 3,
	})

	cb.RecordFailure("tts", true)
	*now = now.Add(2 * time.Minute)

	for i := 0; i < 3; i++ {
		if !cb.CanMakeRequest("tts") {
			t.Fatalf("probe %d should be admitted", i+1)
		}
	}
	if cb.CanMakeRequest("tts") {
		t.Fatal("probe cap exhausted; circuit should reopen")
	}
	if got := cb.State("tts"); got != BreakerOpen {
		t.Fatalf("state = %s, want %s", got, BreakerOpen)
	}
}

// TestBreakerProvidersAreIndependent checks per-provider isolation
func TestBreakerProvidersAreIndependent(t *testing.T) {
	cb, _ := testBreaker(BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		OpenDuration:     time.Minute,
		HalfOpenMaxCalls: 3,
	})

	cb.RecordFailure("tts", true)
	if cb.CanMakeRequest("tts") {
		t.Fatal("tts circuit should be open")
	}
	if !cb.CanMakeRequest("extractor") {
		t.Fatal("extractor circuit must be unaffected")
	}
}
