package resilience

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute})
	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("call %d: expected breaker to allow while closed", i)
		}
		b.Failure()
	}
	if b.Allow() {
		t.Fatal("expected breaker to be open after threshold consecutive failures")
	}
	if b.Snapshot().State != Open {
		t.Fatalf("expected state=open, got %s", b.Snapshot().State)
	}
}

func TestBreakerHalfOpenClosesOnSuccess(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})
	b.Allow()
	b.Failure() // trips to open
	time.Sleep(15 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected a probe to be allowed in half_open")
	}
	if b.Snapshot().State != HalfOpen {
		t.Fatalf("expected state=half_open, got %s", b.Snapshot().State)
	}
	b.Success()
	if b.Snapshot().State != Closed {
		t.Fatal("expected success in half_open to close the breaker")
	}
}

func TestBreakerHalfOpenReopensOnFailureAndResetsTimer(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})
	b.Allow()
	b.Failure()
	time.Sleep(15 * time.Millisecond)
	b.Allow() // consume the probe slot, entering half_open
	b.Failure()

	snap := b.Snapshot()
	if snap.State != Open {
		t.Fatalf("expected failure in half_open to reopen, got %s", snap.State)
	}
	if b.Allow() {
		t.Fatal("expected breaker to stay open immediately after reopening (timer reset)")
	}
}

func TestBreakerHalfOpenLimitsInflightProbes(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 5 * time.Millisecond, HalfOpenMaxInflight: 2})
	b.Allow()
	b.Failure()
	time.Sleep(10 * time.Millisecond)

	allowed := 0
	for i := 0; i < 5; i++ {
		if b.Allow() {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("expected exactly HalfOpenMaxInflight=2 probes allowed, got %d", allowed)
	}
}

func TestShouldCountFailureExcludesBadRequest(t *testing.T) {
	if ShouldCountFailure("bad_request") {
		t.Fatal("bad_request must not count toward breaker failures")
	}
	if !ShouldCountFailure("transient") {
		t.Fatal("transient errors must count toward breaker failures")
	}
}
