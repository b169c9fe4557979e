package resilience

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterReserveAndReconcileRefund(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 600, TokensPerMinute: 6000})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := rl.Reserve(ctx, 500)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	rl.mu.Lock()
	if rl.reserved != 500 {
		t.Fatalf("expected 500 reserved, got %d", rl.reserved)
	}
	rl.mu.Unlock()

	res.Reconcile(200) // actual usage lower than estimate: refund 300
	rl.mu.Lock()
	if rl.reserved != 0 {
		t.Fatalf("expected reservation cleared after reconcile, got %d", rl.reserved)
	}
	rl.mu.Unlock()
}

func TestRateLimiterCancelReleasesReservation(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{TokensPerMinute: 1000})
	res, err := rl.Reserve(context.Background(), 400)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	res.Cancel()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.reserved != 0 {
		t.Fatalf("expected reservation released on cancel, got %d", rl.reserved)
	}
}

func TestRateLimiterDisabledDimensionNeverBlocks(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := rl.Reserve(ctx, 1_000_000); err != nil {
		t.Fatalf("expected no-op limiter to never block, got %v", err)
	}
}
