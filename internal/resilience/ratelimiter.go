package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig sets the per-provider token-bucket limits.
type RateLimiterConfig struct {
	RequestsPerMinute int
	TokensPerMinute   int
}

// Reservation is an outstanding token reservation made before a stream
// starts. The caller must call Reconcile once UsageUpdate arrives (or
// Cancel if the call never starts).
type Reservation struct {
	estimated int
	limiter   *RateLimiter
}

// RateLimiter wraps two x/time/rate limiters (requests, tokens) with a
// reserve-then-reconcile discipline: a call reserves an estimated token
// count before the stream starts, then refunds or charges the difference
// once the provider reports authoritative usage. This mirrors the
// teacher's "advisory estimate reconciled against authoritative usage"
// philosophy used for context-window accounting.
type RateLimiter struct {
	requests *rate.Limiter
	tokens   *rate.Limiter

	mu        sync.Mutex
	reserved  int // sum of outstanding estimated reservations
}

// NewRateLimiter builds a limiter from per-minute budgets. A zero value in
// either field disables that dimension's throttling.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{}
	if cfg.RequestsPerMinute > 0 {
		rl.requests = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}
	if cfg.TokensPerMinute > 0 {
		rl.tokens = rate.NewLimiter(rate.Limit(float64(cfg.TokensPerMinute)/60.0), cfg.TokensPerMinute)
	}
	return rl
}

// Reserve blocks (cancellably) until a request slot and estimatedTokens are
// available, then returns a Reservation. If the wait would exceed ctx's
// deadline or ctx is cancelled, it returns a RateLimited-shaped error.
func (rl *RateLimiter) Reserve(ctx context.Context, estimatedTokens int) (*Reservation, error) {
	if rl.requests != nil {
		if err := rl.requests.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate_limited: request budget: %w", err)
		}
	}
	if rl.tokens != nil && estimatedTokens > 0 {
		// Reserve in bucket-size-capped chunks: x/time/rate rejects a
		// single reservation larger than the burst size.
		burst := rl.tokens.Burst()
		remaining := estimatedTokens
		for remaining > 0 {
			chunk := remaining
			if burst > 0 && chunk > burst {
				chunk = burst
			}
			if err := rl.tokens.WaitN(ctx, chunk); err != nil {
				return nil, fmt.Errorf("rate_limited: token budget: %w", err)
			}
			remaining -= chunk
		}
	}
	rl.mu.Lock()
	rl.reserved += estimatedTokens
	rl.mu.Unlock()
	return &Reservation{estimated: estimatedTokens, limiter: rl}, nil
}

// Reconcile settles a reservation against the authoritative usage reported
// by UsageUpdate. If actual < estimated, the surplus is refunded back into
// the bucket; if actual > estimated, the deficit is charged (best-effort,
// non-blocking — it shapes future throughput rather than stalling the
// current call, since the tokens were already spent by the provider).
func (r *Reservation) Reconcile(actualTokens int) {
	r.limiter.mu.Lock()
	r.limiter.reserved -= r.estimated
	r.limiter.mu.Unlock()

	if r.limiter.tokens == nil {
		return
	}
	diff := actualTokens - r.estimated
	switch {
	case diff < 0:
		r.limiter.tokens.AllowN(time.Now(), -diff) // refund: pretend we never spent it
	case diff > 0:
		r.limiter.tokens.ReserveN(time.Now(), diff) // charge the deficit against future throughput
	}
}

// Cancel releases a reservation that was never consumed (call aborted
// before the stream started), refunding the full estimate.
func (r *Reservation) Cancel() {
	r.limiter.mu.Lock()
	r.limiter.reserved -= r.estimated
	r.limiter.mu.Unlock()
	if r.limiter.tokens != nil {
		r.limiter.tokens.AllowN(time.Now(), r.estimated)
	}
}
