package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apexion-ai/orchestrator-kernel/internal/provider"
)

// GuardedProvider wraps a provider.Provider with a circuit breaker and rate
// limiter, and tracks a latency EMA for providerrouter's tie-break step.
// It implements provider.Provider itself, so callers that already hold a
// Provider reference can swap it for a GuardedProvider with no other change
// (same adaptation the agent package already applies at the tool level via
// tool_health.go's per-tool cooldown tracker, generalized to provider scope).
type GuardedProvider struct {
	provider.Provider

	breaker *CircuitBreaker
	limiter *RateLimiter

	mu         sync.Mutex
	latencyEMA float64 // milliseconds, exponential moving average
}

// NewGuardedProvider wraps p with a fresh breaker (cfg) and rate limiter
// (rlCfg). Either cfg may be zero-valued to take the package defaults /
// disable throttling.
func NewGuardedProvider(p provider.Provider, cfg BreakerConfig, rlCfg RateLimiterConfig) *GuardedProvider {
	return &GuardedProvider{
		Provider: p,
		breaker:  NewCircuitBreaker(cfg),
		limiter:  NewRateLimiter(rlCfg),
	}
}

// BreakerState reports the current circuit state for providerrouter's
// breaker-state filter.
func (g *GuardedProvider) BreakerState() BreakerState {
	return g.breaker.Snapshot().State
}

// LatencyEMAMillis reports the current latency estimate for providerrouter's
// tie-break step.
func (g *GuardedProvider) LatencyEMAMillis() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latencyEMA
}

func (g *GuardedProvider) recordLatency(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := float64(d.Milliseconds())
	if g.latencyEMA == 0 {
		g.latencyEMA = ms
		return
	}
	const alpha = 0.3
	g.latencyEMA = alpha*ms + (1-alpha)*g.latencyEMA
}

// Chat gates the call on the breaker and rate limiter, then re-wraps the
// inner event channel so a stream-level error or successful completion is
// fed back into the breaker exactly once.
func (g *GuardedProvider) Chat(ctx context.Context, req *provider.ChatRequest) (<-chan provider.Event, error) {
	if !g.breaker.Allow() {
		return nil, fmt.Errorf("circuit_open: provider %q is not accepting calls", g.Provider.Name())
	}

	estimatedTokens := req.MaxTokens
	reservation, err := g.limiter.Reserve(ctx, estimatedTokens)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	events, err := g.Provider.Chat(ctx, req)
	if err != nil {
		reservation.Cancel()
		g.breaker.Failure()
		return nil, err
	}

	out := make(chan provider.Event)
	go func() {
		defer close(out)
		failed := false
		var usage *provider.Usage
		for ev := range events {
			if ev.Type == provider.EventError {
				failed = true
			}
			if ev.Type == provider.EventDone {
				usage = ev.Usage
			}
			out <- ev
		}
		g.recordLatency(time.Since(started))
		if usage != nil {
			reservation.Reconcile(usage.InputTokens + usage.OutputTokens)
		} else {
			reservation.Cancel()
		}
		if failed {
			g.breaker.Failure()
		} else {
			g.breaker.Success()
		}
	}()
	return out, nil
}
