package agentrun

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer is the process-wide leaky-bucket gate shared by every agent session
// (spec.md §4.6 "Pacing", §5). Grounded on the teacher's AdaptiveRateLimiter
// (features/model/middleware/ratelimit.go), trimmed from its AIMD
// token-estimate strategy to a flat requests-per-minute bucket — this
// kernel paces LLM calls by count, not by estimated token cost, since no
// SPEC_FULL.md component tracks per-provider token budgets.
type Pacer struct {
	limiter *rate.Limiter

	mu        sync.Mutex
	pausedTil time.Time
}

// NewPacer builds a Pacer admitting ratePerMinute calls per minute.
func NewPacer(ratePerMinute int) *Pacer {
	if ratePerMinute <= 0 {
		ratePerMinute = 20
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), ratePerMinute)}
}

// Wait blocks until the next outbound LLM call is admitted, honoring both
// the steady-state bucket and any active 429 pacing pause.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.waitOutPause(ctx); err != nil {
		return err
	}
	return p.limiter.Wait(ctx)
}

func (p *Pacer) waitOutPause(ctx context.Context) error {
	for {
		p.mu.Lock()
		remaining := time.Until(p.pausedTil)
		p.mu.Unlock()
		if remaining <= 0 {
			return nil
		}
		select {
		case <-time.After(remaining):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pause gates every subsequently scheduled agent for d (spec.md §4.6 "A 429
// triggers a global pacing delay that also gates subsequently scheduled
// agents").
func (p *Pacer) Pause(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(p.pausedTil) {
		p.pausedTil = until
	}
}
