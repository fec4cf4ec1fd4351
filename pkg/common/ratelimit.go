package common

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// minSustainedRate is the floor Throttled backs a limiter down to. Even a
// provider that keeps throttling gets retried eventually.
const minSustainedRate = 0.1

// RateLimiter paces a probe's outbound calls to one lookup provider. Public
// RDAP registries and geolocation APIs throttle per source address, so a
// single limiter is shared by every goroutine running the same probe. All
// methods are safe for concurrent use.
type RateLimiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter

	// The configured rate is kept so Recovered can undo throttle steps.
	configuredRate  float64
	configuredBurst int
}

// NewRateLimiter builds a limiter allowing rps sustained calls with the given
// burst headroom. Probe configs choose values under the provider's published
// quota so a worker fleet never exhausts it.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter:         rate.NewLimiter(rate.Limit(rps), burst),
		configuredRate:  rps,
		configuredBurst: burst,
	}
}

// Wait blocks until the limiter permits the next provider call or the probe's
// context expires, returning the context error in the latter case.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Wait(ctx)
}

// Throttled halves the sustained rate in response to a provider throttle
// response (HTTP 429), bottoming out at minSustainedRate. Burst headroom is
// left alone; it only shapes the first calls after an idle stretch.
func (rl *RateLimiter) Throttled() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	next := float64(rl.limiter.Limit()) / 2
	if next < minSustainedRate {
		next = minSustainedRate
	}
	rl.limiter.SetLimit(rate.Limit(next))
}

// Recovered restores the configured rate after a successful provider call,
// undoing any accumulated Throttled steps.
func (rl *RateLimiter) Recovered() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetLimit(rate.Limit(rl.configuredRate))
	rl.limiter.SetBurst(rl.configuredBurst)
}
