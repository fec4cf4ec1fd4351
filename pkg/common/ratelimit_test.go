package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterWait(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(100, 1)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, rl.Wait(ctx))
}

func TestRateLimiterThrottledHalvesRate(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(4, 2)

	rl.Throttled()
	assert.InDelta(t, 2.0, float64(rl.limiter.Limit()), 1e-9)
	rl.Throttled()
	assert.InDelta(t, 1.0, float64(rl.limiter.Limit()), 1e-9)

	// Repeated throttle responses bottom out at the floor instead of
	// freezing the probe entirely.
	for i := 0; i < 10; i++ {
		rl.Throttled()
	}
	assert.InDelta(t, minSustainedRate, float64(rl.limiter.Limit()), 1e-9)
	assert.Equal(t, 2, rl.limiter.Burst())
}

func TestRateLimiterRecoveredRestoresConfiguredRate(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(50, 5)
	rl.Throttled()
	rl.Throttled()

	rl.Recovered()
	assert.InDelta(t, 50.0, float64(rl.limiter.Limit()), 1e-9)
	assert.Equal(t, 5, rl.limiter.Burst())
}
