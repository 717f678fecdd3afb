package bus

import (
	"golang.org/x/time/rate"
)

// newChannelLimiter builds a rate.Limiter enforcing the bus's per-agent
// request pacing (spec.md §4.2/§5: <= ~85 req/min, burst of 1 so callers
// never front-load a burst past the floor).
func newChannelLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		perMinute = 85
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
}
