package provider

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Default rate limits per provider (requests per second).
var defaultRateLimits = map[ProviderName]rate.Limit{
	NameLastFM:   5,
	NameFanartTV: 3,
	NameDeezer:   5,
	NameSpotify:  5,
	NameLRCLIB:   2,
}

// RateLimiterMap holds one rate.Limiter per provider, created once at startup.
type RateLimiterMap struct {
	mu       sync.RWMutex
	limiters map[ProviderName]*rate.Limiter
}

// NewRateLimiterMap creates all provider rate limiters. overrides replaces the
// default requests-per-second for the named providers.
func NewRateLimiterMap(overrides map[ProviderName]float64) *RateLimiterMap {
	m := &RateLimiterMap{
		limiters: make(map[ProviderName]*rate.Limiter, len(defaultRateLimits)),
	}
	for name, limit := range defaultRateLimits {
		m.limiters[name] = rate.NewLimiter(limit, 1)
	}
	for name, rps := range overrides {
		if rps > 0 {
			m.limiters[name] = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
	return m
}

// Wait blocks until the rate limiter for the given provider allows a request,
// or the context is canceled. A nil map never blocks.
func (m *RateLimiterMap) Wait(ctx context.Context, name ProviderName) error {
	if m == nil {
		return ctx.Err()
	}
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()
	if !ok {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}
