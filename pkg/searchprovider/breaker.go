package searchprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreaking wraps a Provider with a gobreaker circuit breaker so a
// consistently failing provider is short-circuited instead of being
// retried on every subquery, letting the searching stage's
// all-providers-exhausted fallback (§4.F) trigger quickly rather than
// waiting out the full timeout on every call.
type CircuitBreaking struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

// NewCircuitBreaking wraps provider with default trip settings: open after
// 5 consecutive failures, half-open after 30s.
func NewCircuitBreaking(provider Provider) *CircuitBreaking {
	settings := gobreaker.Settings{
		Name:        "searchprovider:" + provider.Name(),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &CircuitBreaking{inner: provider, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Name passes through to the wrapped provider.
func (c *CircuitBreaking) Name() string { return c.inner.Name() }

// Search executes through the breaker; an open breaker fails fast without
// calling the underlying provider.
func (c *CircuitBreaking) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	out, err := c.cb.Execute(func() (any, error) {
		return c.inner.Search(ctx, query, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("searchprovider: %s: %w", c.inner.Name(), err)
	}
	return out.([]Result), nil
}

var _ Provider = (*CircuitBreaking)(nil)
