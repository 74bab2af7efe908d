// Package searchprovider declares the search-provider collaborator
// boundary (spec.md §4.G "search agents", §1 Non-goals) and wraps it with
// a circuit breaker so one failing provider cannot stall the searching
// stage indefinitely.
package searchprovider

import "context"

// Result is one hit returned by a provider's search call.
type Result struct {
	Title    string
	URL      string
	Snippet  string
	Provider string
	Score    float64
}

// Options narrows a search call; zero value means "provider defaults".
type Options struct {
	MaxResults int
}

// Provider adapts one external search backend. Implementations isolate
// provider-specific request shaping (§4.G).
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}
