package searchprovider

import "context"

// Stub is a deterministic Provider double returning a fixed result set or
// a scripted error, used in place of a live search backend in tests.
type Stub struct {
	ProviderName string
	Results      []Result
	Err          error
	Queries      []string
}

// NewStub constructs a Stub for provider name, returning results for
// every query.
func NewStub(name string, results ...Result) *Stub {
	return &Stub{ProviderName: name, Results: results}
}

func (s *Stub) Name() string { return s.ProviderName }

func (s *Stub) Search(_ context.Context, query string, _ Options) ([]Result, error) {
	s.Queries = append(s.Queries, query)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Results, nil
}

var _ Provider = (*Stub)(nil)
