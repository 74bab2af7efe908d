package llmprovider

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStubExhausted is returned once a Stub's scripted responses run out,
// so tests can assert on "more calls than expected" explicitly rather than
// silently returning a zero value.
var ErrStubExhausted = errors.New("llmprovider: stub has no more scripted responses")

// Stub is a deterministic Provider double: each call to Complete returns
// the next entry from Responses, in order, recording every prompt it was
// given. Used in place of a live model in agent tests.
type Stub struct {
	Responses []string
	Err       error

	mu     sync.Mutex
	calls  int
	Prompts []string
}

// NewStub constructs a Stub that returns responses in sequence.
func NewStub(responses ...string) *Stub {
	return &Stub{Responses: responses}
}

// Complete returns the next scripted response, or Err if set.
func (s *Stub) Complete(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = append(s.Prompts, prompt)
	if s.Err != nil {
		return "", s.Err
	}
	if s.calls >= len(s.Responses) {
		return "", fmt.Errorf("%w (call %d)", ErrStubExhausted, s.calls+1)
	}
	r := s.Responses[s.calls]
	s.calls++
	return r, nil
}

var _ Provider = (*Stub)(nil)
