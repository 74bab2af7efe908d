// Package llmprovider declares the LLM collaborator boundary. Concrete
// model integration is an external collaborator (spec.md §1 Non-goals);
// this package only owns the interface every agent programs against and a
// deterministic in-memory double for tests.
package llmprovider

import "context"

// Provider generates free-text completions from a prompt. Implementations
// may call out to any model backend; callers treat the response as
// possibly-malformed text and recover structured data with
// jsonutil.ParseJSONOrExtract.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
