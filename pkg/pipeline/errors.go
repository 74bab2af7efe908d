package pipeline

import "fmt"

// Kind is one of the error kinds named in spec.md §7.
type Kind string

const (
	KindTransientNetwork Kind = "transient_network"
	KindProviderError    Kind = "provider_error"
	KindParseError       Kind = "parse_error"
	KindTimeout          Kind = "timeout"
	KindStoreError       Kind = "store_error"
	KindCancelled        Kind = "cancelled"
	KindStageFailed      Kind = "stage_failed"
)

// StageError is what Run returns on a terminal stage failure: the failing
// stage name, its error kind (§7), and the underlying cause.
type StageError struct {
	Stage string
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: stage %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Category renders a StageError as the error_category stored on a failed
// task's metadata (§7 "User-visible behavior").
func (e *StageError) Category() string {
	return string(e.Kind)
}
