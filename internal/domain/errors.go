package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by repositories when a keyed record is missing.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyDecided is returned when a supervisor decision arrives for an
	// answer that has already been approved or rejected.
	ErrAlreadyDecided = errors.New("response already decided")

	// ErrUnknownSupervisorSpace is returned when an adviser has no designated
	// supervisor space; the pipeline aborts before any generation attempt.
	ErrUnknownSupervisorSpace = errors.New("no supervisor space assigned")
)

// TerminalGenerationError wraps the last transient failure once the retry
// budget is exhausted.
type TerminalGenerationError struct {
	Attempts int
	Err      error
}

func (e *TerminalGenerationError) Error() string {
	return fmt.Sprintf("answer generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TerminalGenerationError) Unwrap() error {
	return e.Err
}
