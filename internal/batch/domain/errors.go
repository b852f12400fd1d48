package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("batch not found")
	ErrInvalidMass          = errors.New("mass must be positive")
	ErrRejectedExceedsTotal = errors.New("rejected mass exceeds batch mass")
	ErrInvalidGrade         = errors.New("unknown grade")
	ErrInvalidMethod        = errors.New("unknown disposal method")
	ErrConfirmationRequired = errors.New("cleaning confirmation required")

	// ErrStateConflict means the batch changed between read and write.
	// The caller must re-fetch and retry; nothing was written.
	ErrStateConflict = errors.New("batch state changed, please retry")
)

// TransitionError reports an operation applied to a batch in the wrong
// lifecycle state.
type TransitionError struct {
	BatchCode string
	From      LifecycleState
	Operation string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("batch %s: cannot %s while in state %s", e.BatchCode, e.Operation, e.From)
}
