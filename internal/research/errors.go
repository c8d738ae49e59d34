package research

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds reported by collaborators. Match with errors.Is.
var (
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrStructuredOutput        = errors.New("structured output invalid")
	ErrEmptyResult             = errors.New("empty result")
)

// ErrEmptyQuery is returned by Run for a blank query.
var ErrEmptyQuery = errors.New("query must not be empty")

// CollaboratorError ties a failing collaborator call to its error kind.
type CollaboratorError struct {
	Op   string // e.g. "search", "scrape", "generate", "generate_structured"
	Kind error  // one of the Err* kinds above
	Err  error
}

func (e *CollaboratorError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *CollaboratorError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Unavailable wraps err as a CollaboratorUnavailable failure of op.
func Unavailable(op string, err error) error {
	return &CollaboratorError{Op: op, Kind: ErrCollaboratorUnavailable, Err: err}
}

// InvalidOutput wraps err as a StructuredOutputError failure of op.
func InvalidOutput(op string, err error) error {
	return &CollaboratorError{Op: op, Kind: ErrStructuredOutput, Err: err}
}

// KindOf returns the error kind of err, defaulting to CollaboratorUnavailable
// for unclassified errors.
func KindOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStructuredOutput):
		return ErrStructuredOutput
	case errors.Is(err, ErrEmptyResult):
		return ErrEmptyResult
	default:
		return ErrCollaboratorUnavailable
	}
}

// classify makes sure err carries a collaborator error kind. Context errors
// pass through untouched.
func classify(op string, err error) error {
	var ce *CollaboratorError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrStructuredOutput):
		return err
	default:
		return Unavailable(op, err)
	}
}
