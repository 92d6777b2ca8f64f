package actorloop

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrShutdown is returned when an inbound call arrives after the owning
	// EventLoop's shutdown flag has been set.
	ErrShutdown = errors.New("actorloop: event loop is shut down")

	// ErrInvalidBoundary is returned by the argument sanitizer when a value
	// cannot safely cross the internal/external boundary.
	ErrInvalidBoundary = errors.New("actorloop: value cannot cross the internal/external boundary")

	// ErrAbortActivity is the default reason passed to a background
	// activity's AbortSignal when it is canceled by loop shutdown.
	ErrAbortActivity = errors.New("actorloop: activity aborted")
)

// InvalidAccessError reports a call shape the engine refuses to service:
// a Yield proc invoked internally, an External Callable invoked externally,
// a callback issued from a frame without a reply channel, or a wrapper
// invoked with a block argument.
type InvalidAccessError struct {
	// Op names the operation that was refused.
	Op string
	// Reason gives a short human-readable explanation.
	Reason string
}

func (e *InvalidAccessError) Error() string {
	return fmt.Sprintf("actorloop: invalid access in %s: %s", e.Op, e.Reason)
}

// Is reports whether target is also an *InvalidAccessError, so that callers
// can use errors.Is(err, new(InvalidAccessError)) style checks without
// caring about Op/Reason.
func (e *InvalidAccessError) Is(target error) bool {
	_, ok := target.(*InvalidAccessError)
	return ok
}

// MultipleResultsError is raised on the second and subsequent invocations of
// a deferred-reply call's reply function; only the first invocation is
// accepted.
type MultipleResultsError struct {
	// Name is the yield-call's frame name.
	Name string
}

func (e *MultipleResultsError) Error() string {
	return fmt.Sprintf("actorloop: %s already delivered a result", e.Name)
}

func (e *MultipleResultsError) Is(target error) bool {
	_, ok := target.(*MultipleResultsError)
	return ok
}

func invalidAccess(op, reason string) error {
	return &InvalidAccessError{Op: op, Reason: reason}
}
