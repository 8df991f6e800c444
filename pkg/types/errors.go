package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidKey indicates a malformed node key. Handlers map it to a
	// client error and must never create a record for it.
	ErrInvalidKey = errors.New("invalid node key")

	// ErrNotFound indicates a record absent from the store.
	ErrNotFound = errors.New("not found")
)

// StoreLockError indicates the state database lock could not be acquired
// within its bounded wait. The enclosing operation aborts; state is left
// unmodified.
type StoreLockError struct {
	Path string
	Err  error
}

func (e *StoreLockError) Error() string {
	return fmt.Sprintf("state store %s: lock not acquired: %v", e.Path, e.Err)
}

func (e *StoreLockError) Unwrap() error { return e.Err }

// RemoteTimeoutError indicates a remote call exceeded its supervising
// bound and was abandoned.
type RemoteTimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *RemoteTimeoutError) Error() string {
	return fmt.Sprintf("remote %s: abandoned after %s", e.Op, e.Timeout)
}

// RemoteCommandError indicates a remote call returned failure. Callers
// try the next fallback in their ordered list; exhaustion is a per-node
// failure, never a whole-run abort.
type RemoteCommandError struct {
	Op     string
	Output string
	Err    error
}

func (e *RemoteCommandError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("remote %s failed: %v (output: %s)", e.Op, e.Err, e.Output)
	}
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *RemoteCommandError) Unwrap() error { return e.Err }

// PreconditionError indicates a node is not ready for cluster formation.
type PreconditionError struct {
	Node   string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("node %s not ready: %s", e.Node, e.Reason)
}
