package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tileconverge/internal/resource"
)

// ConvergenceError is returned when the desired/observed comparison of a
// resource cannot be computed (for example a stat failing on permissions).
//
// It aborts the remainder of the pass. Resources evaluated earlier keep
// whatever state they applied.
type ConvergenceError struct {
	Resource resource.ID
	Op       string
	Err      error
}

// Error implements the error interface.
func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("converge %s: %s: %v", e.Resource, e.Op, e.Err)
}

func (e *ConvergenceError) Unwrap() error {
	return e.Err
}

// ActionError wraps a failed Apply with the identity of the resource and the
// action that was running. The capability error (extraction, indexing,
// service control) stays reachable through errors.As.
type ActionError struct {
	Resource resource.ID
	Action   resource.Action
	Err      error
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	return fmt.Sprintf("%s action %s: %v", e.Resource, e.Action, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// NotificationCycleError is returned when notification propagation does not
// reach a fixed point within the iteration bound.
type NotificationCycleError struct {
	Limit      int
	Iterations int

	// Path is the immediate chain at the time the bound was hit. Empty when
	// the delayed queue exceeded the bound.
	Path []resource.ID

	// Pending holds the delayed edges that were still queued.
	Pending []resource.Edge
}

// Error implements the error interface.
func (e *NotificationCycleError) Error() string {
	if len(e.Path) > 0 {
		parts := make([]string, len(e.Path))
		for i, id := range e.Path {
			parts[i] = id.String()
		}
		return fmt.Sprintf("notification cycle: immediate chain exceeded %d levels: %s",
			e.Limit, strings.Join(parts, " -> "))
	}
	return fmt.Sprintf("notification cycle: delayed queue not settled after %d rounds (%d edges pending)",
		e.Limit, len(e.Pending))
}

// GraphErrorCode categorizes graph construction failures.
type GraphErrorCode string

const (
	// ErrCodeDuplicateResource indicates the same (kind, name) was declared twice.
	ErrCodeDuplicateResource GraphErrorCode = "DUPLICATE_RESOURCE"

	// ErrCodeKindMismatch indicates a descriptor whose kind differs from the ID's.
	ErrCodeKindMismatch GraphErrorCode = "KIND_MISMATCH"

	// ErrCodeMissingHandler indicates no handler is registered for a kind.
	ErrCodeMissingHandler GraphErrorCode = "MISSING_HANDLER"

	// ErrCodeUnsupportedAction indicates a handler that cannot run the action.
	ErrCodeUnsupportedAction GraphErrorCode = "UNSUPPORTED_ACTION"

	// ErrCodeDanglingReference indicates a notification or subscription
	// naming an undeclared resource.
	ErrCodeDanglingReference GraphErrorCode = "DANGLING_REFERENCE"
)

// GraphError describes one problem found while building a Graph.
type GraphError struct {
	Code     GraphErrorCode
	Resource resource.ID
	Message  string
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Resource, e.Message)
}

// IsConvergenceError reports whether err is a ConvergenceError.
// Uses errors.As to handle wrapped errors.
func IsConvergenceError(err error) bool {
	var ce *ConvergenceError
	return errors.As(err, &ce)
}

// IsNotificationCycleError reports whether err is a NotificationCycleError.
func IsNotificationCycleError(err error) bool {
	var ne *NotificationCycleError
	return errors.As(err, &ne)
}

// IsGraphError reports whether err carries at least one GraphError.
func IsGraphError(err error) bool {
	var ge *GraphError
	return errors.As(err, &ge)
}

// FailedResource extracts the identity of the resource that aborted a pass.
func FailedResource(err error) (resource.ID, bool) {
	var ce *ConvergenceError
	if errors.As(err, &ce) {
		return ce.Resource, true
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Resource, true
	}
	return resource.ID{}, false
}
