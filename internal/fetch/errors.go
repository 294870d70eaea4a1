package fetch

import (
	"errors"
	"fmt"
)

// FetchFailure is a recoverable download failure. The pipeline contains it:
// the source halts for this pass and its local copy stays as it was.
type FetchFailure struct {
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

// Error implements the error interface.
func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchFailure) Unwrap() error {
	return e.Err
}

// IsFetchFailure reports whether err is a FetchFailure.
func IsFetchFailure(err error) bool {
	var ff *FetchFailure
	return errors.As(err, &ff)
}
