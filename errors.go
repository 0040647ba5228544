package sequence

import (
	"errors"
	"strings"
)

var (
	// ErrNothingToProcess is returned when the filter selects no frames.
	ErrNothingToProcess = errors.New("sequence: nothing to process")
	// ErrAborted is returned by blocked operations when the run was
	// aborted.
	ErrAborted = errors.New("sequence: run aborted")
	// ErrNoOutput is returned when a run is started without writers.
	ErrNoOutput = errors.New("sequence: no output writers")
)

// finalizeErrors wraps errors that might occur when multiple finalization
// steps are failing.
type finalizeErrors []error

func (e finalizeErrors) Error() string {
	s := make([]string, 0, len(e))
	for _, fe := range e {
		s = append(s, fe.Error())
	}
	return strings.Join(s, "; ")
}

// ret returns untyped nil if error list is empty.
func (e finalizeErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
