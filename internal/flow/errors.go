package flow

import (
	"errors"
	"fmt"
)

// Error is returned by Runner.Run when a flow does not complete.
type Error struct {
	Flow     string
	Hospital string
	Step     string
	Err      error
	// Reported is true once the backend accepted an error report for this
	// failure.
	Reported bool
}

func (e *Error) Error() string {
	step := e.Step
	if step == "" {
		step = "setup"
	}
	return fmt.Sprintf("%s failed at %s: %v", e.Flow, step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Reported reports whether err carries a flow failure the backend already
// knows about.
func Reported(err error) bool {
	var flowErr *Error
	return errors.As(err, &flowErr) && flowErr.Reported
}
