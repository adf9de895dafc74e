package policy

import (
	"errors"
	"fmt"
)

// ErrToggleFailed is matched by every ToggleError.
var ErrToggleFailed = errors.New("extension toggle failed")

// ToggleError reports a failed enable or disable of one extension.
type ToggleError struct {
	Err     error
	ID      string
	Enabled bool
}

func (e *ToggleError) Error() string {
	action := "disable"
	if e.Enabled {
		action = "enable"
	}
	return fmt.Sprintf("%s extension %s: %v", action, e.ID, e.Err)
}

// Is implements error matching for errors.Is() checks.
// This allows: errors.Is(err, policy.ErrToggleFailed)
func (e *ToggleError) Is(target error) bool {
	return target == ErrToggleFailed
}

func (e *ToggleError) Unwrap() error {
	return e.Err
}
