package target

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTarget matches every ValidationError.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrUnresolvable matches every ResolutionError.
	ErrUnresolvable = errors.New("target cannot be resolved")
)

// ValidationError reports an empty or forbidden target. It is raised before
// any network activity.
type ValidationError struct {
	Host   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Host == "" {
		return fmt.Sprintf("invalid target: %s", e.Reason)
	}
	return fmt.Sprintf("invalid target %q: %s", e.Host, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidTarget) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidTarget
}

// ResolutionError reports that no usable address could be obtained for a host.
type ResolutionError struct {
	Host string
	Err  error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolve %s: no usable address", e.Host)
	}
	return fmt.Sprintf("resolve %s: %v", e.Host, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUnresolvable) match.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrUnresolvable
}
