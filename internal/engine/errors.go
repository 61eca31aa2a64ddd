package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig matches every ConfigError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError reports an invalid option supplied by the caller. It is always
// raised before any network activity.
type ConfigError struct {
	Option string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Option, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Option, e.Value, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidConfig) match.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}
