package simulation

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches every ConfigurationError with errors.Is.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrImpossibleDraw matches every ImpossibleDrawError with errors.Is.
	ErrImpossibleDraw = errors.New("impossible draw")
	// ErrCycleLimit is returned when a simulation exceeds Params.MaxCycles.
	ErrCycleLimit = errors.New("cycle limit reached before confirmation depth")
)

// ConfigurationError reports a configuration rejected before any cycle runs.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrConfiguration, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// ImpossibleDrawError is an internal consistency fault: a draw or partition
// produced a value the pools cannot hold.
type ImpossibleDrawError struct {
	Cycle  int
	Detail string
}

func (e *ImpossibleDrawError) Error() string {
	return fmt.Sprintf("%v at cycle %d: %s", ErrImpossibleDraw, e.Cycle, e.Detail)
}

func (e *ImpossibleDrawError) Is(target error) bool {
	return target == ErrImpossibleDraw
}
