package sequencer

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrConnClosed      = errors.New("bus connection is closed")
	ErrMotionDisabled  = errors.New("motion enable is off")
	ErrMoveTimeout     = errors.New("move timeout")
	ErrScriptCycle     = errors.New("script references itself")
	ErrNoData          = errors.New("no data returned for actuator")
	ErrUnknownRegister = errors.New("register not defined for device type")
)

// ConfigError reports an unreadable or malformed configuration file.
type ConfigError struct {
	Path string // File that failed to load or validate
	Err  error  // Underlying error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// BusError represents a failed transaction on a specific bus.
type BusError struct {
	Bus string // Bus identifier (port name)
	Op  string // Operation that failed (e.g., "open", "bulk_read")
	Err error  // Underlying error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus %s %s failed: %v", e.Bus, e.Op, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// ActuatorError represents an error scoped to a single actuator.
type ActuatorError struct {
	ID  int    // Actuator ID
	Op  string // Operation that failed
	Err error  // Underlying error (if applicable)
}

func (e *ActuatorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("actuator %d %s failed: %v", e.ID, e.Op, e.Err)
	}
	return fmt.Sprintf("actuator %d %s failed", e.ID, e.Op)
}

func (e *ActuatorError) Unwrap() error {
	return e.Err
}

// IsMoveTimeout returns true if the error is a move timeout.
func IsMoveTimeout(err error) bool {
	return errors.Is(err, ErrMoveTimeout)
}

// GetActuatorError extracts an ActuatorError from an error chain, if present.
func GetActuatorError(err error) (*ActuatorError, bool) {
	var actErr *ActuatorError
	if errors.As(err, &actErr) {
		return actErr, true
	}
	return nil, false
}
