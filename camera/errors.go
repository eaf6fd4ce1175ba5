package camera

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument indicates a caller supplied value the detector does not support.
	ErrInvalidArgument = errors.New("camera: invalid argument")

	// ErrCameraClosed indicates an operation on a closed camera.
	ErrCameraClosed = errors.New("camera: closed")

	// ErrNotInitialized indicates an operation that requires Init.
	ErrNotInitialized = errors.New("camera: not initialized")

	// ErrUnsupportedOp indicates an operation the protocol generation has no command for.
	ErrUnsupportedOp = errors.New("camera: operation not supported by protocol")

	// ErrBusy indicates a command that needs the primary connection while a job runs.
	ErrBusy = errors.New("camera: acquisition in progress")

	// ErrJobRejected indicates a job with invalid parameters.
	ErrJobRejected = errors.New("camera: job rejected")
)

// ConfigError reports an unsupported configuration value. It is returned
// before any command is sent and leaves the camera configuration unchanged.
type ConfigError struct {
	Field string
	Value any
	// Reason lists what is supported.
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("camera: unsupported %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidArgument }

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
