package camera

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrDeviceNotFound is returned when no compatible camera is attached.
	ErrDeviceNotFound = errors.New("camera: no RealSense device found")

	// ErrNotStarted is returned when capturing from a stopped source.
	ErrNotStarted = errors.New("camera: stream not started")

	// ErrBackendUnavailable is returned when a backend was not compiled in.
	ErrBackendUnavailable = errors.New("camera: backend not available in this build")
)

// DriverError is a failure reported by the device SDK.
type DriverError struct {
	// Op is the SDK function that failed.
	Op string

	// Args are the arguments of the failed call, as reported by the SDK.
	Args string

	// Message is the SDK error text.
	Message string

	// Err is an optional underlying error.
	Err error
}

// Error implements the error interface.
func (e *DriverError) Error() string {
	if e.Args != "" {
		return fmt.Sprintf("camera: driver error calling %s(%s): %s", e.Op, e.Args, e.Message)
	}
	return fmt.Sprintf("camera: driver error calling %s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *DriverError) Unwrap() error {
	return e.Err
}

// IsDriverError reports whether err wraps a *DriverError.
func IsDriverError(err error) bool {
	var de *DriverError
	return errors.As(err, &de)
}
