//go:build !realsense

package camera

import (
	"fmt"
	"log/slog"
)

const realSenseAvailable = false

// newRealSenseDriver returns an error when built without the realsense tag.
func newRealSenseDriver(cfg Config, logger *slog.Logger) (Driver, error) {
	return nil, fmt.Errorf("%w: built with %v, rebuild with -tags realsense", ErrBackendUnavailable, AvailableBackends())
}
