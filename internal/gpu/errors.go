package gpu

import "github.com/cockroachdb/errors"

// Error kinds. Component errors are marked with one of these so callers can
// classify a failure with errors.Is without knowing which component raised it.
var (
	ErrDeviceSelection        = errors.New("device selection failed")
	ErrResourceAllocation     = errors.New("resource allocation failed")
	ErrSwapchain              = errors.New("swapchain failure")
	ErrSynchronizationTimeout = errors.New("synchronization timed out")
	// ErrPresentationStale is recovered by the render loop and never returned
	// from Render.
	ErrPresentationStale = errors.New("presentation surface is stale")
)

// Recoverable reports whether err only asks for a swapchain rebuild.
func Recoverable(err error) bool {
	return errors.Is(err, ErrPresentationStale)
}
