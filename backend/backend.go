package backend

import (
	"errors"

	"github.com/xrbridge/vidcomp"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")
)

// Backend name constants.
const (
	// BackendGPU is the name of the wgpu/hal GPU backend.
	BackendGPU = "gpu"
	// BackendSoftware is the name of the CPU reference backend.
	BackendSoftware = "software"
)

// VideoBackend is the interface for video compositing backends. It
// abstracts the rendering implementation, allowing the library to drive
// either a real GPU device or the CPU reference path through one surface.
//
// Backends must be registered via Register() and are selected via
// Get() or Default().
type VideoBackend interface {
	// Name returns the backend identifier (e.g., "gpu", "software").
	Name() string

	// Init initializes the backend. This should be called before
	// creating compositors.
	Init() error

	// Close releases all backend resources.
	// The backend should not be used after Close is called.
	Close()

	// NewCompositor creates a video compositor for one XR session.
	NewCompositor(opts ...vidcomp.Option) (vidcomp.VideoCompositor, error)
}
