package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/xrbridge/vidcomp"
	"github.com/xrbridge/vidcomp/backend"
)

// Backend errors.
var (
	// ErrNoDevice is returned when Init or NewCompositor is called before
	// a device provider has been set.
	ErrNoDevice = errors.New("gpu: no device provider set")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("gpu: backend not initialized")
)

// init registers the GPU backend on package import.
func init() {
	backend.Register(backend.BackendGPU, func() backend.VideoBackend {
		return New()
	})
}

// Backend is the wgpu/hal video backend. It holds the shared device and
// queue received from the host application and hands them to compositors.
type Backend struct {
	mu          sync.Mutex
	device      hal.Device
	queue       hal.Queue
	initialized bool
}

// New creates a GPU backend with no device attached. Call
// SetDeviceProvider (or SetDevice) before Init.
func New() *Backend {
	return &Backend{}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return backend.BackendGPU }

// SetDeviceProvider attaches the shared GPU device from a host
// DeviceProvider. The provider must also implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue.
func (b *Backend) SetDeviceProvider(provider DeviceProvider) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("gpu: provider HalQueue is not hal.Queue")
	}
	b.SetDevice(device, queue)
	return nil
}

// SetDevice attaches a device and queue directly. Useful for tests and
// hosts that already hold hal handles.
func (b *Backend) SetDevice(device hal.Device, queue hal.Queue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.device = device
	b.queue = queue
}

// Init validates that a device is attached. The backend does not own the
// device: Close never destroys it.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device == nil || b.queue == nil {
		return ErrNoDevice
	}
	b.initialized = true
	vidcomp.Logger().Info("gpu backend initialized")
	return nil
}

// Close detaches the device. Compositors created from this backend must
// be closed first.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.device = nil
	b.queue = nil
	b.initialized = false
}

// NewCompositor creates a video compositor on the backend's device.
func (b *Backend) NewCompositor(opts ...vidcomp.Option) (vidcomp.VideoCompositor, error) {
	b.mu.Lock()
	device, queue, ok := b.device, b.queue, b.initialized
	b.mu.Unlock()
	if !ok {
		return nil, ErrNotInitialized
	}
	if device == nil || queue == nil {
		return nil, ErrNoDevice
	}
	return NewCompositor(device, queue, opts...)
}
