package gpu

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// DeviceProvider is the integration point between the host application and
// the GPU backend. The host (an XR runtime or windowing layer) owns the
// GPU device and shares it with video compositors through this interface;
// the backend never creates a device of its own.
//
// DeviceProvider is an alias for gpucontext.DeviceProvider, so hosts built
// on the gpucontext ecosystem plug in directly. Providers that additionally
// implement HalDevice() any and HalQueue() any grant the backend direct
// wgpu/hal access, which the render path requires.
type DeviceProvider = gpucontext.DeviceProvider

// NullDeviceProvider is a DeviceProvider with no device attached. Useful
// as a placeholder in hosts that composite on the CPU backend only.
type NullDeviceProvider struct{}

// Device returns nil for the null provider.
func (NullDeviceProvider) Device() gpucontext.Device { return nil }

// Queue returns nil for the null provider.
func (NullDeviceProvider) Queue() gpucontext.Queue { return nil }

// Adapter returns nil for the null provider.
func (NullDeviceProvider) Adapter() gpucontext.Adapter { return nil }

// SurfaceFormat returns undefined format for the null provider.
func (NullDeviceProvider) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

// Ensure NullDeviceProvider implements DeviceProvider.
var _ DeviceProvider = NullDeviceProvider{}
