// Package vidcomp implements the video rendering backend of a remote-VR
// client: it ingests hardware-decoded YCbCr frames, double-buffers them
// against the render thread, and composites them into stereo swapchain
// targets with exact color dequantization, passthrough blending, and
// foveation-aware shader selection.
//
// # Overview
//
// The package root holds the backend-independent core: the YCbCr color
// model (ComputeDequantizeMatrix), the frame descriptor types (YUVBuffer,
// Plane), the producer/consumer slot ring (SlotRing), the bounded frame
// queue (FrameQueue), and the VideoCompositor interface every render
// backend implements.
//
// # Backends
//
// Render backends live under backend/:
//   - backend/gpu renders through the gogpu/wgpu hardware abstraction
//     layer (Vulkan, DX12, Metal, or the noop test driver).
//   - backend/software is a CPU reference implementation performing the
//     same dequantization math per pixel; it exists for bit-exact color
//     verification and as a fallback.
//
// Both backends are behaviorally identical through the interface: same
// shader-variant arithmetic, same handoff protocol, same frame-index
// reporting.
//
// # Threading Model
//
// Exactly two execution contexts touch a compositor. A decode/upload
// context calls UpdateVideoTexture, and a render context calls
// BeginVideoView/RenderVideoView/EndVideoView once per XR frame. The
// handoff between them is the lock-free two-slot ring described on
// SlotRing; the render context never blocks waiting for a new frame.
package vidcomp

// Version information
const (
	// Version is the current version of the library
	Version = "0.2.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 2

	// VersionPatch is the patch version
	VersionPatch = 0
)
