// Package gpu implements the video compositor on the gogpu/wgpu hardware
// abstraction layer.
//
// The package owns the GPU side of the frame pipeline: the two-slot video
// texture pool, the command-buffer lifecycle state machine, the timeline
// signal coordinating copy-to-render handoff, the external-memory import
// bookkeeping for cross-API frames, and the per-passthrough-mode render
// pipelines with their WGSL shaders.
//
// The backend receives its device and queue from the host application via
// SetDeviceProvider (dependency injection; the backend never creates a
// device of its own). Tests run against the wgpu noop driver.
//
// Importing the package registers the "gpu" backend:
//
//	import _ "github.com/xrbridge/vidcomp/backend/gpu"
package gpu
