// Package backend provides a pluggable video-compositing backend
// abstraction.
//
// The backend package allows vidcomp to support multiple rendering
// implementations behind one VideoBackend interface: a real GPU path via
// gogpu/wgpu and a CPU reference path.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// Importing a backend package registers it:
//
//	import _ "github.com/xrbridge/vidcomp/backend/software"
//	import _ "github.com/xrbridge/vidcomp/backend/gpu"
//
// # Backend Selection
//
// Use Default() to get the best available backend, or Get() to request
// a specific backend by name:
//
//	// Get the default (best available) backend
//	b := backend.Default()
//
//	// Or request a specific backend
//	b := backend.Get("software")
//
// # Usage
//
//	b := backend.Default()
//	if err := b.Init(); err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	comp, err := b.NewCompositor(vidcomp.WithDrainPolicy(vidcomp.DrainOne))
//
// # Available Backends
//
// - "gpu": wgpu/hal device rendering (Vulkan, DX12, Metal, noop)
// - "software": CPU reference compositor (always available)
package backend
