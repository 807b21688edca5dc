package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// Embedded WGSL shader sources. One module per plane-count/foveation
// combination; passthrough mode is a uniform, not a compile-time variant.

//go:embed shaders/video.wgsl
var videoShaderSource string

//go:embed shaders/video3.wgsl
var video3ShaderSource string

//go:embed shaders/video_foveated.wgsl
var videoFoveatedShaderSource string

//go:embed shaders/video3_foveated.wgsl
var video3FoveatedShaderSource string

//go:embed shaders/visibility_mask.wgsl
var visibilityMaskShaderSource string

// compileShaderToSPIRV compiles WGSL source to SPIR-V words. SPIR-V is
// little-endian 32-bit words.
func compileShaderToSPIRV(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("gpu: compile shader: %w", err)
	}
	spirvCode := make([]uint32, len(spirvBytes)/4)
	for i := range spirvCode {
		spirvCode[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return spirvCode, nil
}

// createShaderModule compiles WGSL ahead of time and hands the device
// SPIR-V, keeping shader translation off the device driver.
func createShaderModule(device hal.Device, label, wgslSource string) (hal.ShaderModule, error) {
	spirvCode, err := compileShaderToSPIRV(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("gpu: %s: %w", label, err)
	}
	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirvCode},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create shader module %s: %w", label, err)
	}
	return module, nil
}

// videoShaderSourceFor returns the WGSL source for a plane-count/foveation
// combination.
func videoShaderSourceFor(threePlane, foveated bool) string {
	switch {
	case threePlane && foveated:
		return video3FoveatedShaderSource
	case threePlane:
		return video3ShaderSource
	case foveated:
		return videoFoveatedShaderSource
	default:
		return videoShaderSource
	}
}
