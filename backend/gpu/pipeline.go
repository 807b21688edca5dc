package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/xrbridge/vidcomp"
)

// videoUniformSize is the byte size of the video uniform buffer.
// Layout: dequant mat4x4<f32> (64) + key_color, params, fove_center,
// fove_edge vec4<f32> (4 x 16) = 128 bytes.
const videoUniformSize = 128

// videoUniforms is the CPU mirror of the WGSL VideoUniforms struct.
type videoUniforms struct {
	dequant vidcomp.Matrix4
	mode    vidcomp.PassthroughMode
	mask    vidcomp.MaskModeParams
	blend   vidcomp.BlendModeParams
	fove    vidcomp.FoveatedDecodeParams
}

// putFloat32LE writes v into b as a little-endian IEEE 754 word.
func putFloat32LE(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b[:4], math.Float32bits(v))
}

// toBytes serializes the uniforms in the WGSL struct layout. mat4x4 is
// column-major on the GPU; Matrix4 is row-major, so columns are written
// from transposed reads.
func (u *videoUniforms) toBytes() []byte {
	buf := make([]byte, videoUniformSize)
	putF32 := func(off int, v float32) {
		putFloat32LE(buf[off:], v)
	}
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			putF32((col*4+row)*4, u.dequant.At(row, col))
		}
	}
	// key_color: rgb key + squared distance tolerance.
	putF32(64, u.mask.KeyColor[0])
	putF32(68, u.mask.KeyColor[1])
	putF32(72, u.mask.KeyColor[2])
	putF32(76, u.mask.Tolerance*u.mask.Tolerance)
	// params: mode, blend alpha, mask alpha.
	putF32(80, float32(u.mode))
	putF32(84, u.blend.Alpha)
	putF32(88, u.mask.Alpha)
	putF32(92, 0)
	// fove_center: center size + center shift.
	putF32(96, u.fove.CenterSizeX)
	putF32(100, u.fove.CenterSizeY)
	putF32(104, u.fove.CenterShiftX)
	putF32(108, u.fove.CenterShiftY)
	// fove_edge: edge ratios.
	putF32(112, u.fove.EdgeRatioX)
	putF32(116, u.fove.EdgeRatioY)
	putF32(120, 0)
	putF32(124, 0)
	return buf
}

// videoPipelines owns the shader modules, layouts, sampler, and the render
// pipeline per shader variant. Pipelines target a fixed color format and
// stencil configuration; changing either rebuilds the set.
type videoPipelines struct {
	device hal.Device

	twoPlaneShader        hal.ShaderModule
	threePlaneShader      hal.ShaderModule
	twoPlaneFoveShader    hal.ShaderModule
	threePlaneFoveShader  hal.ShaderModule
	twoPlaneBindLayout    hal.BindGroupLayout
	threePlaneBindLayout  hal.BindGroupLayout
	twoPlanePipeLayout    hal.PipelineLayout
	threePlanePipeLayout  hal.PipelineLayout
	sampler               hal.Sampler

	pipelines [2 * vidcomp.VideoShaderVariants]hal.RenderPipeline

	targetFormat gputypes.TextureFormat
	stencilTest  bool
}

// videoTextureBindings returns the bind group layout entries for a video
// variant: uniform at 0, one sampled texture per plane from 1, sampler
// last.
func videoTextureBindings(planeCount int) []gputypes.BindGroupLayoutEntry {
	entries := []gputypes.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		},
	}
	for plane := 0; plane < planeCount; plane++ {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(1 + plane),
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}
	entries = append(entries, gputypes.BindGroupLayoutEntry{
		Binding:    uint32(1 + planeCount),
		Visibility: gputypes.ShaderStageFragment,
		Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
	})
	return entries
}

// newVideoPipelines compiles the shader variants and builds one render
// pipeline per shader index targeting format. With stencilTest set, video
// draws are confined to pixels outside the visibility mask.
func newVideoPipelines(device hal.Device, format gputypes.TextureFormat, stencilTest bool) (*videoPipelines, error) {
	p := &videoPipelines{device: device, targetFormat: format, stencilTest: stencilTest}
	if err := p.build(); err != nil {
		p.destroy()
		return nil, err
	}
	return p, nil
}

func (p *videoPipelines) build() error {
	var err error
	if p.twoPlaneShader, err = createShaderModule(p.device, "video_shader", videoShaderSource); err != nil {
		return err
	}
	if p.threePlaneShader, err = createShaderModule(p.device, "video3_shader", video3ShaderSource); err != nil {
		return err
	}
	if p.twoPlaneFoveShader, err = createShaderModule(p.device, "video_foveated_shader", videoFoveatedShaderSource); err != nil {
		return err
	}
	if p.threePlaneFoveShader, err = createShaderModule(p.device, "video3_foveated_shader", video3FoveatedShaderSource); err != nil {
		return err
	}

	p.twoPlaneBindLayout, err = p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "video_bind_layout",
		Entries: videoTextureBindings(2),
	})
	if err != nil {
		return fmt.Errorf("gpu: create two-plane bind layout: %w", err)
	}
	p.threePlaneBindLayout, err = p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "video3_bind_layout",
		Entries: videoTextureBindings(3),
	})
	if err != nil {
		return fmt.Errorf("gpu: create three-plane bind layout: %w", err)
	}

	p.twoPlanePipeLayout, err = p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "video_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.twoPlaneBindLayout},
	})
	if err != nil {
		return fmt.Errorf("gpu: create two-plane pipeline layout: %w", err)
	}
	p.threePlanePipeLayout, err = p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "video3_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.threePlaneBindLayout},
	})
	if err != nil {
		return fmt.Errorf("gpu: create three-plane pipeline layout: %w", err)
	}

	// Bilinear filtering with clamped edges; chroma planes are half
	// resolution and rely on the filter for upsampling.
	p.sampler, err = p.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "video_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		return fmt.Errorf("gpu: create video sampler: %w", err)
	}

	for foveated := 0; foveated < 2; foveated++ {
		for _, planeCount := range []int{2, 3} {
			for mode := vidcomp.PassthroughNone; mode <= vidcomp.PassthroughMask; mode++ {
				index := vidcomp.VideoShaderIndex(planeCount, mode, foveated == 1)
				pipeline, perr := p.buildVariant(index, planeCount, mode, foveated == 1)
				if perr != nil {
					return perr
				}
				p.pipelines[index] = pipeline
			}
		}
	}
	return nil
}

func (p *videoPipelines) buildVariant(index int, planeCount int, mode vidcomp.PassthroughMode, foveated bool) (hal.RenderPipeline, error) {
	shader := p.twoPlaneShader
	layout := p.twoPlanePipeLayout
	if planeCount == 3 {
		shader = p.threePlaneShader
		layout = p.threePlanePipeLayout
	}
	if foveated {
		shader = p.twoPlaneFoveShader
		if planeCount == 3 {
			shader = p.threePlaneFoveShader
		}
	}

	// Opaque passthrough replaces the destination; blend and mask modes
	// composite over the environment layer with shader-computed alpha.
	var blend *gputypes.BlendState
	if mode != vidcomp.PassthroughNone {
		blend = &gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorSrcAlpha,
				DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
				Operation: gputypes.BlendOperationAdd,
			},
		}
	}

	desc := &hal.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("video_pipeline_%d", index),
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    p.targetFormat,
					Blend:     blend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
	}

	if p.stencilTest {
		// Skip pixels the visibility mask pre-pass marked with 1.
		desc.DepthStencil = &hal.DepthStencilState{
			Format:            gputypes.TextureFormatDepth24PlusStencil8,
			DepthWriteEnabled: false,
			DepthCompare:      gputypes.CompareFunctionAlways,
			StencilFront: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionNotEqual,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
			StencilBack: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionNotEqual,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
			StencilReadMask:  0xFF,
			StencilWriteMask: 0x00,
		}
	}

	pipeline, err := p.device.CreateRenderPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("gpu: create video pipeline %d: %w", index, err)
	}
	return pipeline, nil
}

// pipeline returns the render pipeline for a shader index.
func (p *videoPipelines) pipeline(index int) hal.RenderPipeline {
	if index < 0 || index >= len(p.pipelines) {
		return nil
	}
	return p.pipelines[index]
}

// bindLayout returns the bind group layout for a plane count.
func (p *videoPipelines) bindLayout(planeCount int) hal.BindGroupLayout {
	if planeCount == 3 {
		return p.threePlaneBindLayout
	}
	return p.twoPlaneBindLayout
}

// createBindGroup builds the per-slot bind group: uniform buffer, plane
// views in plane order, then the shared sampler.
func (p *videoPipelines) createBindGroup(label string, uniform hal.Buffer, views []hal.TextureView) (hal.BindGroup, error) {
	entries := []gputypes.BindGroupEntry{
		{
			Binding: 0,
			Resource: gputypes.BufferBinding{
				Buffer: uniform.NativeHandle(),
				Offset: 0,
				Size:   videoUniformSize,
			},
		},
	}
	for plane, view := range views {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding: uint32(1 + plane),
			Resource: gputypes.TextureViewBinding{
				TextureView: view.NativeHandle(),
			},
		})
	}
	entries = append(entries, gputypes.BindGroupEntry{
		Binding: uint32(1 + len(views)),
		Resource: gputypes.SamplerBinding{
			Sampler: p.sampler.NativeHandle(),
		},
	})

	bg, err := p.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label,
		Layout:  p.bindLayout(len(views)),
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create bind group %s: %w", label, err)
	}
	return bg, nil
}

// destroy releases all pipeline resources in reverse creation order. Safe
// on a partially built set.
func (p *videoPipelines) destroy() {
	for i, pipeline := range p.pipelines {
		if pipeline != nil {
			p.device.DestroyRenderPipeline(pipeline)
			p.pipelines[i] = nil
		}
	}
	if p.sampler != nil {
		p.device.DestroySampler(p.sampler)
		p.sampler = nil
	}
	if p.threePlanePipeLayout != nil {
		p.device.DestroyPipelineLayout(p.threePlanePipeLayout)
		p.threePlanePipeLayout = nil
	}
	if p.twoPlanePipeLayout != nil {
		p.device.DestroyPipelineLayout(p.twoPlanePipeLayout)
		p.twoPlanePipeLayout = nil
	}
	if p.threePlaneBindLayout != nil {
		p.device.DestroyBindGroupLayout(p.threePlaneBindLayout)
		p.threePlaneBindLayout = nil
	}
	if p.twoPlaneBindLayout != nil {
		p.device.DestroyBindGroupLayout(p.twoPlaneBindLayout)
		p.twoPlaneBindLayout = nil
	}
	for _, shader := range []hal.ShaderModule{p.threePlaneFoveShader, p.twoPlaneFoveShader, p.threePlaneShader, p.twoPlaneShader} {
		if shader != nil {
			p.device.DestroyShaderModule(shader)
		}
	}
	p.threePlaneFoveShader = nil
	p.twoPlaneFoveShader = nil
	p.threePlaneShader = nil
	p.twoPlaneShader = nil
}
