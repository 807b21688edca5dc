package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/xrbridge/vidcomp"
)

// VisibilityMask is the runtime-supplied hidden-area mesh in normalized
// device coordinates. Pixels covered by the mesh are never visible in the
// headset and are skipped by the video pass.
type VisibilityMask struct {
	Vertices []float32 // x,y pairs
	Indices  []uint16
}

// maskStencilRef is the stencil value written over masked-out pixels.
const maskStencilRef = 1

// maskRenderer owns the stencil pre-pass that rasterizes the hidden-area
// mesh into the stencil attachment. The mesh changes rarely (new session,
// recentered view), so vertex data is uploaded on set and the pre-pass is
// recorded per target until the dirty flag clears.
type maskRenderer struct {
	device hal.Device
	queue  hal.Queue

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline

	vertexBuf  hal.Buffer
	indexBuf   hal.Buffer
	indexCount uint32
	dirty      bool
}

// newMaskRenderer builds the mask fill pipeline targeting format.
func newMaskRenderer(device hal.Device, queue hal.Queue, format gputypes.TextureFormat) (*maskRenderer, error) {
	m := &maskRenderer{device: device, queue: queue}

	shader, err := createShaderModule(device, "visibility_mask_shader", visibilityMaskShaderSource)
	if err != nil {
		return nil, err
	}
	m.shader = shader

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "visibility_mask_pipe_layout",
	})
	if err != nil {
		m.destroy()
		return nil, fmt.Errorf("gpu: create mask pipeline layout: %w", err)
	}
	m.pipeLayout = pipeLayout

	// Fill pass: color writes off, stencil unconditionally replaced with
	// the mask reference over the mesh.
	pipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "visibility_mask_pipeline",
		Layout: m.pipeLayout,
		Vertex: hal.VertexState{
			Module:     m.shader,
			EntryPoint: "vs_main",
			Buffers: []gputypes.VertexBufferLayout{
				{
					ArrayStride: 8,
					StepMode:    gputypes.VertexStepModeVertex,
					Attributes: []gputypes.VertexAttribute{
						{
							Format:         gputypes.VertexFormatFloat32x2,
							Offset:         0,
							ShaderLocation: 0,
						},
					},
				},
			},
		},
		Fragment: &hal.FragmentState{
			Module:     m.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    format,
					WriteMask: gputypes.ColorWriteMaskNone,
				},
			},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            gputypes.TextureFormatDepth24PlusStencil8,
			DepthWriteEnabled: false,
			DepthCompare:      gputypes.CompareFunctionAlways,
			StencilFront: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationReplace,
			},
			StencilBack: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationReplace,
			},
			StencilReadMask:  0xFF,
			StencilWriteMask: 0xFF,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
	})
	if err != nil {
		m.destroy()
		return nil, fmt.Errorf("gpu: create mask pipeline: %w", err)
	}
	m.pipeline = pipeline
	return m, nil
}

// setMesh uploads a new hidden-area mesh and marks every target dirty.
// A nil or empty mesh clears the mask.
func (m *maskRenderer) setMesh(mask *VisibilityMask) error {
	m.releaseBuffers()
	m.indexCount = 0
	m.dirty = true
	if mask == nil || len(mask.Indices) == 0 {
		return nil
	}
	if len(mask.Vertices)%2 != 0 {
		return fmt.Errorf("gpu: mask vertices must be x,y pairs, got %d floats", len(mask.Vertices))
	}

	vertexBytes := make([]byte, len(mask.Vertices)*4)
	for i, v := range mask.Vertices {
		putFloat32LE(vertexBytes[i*4:], v)
	}
	indexBytes := make([]byte, len(mask.Indices)*2)
	for i, idx := range mask.Indices {
		indexBytes[i*2] = byte(idx)
		indexBytes[i*2+1] = byte(idx >> 8)
	}

	vertexBuf, err := m.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "visibility_mask_vertices",
		Size:  uint64(len(vertexBytes)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create mask vertex buffer: %w", err)
	}
	m.vertexBuf = vertexBuf

	indexBuf, err := m.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "visibility_mask_indices",
		Size:  uint64(len(indexBytes)),
		Usage: gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		m.releaseBuffers()
		return fmt.Errorf("gpu: create mask index buffer: %w", err)
	}
	m.indexBuf = indexBuf

	m.queue.WriteBuffer(m.vertexBuf, 0, vertexBytes)
	m.queue.WriteBuffer(m.indexBuf, 0, indexBytes)
	m.indexCount = uint32(len(mask.Indices))
	vidcomp.Logger().Info("visibility mask updated",
		"vertices", len(mask.Vertices)/2, "indices", len(mask.Indices))
	return nil
}

// hasMesh reports whether a non-empty mesh is loaded.
func (m *maskRenderer) hasMesh() bool { return m.indexCount > 0 }

// record draws the mask mesh into the pass's stencil attachment.
func (m *maskRenderer) record(rp hal.RenderPassEncoder) {
	if m.indexCount == 0 {
		return
	}
	rp.SetPipeline(m.pipeline)
	rp.SetStencilReference(maskStencilRef)
	rp.SetVertexBuffer(0, m.vertexBuf, 0)
	rp.SetIndexBuffer(m.indexBuf, gputypes.IndexFormatUint16, 0)
	rp.DrawIndexed(m.indexCount, 1, 0, 0, 0)
	m.dirty = false
}

func (m *maskRenderer) releaseBuffers() {
	if m.indexBuf != nil {
		m.device.DestroyBuffer(m.indexBuf)
		m.indexBuf = nil
	}
	if m.vertexBuf != nil {
		m.device.DestroyBuffer(m.vertexBuf)
		m.vertexBuf = nil
	}
}

// destroy releases all mask resources. Safe on a partially built renderer.
func (m *maskRenderer) destroy() {
	m.releaseBuffers()
	if m.pipeline != nil {
		m.device.DestroyRenderPipeline(m.pipeline)
		m.pipeline = nil
	}
	if m.pipeLayout != nil {
		m.device.DestroyPipelineLayout(m.pipeLayout)
		m.pipeLayout = nil
	}
	if m.bindLayout != nil {
		m.device.DestroyBindGroupLayout(m.bindLayout)
		m.bindLayout = nil
	}
	if m.shader != nil {
		m.device.DestroyShaderModule(m.shader)
		m.shader = nil
	}
}
