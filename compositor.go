package vidcomp

import "fmt"

// PassthroughMode selects how decoded video is blended with the camera
// passthrough layer supplied by the XR runtime.
type PassthroughMode uint8

const (
	// PassthroughNone composites video opaquely with no passthrough.
	PassthroughNone PassthroughMode = iota

	// PassthroughBlend alpha-blends the whole video layer over passthrough.
	PassthroughBlend

	// PassthroughMask keys out a configured color so passthrough shows
	// through matching regions.
	PassthroughMask

	passthroughModeCount
)

// String returns a human-readable name for the mode.
func (m PassthroughMode) String() string {
	switch m {
	case PassthroughNone:
		return "none"
	case PassthroughBlend:
		return "blend"
	case PassthroughMask:
		return "mask"
	default:
		return fmt.Sprintf("PassthroughMode(%d)", uint8(m))
	}
}

// BlendMode is the environment blend mode reported by the XR runtime
// (values match the OpenXR enumeration, which starts at 1).
type BlendMode uint8

const (
	// BlendModeOpaque fully replaces the user's view (VR headsets).
	BlendModeOpaque BlendMode = 1 + iota

	// BlendModeAdditive adds rendered light to the view (optical AR).
	BlendModeAdditive

	// BlendModeAlphaBlend composites by alpha over camera video (mixed
	// reality passthrough).
	BlendModeAlphaBlend
)

// Shader variant bases. Each passthrough mode has a two-plane and a
// three-plane fragment variant; the whole set exists twice, once for
// normal and once for foveated decode. The index arithmetic must be
// identical across backends so foveated edge behavior matches visually.
const (
	videoShaderNormalBase     = 0
	videoShaderThreePlaneBase = int(passthroughModeCount)

	// VideoShaderVariants is the size of one (non-foveated or foveated)
	// shader set.
	VideoShaderVariants = 2 * int(passthroughModeCount)
)

// VideoShaderIndex computes the deterministic fragment shader variant for
// the given plane count, passthrough mode, and foveation state:
//
//	index = mode + (planeCount==3 ? 3 : 0) + (foveated ? 6 : 0)
//
// Every backend must use this exact arithmetic when building and selecting
// its pipeline array.
func VideoShaderIndex(planeCount int, mode PassthroughMode, foveated bool) int {
	base := videoShaderNormalBase
	if planeCount == 3 {
		base = videoShaderThreePlaneBase
	}
	idx := int(mode) + base
	if foveated {
		idx += VideoShaderVariants
	}
	return idx
}

// MaskModeParams configures PassthroughMask: fragments within Tolerance of
// KeyColor become transparent; everything else is blended with Alpha.
type MaskModeParams struct {
	KeyColor  [3]float32
	Tolerance float32
	Alpha     float32
}

// DefaultMaskModeParams returns the mask defaults: a near-black key color
// with a tight tolerance and 30% video opacity.
func DefaultMaskModeParams() MaskModeParams {
	return MaskModeParams{
		KeyColor:  [3]float32{0.01, 0.01, 0.01},
		Tolerance: 0.01,
		Alpha:     0.3,
	}
}

// BlendModeParams configures PassthroughBlend.
type BlendModeParams struct {
	Alpha float32
}

// DefaultBlendModeParams returns the blend default of 60% video opacity.
func DefaultBlendModeParams() BlendModeParams {
	return BlendModeParams{Alpha: 0.6}
}

// Clear colors. The lobby clear is dark slate gray; video passes clear to
// black with zero alpha so that a missing or mistimed frame shows the
// passthrough layer instead of flashing an opaque black.
var (
	lobbyClearColor      = [4]float32{0.184313729, 0.309803933, 0.309803933, 1}
	videoClearColor      = [4]float32{0, 0, 0, 0}
	additiveClearColor   = [4]float32{0, 0, 0, 1}
	alphaBlendClearColor = [4]float32{0, 0, 0, 0}
)

// ClearColor returns the render pass clear value for the given environment
// blend mode. videoLayer selects between the video pass policy and the
// lobby background policy.
func ClearColor(mode BlendMode, videoLayer bool) [4]float32 {
	if videoLayer {
		return videoClearColor
	}
	switch mode {
	case BlendModeAdditive:
		return additiveClearColor
	case BlendModeAlphaBlend:
		return alphaBlendClearColor
	default:
		return lobbyClearColor
	}
}

// RenderTarget describes one swapchain image to composite into. ColorView
// holds the backend-specific color attachment (hal.TextureView for
// backend/gpu, *Framebuffer for backend/software); Layers is 1 for per-eye
// targets and 2 for a layered multiview target.
type RenderTarget struct {
	ColorView any
	Width     uint32
	Height    uint32
	Layers    uint32

	// LayerViews optionally holds one per-layer attachment view for
	// layered targets whose backend cannot address layers from a single
	// view. When empty, ColorView covers all layers.
	LayerViews []any
}

// VideoCompositor is the per-backend video compositing surface. One
// compositor serves one XR session; all render-side methods are called
// from the single render thread, and UpdateVideoTexture is called from the
// decode/upload context.
//
// Backend-specific extras (external image import, exportable sync) are
// optional capabilities discovered by type assertion on the concrete
// compositor, not always-present interface stubs.
type VideoCompositor interface {
	// CreateVideoTextures (re)configures the stream: it allocates the
	// two-slot texture pool for the given dimensions and format. A prior
	// configuration is cleared first; width must be even (4:2:0 chroma
	// subsampling).
	CreateVideoTextures(cfg VideoStreamConfig) error

	// ClearVideoTextures synchronously waits for all outstanding GPU work
	// touching the slots, then destroys the pool and resets the handoff
	// state. Idempotent.
	ClearVideoTextures() error

	// UpdateVideoTexture copies one decoded frame into the next write slot
	// and publishes it. A frame with an absent FrameIndex short-circuits
	// without touching GPU state. Called from the decode/upload context.
	UpdateVideoTexture(frame *YUVBuffer) error

	// BeginVideoView pins the most recently published slot for this
	// rendered frame. Never blocks waiting for a new frame.
	BeginVideoView() error

	// EndVideoView releases per-frame state pinned by BeginVideoView.
	EndVideoView() error

	// RenderVideoView composites the pinned slot into one per-eye target.
	// eye is 0 (left) or 1 (right).
	RenderVideoView(eye int, target RenderTarget) error

	// RenderVideoMultiView composites both eyes into a single layered
	// target in one instanced pass. Behaviorally equivalent to calling
	// RenderVideoView for each eye.
	RenderVideoMultiView(target RenderTarget) error

	// GetVideoFrameIndex returns the frame index pinned by the last
	// BeginVideoView, for decode-side telemetry correlation.
	GetVideoFrameIndex() FrameID

	// SetPassthroughMode selects the blending policy and shader variant.
	SetPassthroughMode(mode PassthroughMode)

	// SetEnvironmentBlendMode supplies the runtime's blend mode, which
	// selects clear-color policy.
	SetEnvironmentBlendMode(mode BlendMode)

	// SetFoveatedDecode supplies or clears (nil) the foveated decode
	// parameters. Toggling presence switches the shader variant set.
	SetFoveatedDecode(params *FoveatedDecodeParams)

	// SetMaskModeParams and SetBlendModeParams tune passthrough blending.
	SetMaskModeParams(params MaskModeParams)
	SetBlendModeParams(params BlendModeParams)

	// SetCmdBufferWaitNextFrame moves the wait on the previous frame's GPU
	// work from submit time (low memory pressure) to the start of the next
	// frame (better host/GPU pipelining).
	SetCmdBufferWaitNextFrame(wait bool)

	// SetDrainPolicy selects the queue drain mode for queue-fed backends.
	SetDrainPolicy(policy DrainPolicy)

	// Close releases all resources. The compositor must not be used
	// afterwards.
	Close() error
}
