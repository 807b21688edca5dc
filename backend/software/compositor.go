package software

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/xrbridge/vidcomp"
)

// Compositor errors.
var (
	// ErrNoStream is returned by frame operations before
	// CreateVideoTextures has configured a stream.
	ErrNoStream = errors.New("software: no video stream configured")

	// ErrBadTarget is returned when a render target's ColorView is not a
	// *Framebuffer.
	ErrBadTarget = errors.New("software: render target view is not a framebuffer")

	// ErrClosed is returned when using a closed compositor.
	ErrClosed = errors.New("software: compositor is closed")
)

// Framebuffer is the software render target: an RGBA image the compositor
// composites into. Layered targets carry one framebuffer per layer in
// RenderTarget.LayerViews.
type Framebuffer struct {
	Image *image.RGBA
}

// NewFramebuffer allocates a framebuffer of the given size.
func NewFramebuffer(w, h int) *Framebuffer {
	return &Framebuffer{Image: image.NewRGBA(image.Rect(0, 0, w, h))}
}

// Compositor is the CPU implementation of vidcomp.VideoCompositor. It
// carries the same two-slot handoff as the GPU backend; rendering is a
// per-pixel loop applying the dequantization matrix and passthrough alpha
// the shaders compute on the GPU.
type Compositor struct {
	mu     sync.Mutex
	cfg    vidcomp.Config
	fove   *vidcomp.FoveatedDecodeParams
	closed bool

	stream    vidcomp.VideoStreamConfig
	streamSet bool
	dequant   vidcomp.Matrix4
	slots     [vidcomp.SlotCount]videoSlot

	ring     *vidcomp.SlotRing
	frames   *vidcomp.FrameQueue
	pinned   int
	pinnedID vidcomp.FrameID
	hasPin   bool
}

// Ensure Compositor implements the compositing surface.
var _ vidcomp.VideoCompositor = (*Compositor)(nil)

// NewCompositor creates a software compositor.
func NewCompositor(opts ...vidcomp.Option) *Compositor {
	return &Compositor{
		cfg:    vidcomp.ApplyOptions(opts...),
		ring:   vidcomp.NewSlotRing(),
		frames: vidcomp.NewFrameQueue(),
	}
}

// CreateVideoTextures (re)configures the stream and clears the slots to
// black.
func (c *Compositor) CreateVideoTextures(cfg vidcomp.VideoStreamConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if cfg.Width%2 != 0 || cfg.Height%2 != 0 {
		return fmt.Errorf("%w: %dx%d", ErrOddDimensions, cfg.Width, cfg.Height)
	}
	if cfg.Format.PlaneCount() == 0 {
		return fmt.Errorf("software: unsupported stream format %v", cfg.Format)
	}

	c.clearLocked()
	dequant, ok := vidcomp.ComputeDequantizeMatrix(cfg.Format, cfg.Model, cfg.Range)
	if !ok {
		vidcomp.Logger().Warn("no dequantize matrix for stream, using identity",
			"format", cfg.Format.String(), "model", cfg.Model.String())
	}
	c.dequant = dequant
	for s := range c.slots {
		c.slots[s].clear(int(cfg.Width), int(cfg.Height))
	}
	c.stream = cfg
	c.streamSet = true
	vidcomp.Logger().Info("software slot pool created",
		"width", cfg.Width, "height", cfg.Height, "format", cfg.Format.String())
	return nil
}

// ClearVideoTextures drops the slots and resets the handoff. Idempotent.
func (c *Compositor) ClearVideoTextures() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.clearLocked()
	return nil
}

func (c *Compositor) clearLocked() {
	c.frames.Flush()
	for s := range c.slots {
		c.slots[s] = videoSlot{}
	}
	c.ring.Reset()
	c.streamSet = false
	c.hasPin = false
	c.pinnedID = vidcomp.FrameID{}
}

// UpdateVideoTexture copies one decoded frame into the write slot and
// publishes it.
func (c *Compositor) UpdateVideoTexture(frame *vidcomp.YUVBuffer) error {
	if frame == nil || !frame.FrameIndex.Valid() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.streamSet {
		return ErrNoStream
	}
	return c.uploadLocked(frame)
}

func (c *Compositor) uploadLocked(frame *vidcomp.YUVBuffer) error {
	slot := c.ring.WriteSlot()
	if err := c.slots[slot].store(c.stream, frame); err != nil {
		return err
	}
	return c.ring.Publish(frame.FrameIndex)
}

// SubmitFrame enqueues a decoded frame; BeginVideoView drains the queue
// per the drain policy. Ownership of the frame passes to the compositor.
func (c *Compositor) SubmitFrame(frame *vidcomp.YUVBuffer) bool {
	if frame == nil || !frame.FrameIndex.Valid() {
		return true
	}
	return c.frames.Push(frame)
}

// BeginVideoView drains queued frames and pins the latest published slot.
func (c *Compositor) BeginVideoView() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.streamSet {
		if frame, ok := c.frames.Pop(c.cfg.DrainPolicy); ok {
			if err := c.uploadLocked(frame); err != nil {
				return err
			}
		}
	}
	slot, id, ok := c.ring.Acquire()
	c.pinned = slot
	c.pinnedID = id
	c.hasPin = ok
	return nil
}

// EndVideoView releases the per-frame pin.
func (c *Compositor) EndVideoView() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.hasPin = false
	return nil
}

// GetVideoFrameIndex returns the frame index pinned by the last
// BeginVideoView.
func (c *Compositor) GetVideoFrameIndex() vidcomp.FrameID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pinnedID
}

// RenderVideoView composites the pinned frame into one per-eye target.
func (c *Compositor) RenderVideoView(eye int, target vidcomp.RenderTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	fb, err := targetFramebuffer(target, eye)
	if err != nil {
		return err
	}
	c.renderLocked(fb)
	return nil
}

// RenderVideoMultiView composites both eyes, one framebuffer per layer.
func (c *Compositor) RenderVideoMultiView(target vidcomp.RenderTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	layers := int(target.Layers)
	if layers == 0 {
		layers = 1
	}
	for layer := 0; layer < layers; layer++ {
		fb, err := targetFramebuffer(target, layer)
		if err != nil {
			return err
		}
		c.renderLocked(fb)
	}
	return nil
}

// targetFramebuffer resolves the framebuffer for one eye/layer.
func targetFramebuffer(target vidcomp.RenderTarget, layer int) (*Framebuffer, error) {
	raw := target.ColorView
	if len(target.LayerViews) > 0 {
		if layer >= len(target.LayerViews) {
			return nil, fmt.Errorf("%w: layer %d of %d", ErrBadTarget, layer, len(target.LayerViews))
		}
		raw = target.LayerViews[layer]
	}
	fb, ok := raw.(*Framebuffer)
	if !ok || fb == nil || fb.Image == nil {
		return nil, ErrBadTarget
	}
	return fb, nil
}

func (c *Compositor) renderLocked(fb *Framebuffer) {
	videoLayer := c.hasPin && c.streamSet
	clear := vidcomp.ClearColor(c.cfg.BlendMode, videoLayer)
	bounds := fb.Image.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	clearPix := [4]uint8{
		floatToByte(clear[0]),
		floatToByte(clear[1]),
		floatToByte(clear[2]),
		floatToByte(clear[3]),
	}

	if !videoLayer {
		fillRGBA(fb.Image, clearPix)
		return
	}

	slot := &c.slots[c.pinned]
	mode := c.cfg.PassthroughMode
	for py := 0; py < h; py++ {
		row := fb.Image.Pix[py*fb.Image.Stride:]
		for px := 0; px < w; px++ {
			u := (float32(px) + 0.5) / float32(w)
			v := (float32(py) + 0.5) / float32(h)
			if c.fove != nil {
				u = defoveateAxis(u, c.fove.CenterSizeX, c.fove.CenterShiftX, c.fove.EdgeRatioX)
				v = defoveateAxis(v, c.fove.CenterSizeY, c.fove.CenterShiftY, c.fove.EdgeRatioY)
			}
			y, cb, cr := slot.sample(int(u*float32(slot.w)), int(v*float32(slot.h)))
			r, g, b := c.dequantize(y, cb, cr)
			alpha := c.passthroughAlpha(r, g, b)

			o := px * 4
			if mode == vidcomp.PassthroughNone {
				row[o] = floatToByte(r)
				row[o+1] = floatToByte(g)
				row[o+2] = floatToByte(b)
				row[o+3] = 0xFF
				continue
			}
			// Source-over against the cleared background, matching the GPU
			// blend state.
			row[o] = floatToByte(r*alpha + clear[0]*(1-alpha))
			row[o+1] = floatToByte(g*alpha + clear[1]*(1-alpha))
			row[o+2] = floatToByte(b*alpha + clear[2]*(1-alpha))
			row[o+3] = floatToByte(alpha + clear[3]*(1-alpha))
		}
	}
}

// dequantize applies the stream's dequantization matrix and clamps to the
// unit range.
func (c *Compositor) dequantize(y, cb, cr float32) (float32, float32, float32) {
	m := &c.dequant
	r := m.At(0, 0)*y + m.At(0, 1)*cb + m.At(0, 2)*cr + m.At(0, 3)
	g := m.At(1, 0)*y + m.At(1, 1)*cb + m.At(1, 2)*cr + m.At(1, 3)
	b := m.At(2, 0)*y + m.At(2, 1)*cb + m.At(2, 2)*cr + m.At(2, 3)
	return clamp01(r), clamp01(g), clamp01(b)
}

// passthroughAlpha mirrors the fragment shader's alpha selection.
func (c *Compositor) passthroughAlpha(r, g, b float32) float32 {
	switch c.cfg.PassthroughMode {
	case vidcomp.PassthroughBlend:
		return c.cfg.Blend.Alpha
	case vidcomp.PassthroughMask:
		dr := r - c.cfg.Mask.KeyColor[0]
		dg := g - c.cfg.Mask.KeyColor[1]
		db := b - c.cfg.Mask.KeyColor[2]
		if dr*dr+dg*dg+db*db < c.cfg.Mask.Tolerance*c.cfg.Mask.Tolerance {
			return c.cfg.Mask.Alpha
		}
		return 1
	default:
		return 1
	}
}

// defoveateAxis maps an output coordinate to the foveation-compressed
// stream along one axis: identity inside the gaze-centered region,
// edge-ratio compression outside.
func defoveateAxis(o, center, shift, ratio float32) float32 {
	b0 := (1-center)*0.5 + shift
	if b0 < 0 {
		b0 = 0
	} else if b0 > 1-center {
		b0 = 1 - center
	}
	b1 := b0 + center
	cl := b0 / ratio
	cr := (1 - b1) / ratio
	total := cl + center + cr
	switch {
	case o < b0:
		return (o / maxf(b0, 1e-6)) * cl / total
	case o < b1:
		return (cl + (o - b0)) / total
	default:
		return (cl + center + (o-b1)/maxf(1-b1, 1e-6)*cr) / total
	}
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func floatToByte(v float32) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}

func fillRGBA(img *image.RGBA, pix [4]uint8) {
	bounds := img.Bounds()
	for y := 0; y < bounds.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+bounds.Dx()*4]
		for x := 0; x < bounds.Dx()*4; x += 4 {
			row[x] = pix[0]
			row[x+1] = pix[1]
			row[x+2] = pix[2]
			row[x+3] = pix[3]
		}
	}
}

// SetPassthroughMode selects the blending policy.
func (c *Compositor) SetPassthroughMode(mode vidcomp.PassthroughMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.PassthroughMode = mode
}

// SetEnvironmentBlendMode supplies the runtime's blend mode.
func (c *Compositor) SetEnvironmentBlendMode(mode vidcomp.BlendMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.BlendMode = mode
}

// SetFoveatedDecode supplies or clears the foveated decode parameters.
func (c *Compositor) SetFoveatedDecode(params *vidcomp.FoveatedDecodeParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if params == nil {
		c.fove = nil
		return
	}
	p := *params
	c.fove = &p
}

// SetMaskModeParams tunes chroma-key passthrough.
func (c *Compositor) SetMaskModeParams(params vidcomp.MaskModeParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Mask = params
}

// SetBlendModeParams tunes whole-layer passthrough blending.
func (c *Compositor) SetBlendModeParams(params vidcomp.BlendModeParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Blend = params
}

// SetCmdBufferWaitNextFrame is accepted for interface parity; the CPU
// path has no command buffer to pace.
func (c *Compositor) SetCmdBufferWaitNextFrame(wait bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.WaitNextFrame = wait
}

// SetDrainPolicy selects how BeginVideoView drains queued frames.
func (c *Compositor) SetDrainPolicy(policy vidcomp.DrainPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.DrainPolicy = policy
}

// DroppedFrames returns the number of frames discarded by the queue-fed
// handoff so far.
func (c *Compositor) DroppedFrames() uint64 { return c.frames.Dropped() }

// Close releases all resources. Idempotent.
func (c *Compositor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.clearLocked()
	c.closed = true
	return nil
}
