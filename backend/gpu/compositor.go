package gpu

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/xrbridge/vidcomp"
)

// Compositor errors.
var (
	// ErrNoStream is returned by frame operations before
	// CreateVideoTextures has configured a stream.
	ErrNoStream = errors.New("gpu: no video stream configured")

	// ErrBadTarget is returned when a render target's ColorView is not a
	// hal.TextureView.
	ErrBadTarget = errors.New("gpu: render target view is not a hal texture view")

	// ErrClosed is returned when using a closed compositor.
	ErrClosed = errors.New("gpu: compositor is closed")
)

// videoTargetFormat is the swapchain color format the pipelines target.
const videoTargetFormat = gputypes.TextureFormatRGBA8Unorm

// teardownWait bounds the upload-fence wait during stream teardown.
const teardownWait = 1 * time.Second

// Compositor renders decoded video frames into XR swapchain images.
//
// Frame flow: the decode context calls UpdateVideoTexture (or SubmitFrame
// for queue-fed decoders), which uploads into the current write slot and
// publishes it on the slot ring. The render context brackets each frame
// with BeginVideoView/EndVideoView; BeginVideoView drains the frame queue
// per the drain policy and pins the latest published slot, which
// RenderVideoView then samples. No call ever blocks the render context on
// the decoder beyond the bounded queue wait.
type Compositor struct {
	device hal.Device
	queue  hal.Queue

	mu     sync.Mutex
	cfg    vidcomp.Config
	fove   *vidcomp.FoveatedDecodeParams
	closed bool

	stream     vidcomp.VideoStreamConfig
	streamSet  bool
	pool       *slotPool
	bindGroups [vidcomp.SlotCount]hal.BindGroup

	ring     *vidcomp.SlotRing
	frames   *vidcomp.FrameQueue
	pinned   int
	pinnedID vidcomp.FrameID
	hasPin   bool

	pipelines  *videoPipelines
	mask       *maskRenderer
	uniformBuf hal.Buffer

	cmdRender    *CmdBuffer
	uploadSignal *TimelineSignal
	lastUpload   uint64

	stencilTex    hal.Texture
	stencilView   hal.TextureView
	stencilWidth  uint32
	stencilHeight uint32
}

// Ensure Compositor implements the compositing surface.
var _ vidcomp.VideoCompositor = (*Compositor)(nil)

// NewCompositor creates a compositor on the given device and queue. The
// compositor does not own the device.
func NewCompositor(device hal.Device, queue hal.Queue, opts ...vidcomp.Option) (*Compositor, error) {
	cfg := vidcomp.ApplyOptions(opts...)

	c := &Compositor{
		device: device,
		queue:  queue,
		cfg:    cfg,
		ring:   vidcomp.NewSlotRing(),
		frames: vidcomp.NewFrameQueue(),
	}

	pipelines, err := newVideoPipelines(device, videoTargetFormat, cfg.VisibilityMask)
	if err != nil {
		return nil, err
	}
	c.pipelines = pipelines

	if cfg.VisibilityMask {
		mask, merr := newMaskRenderer(device, queue, videoTargetFormat)
		if merr != nil {
			c.Close()
			return nil, merr
		}
		c.mask = mask
	}

	uniformBuf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "video_uniforms",
		Size:  videoUniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("gpu: create uniform buffer: %w", err)
	}
	c.uniformBuf = uniformBuf

	c.cmdRender = NewCmdBuffer("video_render")
	if err := c.cmdRender.Init(device, queue); err != nil {
		c.Close()
		return nil, err
	}

	signal, err := NewTimelineSignal(device)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.uploadSignal = signal

	vidcomp.Logger().Info("gpu compositor created",
		"passthrough", cfg.PassthroughMode.String(),
		"drain", cfg.DrainPolicy.String(),
		"visibilityMask", cfg.VisibilityMask)
	return c, nil
}

// CreateVideoTextures (re)configures the stream. An existing pool is torn
// down first; the new slots come up cleared to black.
func (c *Compositor) CreateVideoTextures(cfg vidcomp.VideoStreamConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.clearVideoTexturesLocked(); err != nil {
		return err
	}

	pool, err := newSlotPool(c.device, c.queue, cfg)
	if err != nil {
		return err
	}

	for slot := 0; slot < vidcomp.SlotCount; slot++ {
		bg, bgErr := c.pipelines.createBindGroup(
			fmt.Sprintf("video_slot%d_bind", slot),
			c.uniformBuf,
			pool.slots[slot].views,
		)
		if bgErr != nil {
			for s := 0; s < slot; s++ {
				c.device.DestroyBindGroup(c.bindGroups[s])
				c.bindGroups[s] = nil
			}
			pool.destroy()
			return bgErr
		}
		c.bindGroups[slot] = bg
	}

	c.pool = pool
	c.stream = cfg
	c.streamSet = true
	c.ring.Reset()
	return nil
}

// ClearVideoTextures waits out pending GPU work and destroys the slot
// pool. Idempotent; safe before any stream was configured.
func (c *Compositor) ClearVideoTextures() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.clearVideoTexturesLocked()
}

func (c *Compositor) clearVideoTexturesLocked() error {
	if !c.streamSet {
		return nil
	}

	// Quiesce: finish the in-flight render pass and the last upload
	// before the textures they touch go away.
	if err := c.cmdRender.Wait(); err != nil {
		vidcomp.Logger().Warn("render wait during stream teardown", "err", err)
	}
	if c.cmdRender.state == cmdStateExecutable {
		if err := c.cmdRender.Reset(); err != nil {
			return err
		}
	}
	if c.lastUpload > 0 {
		if err := c.uploadSignal.WaitHost(c.lastUpload, teardownWait); err != nil {
			vidcomp.Logger().Warn("upload wait during stream teardown", "err", err)
		}
	}

	c.frames.Flush()
	for slot, bg := range c.bindGroups {
		if bg != nil {
			c.device.DestroyBindGroup(bg)
			c.bindGroups[slot] = nil
		}
	}
	if c.pool != nil {
		c.pool.destroy()
		c.pool = nil
	}
	c.ring.Reset()
	c.streamSet = false
	c.hasPin = false
	c.pinnedID = vidcomp.FrameID{}
	return nil
}

// UpdateVideoTexture uploads one decoded frame into the write slot and
// publishes it. Frames without an index are acknowledged without touching
// GPU state: the decoder emits these while the stream is idle.
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
	if err := c.pool.upload(slot, frame); err != nil {
		return err
	}

	// Fence the queue writes so teardown can wait for them; steady-state
	// rendering orders against them implicitly on the same queue.
	target, err := c.uploadSignal.SignalOnSubmit(c.queue, nil)
	if err != nil {
		return err
	}
	c.lastUpload = target

	if err := c.ring.Publish(frame.FrameIndex); err != nil {
		return err
	}
	vidcomp.Logger().Debug("frame uploaded",
		"frameIndex", frame.FrameIndex.Wire(), "slot", slot)
	return nil
}

// SubmitFrame enqueues a decoded frame for upload on the render context.
// This is the handoff for decoders that cannot touch the GPU from their
// own thread; BeginVideoView drains the queue per the drain policy. Unlike
// UpdateVideoTexture, the frame's memory must stay valid until drained:
// ownership passes to the compositor. The returned bool reports whether
// the frame was accepted before the bounded wait expired.
func (c *Compositor) SubmitFrame(frame *vidcomp.YUVBuffer) bool {
	if frame == nil || !frame.FrameIndex.Valid() {
		return true
	}
	return c.frames.Push(frame)
}

// BeginVideoView starts a rendered frame: it drains queued frames per the
// drain policy, then pins the most recently published slot. Never blocks
// beyond the bounded queue wait.
func (c *Compositor) BeginVideoView() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	// Deferred wait from the previous frame, when configured.
	if c.cfg.WaitNextFrame {
		if err := c.cmdRender.Wait(); err != nil {
			return err
		}
		if c.cmdRender.state == cmdStateExecutable {
			if err := c.cmdRender.Reset(); err != nil {
				return err
			}
		}
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
// BeginVideoView, absent when no frame has been published yet.
func (c *Compositor) GetVideoFrameIndex() vidcomp.FrameID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pinnedID
}

// RenderVideoView composites the pinned frame into one per-eye target.
// Without a pinned frame the target is cleared to the lobby color and no
// video is drawn.
func (c *Compositor) RenderVideoView(eye int, target vidcomp.RenderTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	view, err := targetView(target, eye)
	if err != nil {
		return err
	}
	return c.renderLocked(view, target.Width, target.Height)
}

// RenderVideoMultiView composites both eyes into a layered target, one
// pass per layer view. Behaviorally equivalent to RenderVideoView per eye.
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
		view, err := targetView(target, layer)
		if err != nil {
			return err
		}
		if err := c.renderLocked(view, target.Width, target.Height); err != nil {
			return err
		}
	}
	return nil
}

// targetView resolves the attachment view for one eye/layer.
func targetView(target vidcomp.RenderTarget, layer int) (hal.TextureView, error) {
	raw := target.ColorView
	if len(target.LayerViews) > 0 {
		if layer >= len(target.LayerViews) {
			return nil, fmt.Errorf("%w: layer %d of %d", ErrBadTarget, layer, len(target.LayerViews))
		}
		raw = target.LayerViews[layer]
	}
	view, ok := raw.(hal.TextureView)
	if !ok || view == nil {
		return nil, ErrBadTarget
	}
	return view, nil
}

func (c *Compositor) renderLocked(view hal.TextureView, width, height uint32) error {
	videoLayer := c.hasPin && c.streamSet
	clear := vidcomp.ClearColor(c.cfg.BlendMode, videoLayer)

	useStencil := c.mask != nil && c.mask.hasMesh()
	if useStencil {
		if err := c.ensureStencil(width, height); err != nil {
			return err
		}
	}

	// Finish the previous frame's submission unless the deferred-wait
	// policy moved that to BeginVideoView.
	if !c.cfg.WaitNextFrame {
		if err := c.cmdRender.Wait(); err != nil {
			return err
		}
		if c.cmdRender.state == cmdStateExecutable {
			if err := c.cmdRender.Reset(); err != nil {
				return err
			}
		}
	} else if c.cmdRender.state != cmdStateInitialized {
		// Multiple render calls per frame under deferred wait still have
		// to serialize on the single command buffer.
		if err := c.cmdRender.Wait(); err != nil {
			return err
		}
		if err := c.cmdRender.Reset(); err != nil {
			return err
		}
	}

	if videoLayer {
		u := videoUniforms{
			dequant: c.dequantLocked(),
			mode:    c.cfg.PassthroughMode,
			mask:    c.cfg.Mask,
			blend:   c.cfg.Blend,
		}
		if c.fove != nil {
			u.fove = *c.fove
		}
		c.queue.WriteBuffer(c.uniformBuf, 0, u.toBytes())
	}

	if err := c.cmdRender.Begin(); err != nil {
		return err
	}
	encoder, err := c.cmdRender.Encoder()
	if err != nil {
		return err
	}

	rpDesc := &hal.RenderPassDescriptor{
		Label: "video_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    view,
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
			ClearValue: gputypes.Color{
				R: float64(clear[0]),
				G: float64(clear[1]),
				B: float64(clear[2]),
				A: float64(clear[3]),
			},
		}},
	}
	if useStencil {
		rpDesc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              c.stencilView,
			DepthLoadOp:       gputypes.LoadOpClear,
			DepthStoreOp:      gputypes.StoreOpDiscard,
			DepthClearValue:   1.0,
			StencilLoadOp:     gputypes.LoadOpClear,
			StencilStoreOp:    gputypes.StoreOpDiscard,
			StencilClearValue: 0,
		}
	}

	rp := encoder.BeginRenderPass(rpDesc)
	if useStencil {
		c.mask.record(rp)
	}
	if videoLayer {
		index := vidcomp.VideoShaderIndex(
			c.stream.Format.PlaneCount(),
			c.cfg.PassthroughMode,
			c.fove != nil,
		)
		rp.SetPipeline(c.pipelines.pipeline(index))
		if useStencil {
			rp.SetStencilReference(maskStencilRef)
		}
		rp.SetBindGroup(0, c.bindGroups[c.pinned], nil)
		rp.Draw(3, 1, 0, 0)
	}
	rp.End()

	if err := c.cmdRender.End(); err != nil {
		return err
	}
	return c.cmdRender.Exec()
}

// dequantLocked returns the dequantization matrix for the current stream.
func (c *Compositor) dequantLocked() vidcomp.Matrix4 {
	m, ok := vidcomp.ComputeDequantizeMatrix(c.stream.Format, c.stream.Model, c.stream.Range)
	if !ok {
		vidcomp.Logger().Warn("no dequantize matrix for stream, using identity",
			"format", c.stream.Format.String(), "model", c.stream.Model.String())
	}
	return m
}

// ensureStencil sizes the shared depth/stencil attachment to the target.
func (c *Compositor) ensureStencil(width, height uint32) error {
	if c.stencilView != nil && c.stencilWidth == width && c.stencilHeight == height {
		return nil
	}
	c.destroyStencil()

	tex, err := c.device.CreateTexture(&hal.TextureDescriptor{
		Label: "video_stencil",
		Size: hal.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatDepth24PlusStencil8,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("gpu: create stencil texture: %w", err)
	}
	view, err := c.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:     "video_stencil_view",
		Format:    gputypes.TextureFormatDepth24PlusStencil8,
		Dimension: gputypes.TextureViewDimension2D,
		Aspect:    gputypes.TextureAspectAll,
	})
	if err != nil {
		c.device.DestroyTexture(tex)
		return fmt.Errorf("gpu: create stencil view: %w", err)
	}
	c.stencilTex = tex
	c.stencilView = view
	c.stencilWidth = width
	c.stencilHeight = height
	if c.mask != nil {
		c.mask.dirty = true
	}
	return nil
}

func (c *Compositor) destroyStencil() {
	if c.stencilView != nil {
		c.device.DestroyTextureView(c.stencilView)
		c.stencilView = nil
	}
	if c.stencilTex != nil {
		c.device.DestroyTexture(c.stencilTex)
		c.stencilTex = nil
	}
	c.stencilWidth = 0
	c.stencilHeight = 0
}

// SetPassthroughMode selects the blending policy and shader variant.
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

// SetCmdBufferWaitNextFrame moves the completion wait on the render
// command buffer from submission time to the start of the next frame.
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

// SetVisibilityMask supplies or clears (nil) the runtime's hidden-area
// mesh. Requires the compositor to have been created with the visibility
// mask enabled.
func (c *Compositor) SetVisibilityMask(mask *VisibilityMask) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.mask == nil {
		return fmt.Errorf("gpu: compositor created without visibility mask support")
	}
	return c.mask.setMesh(mask)
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

	if err := c.clearVideoTexturesLocked(); err != nil {
		vidcomp.Logger().Warn("stream teardown during close", "err", err)
	}
	c.destroyStencil()
	if c.cmdRender != nil {
		c.cmdRender.Destroy()
	}
	if c.uploadSignal != nil {
		c.uploadSignal.Destroy()
	}
	if c.uniformBuf != nil {
		c.device.DestroyBuffer(c.uniformBuf)
		c.uniformBuf = nil
	}
	if c.mask != nil {
		c.mask.destroy()
		c.mask = nil
	}
	if c.pipelines != nil {
		c.pipelines.destroy()
		c.pipelines = nil
	}
	c.closed = true
	return nil
}
