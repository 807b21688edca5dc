//go:build !nogpu

package gpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/xrbridge/vidcomp"
)

// createTargetView makes a render-attachment view standing in for one
// swapchain image.
func createTargetView(t *testing.T, device hal.Device, w, h uint32) (hal.TextureView, func()) {
	t.Helper()
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "test_target",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		t.Fatalf("create target texture: %v", err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:     "test_target_view",
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Dimension: gputypes.TextureViewDimension2D,
		Aspect:    gputypes.TextureAspectAll,
	})
	if err != nil {
		device.DestroyTexture(tex)
		t.Fatalf("create target view: %v", err)
	}
	return view, func() {
		device.DestroyTextureView(view)
		device.DestroyTexture(tex)
	}
}

func nv12Config() vidcomp.VideoStreamConfig {
	return vidcomp.VideoStreamConfig{
		Width:  640,
		Height: 360,
		Format: vidcomp.PixelFormatNV12,
		Model:  vidcomp.ColorModelBT709,
		Range:  vidcomp.ColorRangeNarrow,
	}
}

func TestCompositorCreateClose(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue)
	if err != nil {
		t.Fatalf("NewCompositor failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Double close is safe.
	if err := c.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	// Every entry point reports the closed state.
	if err := c.CreateVideoTextures(nv12Config()); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateVideoTextures after Close: got %v", err)
	}
	if err := c.BeginVideoView(); !errors.Is(err, ErrClosed) {
		t.Errorf("BeginVideoView after Close: got %v", err)
	}
}

func TestCompositorFullFrame(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue)
	if err != nil {
		t.Fatalf("NewCompositor failed: %v", err)
	}
	defer c.Close()

	cfg := nv12Config()
	if err := c.CreateVideoTextures(cfg); err != nil {
		t.Fatalf("CreateVideoTextures failed: %v", err)
	}

	if err := c.UpdateVideoTexture(makeTestFrame(cfg, 42, 64)); err != nil {
		t.Fatalf("UpdateVideoTexture failed: %v", err)
	}

	if err := c.BeginVideoView(); err != nil {
		t.Fatalf("BeginVideoView failed: %v", err)
	}
	if idx, ok := c.GetVideoFrameIndex().Index(); !ok || idx != 42 {
		t.Errorf("GetVideoFrameIndex: got %d ok=%v, want 42", idx, ok)
	}

	view, release := createTargetView(t, device, 1024, 1024)
	defer release()
	target := vidcomp.RenderTarget{ColorView: view, Width: 1024, Height: 1024, Layers: 1}

	for eye := 0; eye < 2; eye++ {
		if err := c.RenderVideoView(eye, target); err != nil {
			t.Fatalf("RenderVideoView eye %d failed: %v", eye, err)
		}
	}
	if err := c.EndVideoView(); err != nil {
		t.Fatalf("EndVideoView failed: %v", err)
	}
}

func TestCompositorAbsentFrameIsNoop(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue)
	if err != nil {
		t.Fatalf("NewCompositor failed: %v", err)
	}
	defer c.Close()

	// Absent-index frames are acknowledged even before any stream exists.
	if err := c.UpdateVideoTexture(nil); err != nil {
		t.Errorf("nil frame: got %v", err)
	}
	if err := c.UpdateVideoTexture(&vidcomp.YUVBuffer{}); err != nil {
		t.Errorf("absent-index frame: got %v", err)
	}

	// A real frame without a stream is an error.
	cfg := nv12Config()
	if err := c.UpdateVideoTexture(makeTestFrame(cfg, 1, 0)); !errors.Is(err, ErrNoStream) {
		t.Errorf("frame without stream: expected ErrNoStream, got %v", err)
	}
}

func TestCompositorLobbyWithoutFrame(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue)
	if err != nil {
		t.Fatalf("NewCompositor failed: %v", err)
	}
	defer c.Close()

	// No stream, no frame: render clears to the lobby background.
	if err := c.BeginVideoView(); err != nil {
		t.Fatalf("BeginVideoView failed: %v", err)
	}
	if c.GetVideoFrameIndex().Valid() {
		t.Error("expected absent frame index before any publish")
	}

	view, release := createTargetView(t, device, 512, 512)
	defer release()
	target := vidcomp.RenderTarget{ColorView: view, Width: 512, Height: 512, Layers: 1}
	if err := c.RenderVideoView(0, target); err != nil {
		t.Fatalf("RenderVideoView failed: %v", err)
	}
	if err := c.EndVideoView(); err != nil {
		t.Fatalf("EndVideoView failed: %v", err)
	}
}

func TestCompositorReconfigureStream(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue)
	if err != nil {
		t.Fatalf("NewCompositor failed: %v", err)
	}
	defer c.Close()

	cfg := nv12Config()
	if err := c.CreateVideoTextures(cfg); err != nil {
		t.Fatalf("first CreateVideoTextures failed: %v", err)
	}
	if err := c.UpdateVideoTexture(makeTestFrame(cfg, 1, 0)); err != nil {
		t.Fatalf("UpdateVideoTexture failed: %v", err)
	}

	// Switch to 10-bit at a new resolution; the old pool is torn down and
	// the pinned frame forgotten.
	cfg2 := vidcomp.VideoStreamConfig{
		Width:  1920,
		Height: 1080,
		Format: vidcomp.PixelFormatP010LE,
		Model:  vidcomp.ColorModelBT2020,
		Range:  vidcomp.ColorRangeNarrow,
	}
	if err := c.CreateVideoTextures(cfg2); err != nil {
		t.Fatalf("second CreateVideoTextures failed: %v", err)
	}

	if err := c.BeginVideoView(); err != nil {
		t.Fatalf("BeginVideoView failed: %v", err)
	}
	if c.GetVideoFrameIndex().Valid() {
		t.Error("expected absent frame index after reconfigure")
	}
	if err := c.UpdateVideoTexture(makeTestFrame(cfg2, 2, 0)); err != nil {
		t.Fatalf("upload after reconfigure failed: %v", err)
	}
	if err := c.EndVideoView(); err != nil {
		t.Fatalf("EndVideoView failed: %v", err)
	}
}

func TestCompositorCreateVideoTexturesOddWidth(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue)
	if err != nil {
		t.Fatalf("NewCompositor failed: %v", err)
	}
	defer c.Close()

	cfg := nv12Config()
	cfg.Width = 641
	if err := c.CreateVideoTextures(cfg); !errors.Is(err, ErrOddDimensions) {
		t.Fatalf("expected ErrOddDimensions, got %v", err)
	}
}

func TestCompositorClearVideoTexturesIdempotent(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue)
	if err != nil {
		t.Fatalf("NewCompositor failed: %v", err)
	}
	defer c.Close()

	// Clear before any stream is a no-op.
	if err := c.ClearVideoTextures(); err != nil {
		t.Fatalf("ClearVideoTextures before stream failed: %v", err)
	}

	if err := c.CreateVideoTextures(nv12Config()); err != nil {
		t.Fatalf("CreateVideoTextures failed: %v", err)
	}
	if err := c.ClearVideoTextures(); err != nil {
		t.Fatalf("ClearVideoTextures failed: %v", err)
	}
	if err := c.ClearVideoTextures(); err != nil {
		t.Fatalf("second ClearVideoTextures failed: %v", err)
	}
}

func TestCompositorSubmitFrameDrainLatest(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue, vidcomp.WithDrainPolicy(vidcomp.DrainLatest))
	if err != nil {
		t.Fatalf("NewCompositor failed: %v", err)
	}
	defer c.Close()

	cfg := nv12Config()
	if err := c.CreateVideoTextures(cfg); err != nil {
		t.Fatalf("CreateVideoTextures failed: %v", err)
	}

	if !c.SubmitFrame(makeTestFrame(cfg, 10, 0)) {
		t.Fatal("first SubmitFrame rejected")
	}
	if !c.SubmitFrame(makeTestFrame(cfg, 11, 0)) {
		t.Fatal("second SubmitFrame rejected")
	}

	// Latest-wins: one view sees the newest queued frame.
	if err := c.BeginVideoView(); err != nil {
		t.Fatalf("BeginVideoView failed: %v", err)
	}
	if idx, ok := c.GetVideoFrameIndex().Index(); !ok || idx != 11 {
		t.Errorf("got frame %d ok=%v, want 11", idx, ok)
	}
	if err := c.EndVideoView(); err != nil {
		t.Fatalf("EndVideoView failed: %v", err)
	}
	if c.DroppedFrames() != 1 {
		t.Errorf("DroppedFrames: got %d, want 1", c.DroppedFrames())
	}
}

func TestCompositorSubmitFrameDrainOne(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue, vidcomp.WithDrainPolicy(vidcomp.DrainOne))
	if err != nil {
		t.Fatalf("NewCompositor failed: %v", err)
	}
	defer c.Close()

	cfg := nv12Config()
	if err := c.CreateVideoTextures(cfg); err != nil {
		t.Fatalf("CreateVideoTextures failed: %v", err)
	}

	c.SubmitFrame(makeTestFrame(cfg, 10, 0))
	c.SubmitFrame(makeTestFrame(cfg, 11, 0))

	// One frame per rendered frame, in order.
	if err := c.BeginVideoView(); err != nil {
		t.Fatalf("first BeginVideoView failed: %v", err)
	}
	if idx, _ := c.GetVideoFrameIndex().Index(); idx != 10 {
		t.Errorf("first view: got frame %d, want 10", idx)
	}
	if err := c.EndVideoView(); err != nil {
		t.Fatalf("EndVideoView failed: %v", err)
	}

	if err := c.BeginVideoView(); err != nil {
		t.Fatalf("second BeginVideoView failed: %v", err)
	}
	if idx, _ := c.GetVideoFrameIndex().Index(); idx != 11 {
		t.Errorf("second view: got frame %d, want 11", idx)
	}
	if err := c.EndVideoView(); err != nil {
		t.Fatalf("EndVideoView failed: %v", err)
	}
}

func TestCompositorMultiView(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue)
	if err != nil {
		t.Fatalf("NewCompositor failed: %v", err)
	}
	defer c.Close()

	cfg := nv12Config()
	if err := c.CreateVideoTextures(cfg); err != nil {
		t.Fatalf("CreateVideoTextures failed: %v", err)
	}
	if err := c.UpdateVideoTexture(makeTestFrame(cfg, 1, 0)); err != nil {
		t.Fatalf("UpdateVideoTexture failed: %v", err)
	}
	if err := c.BeginVideoView(); err != nil {
		t.Fatalf("BeginVideoView failed: %v", err)
	}

	left, releaseL := createTargetView(t, device, 1024, 1024)
	defer releaseL()
	right, releaseR := createTargetView(t, device, 1024, 1024)
	defer releaseR()

	err = c.RenderVideoMultiView(vidcomp.RenderTarget{
		ColorView:  left,
		Width:      1024,
		Height:     1024,
		Layers:     2,
		LayerViews: []any{left, right},
	})
	if err != nil {
		t.Fatalf("RenderVideoMultiView failed: %v", err)
	}
	if err := c.EndVideoView(); err != nil {
		t.Fatalf("EndVideoView failed: %v", err)
	}
}

func TestCompositorBadTarget(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue)
	if err != nil {
		t.Fatalf("NewCompositor failed: %v", err)
	}
	defer c.Close()

	err = c.RenderVideoView(0, vidcomp.RenderTarget{ColorView: "not a view", Width: 64, Height: 64})
	if !errors.Is(err, ErrBadTarget) {
		t.Fatalf("expected ErrBadTarget, got %v", err)
	}
}

func TestCompositorVisibilityMask(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue, vidcomp.WithVisibilityMask(true))
	if err != nil {
		t.Fatalf("NewCompositor failed: %v", err)
	}
	defer c.Close()

	mesh := &VisibilityMask{
		Vertices: []float32{-1, -1, 1, -1, 0, 1},
		Indices:  []uint16{0, 1, 2},
	}
	if err := c.SetVisibilityMask(mesh); err != nil {
		t.Fatalf("SetVisibilityMask failed: %v", err)
	}

	cfg := nv12Config()
	if err := c.CreateVideoTextures(cfg); err != nil {
		t.Fatalf("CreateVideoTextures failed: %v", err)
	}
	if err := c.UpdateVideoTexture(makeTestFrame(cfg, 1, 0)); err != nil {
		t.Fatalf("UpdateVideoTexture failed: %v", err)
	}
	if err := c.BeginVideoView(); err != nil {
		t.Fatalf("BeginVideoView failed: %v", err)
	}

	view, release := createTargetView(t, device, 1024, 1024)
	defer release()
	target := vidcomp.RenderTarget{ColorView: view, Width: 1024, Height: 1024, Layers: 1}
	if err := c.RenderVideoView(0, target); err != nil {
		t.Fatalf("RenderVideoView with mask failed: %v", err)
	}
	if err := c.EndVideoView(); err != nil {
		t.Fatalf("EndVideoView failed: %v", err)
	}
}

func TestCompositorVisibilityMaskDisabled(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue)
	if err != nil {
		t.Fatalf("NewCompositor failed: %v", err)
	}
	defer c.Close()

	err = c.SetVisibilityMask(&VisibilityMask{
		Vertices: []float32{-1, -1, 1, -1, 0, 1},
		Indices:  []uint16{0, 1, 2},
	})
	if err == nil {
		t.Fatal("expected error setting mask on compositor created without mask support")
	}
}

func TestCompositorWaitNextFrame(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue, vidcomp.WithCmdBufferWaitNextFrame(true))
	if err != nil {
		t.Fatalf("NewCompositor failed: %v", err)
	}
	defer c.Close()

	cfg := nv12Config()
	if err := c.CreateVideoTextures(cfg); err != nil {
		t.Fatalf("CreateVideoTextures failed: %v", err)
	}
	if err := c.UpdateVideoTexture(makeTestFrame(cfg, 1, 0)); err != nil {
		t.Fatalf("UpdateVideoTexture failed: %v", err)
	}

	view, release := createTargetView(t, device, 512, 512)
	defer release()
	target := vidcomp.RenderTarget{ColorView: view, Width: 512, Height: 512, Layers: 1}

	// The wait deferred from each render lands at the next BeginVideoView.
	for i := 0; i < 3; i++ {
		if err := c.BeginVideoView(); err != nil {
			t.Fatalf("frame %d: BeginVideoView failed: %v", i, err)
		}
		if err := c.RenderVideoView(0, target); err != nil {
			t.Fatalf("frame %d: RenderVideoView failed: %v", i, err)
		}
		if err := c.EndVideoView(); err != nil {
			t.Fatalf("frame %d: EndVideoView failed: %v", i, err)
		}
	}
}

func TestCompositorThreePlaneFoveated(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue)
	if err != nil {
		t.Fatalf("NewCompositor failed: %v", err)
	}
	defer c.Close()

	c.SetFoveatedDecode(&vidcomp.FoveatedDecodeParams{
		CenterSizeX: 0.45, CenterSizeY: 0.4,
		CenterShiftX: 0.25, CenterShiftY: 0.1,
		EdgeRatioX: 4, EdgeRatioY: 5,
	})

	cfg := vidcomp.VideoStreamConfig{
		Width:  1920,
		Height: 1080,
		Format: vidcomp.PixelFormatYUV420ThreePlane,
		Model:  vidcomp.ColorModelBT709,
		Range:  vidcomp.ColorRangeNarrow,
	}
	if err := c.CreateVideoTextures(cfg); err != nil {
		t.Fatalf("CreateVideoTextures failed: %v", err)
	}
	if err := c.UpdateVideoTexture(makeTestFrame(cfg, 42, 0)); err != nil {
		t.Fatalf("UpdateVideoTexture failed: %v", err)
	}
	if err := c.BeginVideoView(); err != nil {
		t.Fatalf("BeginVideoView failed: %v", err)
	}
	if idx, ok := c.GetVideoFrameIndex().Index(); !ok || idx != 42 {
		t.Errorf("GetVideoFrameIndex: got %d ok=%v, want 42", idx, ok)
	}

	// Foveated three-plane selects the last variant block.
	want := vidcomp.VideoShaderIndex(3, vidcomp.PassthroughNone, true)
	if want != 9 {
		t.Fatalf("variant index = %d, want 9", want)
	}
	if c.pipelines.pipeline(want) == nil {
		t.Fatal("foveated three-plane pipeline missing")
	}

	view, release := createTargetView(t, device, 1024, 1024)
	defer release()
	target := vidcomp.RenderTarget{ColorView: view, Width: 1024, Height: 1024, Layers: 1}
	if err := c.RenderVideoView(0, target); err != nil {
		t.Fatalf("RenderVideoView failed: %v", err)
	}
	if err := c.EndVideoView(); err != nil {
		t.Fatalf("EndVideoView failed: %v", err)
	}
}
