//go:build !nogpu

package gpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/xrbridge/vidcomp"
)

func TestPlaneTextureFormats(t *testing.T) {
	tests := []struct {
		name   string
		format vidcomp.PixelFormat
		want   []gputypes.TextureFormat
		ok     bool
	}{
		{
			name:   "NV12",
			format: vidcomp.PixelFormatNV12,
			want:   []gputypes.TextureFormat{gputypes.TextureFormatR8Unorm, gputypes.TextureFormatRG8Unorm},
			ok:     true,
		},
		{
			name:   "P010LE",
			format: vidcomp.PixelFormatP010LE,
			want:   []gputypes.TextureFormat{gputypes.TextureFormatR16Unorm, gputypes.TextureFormatRG16Unorm},
			ok:     true,
		},
		{
			name:   "three plane 8-bit",
			format: vidcomp.PixelFormatYUV420ThreePlane,
			want:   []gputypes.TextureFormat{gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Unorm},
			ok:     true,
		},
		{
			name:   "three plane 10-bit",
			format: vidcomp.PixelFormatYUV420ThreePlane10LE,
			want:   []gputypes.TextureFormat{gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Unorm},
			ok:     true,
		},
		{
			name:   "unknown",
			format: vidcomp.PixelFormatUnknown,
			ok:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := planeTextureFormats(tt.format)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d formats, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("plane %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPlaneDims(t *testing.T) {
	w, h := planeDims(0, 1280, 720)
	if w != 1280 || h != 720 {
		t.Errorf("luma plane: got %dx%d, want 1280x720", w, h)
	}
	w, h = planeDims(1, 1280, 720)
	if w != 640 || h != 360 {
		t.Errorf("chroma plane: got %dx%d, want 640x360", w, h)
	}
	w, h = planeDims(2, 1280, 720)
	if w != 640 || h != 360 {
		t.Errorf("second chroma plane: got %dx%d, want 640x360", w, h)
	}
}

func TestNeutralPlaneData(t *testing.T) {
	// Luma is zero regardless of format.
	luma := neutralPlaneData(gputypes.TextureFormatR8Unorm, 0, 4, 2, vidcomp.PixelFormatNV12)
	for i, b := range luma {
		if b != 0 {
			t.Fatalf("luma byte %d: got %#x, want 0", i, b)
		}
	}

	// Interleaved 8-bit chroma sits at the coding midpoint.
	chroma := neutralPlaneData(gputypes.TextureFormatRG8Unorm, 1, 2, 2, vidcomp.PixelFormatNV12)
	if len(chroma) != 8 {
		t.Fatalf("RG8 chroma length: got %d, want 8", len(chroma))
	}
	for i, b := range chroma {
		if b != 0x80 {
			t.Fatalf("RG8 chroma byte %d: got %#x, want 0x80", i, b)
		}
	}

	// Planar 8-bit chroma in three-plane streams is also midpoint.
	chroma = neutralPlaneData(gputypes.TextureFormatR8Unorm, 1, 2, 2, vidcomp.PixelFormatYUV420ThreePlane)
	for i, b := range chroma {
		if b != 0x80 {
			t.Fatalf("planar chroma byte %d: got %#x, want 0x80", i, b)
		}
	}

	// 16-bit chroma midpoint is 0x8000 little-endian.
	chroma = neutralPlaneData(gputypes.TextureFormatRG16Unorm, 1, 1, 1, vidcomp.PixelFormatP010LE)
	if len(chroma) != 4 {
		t.Fatalf("RG16 chroma length: got %d, want 4", len(chroma))
	}
	if chroma[0] != 0x00 || chroma[1] != 0x80 || chroma[2] != 0x00 || chroma[3] != 0x80 {
		t.Errorf("RG16 chroma: got % x, want 00 80 00 80", chroma)
	}
}

// makeTestFrame builds a frame matching the stream config with the given
// extra bytes of row padding on every plane.
func makeTestFrame(cfg vidcomp.VideoStreamConfig, index uint64, pad int) *vidcomp.YUVBuffer {
	formats, _ := planeTextureFormats(cfg.Format)
	frame := &vidcomp.YUVBuffer{FrameIndex: vidcomp.FrameIDOf(index)}
	for plane, format := range formats {
		pw, ph := planeDims(plane, cfg.Width, cfg.Height)
		pitch := int(pw*planeBytesPerPixel(format)) + pad
		p := vidcomp.Plane{
			Data:  make([]byte, pitch*int(ph)),
			Pitch: pitch,
			Rows:  int(ph),
		}
		switch plane {
		case 0:
			frame.Luma = p
		case 1:
			frame.Chroma = p
		case 2:
			frame.Chroma2 = p
		}
	}
	return frame
}

func TestNewSlotPoolOddDimensions(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	for _, dims := range [][2]uint32{{641, 360}, {640, 361}} {
		_, err := newSlotPool(device, queue, vidcomp.VideoStreamConfig{
			Width:  dims[0],
			Height: dims[1],
			Format: vidcomp.PixelFormatNV12,
		})
		if !errors.Is(err, ErrOddDimensions) {
			t.Errorf("%dx%d: expected ErrOddDimensions, got %v", dims[0], dims[1], err)
		}
	}
}

func TestNewSlotPoolUnknownFormat(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	_, err := newSlotPool(device, queue, vidcomp.VideoStreamConfig{
		Width:  640,
		Height: 360,
		Format: vidcomp.PixelFormatUnknown,
	})
	if err == nil {
		t.Fatal("expected error for unknown pixel format")
	}
}

func TestSlotPoolCreateAndDestroy(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	pool, err := newSlotPool(device, queue, vidcomp.VideoStreamConfig{
		Width:  640,
		Height: 360,
		Format: vidcomp.PixelFormatNV12,
	})
	if err != nil {
		t.Fatalf("newSlotPool failed: %v", err)
	}

	for slot := 0; slot < vidcomp.SlotCount; slot++ {
		if got := len(pool.slots[slot].textures); got != 2 {
			t.Errorf("slot %d: got %d textures, want 2", slot, got)
		}
		for plane := 0; plane < 2; plane++ {
			if pool.view(slot, plane) == nil {
				t.Errorf("slot %d plane %d: nil view", slot, plane)
			}
		}
	}

	pool.destroy()
	for slot := 0; slot < vidcomp.SlotCount; slot++ {
		if len(pool.slots[slot].textures) != 0 {
			t.Errorf("slot %d: textures remain after destroy", slot)
		}
	}

	// Double destroy is safe.
	pool.destroy()
}

func TestSlotPoolUpload(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	cfg := vidcomp.VideoStreamConfig{
		Width:  640,
		Height: 360,
		Format: vidcomp.PixelFormatNV12,
	}
	pool, err := newSlotPool(device, queue, cfg)
	if err != nil {
		t.Fatalf("newSlotPool failed: %v", err)
	}
	defer pool.destroy()

	// Tight pitch.
	if err := pool.upload(0, makeTestFrame(cfg, 1, 0)); err != nil {
		t.Fatalf("tight-pitch upload failed: %v", err)
	}

	// Decoder row padding gets repacked.
	if err := pool.upload(1, makeTestFrame(cfg, 2, 128)); err != nil {
		t.Fatalf("padded-pitch upload failed: %v", err)
	}
}

func TestSlotPoolUploadPlaneMismatch(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	cfg := vidcomp.VideoStreamConfig{
		Width:  640,
		Height: 360,
		Format: vidcomp.PixelFormatNV12,
	}
	pool, err := newSlotPool(device, queue, cfg)
	if err != nil {
		t.Fatalf("newSlotPool failed: %v", err)
	}
	defer pool.destroy()

	// Missing chroma plane.
	frame := makeTestFrame(cfg, 1, 0)
	frame.Chroma = vidcomp.Plane{}
	if err := pool.upload(0, frame); !errors.Is(err, ErrPlaneMismatch) {
		t.Errorf("missing chroma: expected ErrPlaneMismatch, got %v", err)
	}

	// Third plane on a two-plane stream.
	frame = makeTestFrame(cfg, 2, 0)
	frame.Chroma2 = frame.Chroma
	if err := pool.upload(0, frame); !errors.Is(err, ErrPlaneMismatch) {
		t.Errorf("extra plane: expected ErrPlaneMismatch, got %v", err)
	}

	// Pitch shorter than a tight row.
	frame = makeTestFrame(cfg, 3, 0)
	frame.Luma.Pitch = int(cfg.Width) - 1
	if err := pool.upload(0, frame); !errors.Is(err, ErrPlaneMismatch) {
		t.Errorf("short pitch: expected ErrPlaneMismatch, got %v", err)
	}
}

func TestSlotPoolUploadThreePlane(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	cfg := vidcomp.VideoStreamConfig{
		Width:  1920,
		Height: 1080,
		Format: vidcomp.PixelFormatYUV420ThreePlane,
	}
	pool, err := newSlotPool(device, queue, cfg)
	if err != nil {
		t.Fatalf("newSlotPool failed: %v", err)
	}
	defer pool.destroy()

	if got := len(pool.slots[0].textures); got != 3 {
		t.Fatalf("got %d textures, want 3", got)
	}
	if err := pool.upload(0, makeTestFrame(cfg, 1, 64)); err != nil {
		t.Fatalf("three-plane upload failed: %v", err)
	}
}
