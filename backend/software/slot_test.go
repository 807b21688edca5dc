package software

import (
	"errors"
	"testing"

	"github.com/xrbridge/vidcomp"
)

// makeSolidFrame builds a frame of constant samples with the given extra
// bytes of row padding.
func makeSolidFrame(cfg vidcomp.VideoStreamConfig, index uint64, pad int, y, cb, cr uint8) *vidcomp.YUVBuffer {
	w, h := int(cfg.Width), int(cfg.Height)
	cw, ch := w/2, h/2
	frame := &vidcomp.YUVBuffer{FrameIndex: vidcomp.FrameIDOf(index)}

	lumaPitch := w + pad
	luma := make([]byte, lumaPitch*h)
	for i := range luma {
		luma[i] = y
	}
	frame.Luma = vidcomp.Plane{Data: luma, Pitch: lumaPitch, Rows: h}

	if cfg.Format.PlaneCount() == 2 {
		pitch := cw*2 + pad
		chroma := make([]byte, pitch*ch)
		for row := 0; row < ch; row++ {
			for x := 0; x < cw; x++ {
				chroma[row*pitch+x*2] = cb
				chroma[row*pitch+x*2+1] = cr
			}
		}
		frame.Chroma = vidcomp.Plane{Data: chroma, Pitch: pitch, Rows: ch}
		return frame
	}

	pitch := cw + pad
	cbData := make([]byte, pitch*ch)
	crData := make([]byte, pitch*ch)
	for i := range cbData {
		cbData[i] = cb
		crData[i] = cr
	}
	frame.Chroma = vidcomp.Plane{Data: cbData, Pitch: pitch, Rows: ch}
	frame.Chroma2 = vidcomp.Plane{Data: crData, Pitch: pitch, Rows: ch}
	return frame
}

func TestSlotStoreNV12(t *testing.T) {
	cfg := vidcomp.VideoStreamConfig{
		Width:  16,
		Height: 8,
		Format: vidcomp.PixelFormatNV12,
	}
	var slot videoSlot
	if err := slot.store(cfg, makeSolidFrame(cfg, 1, 13, 235, 128, 128)); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if slot.w != 16 || slot.h != 8 {
		t.Fatalf("slot dims: got %dx%d", slot.w, slot.h)
	}

	y, cb, cr := slot.sample(8, 4)
	if want := float32(235) / 255; y != want {
		t.Errorf("luma: got %v, want %v", y, want)
	}
	// Constant chroma survives upsampling to the midpoint value.
	if cb < 0.49 || cb > 0.51 {
		t.Errorf("cb: got %v, want ~0.5", cb)
	}
	if cr < 0.49 || cr > 0.51 {
		t.Errorf("cr: got %v, want ~0.5", cr)
	}
}

func TestSlotStoreThreePlane(t *testing.T) {
	cfg := vidcomp.VideoStreamConfig{
		Width:  16,
		Height: 8,
		Format: vidcomp.PixelFormatYUV420ThreePlane,
	}
	var slot videoSlot
	if err := slot.store(cfg, makeSolidFrame(cfg, 1, 0, 128, 64, 192)); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	_, cb, cr := slot.sample(0, 0)
	if wantCb := float32(64) / 255; cb < wantCb-0.01 || cb > wantCb+0.01 {
		t.Errorf("cb: got %v, want ~%v", cb, wantCb)
	}
	if wantCr := float32(192) / 255; cr < wantCr-0.01 || cr > wantCr+0.01 {
		t.Errorf("cr: got %v, want ~%v", cr, wantCr)
	}
}

func TestSlotStorePlaneMismatch(t *testing.T) {
	cfg := vidcomp.VideoStreamConfig{
		Width:  16,
		Height: 8,
		Format: vidcomp.PixelFormatNV12,
	}
	var slot videoSlot

	// Missing chroma.
	frame := makeSolidFrame(cfg, 1, 0, 0, 0, 0)
	frame.Chroma = vidcomp.Plane{}
	if err := slot.store(cfg, frame); !errors.Is(err, ErrPlaneMismatch) {
		t.Errorf("missing chroma: expected ErrPlaneMismatch, got %v", err)
	}

	// Extra plane on a two-plane stream.
	frame = makeSolidFrame(cfg, 2, 0, 0, 0, 0)
	frame.Chroma2 = frame.Chroma
	if err := slot.store(cfg, frame); !errors.Is(err, ErrPlaneMismatch) {
		t.Errorf("extra plane: expected ErrPlaneMismatch, got %v", err)
	}

	// Short pitch.
	frame = makeSolidFrame(cfg, 3, 0, 0, 0, 0)
	frame.Luma.Pitch = int(cfg.Width) - 1
	if err := slot.store(cfg, frame); !errors.Is(err, ErrPlaneMismatch) {
		t.Errorf("short pitch: expected ErrPlaneMismatch, got %v", err)
	}
}

func TestSlotClear(t *testing.T) {
	var slot videoSlot
	slot.clear(4, 4)
	y, cb, cr := slot.sample(1, 1)
	if y != 0 {
		t.Errorf("luma after clear: got %v, want 0", y)
	}
	if cb != 0.5 || cr != 0.5 {
		t.Errorf("chroma after clear: got %v/%v, want 0.5/0.5", cb, cr)
	}
}

func TestSlotSampleClamps(t *testing.T) {
	var slot videoSlot
	slot.clear(4, 4)
	// Out-of-range coordinates clamp instead of panicking.
	slot.sample(-1, -1)
	slot.sample(100, 100)
}
