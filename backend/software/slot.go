package software

import (
	"errors"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/xrbridge/vidcomp"
)

// Slot errors.
var (
	// ErrOddDimensions is returned for stream widths or heights that 4:2:0
	// chroma subsampling cannot represent.
	ErrOddDimensions = errors.New("software: stream dimensions must be even for 4:2:0 chroma")

	// ErrPlaneMismatch is returned when an uploaded frame's planes do not
	// match the configured stream format.
	ErrPlaneMismatch = errors.New("software: frame planes do not match stream format")
)

// videoSlot holds one decoded frame as normalized full-resolution sample
// planes. Chroma is upsampled to luma resolution at store time so the
// per-pixel render loop reads all three components at the same coordinate,
// mirroring what the GPU sampler does with half-resolution plane textures.
type videoSlot struct {
	y, cb, cr []float32
	w, h      int
}

// store copies and normalizes one decoded frame into the slot.
func (s *videoSlot) store(cfg vidcomp.VideoStreamConfig, frame *vidcomp.YUVBuffer) error {
	w, h := int(cfg.Width), int(cfg.Height)
	cw, ch := w/2, h/2
	deep := cfg.Format.BitDepth() > 8

	y, err := lumaToFloat(frame.Luma, w, h, deep)
	if err != nil {
		return err
	}

	var cbHalf, crHalf []float32
	switch cfg.Format.PlaneCount() {
	case 2:
		if !frame.Chroma2.Empty() {
			return fmt.Errorf("%w: unexpected third plane for %v", ErrPlaneMismatch, cfg.Format)
		}
		cbHalf, crHalf, err = interleavedChromaToFloat(frame.Chroma, cw, ch, deep)
	case 3:
		cbHalf, err = planarChromaToFloat(frame.Chroma, cw, ch, deep)
		if err == nil {
			crHalf, err = planarChromaToFloat(frame.Chroma2, cw, ch, deep)
		}
	default:
		return fmt.Errorf("%w: unsupported format %v", ErrPlaneMismatch, cfg.Format)
	}
	if err != nil {
		return err
	}

	s.y = y
	s.cb = upsampleChroma(cbHalf, cw, ch, w, h)
	s.cr = upsampleChroma(crHalf, cw, ch, w, h)
	s.w = w
	s.h = h
	return nil
}

// clear resets the slot to black: zero luma, midpoint chroma.
func (s *videoSlot) clear(w, h int) {
	n := w * h
	s.y = make([]float32, n)
	s.cb = make([]float32, n)
	s.cr = make([]float32, n)
	for i := 0; i < n; i++ {
		s.cb[i] = 0.5
		s.cr[i] = 0.5
	}
	s.w = w
	s.h = h
}

// sample returns the YCbCr triple at texel (x, y), clamped to the plane.
func (s *videoSlot) sample(x, y int) (float32, float32, float32) {
	if x < 0 {
		x = 0
	} else if x >= s.w {
		x = s.w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= s.h {
		y = s.h - 1
	}
	i := y*s.w + x
	return s.y[i], s.cb[i], s.cr[i]
}

// checkPlane validates the plane against the expected tight row size.
func checkPlane(p vidcomp.Plane, tight, rows int) error {
	if p.Empty() {
		return fmt.Errorf("%w: empty plane", ErrPlaneMismatch)
	}
	if p.Pitch < tight || p.Rows < rows {
		return fmt.Errorf("%w: plane is %dx%d bytes, need %dx%d",
			ErrPlaneMismatch, p.Pitch, p.Rows, tight, rows)
	}
	if len(p.Data) < p.Pitch*(rows-1)+tight {
		return fmt.Errorf("%w: plane data short (%d bytes)", ErrPlaneMismatch, len(p.Data))
	}
	return nil
}

// lumaToFloat normalizes the full-resolution luma plane.
func lumaToFloat(p vidcomp.Plane, w, h int, deep bool) ([]float32, error) {
	bps := 1
	if deep {
		bps = 2
	}
	if err := checkPlane(p, w*bps, h); err != nil {
		return nil, err
	}
	out := make([]float32, w*h)
	for row := 0; row < h; row++ {
		src := p.Data[row*p.Pitch:]
		for x := 0; x < w; x++ {
			if deep {
				v := uint16(src[x*2]) | uint16(src[x*2+1])<<8
				out[row*w+x] = float32(v) / 65535
			} else {
				out[row*w+x] = float32(src[x]) / 255
			}
		}
	}
	return out, nil
}

// interleavedChromaToFloat splits a half-resolution CbCr plane.
func interleavedChromaToFloat(p vidcomp.Plane, cw, ch int, deep bool) ([]float32, []float32, error) {
	bps := 2
	if deep {
		bps = 4
	}
	if err := checkPlane(p, cw*bps, ch); err != nil {
		return nil, nil, err
	}
	cb := make([]float32, cw*ch)
	cr := make([]float32, cw*ch)
	for row := 0; row < ch; row++ {
		src := p.Data[row*p.Pitch:]
		for x := 0; x < cw; x++ {
			if deep {
				b := uint16(src[x*4]) | uint16(src[x*4+1])<<8
				r := uint16(src[x*4+2]) | uint16(src[x*4+3])<<8
				cb[row*cw+x] = float32(b) / 65535
				cr[row*cw+x] = float32(r) / 65535
			} else {
				cb[row*cw+x] = float32(src[x*2]) / 255
				cr[row*cw+x] = float32(src[x*2+1]) / 255
			}
		}
	}
	return cb, cr, nil
}

// planarChromaToFloat normalizes one half-resolution chroma plane.
func planarChromaToFloat(p vidcomp.Plane, cw, ch int, deep bool) ([]float32, error) {
	bps := 1
	if deep {
		bps = 2
	}
	if err := checkPlane(p, cw*bps, ch); err != nil {
		return nil, err
	}
	out := make([]float32, cw*ch)
	for row := 0; row < ch; row++ {
		src := p.Data[row*p.Pitch:]
		for x := 0; x < cw; x++ {
			if deep {
				v := uint16(src[x*2]) | uint16(src[x*2+1])<<8
				out[row*cw+x] = float32(v) / 65535
			} else {
				out[row*cw+x] = float32(src[x]) / 255
			}
		}
	}
	return out, nil
}

// upsampleChroma scales a half-resolution chroma plane to luma resolution
// with bilinear filtering, matching the GPU sampler's chroma upsampling.
func upsampleChroma(half []float32, cw, ch, w, h int) []float32 {
	src := image.NewGray16(image.Rect(0, 0, cw, ch))
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			v := uint16(half[y*cw+x]*65535 + 0.5)
			// Gray16 pixels are big-endian.
			src.Pix[y*src.Stride+x*2] = byte(v >> 8)
			src.Pix[y*src.Stride+x*2+1] = byte(v)
		}
	}

	dst := image.NewGray16(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	out := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint16(dst.Pix[y*dst.Stride+x*2])<<8 | uint16(dst.Pix[y*dst.Stride+x*2+1])
			out[y*w+x] = float32(v) / 65535
		}
	}
	return out
}
