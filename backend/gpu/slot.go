package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/xrbridge/vidcomp"
)

// Slot pool errors.
var (
	// ErrOddDimensions is returned for stream widths or heights that 4:2:0
	// chroma subsampling cannot represent.
	ErrOddDimensions = errors.New("gpu: stream dimensions must be even for 4:2:0 chroma")

	// ErrPlaneMismatch is returned when an uploaded frame's planes do not
	// match the configured stream format.
	ErrPlaneMismatch = errors.New("gpu: frame planes do not match stream format")
)

// planeTextureFormats maps a stream pixel format to the per-plane texture
// formats sampled by the video shaders. Two-plane formats interleave CbCr
// in an RG plane; three-plane formats sample Cb and Cr separately.
func planeTextureFormats(f vidcomp.PixelFormat) ([]gputypes.TextureFormat, bool) {
	switch f {
	case vidcomp.PixelFormatNV12:
		return []gputypes.TextureFormat{
			gputypes.TextureFormatR8Unorm,
			gputypes.TextureFormatRG8Unorm,
		}, true
	case vidcomp.PixelFormatP010LE:
		return []gputypes.TextureFormat{
			gputypes.TextureFormatR16Unorm,
			gputypes.TextureFormatRG16Unorm,
		}, true
	case vidcomp.PixelFormatYUV420ThreePlane:
		return []gputypes.TextureFormat{
			gputypes.TextureFormatR8Unorm,
			gputypes.TextureFormatR8Unorm,
			gputypes.TextureFormatR8Unorm,
		}, true
	case vidcomp.PixelFormatYUV420ThreePlane10LE:
		return []gputypes.TextureFormat{
			gputypes.TextureFormatR16Unorm,
			gputypes.TextureFormatR16Unorm,
			gputypes.TextureFormatR16Unorm,
		}, true
	default:
		return nil, false
	}
}

// lumaPlaneFormat returns the plane-zero texture format, or R8Unorm for
// unknown formats (callers validate the format separately).
func lumaPlaneFormat(f vidcomp.PixelFormat) gputypes.TextureFormat {
	formats, ok := planeTextureFormats(f)
	if !ok {
		return gputypes.TextureFormatR8Unorm
	}
	return formats[0]
}

// planeBytesPerPixel returns the tightly packed bytes per texel of plane i.
func planeBytesPerPixel(format gputypes.TextureFormat) uint32 {
	switch format {
	case gputypes.TextureFormatRG16Unorm:
		return 4
	case gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatR16Unorm:
		return 2
	default:
		return 1
	}
}

// planeDims returns the texel dimensions of plane i for a stream of w by h.
// Chroma planes of 4:2:0 formats are half size in both axes.
func planeDims(plane int, w, h uint32) (uint32, uint32) {
	if plane == 0 {
		return w, h
	}
	return w / 2, h / 2
}

// videoSlot holds the per-plane textures and views of one double-buffer
// slot.
type videoSlot struct {
	textures []hal.Texture
	views    []hal.TextureView
}

// slotPool owns the two video slots' GPU textures for one stream
// configuration. Reconfiguring the stream (dimensions or format change)
// destroys the pool and creates a fresh one.
//
// Upload repacks decoder rows to tight pitch before queue.WriteTexture;
// decoder pitches routinely exceed width*bpp and the write path expects
// exact BytesPerRow.
type slotPool struct {
	device hal.Device
	queue  hal.Queue
	cfg    vidcomp.VideoStreamConfig

	formats []gputypes.TextureFormat
	slots   [vidcomp.SlotCount]videoSlot
	repack  []byte
}

// newSlotPool creates the slot textures for cfg and clears them to black.
func newSlotPool(device hal.Device, queue hal.Queue, cfg vidcomp.VideoStreamConfig) (*slotPool, error) {
	if cfg.Width%2 != 0 || cfg.Height%2 != 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrOddDimensions, cfg.Width, cfg.Height)
	}
	formats, ok := planeTextureFormats(cfg.Format)
	if !ok {
		return nil, fmt.Errorf("gpu: unsupported stream format %v", cfg.Format)
	}

	p := &slotPool{device: device, queue: queue, cfg: cfg, formats: formats}
	for s := range p.slots {
		for plane, format := range formats {
			pw, ph := planeDims(plane, cfg.Width, cfg.Height)
			tex, err := device.CreateTexture(&hal.TextureDescriptor{
				Label: fmt.Sprintf("video_slot%d_plane%d", s, plane),
				Size: hal.Extent3D{
					Width:              pw,
					Height:             ph,
					DepthOrArrayLayers: 1,
				},
				MipLevelCount: 1,
				SampleCount:   1,
				Dimension:     gputypes.TextureDimension2D,
				Format:        format,
				Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
			})
			if err != nil {
				p.destroy()
				return nil, fmt.Errorf("gpu: create slot %d plane %d texture: %w", s, plane, err)
			}
			p.slots[s].textures = append(p.slots[s].textures, tex)

			view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
				Label:     fmt.Sprintf("video_slot%d_plane%d_view", s, plane),
				Format:    format,
				Dimension: gputypes.TextureViewDimension2D,
				Aspect:    gputypes.TextureAspectAll,
			})
			if err != nil {
				p.destroy()
				return nil, fmt.Errorf("gpu: create slot %d plane %d view: %w", s, plane, err)
			}
			p.slots[s].views = append(p.slots[s].views, view)
		}
	}
	if err := p.clear(); err != nil {
		p.destroy()
		return nil, err
	}
	vidcomp.Logger().Info("video slot pool created",
		"width", cfg.Width, "height", cfg.Height,
		"format", cfg.Format.String(), "slots", vidcomp.SlotCount)
	return p, nil
}

// view returns plane's view in slot for bind group construction.
func (p *slotPool) view(slot, plane int) hal.TextureView {
	return p.slots[slot].views[plane]
}

// upload writes one decoded frame's planes into the given slot. Rows are
// repacked to tight pitch when the decoder pitch differs.
func (p *slotPool) upload(slot int, frame *vidcomp.YUVBuffer) error {
	planes := []vidcomp.Plane{frame.Luma, frame.Chroma, frame.Chroma2}
	for plane, format := range p.formats {
		src := planes[plane]
		if src.Empty() {
			return fmt.Errorf("%w: plane %d empty for %v", ErrPlaneMismatch, plane, p.cfg.Format)
		}
		pw, ph := planeDims(plane, p.cfg.Width, p.cfg.Height)
		if err := p.writePlane(slot, plane, format, pw, ph, src); err != nil {
			return err
		}
	}
	if p.cfg.Format.PlaneCount() == 2 && !frame.Chroma2.Empty() {
		return fmt.Errorf("%w: unexpected third plane for %v", ErrPlaneMismatch, p.cfg.Format)
	}
	return nil
}

// clear resets every slot to black: zero luma, midpoint chroma.
func (p *slotPool) clear() error {
	for s := range p.slots {
		for plane, format := range p.formats {
			pw, ph := planeDims(plane, p.cfg.Width, p.cfg.Height)
			data := neutralPlaneData(format, plane, pw, ph, p.cfg.Format)
			tight := int(pw * planeBytesPerPixel(format))
			if err := p.writePlane(s, plane, format, pw, ph, vidcomp.Plane{
				Data:  data,
				Pitch: tight,
				Rows:  int(ph),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// writePlane repacks src rows to tight pitch and issues the queue write.
func (p *slotPool) writePlane(slot, plane int, format gputypes.TextureFormat, pw, ph uint32, src vidcomp.Plane) error {
	tight := int(pw * planeBytesPerPixel(format))
	if src.Pitch < tight || src.Rows < int(ph) {
		return fmt.Errorf("%w: plane %d is %dx%d bytes, need %dx%d",
			ErrPlaneMismatch, plane, src.Pitch, src.Rows, tight, ph)
	}

	data := src.Data
	if src.Pitch != tight {
		need := tight * int(ph)
		if cap(p.repack) < need {
			p.repack = make([]byte, need)
		}
		p.repack = p.repack[:need]
		for row := 0; row < int(ph); row++ {
			copy(p.repack[row*tight:(row+1)*tight], data[row*src.Pitch:row*src.Pitch+tight])
		}
		data = p.repack
	} else {
		data = data[:tight*int(ph)]
	}

	p.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  p.slots[slot].textures[plane],
			MipLevel: 0,
			Origin:   hal.Origin3D{},
			Aspect:   gputypes.TextureAspectAll,
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(tight),
			RowsPerImage: ph,
		},
		&hal.Extent3D{Width: pw, Height: ph, DepthOrArrayLayers: 1},
	)
	return nil
}

// destroy releases all slot views and textures. Idempotent.
func (p *slotPool) destroy() {
	for s := range p.slots {
		for _, view := range p.slots[s].views {
			p.device.DestroyTextureView(view)
		}
		for _, tex := range p.slots[s].textures {
			p.device.DestroyTexture(tex)
		}
		p.slots[s] = videoSlot{}
	}
}

// neutralPlaneData builds a black fill for one plane: luma zero, chroma at
// the coding midpoint so dequantization lands on zero chroma.
func neutralPlaneData(format gputypes.TextureFormat, plane int, pw, ph uint32, stream vidcomp.PixelFormat) []byte {
	bpp := planeBytesPerPixel(format)
	data := make([]byte, int(pw)*int(ph)*int(bpp))
	if plane == 0 {
		return data
	}
	threePlane := stream.PlaneCount() == 3
	switch format {
	case gputypes.TextureFormatRG8Unorm:
		for i := range data {
			data[i] = 0x80
		}
	case gputypes.TextureFormatR8Unorm:
		if threePlane {
			for i := range data {
				data[i] = 0x80
			}
		}
	case gputypes.TextureFormatRG16Unorm, gputypes.TextureFormatR16Unorm:
		for i := 0; i+1 < len(data); i += 2 {
			data[i] = 0x00
			data[i+1] = 0x80
		}
	}
	return data
}
