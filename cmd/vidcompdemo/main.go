// Command vidcompdemo composites synthetic decoded video frames with the
// software backend and saves the final view to a PNG. It exercises the
// full frame path: stream configuration, slot upload, latest-wins handoff,
// dequantization, and passthrough blending.
package main

import (
	"flag"
	"image/png"
	"log"
	"os"

	"github.com/xrbridge/vidcomp"
	"github.com/xrbridge/vidcomp/backend"
	"github.com/xrbridge/vidcomp/backend/software"
)

func main() {
	var (
		width       = flag.Int("width", 1280, "video width")
		height      = flag.Int("height", 720, "video height")
		frames      = flag.Int("frames", 30, "frames to composite")
		passthrough = flag.String("passthrough", "none", "passthrough mode: none, blend, mask")
		output      = flag.String("output", "frame.png", "output file")
	)
	flag.Parse()

	mode := vidcomp.PassthroughNone
	switch *passthrough {
	case "none":
	case "blend":
		mode = vidcomp.PassthroughBlend
	case "mask":
		mode = vidcomp.PassthroughMask
	default:
		log.Fatalf("unknown passthrough mode %q", *passthrough)
	}

	b := backend.Get(backend.BackendSoftware)
	if b == nil {
		log.Fatal("software backend not registered")
	}
	if err := b.Init(); err != nil {
		log.Fatalf("backend init: %v", err)
	}
	defer b.Close()

	c, err := b.NewCompositor(
		vidcomp.WithPassthroughMode(mode),
		vidcomp.WithDrainPolicy(vidcomp.DrainLatest),
	)
	if err != nil {
		log.Fatalf("create compositor: %v", err)
	}
	defer c.Close()

	cfg := vidcomp.VideoStreamConfig{
		Width:  uint32(*width),
		Height: uint32(*height),
		Format: vidcomp.PixelFormatNV12,
		Model:  vidcomp.ColorModelBT709,
		Range:  vidcomp.ColorRangeNarrow,
	}
	if err := c.CreateVideoTextures(cfg); err != nil {
		log.Fatalf("configure stream: %v", err)
	}

	fb := software.NewFramebuffer(*width, *height)
	target := vidcomp.RenderTarget{
		ColorView: fb,
		Width:     uint32(*width),
		Height:    uint32(*height),
		Layers:    1,
	}

	for i := 0; i < *frames; i++ {
		if err := c.UpdateVideoTexture(testPattern(cfg, uint64(i))); err != nil {
			log.Fatalf("frame %d: upload: %v", i, err)
		}
		if err := c.BeginVideoView(); err != nil {
			log.Fatalf("frame %d: begin view: %v", i, err)
		}
		if err := c.RenderVideoView(0, target); err != nil {
			log.Fatalf("frame %d: render: %v", i, err)
		}
		if err := c.EndVideoView(); err != nil {
			log.Fatalf("frame %d: end view: %v", i, err)
		}
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, fb.Image); err != nil {
		log.Fatalf("encode: %v", err)
	}

	idx, _ := c.GetVideoFrameIndex().Index()
	log.Printf("composited %d frames (last index %d), saved %s (%dx%d)",
		*frames, idx, *output, *width, *height)
}

// testPattern builds an NV12 frame with a horizontal luma ramp and a
// frame-dependent chroma sweep, so successive frames visibly differ.
func testPattern(cfg vidcomp.VideoStreamConfig, index uint64) *vidcomp.YUVBuffer {
	w, h := int(cfg.Width), int(cfg.Height)
	cw, ch := w/2, h/2

	luma := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Narrow-range ramp from black to white.
			luma[y*w+x] = byte(16 + x*219/(w-1))
		}
	}

	phase := byte(index * 8)
	chroma := make([]byte, cw*ch*2)
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			chroma[(y*cw+x)*2] = byte(64+y*128/ch) + phase
			chroma[(y*cw+x)*2+1] = byte(64+x*128/cw) - phase
		}
	}

	return &vidcomp.YUVBuffer{
		Luma:       vidcomp.Plane{Data: luma, Pitch: w, Rows: h},
		Chroma:     vidcomp.Plane{Data: chroma, Pitch: cw * 2, Rows: ch},
		FrameIndex: vidcomp.FrameIDOf(index),
	}
}
