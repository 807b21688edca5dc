package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/xrbridge/vidcomp"
)

// Import errors.
var (
	// ErrImportUnsupported is returned when the device does not implement
	// external-memory import. Detected at device-init time via
	// SupportsExternalMemory, before any import is attempted.
	ErrImportUnsupported = errors.New("gpu: device does not support external memory import")

	// ErrImportBadFormat is returned for format/handle combinations the
	// import layer cannot express.
	ErrImportBadFormat = errors.New("gpu: unsupported external image format")

	// ErrImportPlaneLayout is returned when the plane layout list does not
	// match the format's plane count or is out of plane order.
	ErrImportPlaneLayout = errors.New("gpu: invalid external plane layout")
)

// HandleKind identifies the OS-level sharing primitive an external
// resource travels through.
type HandleKind uint8

const (
	// HandleNone is the zero value; no handle attached.
	HandleNone HandleKind = iota

	// HandleOpaqueFD is a POSIX file descriptor (Linux/Android Vulkan).
	HandleOpaqueFD

	// HandleOpaqueWin32 is an NT shared handle.
	HandleOpaqueWin32

	// HandleOpaqueWin32KMT is a legacy kernel-mode-thunk shared handle.
	HandleOpaqueWin32KMT

	// HandleAndroidHardwareBuffer is an AHardwareBuffer pointer.
	HandleAndroidHardwareBuffer

	// HandleD3D11Texture is a shared NT handle exported from a D3D11
	// video-decode device.
	HandleD3D11Texture
)

// String returns a human-readable name for the handle kind.
func (k HandleKind) String() string {
	switch k {
	case HandleNone:
		return "none"
	case HandleOpaqueFD:
		return "opaque-fd"
	case HandleOpaqueWin32:
		return "opaque-win32"
	case HandleOpaqueWin32KMT:
		return "opaque-win32-kmt"
	case HandleAndroidHardwareBuffer:
		return "android-hardware-buffer"
	case HandleD3D11Texture:
		return "d3d11-shared-texture"
	default:
		return fmt.Sprintf("HandleKind(%d)", uint8(k))
	}
}

// ExternalHandle is an OS-level reference to memory or a sync object owned
// by another API or device. Value is a file descriptor, HANDLE, or pointer
// depending on Kind; the holder owns closing it per platform rules.
type ExternalHandle struct {
	Kind  HandleKind
	Value uintptr
}

// PlaneLayout describes where one plane lives inside imported memory.
type PlaneLayout struct {
	Offset   uint64
	RowPitch uint64
	Size     uint64
}

// StreamColorParams is the YCbCr interpretation of an imported stream.
type StreamColorParams struct {
	Model vidcomp.ColorModel
	Range vidcomp.ColorRange
}

// ExternalImageDesc describes a GPU image to create over memory exported
// by another API or device.
//
// When Disjoint is set, the source format's planes are not laid out
// contiguously and each plane binds its own memory region; Planes must
// then hold exactly PlaneCount layouts in plane order (luma first, then
// chroma, then the second chroma plane for 3-plane formats). Binding order
// is significant: some drivers validate plane aspect masks sequentially.
type ExternalImageDesc struct {
	Width  uint32
	Height uint32
	Format vidcomp.PixelFormat
	Handle ExternalHandle

	Disjoint bool
	Planes   []PlaneLayout

	// DecoderParams carries the color interpretation reported by the
	// decode collaborator, when it reports one.
	DecoderParams *StreamColorParams

	// SuggestedParams carries the driver-suggested conversion parameters
	// queried for external/opaque formats (Android hardware buffers).
	SuggestedParams *StreamColorParams
}

// ExternalMemoryDevice is the optional device capability of creating
// images over externally owned memory. Query with SupportsExternalMemory
// at device-init time; hal devices without the capability reject imports
// before any handle is touched.
type ExternalMemoryDevice interface {
	// ImportImageMemory creates a texture aliasing the handle's memory.
	// For disjoint imports, planes are bound one at a time in the order
	// given.
	ImportImageMemory(desc *hal.TextureDescriptor, handle ExternalHandle, planes []PlaneLayout) (hal.Texture, error)
}

// SupportsExternalMemory reports whether the device can import external
// images. Call once at init; surfacing the missing capability here keeps
// the failure out of the per-frame path.
func SupportsExternalMemory(device hal.Device) bool {
	_, ok := device.(ExternalMemoryDevice)
	return ok
}

// ImportExternalImage creates a device image aliasing memory exported by
// another API or device. Validation failures are descriptive errors, not
// crashes: an unsupported format combination fails at image creation.
func ImportExternalImage(device hal.Device, desc ExternalImageDesc) (hal.Texture, error) {
	importer, ok := device.(ExternalMemoryDevice)
	if !ok {
		return nil, ErrImportUnsupported
	}
	if desc.Handle.Kind == HandleNone {
		return nil, fmt.Errorf("%w: no handle attached", ErrImportBadFormat)
	}
	planeCount := desc.Format.PlaneCount()
	if planeCount == 0 {
		return nil, fmt.Errorf("%w: %v", ErrImportBadFormat, desc.Format)
	}
	if desc.Width%2 != 0 {
		return nil, fmt.Errorf("%w: odd width %d with 4:2:0 chroma", ErrImportBadFormat, desc.Width)
	}

	planes := desc.Planes
	if desc.Disjoint {
		if len(planes) != planeCount {
			return nil, fmt.Errorf("%w: %d layouts for %d-plane %v",
				ErrImportPlaneLayout, len(planes), planeCount, desc.Format)
		}
		// Plane order is part of the contract; a shuffled layout list
		// would bind aspect masks out of sequence.
		for i := range planes {
			if planes[i].RowPitch == 0 {
				return nil, fmt.Errorf("%w: plane %d has zero row pitch", ErrImportPlaneLayout, i)
			}
		}
	} else if len(planes) > 1 {
		return nil, fmt.Errorf("%w: %d layouts for non-disjoint import", ErrImportPlaneLayout, len(planes))
	}

	tex, err := importer.ImportImageMemory(&hal.TextureDescriptor{
		Label: fmt.Sprintf("video_external_%s", desc.Handle.Kind),
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        lumaPlaneFormat(desc.Format),
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	}, desc.Handle, planes)
	if err != nil {
		return nil, fmt.Errorf("gpu: import %s image %dx%d %v: %w",
			desc.Handle.Kind, desc.Width, desc.Height, desc.Format, err)
	}
	return tex, nil
}

// ResolveStreamColorParams decides between decoder-reported and
// driver-suggested YCbCr conversion parameters for imported images.
//
// The decoder-reported values win when both are present; the suggested
// values are only a fallback for opaque external formats where the decoder
// reports nothing. A disagreement is logged, not reconciled. Changing this
// precedence produces wrong colors on specific hardware.
func ResolveStreamColorParams(decoder, suggested *StreamColorParams) (StreamColorParams, bool) {
	switch {
	case decoder != nil && suggested != nil:
		if *decoder != *suggested {
			vidcomp.Logger().Warn("decoder and driver disagree on YCbCr parameters; using decoder values",
				"decoderModel", decoder.Model.String(), "decoderRange", decoder.Range.String(),
				"suggestedModel", suggested.Model.String(), "suggestedRange", suggested.Range.String())
		}
		return *decoder, true
	case decoder != nil:
		return *decoder, true
	case suggested != nil:
		return *suggested, true
	default:
		return StreamColorParams{}, false
	}
}
