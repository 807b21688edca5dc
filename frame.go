package vidcomp

import "math"

// NoFrameSentinel is the wire-level "no valid frame" marker used by decode
// collaborators: a YUVBuffer carrying this frame index must short-circuit
// without touching GPU state. Inside the package the absent state is the
// zero FrameID, not a magic constant.
const NoFrameSentinel = math.MaxUint64

// FrameID is an optional monotonically increasing frame index. The zero
// value means "no frame". Decode collaborators hand indices across the
// boundary as raw uint64 with NoFrameSentinel for absence; FrameIDFromWire
// translates at the edge.
type FrameID struct {
	index uint64
	valid bool
}

// FrameIDOf returns a valid FrameID for the given index.
func FrameIDOf(index uint64) FrameID {
	return FrameID{index: index, valid: true}
}

// FrameIDFromWire translates a wire-level frame index, mapping
// NoFrameSentinel to the absent FrameID.
func FrameIDFromWire(index uint64) FrameID {
	if index == NoFrameSentinel {
		return FrameID{}
	}
	return FrameIDOf(index)
}

// Index returns the frame index and whether it is present.
func (id FrameID) Index() (uint64, bool) { return id.index, id.valid }

// Valid reports whether the FrameID holds a frame index.
func (id FrameID) Valid() bool { return id.valid }

// Wire returns the wire-level representation: the index, or
// NoFrameSentinel when absent.
func (id FrameID) Wire() uint64 {
	if !id.valid {
		return NoFrameSentinel
	}
	return id.index
}

// Plane describes one contiguous 2D array of samples in decoder-owned
// memory. Pitch is the byte stride between rows and may exceed the tightly
// packed row width; consumers must copy row by row.
type Plane struct {
	// Data holds at least Pitch*Rows bytes. The decoder owns this memory
	// for the duration of the UpdateVideoTexture call only.
	Data []byte

	// Pitch is the byte stride between consecutive rows.
	Pitch int

	// Rows is the number of sample rows in the plane.
	Rows int
}

// Empty reports whether the plane carries no data.
func (p Plane) Empty() bool { return len(p.Data) == 0 || p.Rows == 0 }

// YUVBuffer describes one decoded frame. The luma plane is full resolution;
// chroma planes are half resolution in both dimensions (4:2:0). Two-plane
// formats interleave Cb and Cr in Chroma; three-plane formats carry Cr
// separately in Chroma2.
//
// The pointed-to memory is owned by the decoder and is only valid for the
// duration of the UpdateVideoTexture call: the consumer must have copied
// every byte out before returning.
type YUVBuffer struct {
	Luma    Plane
	Chroma  Plane
	Chroma2 Plane

	// FrameIndex is the monotonically increasing decode index, or absent
	// for the defined "no frame yet" steady state.
	FrameIndex FrameID
}

// VideoStreamConfig describes a (re)configured video stream. Issued once
// per stream configuration by the session/decoder collaborator.
type VideoStreamConfig struct {
	Width  uint32
	Height uint32
	Format PixelFormat
	Model  ColorModel
	Range  ColorRange
}

// FoveatedDecodeParams describes the variable-resolution decode mapping.
// When present on a compositor, the foveated shader variant set is selected
// and these parameters are bound as a shader uniform.
type FoveatedDecodeParams struct {
	// CenterSizeX/Y is the relative extent of the full-resolution region.
	CenterSizeX float32
	CenterSizeY float32

	// CenterShiftX/Y offsets the high-resolution region from the view
	// center, following gaze or lens geometry.
	CenterShiftX float32
	CenterShiftY float32

	// EdgeRatioX/Y is the resolution falloff ratio outside the center.
	EdgeRatioX float32
	EdgeRatioY float32
}
