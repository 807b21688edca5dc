package vidcomp

import "fmt"

// PixelFormat identifies the planar YCbCr layout produced by the hardware
// video decoder. The format determines the plane count (2 or 3) and the
// per-plane sample bit depth (8 or 10).
type PixelFormat uint8

const (
	// PixelFormatUnknown is the zero value; no stream is configured.
	PixelFormatUnknown PixelFormat = iota

	// PixelFormatNV12 is 8-bit 4:2:0 with an interleaved CbCr plane.
	PixelFormatNV12

	// PixelFormatP010LE is 10-bit 4:2:0 (samples in the high bits of 16-bit
	// words) with an interleaved CbCr plane.
	PixelFormatP010LE

	// PixelFormatYUV420ThreePlane is 8-bit 4:2:0 with separate Cb and Cr
	// planes (G8_B8_R8_3PLANE_420 in Vulkan terms).
	PixelFormatYUV420ThreePlane

	// PixelFormatYUV420ThreePlane10LE is 10-bit 4:2:0 with separate Cb and
	// Cr planes (G10X6_B10X6_R10X6_3PLANE_420).
	PixelFormatYUV420ThreePlane10LE
)

// String returns a human-readable name for the format.
func (f PixelFormat) String() string {
	switch f {
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatP010LE:
		return "P010LE"
	case PixelFormatYUV420ThreePlane:
		return "YUV420_3PLANE"
	case PixelFormatYUV420ThreePlane10LE:
		return "YUV420_3PLANE_10LE"
	case PixelFormatUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("PixelFormat(%d)", uint8(f))
	}
}

// PlaneCount returns the number of planes composing one frame: 2 for
// interleaved-chroma formats, 3 for split-chroma formats, 0 for Unknown.
func (f PixelFormat) PlaneCount() int {
	switch f {
	case PixelFormatNV12, PixelFormatP010LE:
		return 2
	case PixelFormatYUV420ThreePlane, PixelFormatYUV420ThreePlane10LE:
		return 3
	default:
		return 0
	}
}

// BitDepth returns the per-sample bit depth (8 or 10), or 0 for Unknown.
func (f PixelFormat) BitDepth() int {
	switch f {
	case PixelFormatNV12, PixelFormatYUV420ThreePlane:
		return 8
	case PixelFormatP010LE, PixelFormatYUV420ThreePlane10LE:
		return 10
	default:
		return 0
	}
}

// ColorModel identifies the YCbCr-to-RGB conversion matrix of the stream.
type ColorModel uint8

const (
	// ColorModelRGBIdentity passes samples through unchanged: the planes
	// already hold full-range RGB and no dequantization is applied.
	ColorModelRGBIdentity ColorModel = iota

	// ColorModelIdentity applies range dequantization but an identity
	// color matrix (GBR planar content).
	ColorModelIdentity

	// ColorModelBT601 is ITU-R BT.601 (standard definition).
	ColorModelBT601

	// ColorModelBT709 is ITU-R BT.709 (high definition).
	ColorModelBT709

	// ColorModelBT2020 is ITU-R BT.2020 (ultra high definition).
	ColorModelBT2020
)

// String returns a human-readable name for the color model.
func (m ColorModel) String() string {
	switch m {
	case ColorModelRGBIdentity:
		return "RGBIdentity"
	case ColorModelIdentity:
		return "Identity"
	case ColorModelBT601:
		return "BT601"
	case ColorModelBT709:
		return "BT709"
	case ColorModelBT2020:
		return "BT2020"
	default:
		return fmt.Sprintf("ColorModel(%d)", uint8(m))
	}
}

// ColorRange identifies the sample quantization range of the stream.
type ColorRange uint8

const (
	// ColorRangeFull uses the full integer range [0, 2^bits-1].
	ColorRangeFull ColorRange = iota

	// ColorRangeNarrow uses the legacy television "studio swing" range:
	// luma excursion 219, chroma excursion 224, scaled by 2^(bits-8).
	ColorRangeNarrow
)

// String returns a human-readable name for the color range.
func (r ColorRange) String() string {
	switch r {
	case ColorRangeFull:
		return "Full"
	case ColorRangeNarrow:
		return "Narrow"
	default:
		return fmt.Sprintf("ColorRange(%d)", uint8(r))
	}
}

// Matrix4 is a 4x4 affine color transform in row-major order. Element (r,c)
// is at index r*4+c. Applied to column vectors [Y, Cb, Cr, 1].
type Matrix4 [16]float32

// At returns the element at row r, column c.
func (m Matrix4) At(r, c int) float32 { return m[r*4+c] }

// identityMatrix4 returns the 4x4 identity transform.
func identityMatrix4() Matrix4 {
	return Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Narrow-range excursions from the analog television era. A narrow-range
// b-bit stream quantizes luma into [16, 235] and chroma into [16, 240],
// both scaled by 2^(b-8). These constants must not be touched: decoded
// output is compared bit-for-bit against broadcast reference values.
const (
	lumaExcursion   = 219
	chromaExcursion = 224
	lumaFoot        = 16
	chromaMidpoint  = 128
)

// colorMatrix3 returns the 3x3 YCbCr-to-RGB conversion rows for the model.
// Coefficients follow the ITU-R definitions: for luma weights (kr, kg, kb),
// R = Y + 2(1-kr)Cr, B = Y + 2(1-kb)Cb, and G carries the remainder.
// The ok result is false for unrecognized models.
func colorMatrix3(model ColorModel) (m [3][3]float32, ok bool) {
	switch model {
	case ColorModelRGBIdentity, ColorModelIdentity:
		return [3][3]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		}, true
	case ColorModelBT601:
		// kr=0.299, kb=0.114
		return [3][3]float32{
			{1, 0, 1.402},
			{1, -0.202008 / 0.587, -0.419198 / 0.587},
			{1, 1.772, 0},
		}, true
	case ColorModelBT709:
		// kr=0.2126, kb=0.0722
		return [3][3]float32{
			{1, 0, 1.5748},
			{1, -0.13397432 / 0.7152, -0.33480248 / 0.7152},
			{1, 1.8556, 0},
		}, true
	case ColorModelBT2020:
		// kr=0.2627, kb=0.0593
		return [3][3]float32{
			{1, 0, 1.4746},
			{1, -0.11156702 / 0.678, -0.38737742 / 0.678},
			{1, 1.8814, 0},
		}, true
	default:
		return m, false
	}
}

// ComputeDequantizeMatrix builds the 4x4 affine transform mapping sampled
// (normalized) YCbCr plane values to linear RGB. The result combines the
// model's conversion matrix with a per-channel scale and offset derived
// from the quantization range and bit depth.
//
// The ok result is false when the format has no known bit depth or the
// model is unrecognized. The function is pure and safe to call from any
// thread; callers cache the result per (format, model, range) triple and
// recompute only on stream reconfiguration.
func ComputeDequantizeMatrix(format PixelFormat, model ColorModel, crange ColorRange) (Matrix4, bool) {
	bits := format.BitDepth()
	if bits == 0 {
		return Matrix4{}, false
	}
	conv, ok := colorMatrix3(model)
	if !ok {
		return Matrix4{}, false
	}

	// RGBIdentity streams carry full-range RGB already; the transform is
	// the identity regardless of the declared range.
	if model == ColorModelRGBIdentity {
		return identityMatrix4(), true
	}

	// Per-channel dequantization: sampled values are unorm v/(2^bits-1),
	// so E = v*scale + offset recovers the normalized signal.
	var scale, offset [3]float32
	maxVal := float32(int(1)<<bits - 1)
	switch crange {
	case ColorRangeFull:
		scale = [3]float32{1, 1, 1}
		chromaOff := -float32(int(1)<<(bits-1)) / maxVal
		offset = [3]float32{0, chromaOff, chromaOff}
	case ColorRangeNarrow:
		shift := float32(int(1) << (bits - 8))
		yScale := maxVal / (lumaExcursion * shift)
		cScale := maxVal / (chromaExcursion * shift)
		scale = [3]float32{yScale, cScale, cScale}
		offset = [3]float32{
			-float32(lumaFoot) / lumaExcursion,
			-float32(chromaMidpoint) / chromaExcursion,
			-float32(chromaMidpoint) / chromaExcursion,
		}
	default:
		return Matrix4{}, false
	}

	// Combine: upper 3x3 = conv * diag(scale); translation = conv * offset.
	var out Matrix4
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*4+c] = conv[r][c] * scale[c]
		}
		out[r*4+3] = conv[r][0]*offset[0] + conv[r][1]*offset[1] + conv[r][2]*offset[2]
	}
	out[15] = 1
	return out, true
}
