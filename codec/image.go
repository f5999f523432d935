package codec

// ColorMode identifies the color interpretation of decoded pixel bytes.
type ColorMode int

const (
	// Grayscale is a single luminance channel.
	Grayscale ColorMode = iota
	// GrayscaleAlpha is luminance plus an alpha channel.
	GrayscaleAlpha
	// Truecolor is three channels: red, green, blue.
	Truecolor
	// TruecolorAlpha is red, green, blue plus alpha.
	TruecolorAlpha
	// Indexed is a single channel of palette indices; the palette lives on
	// the Image.
	Indexed
)

// String returns the lowercase name of the color mode.
func (m ColorMode) String() string {
	switch m {
	case Grayscale:
		return "grayscale"
	case GrayscaleAlpha:
		return "grayscale-alpha"
	case Truecolor:
		return "truecolor"
	case TruecolorAlpha:
		return "truecolor-alpha"
	case Indexed:
		return "indexed"
	default:
		return "unknown"
	}
}

// Channels returns the number of samples per pixel for the mode.
func (m ColorMode) Channels() int {
	switch m {
	case Grayscale, Indexed:
		return 1
	case GrayscaleAlpha:
		return 2
	case Truecolor:
		return 3
	case TruecolorAlpha:
		return 4
	default:
		return 0
	}
}

// ImageHeader carries the container-level image metadata. It is immutable
// once the mandatory header of a container has been parsed; all later
// structural checks are validated against it.
type ImageHeader struct {
	Width  int
	Height int
	// Depth is the bit depth per sample (1, 2, 4, 8 or 16 depending on the
	// format and color mode).
	Depth      int
	Mode       ColorMode
	Interlaced bool
}

// BytesPerPixel returns the number of bytes per complete pixel, rounded up
// to at least one for sub-byte depths. This is the neighbor offset used by
// predictive filters.
func (h *ImageHeader) BytesPerPixel() int {
	bpp := (h.Depth + 7) / 8 * h.Mode.Channels()
	if bpp < 1 {
		bpp = 1
	}
	return bpp
}

// RowBytes returns the packed byte length of one full-width scanline.
func (h *ImageHeader) RowBytes() int {
	return (h.Width*h.Mode.Channels()*h.Depth + 7) / 8
}

// DisposeOp is a caller-facing hint for what to do with a frame's canvas
// region before rendering the next frame. It is passed through uninterpreted.
type DisposeOp uint8

const (
	// DisposeNone leaves the canvas as-is.
	DisposeNone DisposeOp = 0
	// DisposeBackground clears the frame region to transparent black.
	DisposeBackground DisposeOp = 1
	// DisposePrevious reverts the frame region to its previous contents.
	DisposePrevious DisposeOp = 2
)

// BlendOp is a caller-facing hint for how a frame is composited onto the
// canvas. It is passed through uninterpreted.
type BlendOp uint8

const (
	// BlendSource overwrites the frame region, alpha included.
	BlendSource BlendOp = 0
	// BlendOver alpha-composites the frame onto the existing canvas.
	BlendOver BlendOp = 1
)

// Frame is one logical frame of a decoded image. Still images decode to a
// single Frame covering the whole canvas.
//
// Pixels holds raw reconstructed bytes scoped to the frame's own
// Width×Height extent, packed exactly as the format lays them out (Depth
// bits per sample, rows of RowBytes length, 16-bit samples big-endian).
// Frames smaller than the canvas are positioned, never resized, by the
// caller; Dispose and Blend are pass-through compositing hints.
type Frame struct {
	X      int
	Y      int
	Width  int
	Height int

	// DelayNum/DelayDen express the frame delay in seconds as a fraction.
	// A zero denominator is to be read as 100 per the APNG convention.
	DelayNum uint16
	DelayDen uint16

	Dispose DisposeOp
	Blend   BlendOp

	// Sequence is the frame's position in the animation, counted from zero.
	Sequence uint32

	Pixels []byte
}

// RowBytes returns the packed byte length of one scanline of this frame
// given the image's header.
func (f *Frame) RowBytes(h *ImageHeader) int {
	return (f.Width*h.Mode.Channels()*h.Depth + 7) / 8
}

// Image is the result of a decode. It is owned by the caller; the decoder
// retains no reference to any of its buffers.
type Image struct {
	Header ImageHeader

	// Frames holds the decoded frames in ascending sequence order; length 1
	// for still images.
	Frames []*Frame

	// Palette holds packed RGB triples for Indexed images, nil otherwise.
	Palette []byte

	// Transparency holds format-defined transparency metadata when the
	// container carries it outside the pixel data: per-entry alpha for
	// Indexed images, a 2-byte sample for Grayscale or a 6-byte RGB triple
	// for Truecolor naming the transparent color. Nil when absent.
	Transparency []byte

	// LoopCount is the number of times an animation plays (0 = forever).
	// Zero and meaningless for still images.
	LoopCount uint32
}

// Animated reports whether the image decoded to more than one frame.
func (img *Image) Animated() bool {
	return len(img.Frames) > 1
}
