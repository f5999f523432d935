package codec

import "errors"

// Default decode guards. Dimension limits exist to bound allocations driven
// by attacker-controlled headers; callers with gigapixel inputs raise them.
const (
	DefaultMaxWidth  = 1 << 17
	DefaultMaxHeight = 1 << 17
)

// DecoderOptions configures decode behavior shared by all formats. The zero
// value is not usable; start from DefaultDecoderOptions.
type DecoderOptions struct {
	// SkipChecksums disables chunk checksum and compressed-stream trailer
	// validation wholesale.
	SkipChecksums bool

	// LenientAncillaryChecksums downgrades checksum mismatches on ancillary
	// (non-critical) chunks to a silent skip of the chunk. Mismatches on
	// critical chunks remain fatal. Checksum failures are fatal by default.
	LenientAncillaryChecksums bool

	// LenientFrames makes an animated decode return the frames decoded
	// before a mid-animation failure instead of failing the whole decode.
	// The default is all-or-nothing.
	LenientFrames bool

	// DecodeDefaultImage makes the animated decoder include the container's
	// default image as a frame even when the animation excludes it from the
	// sequence. Such a frame is prepended with Sequence unset.
	DecodeDefaultImage bool

	// MaxWidth/MaxHeight bound the dimensions a header may declare before
	// the decode is rejected as unsupported.
	MaxWidth  int
	MaxHeight int
}

// DefaultDecoderOptions returns the strict defaults: all checksums fatal,
// all-or-nothing decodes, dimension guards in place.
func DefaultDecoderOptions() *DecoderOptions {
	return &DecoderOptions{
		MaxWidth:  DefaultMaxWidth,
		MaxHeight: DefaultMaxHeight,
	}
}

// Validate checks the options are usable.
func (o *DecoderOptions) Validate() error {
	if o.MaxWidth <= 0 || o.MaxHeight <= 0 {
		return errors.New("codec: dimension limits must be positive")
	}
	return nil
}

// FilterStrategy selects how the PNG encoder chooses per-row filters.
type FilterStrategy int

const (
	// FilterAdaptive picks the filter minimizing the sum-of-absolutes
	// heuristic row by row.
	FilterAdaptive FilterStrategy = iota
	// The fixed strategies force one filter for every row.
	FilterNone
	FilterSub
	FilterUp
	FilterAverage
	FilterPaeth
)

// EncoderOptions configures encode behavior shared by all formats.
type EncoderOptions struct {
	// CompressionLevel maps onto the embedded compressor's level scale
	// where the format has one (0 = its default).
	CompressionLevel int

	// Filter is the PNG encoder's per-row filter strategy. Formats without
	// predictive filtering ignore it.
	Filter FilterStrategy
}

// Validate checks the options are usable.
func (o *EncoderOptions) Validate() error {
	if o.CompressionLevel < -2 || o.CompressionLevel > 9 {
		return errors.New("codec: compression level out of range")
	}
	if o.Filter < FilterAdaptive || o.Filter > FilterPaeth {
		return errors.New("codec: unknown filter strategy")
	}
	return nil
}
