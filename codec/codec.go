// Package codec defines the contract shared by all image codecs in this
// module: the Decoder/Encoder interfaces, the Image data model, the error
// model, and the format registry.
package codec

import "io"

// Decoder is the universal decode interface implemented by every format.
//
// A Decoder is bound to a single byte source and is single-use: ReadHeader
// and Decode may each be called once on a fresh instance (ReadHeader before
// Decode is allowed and does not repeat work). Re-decoding requires a new
// Decoder over a rewound or new source.
type Decoder interface {
	// ReadHeader parses just enough of the container to populate the image
	// header. It may be called before, or instead of, a full Decode.
	ReadHeader() (*ImageHeader, error)

	// Decode performs the full structural and pixel decode. On any error the
	// decode is all-or-nothing: no partial Image is returned (unless the
	// decoder was configured with LenientFrames).
	Decode() (*Image, error)
}

// FrameDecoder is implemented by decoders of animated containers that can
// hand out frames one at a time without materializing the whole sequence.
type FrameDecoder interface {
	Decoder

	// NextFrame decodes and returns the next frame in sequence order.
	// It returns io.EOF after the last frame.
	NextFrame() (*Frame, error)
}

// Encoder encodes the shared Image data model into a format's byte stream.
type Encoder interface {
	Encode(img *Image) ([]byte, error)
}

// EOF is re-exported so callers of FrameDecoder.NextFrame need not import io
// just for the end-of-sequence sentinel.
var EOF = io.EOF
