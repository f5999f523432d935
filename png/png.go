// Package png decodes and encodes PNG images, including APNG animations.
//
// The decoder walks the chunk sequence with strict structural validation,
// inflates the embedded zlib streams incrementally as their chunks arrive,
// reverses the per-scanline filters, and sequences animation frames. Frames
// are extracted raw: disposal and blend hints are passed through for the
// caller to composite.
package png

import (
	"bytes"

	"github.com/cocosip/go-image-codec/bytestream"
	"github.com/cocosip/go-image-codec/codec"
)

// signature is the eight-byte PNG file header.
var signature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func init() {
	codec.Register(&codec.Format{
		Name:       "png",
		Extensions: []string{".png", ".apng"},
		Detect: func(peek []byte) bool {
			return bytes.HasPrefix(peek, signature)
		},
		NewDecoder: func(src bytestream.Source, opts *codec.DecoderOptions) (codec.Decoder, error) {
			return NewDecoder(src, opts)
		},
		NewEncoder: func(opts *codec.EncoderOptions) (codec.Encoder, error) {
			return NewEncoder(opts)
		},
	})
}
