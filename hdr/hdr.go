// Package hdr decodes and encodes the Radiance RGBE picture format: a text
// header, a resolution line and run-length-coded scanlines of four-byte
// shared-exponent pixels.
//
// Decoded frames keep the raw RGBE quads in the four-channel 8-bit layout;
// the fourth channel is the shared exponent, not alpha. ToFloat and
// FromFloat convert between that layout and linear float32 RGB.
package hdr

import (
	"bytes"
	"math"

	"github.com/cocosip/go-image-codec/bytestream"
	"github.com/cocosip/go-image-codec/codec"
)

var (
	magicRadiance = []byte("#?RADIANCE")
	magicRGBE     = []byte("#?RGBE")
)

const (
	// formatLine is the only pixel format the container defines for RGBE.
	formatLine = "32-bit_rle_rgbe"

	// maxLineLen bounds one header line, as the reference implementation
	// does.
	maxLineLen = 512

	// minRLEWidth/maxRLEWidth delimit the widths that use the adaptive
	// per-component RLE scanline coding; anything else is stored flat.
	minRLEWidth = 8
	maxRLEWidth = 0x7FFF
)

func init() {
	codec.Register(&codec.Format{
		Name:       "hdr",
		Extensions: []string{".hdr", ".pic"},
		Detect: func(peek []byte) bool {
			return bytes.HasPrefix(peek, magicRadiance) || bytes.HasPrefix(peek, magicRGBE)
		},
		NewDecoder: func(src bytestream.Source, opts *codec.DecoderOptions) (codec.Decoder, error) {
			return NewDecoder(src, opts)
		},
		NewEncoder: func(opts *codec.EncoderOptions) (codec.Encoder, error) {
			return NewEncoder(opts)
		},
	})
}

// ToFloat expands interleaved RGBE quads into linear RGB float32 triples.
// A zero exponent byte yields black.
func ToFloat(rgbe []byte) []float32 {
	out := make([]float32, 0, len(rgbe)/4*3)
	for i := 0; i+3 < len(rgbe); i += 4 {
		e := rgbe[i+3]
		if e == 0 {
			out = append(out, 0, 0, 0)
			continue
		}
		f := float32(math.Ldexp(1, int(e)-(128+8)))
		out = append(out, float32(rgbe[i])*f, float32(rgbe[i+1])*f, float32(rgbe[i+2])*f)
	}
	return out
}

// FromFloat packs linear RGB float32 triples into interleaved RGBE quads,
// sharing one exponent per pixel.
func FromFloat(rgb []float32) []byte {
	out := make([]byte, 0, len(rgb)/3*4)
	for i := 0; i+2 < len(rgb); i += 3 {
		r, g, b := rgb[i], rgb[i+1], rgb[i+2]
		max := r
		if g > max {
			max = g
		}
		if b > max {
			max = b
		}
		if max < 1e-32 {
			out = append(out, 0, 0, 0, 0)
			continue
		}
		frac, exp := math.Frexp(float64(max))
		scale := float32(frac) * 256 / max
		out = append(out, byte(r*scale), byte(g*scale), byte(b*scale), byte(exp+128))
	}
	return out
}
