// Package jpeg implements a baseline JPEG decoder (ITU-T T.81 sequential
// DCT, 8-bit precision, Huffman entropy coding) behind the codec contract.
// Grayscale streams decode to 8-bit gray, three-component streams to 8-bit
// RGB. Progressive, arithmetic-coded, hierarchical and 12-bit variants are
// rejected as unsupported. The package is decode only.
package jpeg

import (
	"bytes"

	"github.com/cocosip/go-image-codec/bytestream"
	"github.com/cocosip/go-image-codec/codec"
)

// Every JPEG stream opens with SOI followed by another marker prefix.
var magic = []byte{0xFF, 0xD8, 0xFF}

func init() {
	codec.Register(&codec.Format{
		Name:       "jpeg",
		Extensions: []string{".jpg", ".jpeg"},
		Detect: func(peek []byte) bool {
			return bytes.HasPrefix(peek, magic)
		},
		NewDecoder: func(src bytestream.Source, opts *codec.DecoderOptions) (codec.Decoder, error) {
			return NewDecoder(src, opts)
		},
	})
}

// JPEG marker constants.
const (
	markerSOI = 0xFFD8
	markerEOI = 0xFFD9

	markerSOF0  = 0xFFC0 // baseline DCT
	markerSOF1  = 0xFFC1 // extended sequential DCT
	markerSOF2  = 0xFFC2 // progressive DCT
	markerSOF3  = 0xFFC3 // lossless sequential
	markerSOF5  = 0xFFC5
	markerSOF7  = 0xFFC7
	markerSOF9  = 0xFFC9 // arithmetic coding from here up
	markerSOF11 = 0xFFCB
	markerSOF13 = 0xFFCD
	markerSOF15 = 0xFFCF

	markerDHT = 0xFFC4
	markerDAC = 0xFFCC
	markerDQT = 0xFFDB
	markerDRI = 0xFFDD
	markerSOS = 0xFFDA

	markerTEM = 0xFF01
	markerCOM = 0xFFFE

	markerRST0 = 0xFFD0
	markerRST7 = 0xFFD7

	markerAPP0  = 0xFFE0
	markerAPP15 = 0xFFEF
)

// isSOF reports whether the marker starts any frame header variant.
func isSOF(marker uint16) bool {
	return (marker >= markerSOF0 && marker <= markerSOF3) ||
		(marker >= markerSOF5 && marker <= markerSOF7) ||
		(marker >= markerSOF9 && marker <= markerSOF11) ||
		(marker >= markerSOF13 && marker <= markerSOF15)
}

// isRST reports whether the marker is a restart marker.
func isRST(marker uint16) bool {
	return marker >= markerRST0 && marker <= markerRST7
}

// hasLength reports whether the marker is followed by a length field.
func hasLength(marker uint16) bool {
	if marker == markerSOI || marker == markerEOI || marker == markerTEM {
		return false
	}
	return !isRST(marker)
}

func divCeil(a, b int) int {
	return (a + b - 1) / b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// zigzag maps the position of a coefficient in zig-zag scan order to its
// natural row-major position in the 8x8 block.
var zigzag = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}
