package png

import (
	"encoding/binary"

	"github.com/cocosip/go-image-codec/codec"
)

// PNG color types.
const (
	ctGrayscale      = 0
	ctTruecolor      = 2
	ctIndexed        = 3
	ctGrayscaleAlpha = 4
	ctTruecolorAlpha = 6
)

// ihdr is the raw decoded header chunk.
type ihdr struct {
	width       uint32
	height      uint32
	depth       uint8
	colorType   uint8
	compression uint8
	filter      uint8
	interlace   uint8
}

// validDepth maps each color type to its legal bit depths.
func validDepth(colorType, depth uint8) bool {
	switch colorType {
	case ctGrayscale:
		return depth == 1 || depth == 2 || depth == 4 || depth == 8 || depth == 16
	case ctIndexed:
		return depth == 1 || depth == 2 || depth == 4 || depth == 8
	case ctTruecolor, ctGrayscaleAlpha, ctTruecolorAlpha:
		return depth == 8 || depth == 16
	}
	return false
}

func colorMode(colorType uint8) codec.ColorMode {
	switch colorType {
	case ctGrayscale:
		return codec.Grayscale
	case ctTruecolor:
		return codec.Truecolor
	case ctIndexed:
		return codec.Indexed
	case ctGrayscaleAlpha:
		return codec.GrayscaleAlpha
	default:
		return codec.TruecolorAlpha
	}
}

// parseIHDR validates the header chunk against the format rules and the
// configured dimension limits.
func parseIHDR(c *chunk, opts *codec.DecoderOptions) (*ihdr, *codec.ImageHeader, error) {
	if len(c.data) != 13 {
		return nil, nil, codec.Malformedf(c.offset, "IHDR length %d, want 13", len(c.data))
	}
	h := &ihdr{
		width:       binary.BigEndian.Uint32(c.data[0:4]),
		height:      binary.BigEndian.Uint32(c.data[4:8]),
		depth:       c.data[8],
		colorType:   c.data[9],
		compression: c.data[10],
		filter:      c.data[11],
		interlace:   c.data[12],
	}

	if h.width == 0 || h.height == 0 || h.width > maxChunkLen || h.height > maxChunkLen {
		return nil, nil, codec.Malformedf(c.offset, "invalid dimensions %dx%d", h.width, h.height)
	}
	if int64(h.width) > int64(opts.MaxWidth) || int64(h.height) > int64(opts.MaxHeight) {
		return nil, nil, codec.Unsupportedf(c.offset, "dimensions %dx%d exceed limits %dx%d",
			h.width, h.height, opts.MaxWidth, opts.MaxHeight)
	}
	if !validDepth(h.colorType, h.depth) {
		return nil, nil, codec.Malformedf(c.offset, "invalid depth %d for color type %d", h.depth, h.colorType)
	}
	if h.compression != 0 {
		return nil, nil, codec.Unsupportedf(c.offset, "compression method %d", h.compression)
	}
	if h.filter != 0 {
		return nil, nil, codec.Unsupportedf(c.offset, "filter method %d", h.filter)
	}
	if h.interlace > 1 {
		return nil, nil, codec.Malformedf(c.offset, "interlace method %d", h.interlace)
	}

	hdr := &codec.ImageHeader{
		Width:      int(h.width),
		Height:     int(h.height),
		Depth:      int(h.depth),
		Mode:       colorMode(h.colorType),
		Interlaced: h.interlace == 1,
	}
	return h, hdr, nil
}
