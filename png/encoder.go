package png

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zlib"

	"github.com/cocosip/go-image-codec/codec"
)

// Encoder writes PNG streams, emitting APNG animation chunks when the image
// carries more than one frame. Output is never interlaced.
type Encoder struct {
	opts *codec.EncoderOptions
}

var _ codec.Encoder = (*Encoder)(nil)

// NewEncoder returns an encoder. A nil opts selects defaults.
func NewEncoder(opts *codec.EncoderOptions) (*Encoder, error) {
	if opts == nil {
		opts = &codec.EncoderOptions{}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Encoder{opts: opts}, nil
}

func colorType(mode codec.ColorMode) uint8 {
	switch mode {
	case codec.Grayscale:
		return ctGrayscale
	case codec.Truecolor:
		return ctTruecolor
	case codec.Indexed:
		return ctIndexed
	case codec.GrayscaleAlpha:
		return ctGrayscaleAlpha
	default:
		return ctTruecolorAlpha
	}
}

// Encode serializes img. For animations, every frame is part of the
// sequence and the first frame must cover the canvas, since it doubles as
// the default image.
func (e *Encoder) Encode(img *codec.Image) ([]byte, error) {
	if img == nil || len(img.Frames) == 0 {
		return nil, fmt.Errorf("png: nothing to encode")
	}
	hdr := &img.Header
	if err := e.validate(img); err != nil {
		return nil, err
	}

	out := append([]byte(nil), signature...)

	var ihdr [13]byte
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(hdr.Width))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(hdr.Height))
	ihdr[8] = uint8(hdr.Depth)
	ihdr[9] = colorType(hdr.Mode)
	out = writeChunk(out, tIHDR, ihdr[:])

	if hdr.Mode == codec.Indexed {
		out = writeChunk(out, tPLTE, img.Palette)
	}
	if img.Transparency != nil {
		out = writeChunk(out, tTRNS, img.Transparency)
	}

	animated := len(img.Frames) > 1
	var seq uint32
	if animated {
		var actl [8]byte
		binary.BigEndian.PutUint32(actl[0:4], uint32(len(img.Frames)))
		binary.BigEndian.PutUint32(actl[4:8], img.LoopCount)
		out = writeChunk(out, tACTL, actl[:])
		out = writeChunk(out, tFCTL, e.fctlPayload(img.Frames[0], &seq))
	}

	data, err := e.compressFrame(img.Frames[0], hdr)
	if err != nil {
		return nil, err
	}
	out = writeChunk(out, tIDAT, data)

	for _, f := range img.Frames[1:] {
		out = writeChunk(out, tFCTL, e.fctlPayload(f, &seq))
		data, err := e.compressFrame(f, hdr)
		if err != nil {
			return nil, err
		}
		payload := make([]byte, 4+len(data))
		binary.BigEndian.PutUint32(payload[:4], seq)
		seq++
		copy(payload[4:], data)
		out = writeChunk(out, tFDAT, payload)
	}

	return writeChunk(out, tIEND, nil), nil
}

func (e *Encoder) validate(img *codec.Image) error {
	hdr := &img.Header
	if hdr.Width <= 0 || hdr.Height <= 0 || hdr.Width > maxChunkLen || hdr.Height > maxChunkLen {
		return fmt.Errorf("png: invalid dimensions %dx%d", hdr.Width, hdr.Height)
	}
	if !validDepth(colorType(hdr.Mode), uint8(hdr.Depth)) {
		return fmt.Errorf("png: depth %d not valid for %s", hdr.Depth, hdr.Mode)
	}
	if hdr.Interlaced {
		return fmt.Errorf("png: interlaced encoding not supported")
	}
	if hdr.Mode == codec.Indexed {
		n := len(img.Palette)
		if n == 0 || n%3 != 0 || n/3 > 256 || n/3 > 1<<hdr.Depth {
			return fmt.Errorf("png: palette of %d bytes not encodable", n)
		}
	}
	if img.Transparency != nil {
		switch hdr.Mode {
		case codec.Indexed:
			if len(img.Transparency) > len(img.Palette)/3 {
				return fmt.Errorf("png: transparency exceeds palette")
			}
		case codec.Grayscale:
			if len(img.Transparency) != 2 {
				return fmt.Errorf("png: grayscale transparency must be 2 bytes")
			}
		case codec.Truecolor:
			if len(img.Transparency) != 6 {
				return fmt.Errorf("png: truecolor transparency must be 6 bytes")
			}
		default:
			return fmt.Errorf("png: transparency with alpha mode")
		}
	}

	first := img.Frames[0]
	if first.X != 0 || first.Y != 0 || first.Width != hdr.Width || first.Height != hdr.Height {
		return fmt.Errorf("png: first frame must cover the canvas")
	}
	for i, f := range img.Frames {
		if f.Width <= 0 || f.Height <= 0 || f.X < 0 || f.Y < 0 ||
			f.X+f.Width > hdr.Width || f.Y+f.Height > hdr.Height {
			return fmt.Errorf("png: frame %d bounds %dx%d at (%d,%d) invalid", i, f.Width, f.Height, f.X, f.Y)
		}
		if want := f.RowBytes(hdr) * f.Height; len(f.Pixels) != want {
			return fmt.Errorf("png: frame %d has %d pixel bytes, want %d", i, len(f.Pixels), want)
		}
	}
	return nil
}

func (e *Encoder) fctlPayload(f *codec.Frame, seq *uint32) []byte {
	p := make([]byte, 26)
	binary.BigEndian.PutUint32(p[0:4], *seq)
	*seq++
	binary.BigEndian.PutUint32(p[4:8], uint32(f.Width))
	binary.BigEndian.PutUint32(p[8:12], uint32(f.Height))
	binary.BigEndian.PutUint32(p[12:16], uint32(f.X))
	binary.BigEndian.PutUint32(p[16:20], uint32(f.Y))
	binary.BigEndian.PutUint16(p[20:22], f.DelayNum)
	binary.BigEndian.PutUint16(p[22:24], f.DelayDen)
	p[24] = uint8(f.Dispose)
	p[25] = uint8(f.Blend)
	return p
}

// rowFilter maps the configured filter strategy onto a fixed filter type,
// or reports that per-row adaptive choice applies.
func (e *Encoder) rowFilter() (int, bool) {
	switch e.opts.Filter {
	case codec.FilterNone:
		return ftNone, false
	case codec.FilterSub:
		return ftSub, false
	case codec.FilterUp:
		return ftUp, false
	case codec.FilterAverage:
		return ftAverage, false
	case codec.FilterPaeth:
		return ftPaeth, false
	default:
		return ftNone, true
	}
}

// compressFrame filters the frame's rows and deflates them.
func (e *Encoder) compressFrame(f *codec.Frame, hdr *codec.ImageHeader) ([]byte, error) {
	rowBytes := f.RowBytes(hdr)
	bpp := hdr.BytesPerPixel()
	fixed, adaptive := e.rowFilter()

	filtered := make([]byte, 0, (rowBytes+1)*f.Height)
	scratch := make([]byte, rowBytes)
	dst := make([]byte, rowBytes)
	var prior []byte
	for y := 0; y < f.Height; y++ {
		cur := f.Pixels[y*rowBytes : (y+1)*rowBytes]
		ft := fixed
		if adaptive {
			ft = chooseFilter(scratch, cur, prior, bpp)
		}
		applyFilter(ft, dst, cur, prior, bpp)
		filtered = append(filtered, byte(ft))
		filtered = append(filtered, dst...)
		prior = cur
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, e.level())
	if err != nil {
		return nil, fmt.Errorf("png: %w", err)
	}
	if _, err := zw.Write(filtered); err != nil {
		return nil, fmt.Errorf("png: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("png: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Encoder) level() int {
	if e.opts.CompressionLevel == 0 {
		return zlib.DefaultCompression
	}
	return e.opts.CompressionLevel
}
