// Package qoi bridges the QOI format into the family contract through the
// github.com/xfmoulet/qoi delegate library. Streams decode to 8-bit RGBA
// frames; three-channel streams come back with opaque alpha.
package qoi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"

	xqoi "github.com/xfmoulet/qoi"

	"github.com/cocosip/go-image-codec/bytestream"
	"github.com/cocosip/go-image-codec/codec"
)

var magic = []byte("qoif")

// headerLen is the magic, both dimensions, the channel count and the
// colorspace byte.
const headerLen = 14

func init() {
	codec.Register(&codec.Format{
		Name:       "qoi",
		Extensions: []string{".qoi"},
		Detect: func(peek []byte) bool {
			return bytes.HasPrefix(peek, magic)
		},
		NewDecoder: func(src bytestream.Source, opts *codec.DecoderOptions) (codec.Decoder, error) {
			return NewDecoder(src, opts)
		},
		NewEncoder: func(opts *codec.EncoderOptions) (codec.Encoder, error) {
			return NewEncoder(opts)
		},
	})
}

// sourceReader adapts a bytestream.Source to io.Reader for the delegate.
type sourceReader struct {
	src bytestream.Source
}

func (r *sourceReader) Read(p []byte) (int, error) {
	for n := len(p); n > 0; n >>= 1 {
		b, err := r.src.Peek(n)
		if err != nil {
			continue
		}
		nn := copy(p, b)
		if err := r.src.Skip(nn); err != nil {
			return 0, err
		}
		return nn, nil
	}
	return 0, io.EOF
}

// Decoder decodes one QOI stream. Instances are single-use.
type Decoder struct {
	src  bytestream.Source
	opts *codec.DecoderOptions
	hdr  *codec.ImageHeader
	err  error
}

var _ codec.Decoder = (*Decoder)(nil)

// NewDecoder returns a decoder over src. A nil opts selects the strict
// defaults.
func NewDecoder(src bytestream.Source, opts *codec.DecoderOptions) (*Decoder, error) {
	if opts == nil {
		opts = codec.DefaultDecoderOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Decoder{src: src, opts: opts}, nil
}

// ReadHeader validates the fixed header without consuming it; the delegate
// re-reads the stream from the start during Decode.
func (d *Decoder) ReadHeader() (*codec.ImageHeader, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.hdr != nil {
		return d.hdr, nil
	}

	peek, err := d.src.Peek(headerLen)
	if err != nil {
		return nil, d.fail(codec.WrapTruncated(d.src.Position(), err))
	}
	if !bytes.HasPrefix(peek, magic) {
		return nil, d.fail(codec.Malformedf(0, "bad magic %q", peek[:4]))
	}
	w := binary.BigEndian.Uint32(peek[4:8])
	h := binary.BigEndian.Uint32(peek[8:12])
	channels, colorspace := peek[12], peek[13]

	if w == 0 || h == 0 {
		return nil, d.fail(codec.Malformedf(4, "invalid dimensions %dx%d", w, h))
	}
	if channels != 3 && channels != 4 {
		return nil, d.fail(codec.Malformedf(12, "invalid channel count %d", channels))
	}
	if colorspace > 1 {
		return nil, d.fail(codec.Malformedf(13, "invalid colorspace %d", colorspace))
	}
	if int64(w) > int64(d.opts.MaxWidth) || int64(h) > int64(d.opts.MaxHeight) {
		return nil, d.fail(codec.Unsupportedf(4, "dimensions %dx%d exceed limits %dx%d",
			w, h, d.opts.MaxWidth, d.opts.MaxHeight))
	}

	d.hdr = &codec.ImageHeader{
		Width:  int(w),
		Height: int(h),
		Depth:  8,
		Mode:   codec.TruecolorAlpha,
	}
	return d.hdr, nil
}

// Decode runs the delegate over the full stream.
func (d *Decoder) Decode() (*codec.Image, error) {
	hdr, err := d.ReadHeader()
	if err != nil {
		return nil, err
	}

	m, err := xqoi.Decode(&sourceReader{src: d.src})
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, d.fail(codec.WrapTruncated(d.src.Position(), err))
		}
		return nil, d.fail(codec.Corruptf(d.src.Position(), "%v", err))
	}
	b := m.Bounds()
	if b.Dx() != hdr.Width || b.Dy() != hdr.Height {
		return nil, d.fail(codec.Corruptf(d.src.Position(), "delegate decoded %dx%d, want %dx%d",
			b.Dx(), b.Dy(), hdr.Width, hdr.Height))
	}
	nr, ok := m.(*image.NRGBA)
	if !ok {
		nr = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nr, nr.Bounds(), m, b.Min, draw.Src)
	}

	rowBytes := hdr.Width * 4
	pixels := make([]byte, rowBytes*hdr.Height)
	for y := 0; y < hdr.Height; y++ {
		copy(pixels[y*rowBytes:(y+1)*rowBytes], nr.Pix[y*nr.Stride:])
	}
	return &codec.Image{
		Header: *hdr,
		Frames: []*codec.Frame{{
			Width:  hdr.Width,
			Height: hdr.Height,
			Pixels: pixels,
		}},
	}, nil
}

func (d *Decoder) fail(err error) error {
	if d.err == nil {
		d.err = err
	}
	return d.err
}

// Encoder writes QOI streams through the delegate library.
type Encoder struct{}

var _ codec.Encoder = (*Encoder)(nil)

// NewEncoder returns an encoder. The format has no tunables; opts is
// validated and otherwise ignored.
func NewEncoder(opts *codec.EncoderOptions) (*Encoder, error) {
	if opts != nil {
		if err := opts.Validate(); err != nil {
			return nil, err
		}
	}
	return &Encoder{}, nil
}

// Encode serializes img, a single 8-bit RGB or RGBA frame covering the
// canvas.
func (e *Encoder) Encode(img *codec.Image) ([]byte, error) {
	if img == nil || len(img.Frames) == 0 {
		return nil, fmt.Errorf("qoi: nothing to encode")
	}
	if len(img.Frames) > 1 {
		return nil, fmt.Errorf("qoi: animation not supported")
	}
	hdr := &img.Header
	if hdr.Depth != 8 || (hdr.Mode != codec.TruecolorAlpha && hdr.Mode != codec.Truecolor) {
		return nil, fmt.Errorf("qoi: requires 8-bit truecolor or truecolor-alpha, have %d-bit %s", hdr.Depth, hdr.Mode)
	}
	w, h := hdr.Width, hdr.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("qoi: invalid dimensions %dx%d", w, h)
	}
	f := img.Frames[0]
	if f.X != 0 || f.Y != 0 || f.Width != w || f.Height != h {
		return nil, fmt.Errorf("qoi: frame must cover the canvas")
	}
	if want := hdr.RowBytes() * h; len(f.Pixels) != want {
		return nil, fmt.Errorf("qoi: %d pixel bytes, want %d", len(f.Pixels), want)
	}

	nr := image.NewNRGBA(image.Rect(0, 0, w, h))
	if hdr.Mode == codec.TruecolorAlpha {
		copy(nr.Pix, f.Pixels)
	} else {
		for i, j := 0, 0; i < len(f.Pixels); i, j = i+3, j+4 {
			nr.Pix[j+0] = f.Pixels[i+0]
			nr.Pix[j+1] = f.Pixels[i+1]
			nr.Pix[j+2] = f.Pixels[i+2]
			nr.Pix[j+3] = 0xFF
		}
	}

	var buf bytes.Buffer
	if err := xqoi.Encode(&buf, nr); err != nil {
		return nil, fmt.Errorf("qoi: %w", err)
	}
	return buf.Bytes(), nil
}
