// Package farbfeld decodes and encodes the farbfeld flat bitmap format:
// an eight-byte magic, big-endian 32-bit dimensions and one 16-bit
// big-endian RGBA quad per pixel. The sample layout matches the family
// data model exactly, so pixels pass through untransformed.
package farbfeld

import (
	"bytes"
	"fmt"

	"github.com/cocosip/go-image-codec/bytestream"
	"github.com/cocosip/go-image-codec/codec"
)

var magic = []byte("farbfeld")

// headerLen is the magic plus the two dimension fields.
const headerLen = 16

func init() {
	codec.Register(&codec.Format{
		Name:       "farbfeld",
		Extensions: []string{".ff"},
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

// Decoder decodes one farbfeld stream. Instances are single-use.
type Decoder struct {
	r    *bytestream.Reader
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
	return &Decoder{r: bytestream.NewReader(src), opts: opts}, nil
}

// ReadHeader parses the magic and dimensions. Repeated calls return the
// same header.
func (d *Decoder) ReadHeader() (*codec.ImageHeader, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.hdr != nil {
		return d.hdr, nil
	}

	var sig [8]byte
	if err := d.r.ReadFull(sig[:]); err != nil {
		return nil, d.fail(codec.WrapTruncated(d.r.Position(), err))
	}
	if !bytes.Equal(sig[:], magic) {
		return nil, d.fail(codec.Malformedf(0, "bad magic %q", sig[:]))
	}

	w, err := d.r.ReadUint32BE()
	if err != nil {
		return nil, d.fail(codec.WrapTruncated(d.r.Position(), err))
	}
	h, err := d.r.ReadUint32BE()
	if err != nil {
		return nil, d.fail(codec.WrapTruncated(d.r.Position(), err))
	}
	if w == 0 || h == 0 {
		return nil, d.fail(codec.Malformedf(8, "invalid dimensions %dx%d", w, h))
	}
	if int64(w) > int64(d.opts.MaxWidth) || int64(h) > int64(d.opts.MaxHeight) {
		return nil, d.fail(codec.Unsupportedf(8, "dimensions %dx%d exceed limits %dx%d",
			w, h, d.opts.MaxWidth, d.opts.MaxHeight))
	}

	d.hdr = &codec.ImageHeader{
		Width:  int(w),
		Height: int(h),
		Depth:  16,
		Mode:   codec.TruecolorAlpha,
	}
	return d.hdr, nil
}

// Decode reads the full pixel payload.
func (d *Decoder) Decode() (*codec.Image, error) {
	hdr, err := d.ReadHeader()
	if err != nil {
		return nil, err
	}
	pixels := make([]byte, hdr.RowBytes()*hdr.Height)
	if err := d.r.ReadFull(pixels); err != nil {
		return nil, d.fail(codec.WrapTruncated(d.r.Position(), err))
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

// Encoder writes farbfeld streams.
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

// Encode serializes img, which must be a single 16-bit RGBA frame covering
// the canvas.
func (e *Encoder) Encode(img *codec.Image) ([]byte, error) {
	if img == nil || len(img.Frames) == 0 {
		return nil, fmt.Errorf("farbfeld: nothing to encode")
	}
	if len(img.Frames) > 1 {
		return nil, fmt.Errorf("farbfeld: animation not supported")
	}
	hdr := &img.Header
	if hdr.Mode != codec.TruecolorAlpha || hdr.Depth != 16 {
		return nil, fmt.Errorf("farbfeld: requires 16-bit truecolor-alpha, have %d-bit %s", hdr.Depth, hdr.Mode)
	}
	if hdr.Width <= 0 || hdr.Height <= 0 {
		return nil, fmt.Errorf("farbfeld: invalid dimensions %dx%d", hdr.Width, hdr.Height)
	}
	f := img.Frames[0]
	if f.X != 0 || f.Y != 0 || f.Width != hdr.Width || f.Height != hdr.Height {
		return nil, fmt.Errorf("farbfeld: frame must cover the canvas")
	}
	if want := hdr.RowBytes() * hdr.Height; len(f.Pixels) != want {
		return nil, fmt.Errorf("farbfeld: %d pixel bytes, want %d", len(f.Pixels), want)
	}

	out := make([]byte, 0, headerLen+len(f.Pixels))
	out = append(out, magic...)
	out = appendUint32(out, uint32(hdr.Width))
	out = appendUint32(out, uint32(hdr.Height))
	return append(out, f.Pixels...), nil
}

func appendUint32(dst []byte, v uint32) []byte {
	return append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
