package hdr

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/cocosip/go-image-codec/bytestream"
	"github.com/cocosip/go-image-codec/codec"
)

// Decoder decodes one Radiance picture. Instances are single-use.
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

// readLine consumes one newline-terminated header line, without the
// terminator.
func (d *Decoder) readLine() (string, error) {
	start := d.r.Position()
	var line []byte
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return "", codec.WrapTruncated(d.r.Position(), err)
		}
		if b == '\n' {
			return string(line), nil
		}
		if len(line) >= maxLineLen {
			return "", codec.Malformedf(start, "header line exceeds %d bytes", maxLineLen)
		}
		line = append(line, b)
	}
}

// ReadHeader parses the text header and the resolution line. Repeated
// calls return the same header.
func (d *Decoder) ReadHeader() (*codec.ImageHeader, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.hdr != nil {
		return d.hdr, nil
	}

	first, err := d.readLine()
	if err != nil {
		return nil, d.fail(err)
	}
	if !bytes.HasPrefix([]byte(first), magicRadiance) && !bytes.HasPrefix([]byte(first), magicRGBE) {
		return nil, d.fail(codec.Malformedf(0, "bad magic %q", first))
	}

	// Variable lines until the blank separator; FORMAT is mandatory.
	formatOK := false
	for {
		lineStart := d.r.Position()
		line, err := d.readLine()
		if err != nil {
			return nil, d.fail(err)
		}
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if v, ok := strings.CutPrefix(line, "FORMAT="); ok {
			if strings.TrimSpace(v) != formatLine {
				return nil, d.fail(codec.Unsupportedf(lineStart, "pixel format %q", v))
			}
			formatOK = true
		}
		// EXPOSURE, GAMMA and other variables do not affect the raw
		// RGBE data and are skipped.
	}
	if !formatOK {
		return nil, d.fail(codec.Malformedf(d.r.Position(), "missing FORMAT line"))
	}

	resStart := d.r.Position()
	res, err := d.readLine()
	if err != nil {
		return nil, d.fail(err)
	}
	fields := strings.Fields(res)
	if len(fields) != 4 {
		return nil, d.fail(codec.Malformedf(resStart, "bad resolution line %q", res))
	}
	if fields[0] != "-Y" || fields[2] != "+X" {
		return nil, d.fail(codec.Unsupportedf(resStart, "orientation %s %s", fields[0], fields[2]))
	}
	h, err1 := strconv.Atoi(fields[1])
	w, err2 := strconv.Atoi(fields[3])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return nil, d.fail(codec.Malformedf(resStart, "bad resolution line %q", res))
	}
	if w > d.opts.MaxWidth || h > d.opts.MaxHeight {
		return nil, d.fail(codec.Unsupportedf(resStart, "dimensions %dx%d exceed limits %dx%d",
			w, h, d.opts.MaxWidth, d.opts.MaxHeight))
	}

	d.hdr = &codec.ImageHeader{Width: w, Height: h, Depth: 8, Mode: codec.TruecolorAlpha}
	return d.hdr, nil
}

// Decode reads every scanline.
func (d *Decoder) Decode() (*codec.Image, error) {
	hdr, err := d.ReadHeader()
	if err != nil {
		return nil, err
	}
	w := hdr.Width
	pixels := make([]byte, w*4*hdr.Height)
	for y := 0; y < hdr.Height; y++ {
		if err := d.decodeScanline(pixels[y*w*4 : (y+1)*w*4]); err != nil {
			return nil, d.fail(err)
		}
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

// decodeScanline fills one row of interleaved RGBE quads, picking the
// adaptive RLE coding when its prefix is present and falling back to the
// flat layout otherwise.
func (d *Decoder) decodeScanline(dst []byte) error {
	w := d.hdr.Width
	if w >= minRLEWidth && w <= maxRLEWidth {
		if peek, err := d.r.Peek(4); err == nil &&
			peek[0] == 2 && peek[1] == 2 && peek[2]&0x80 == 0 {
			return d.readRLE(dst)
		}
	}
	return d.readFlat(dst)
}

// readRLE decodes one new-style scanline: a four-byte prefix carrying the
// width, then the four component planes run-length coded independently.
func (d *Decoder) readRLE(dst []byte) error {
	w := d.hdr.Width
	off := d.r.Position()

	var pre [4]byte
	if err := d.r.ReadFull(pre[:]); err != nil {
		return codec.WrapTruncated(d.r.Position(), err)
	}
	if declared := int(pre[2])<<8 | int(pre[3]); declared != w {
		return codec.Corruptf(off, "scanline declares width %d, want %d", declared, w)
	}

	var lit [128]byte
	for c := 0; c < 4; c++ {
		for pos := 0; pos < w; {
			cb, err := d.r.ReadByte()
			if err != nil {
				return codec.WrapTruncated(d.r.Position(), err)
			}
			if cb > 128 {
				n := int(cb) - 128
				v, err := d.r.ReadByte()
				if err != nil {
					return codec.WrapTruncated(d.r.Position(), err)
				}
				if pos+n > w {
					return codec.Corruptf(d.r.Position(), "run of %d overruns scanline", n)
				}
				for k := 0; k < n; k++ {
					dst[(pos+k)*4+c] = v
				}
				pos += n
				continue
			}
			if cb == 0 {
				return codec.Corruptf(d.r.Position(), "zero-length run")
			}
			n := int(cb)
			if pos+n > w {
				return codec.Corruptf(d.r.Position(), "literal of %d overruns scanline", n)
			}
			if err := d.r.ReadFull(lit[:n]); err != nil {
				return codec.WrapTruncated(d.r.Position(), err)
			}
			for k := 0; k < n; k++ {
				dst[(pos+k)*4+c] = lit[k]
			}
			pos += n
		}
	}
	return nil
}

// readFlat decodes one flat scanline of raw quads with the old-style
// (1,1,1,count) run markers repeating the previous pixel.
func (d *Decoder) readFlat(dst []byte) error {
	w := d.hdr.Width
	havePrev := false
	shift := 0
	for n := 0; n < w; {
		var p [4]byte
		off := d.r.Position()
		if err := d.r.ReadFull(p[:]); err != nil {
			return codec.WrapTruncated(d.r.Position(), err)
		}
		if p[0] == 1 && p[1] == 1 && p[2] == 1 {
			if !havePrev {
				return codec.Corruptf(off, "run marker with no previous pixel")
			}
			if shift > 24 {
				return codec.Corruptf(off, "run marker shift overflow")
			}
			count := int(p[3]) << shift
			if count == 0 {
				return codec.Corruptf(off, "zero-length run")
			}
			if n+count > w {
				return codec.Corruptf(off, "run of %d overruns scanline", count)
			}
			prev := dst[(n-1)*4 : n*4]
			for k := 0; k < count; k++ {
				copy(dst[(n+k)*4:], prev)
			}
			n += count
			shift += 8
			continue
		}
		copy(dst[n*4:], p[:])
		n++
		havePrev = true
		shift = 0
	}
	return nil
}
