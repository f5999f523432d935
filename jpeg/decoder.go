package jpeg

import (
	"github.com/cocosip/go-image-codec/bytestream"
	"github.com/cocosip/go-image-codec/codec"
)

// component carries one color component's frame parameters and its decoded
// block storage. Storage is MCU aligned so padding blocks at the right and
// bottom edges land in real slots instead of aliasing their neighbors.
type component struct {
	id           byte
	h, v         int // sampling factors
	tq           int // quantization table selector
	bw, bh       int // storage size in blocks
	dcSel, acSel int
	dcPred       int32
	data         []byte // bw*bh blocks of 64 samples each
}

// sample returns the decoded value at component coordinates (x, y).
func (c *component) sample(x, y int) byte {
	off := ((y/8)*c.bw + x/8) * 64
	return c.data[off+(y%8)*8+x%8]
}

// Decoder decodes one baseline JPEG stream. Instances are single-use.
type Decoder struct {
	src  bytestream.Source
	r    *bytestream.Reader
	opts *codec.DecoderOptions
	hdr  *codec.ImageHeader
	err  error

	comps            []*component
	qtab             [4][64]int32
	qdef             [4]bool
	dcTab            [4]*huffTable
	acTab            [4]*huffTable
	restart          int
	maxH, maxV       int
	mcuCols, mcuRows int
	scanned          bool
	img              *codec.Image
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
	return &Decoder{src: src, r: bytestream.NewReader(src), opts: opts}, nil
}

func (d *Decoder) fail(err error) error {
	if d.err == nil {
		d.err = err
	}
	return d.err
}

// readMarker reads the next marker, skipping 0xFF fill bytes.
func (d *Decoder) readMarker() (uint16, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, codec.WrapTruncated(d.r.Position(), err)
	}
	if b != 0xFF {
		return 0, codec.Malformedf(d.r.Position()-1, "expected marker, found byte %#02x", b)
	}
	for {
		b, err = d.r.ReadByte()
		if err != nil {
			return 0, codec.WrapTruncated(d.r.Position(), err)
		}
		if b != 0xFF {
			break
		}
	}
	if b == 0x00 {
		return 0, codec.Malformedf(d.r.Position()-2, "stuffed byte outside entropy-coded data")
	}
	return 0xFF00 | uint16(b), nil
}

// readSegment reads a marker segment payload, excluding the length field.
func (d *Decoder) readSegment() ([]byte, error) {
	n, err := d.r.ReadUint16BE()
	if err != nil {
		return nil, codec.WrapTruncated(d.r.Position(), err)
	}
	if n < 2 {
		return nil, codec.Malformedf(d.r.Position()-2, "segment length %d", n)
	}
	data, err := d.r.ReadBytes(int(n) - 2)
	if err != nil {
		return nil, codec.WrapTruncated(d.r.Position(), err)
	}
	return data, nil
}

// ReadHeader parses segments up to and including the frame header.
func (d *Decoder) ReadHeader() (*codec.ImageHeader, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.hdr != nil {
		return d.hdr, nil
	}

	m, err := d.readMarker()
	if err != nil {
		return nil, d.fail(err)
	}
	if m != markerSOI {
		return nil, d.fail(codec.Malformedf(0, "missing SOI marker"))
	}

	for {
		m, err := d.readMarker()
		if err != nil {
			return nil, d.fail(err)
		}
		switch {
		case m == markerSOF0:
			if err := d.parseSOF(); err != nil {
				return nil, d.fail(err)
			}
			return d.hdr, nil
		case isSOF(m) || m == markerDAC:
			return nil, d.fail(codec.Unsupportedf(d.r.Position()-2,
				"marker %#04x: only baseline sequential DCT is supported", m))
		case m == markerSOS:
			return nil, d.fail(codec.Malformedf(d.r.Position()-2, "scan before frame header"))
		case m == markerEOI:
			return nil, d.fail(codec.Malformedf(d.r.Position()-2, "missing frame header"))
		case m == markerDQT:
			if err := d.parseDQT(); err != nil {
				return nil, d.fail(err)
			}
		case m == markerDHT:
			if err := d.parseDHT(); err != nil {
				return nil, d.fail(err)
			}
		case m == markerDRI:
			if err := d.parseDRI(); err != nil {
				return nil, d.fail(err)
			}
		case isRST(m) || m == markerSOI:
			return nil, d.fail(codec.Malformedf(d.r.Position()-2, "unexpected marker %#04x", m))
		case hasLength(m):
			// APPn, COM and other tables/misc segments are skipped.
			if _, err := d.readSegment(); err != nil {
				return nil, d.fail(err)
			}
		}
	}
}

// Decode parses the remaining segments, decodes the scan and returns the
// assembled image once EOI is reached. Bytes after EOI are ignored.
func (d *Decoder) Decode() (*codec.Image, error) {
	if d.img != nil {
		return d.img, nil
	}
	if _, err := d.ReadHeader(); err != nil {
		return nil, err
	}

	for {
		m, err := d.readMarker()
		if err != nil {
			return nil, d.fail(err)
		}
		switch {
		case m == markerSOS:
			if d.scanned {
				return nil, d.fail(codec.Unsupportedf(d.r.Position()-2, "multiple scans"))
			}
			if err := d.parseSOS(); err != nil {
				return nil, d.fail(err)
			}
			if err := d.decodeScan(); err != nil {
				return nil, d.fail(err)
			}
			d.scanned = true
		case m == markerEOI:
			if !d.scanned {
				return nil, d.fail(codec.Malformedf(d.r.Position()-2, "missing image data"))
			}
			d.img = d.assemble()
			return d.img, nil
		case m == markerSOF0:
			return nil, d.fail(codec.Malformedf(d.r.Position()-2, "duplicate frame header"))
		case isSOF(m) || m == markerDAC:
			return nil, d.fail(codec.Unsupportedf(d.r.Position()-2,
				"marker %#04x: only baseline sequential DCT is supported", m))
		case m == markerDQT:
			if err := d.parseDQT(); err != nil {
				return nil, d.fail(err)
			}
		case m == markerDHT:
			if err := d.parseDHT(); err != nil {
				return nil, d.fail(err)
			}
		case m == markerDRI:
			if err := d.parseDRI(); err != nil {
				return nil, d.fail(err)
			}
		case isRST(m) || m == markerSOI:
			return nil, d.fail(codec.Malformedf(d.r.Position()-2, "unexpected marker %#04x", m))
		case hasLength(m):
			if _, err := d.readSegment(); err != nil {
				return nil, d.fail(err)
			}
		}
	}
}

func (d *Decoder) parseSOF() error {
	pos := d.r.Position()
	data, err := d.readSegment()
	if err != nil {
		return err
	}
	if len(data) < 6 {
		return codec.Malformedf(pos, "frame header too short")
	}

	precision := int(data[0])
	if precision != 8 {
		return codec.Unsupportedf(pos, "%d-bit precision, baseline requires 8", precision)
	}
	height := int(data[1])<<8 | int(data[2])
	width := int(data[3])<<8 | int(data[4])
	n := int(data[5])
	if width == 0 || height == 0 {
		return codec.Malformedf(pos, "invalid dimensions %dx%d", width, height)
	}
	switch n {
	case 1, 3:
	case 2, 4:
		return codec.Unsupportedf(pos, "%d components, want 1 or 3", n)
	default:
		return codec.Malformedf(pos, "invalid component count %d", n)
	}
	if len(data) != 6+n*3 {
		return codec.Malformedf(pos, "frame header length %d for %d components", len(data), n)
	}
	if width > d.opts.MaxWidth || height > d.opts.MaxHeight {
		return codec.Unsupportedf(pos, "dimensions %dx%d exceed limits %dx%d",
			width, height, d.opts.MaxWidth, d.opts.MaxHeight)
	}

	d.maxH, d.maxV = 1, 1
	d.comps = make([]*component, n)
	for i := range d.comps {
		off := 6 + i*3
		c := &component{
			id: data[off],
			h:  int(data[off+1] >> 4),
			v:  int(data[off+1] & 0x0F),
			tq: int(data[off+2]),
		}
		if c.h < 1 || c.h > 4 || c.v < 1 || c.v > 4 {
			return codec.Malformedf(pos, "component %d sampling factors %dx%d", i, c.h, c.v)
		}
		if n == 1 {
			// A single-component scan is never interleaved, so the
			// declared sampling factors do not apply.
			c.h, c.v = 1, 1
		}
		if c.tq > 3 {
			return codec.Malformedf(pos, "component %d quantization table %d", i, c.tq)
		}
		if c.h > d.maxH {
			d.maxH = c.h
		}
		if c.v > d.maxV {
			d.maxV = c.v
		}
		d.comps[i] = c
	}

	d.mcuCols = divCeil(width, d.maxH*8)
	d.mcuRows = divCeil(height, d.maxV*8)
	for _, c := range d.comps {
		c.bw = d.mcuCols * c.h
		c.bh = d.mcuRows * c.v
		c.data = make([]byte, c.bw*c.bh*64)
	}

	mode := codec.Grayscale
	if n == 3 {
		mode = codec.Truecolor
	}
	d.hdr = &codec.ImageHeader{Width: width, Height: height, Depth: 8, Mode: mode}
	return nil
}

// parseDQT installs quantization tables, converting the zig-zag order of
// the wire format into natural order.
func (d *Decoder) parseDQT() error {
	pos := d.r.Position()
	data, err := d.readSegment()
	if err != nil {
		return err
	}

	off := 0
	for off < len(data) {
		pqtq := data[off]
		pq, tq := pqtq>>4, pqtq&0x0F
		if pq > 1 || tq > 3 {
			return codec.Malformedf(pos, "invalid quantization table spec %#02x", pqtq)
		}
		off++
		if pq == 0 {
			if off+64 > len(data) {
				return codec.Malformedf(pos, "quantization table truncated")
			}
			for i := 0; i < 64; i++ {
				d.qtab[tq][zigzag[i]] = int32(data[off+i])
			}
			off += 64
		} else {
			if off+128 > len(data) {
				return codec.Malformedf(pos, "quantization table truncated")
			}
			for i := 0; i < 64; i++ {
				d.qtab[tq][zigzag[i]] = int32(data[off+2*i])<<8 | int32(data[off+2*i+1])
			}
			off += 128
		}
		d.qdef[tq] = true
	}
	return nil
}

func (d *Decoder) parseDHT() error {
	pos := d.r.Position()
	data, err := d.readSegment()
	if err != nil {
		return err
	}

	off := 0
	for off < len(data) {
		tcth := data[off]
		tc, th := tcth>>4, tcth&0x0F
		if tc > 1 || th > 3 {
			return codec.Malformedf(pos, "invalid huffman table spec %#02x", tcth)
		}
		off++
		if off+16 > len(data) {
			return codec.Malformedf(pos, "huffman table truncated")
		}

		t := &huffTable{}
		total := 0
		for i := 0; i < 16; i++ {
			t.bits[i] = int(data[off+i])
			total += t.bits[i]
		}
		off += 16
		if total > 256 || off+total > len(data) {
			return codec.Malformedf(pos, "huffman table truncated")
		}
		t.values = append([]byte(nil), data[off:off+total]...)
		off += total

		if err := t.build(); err != nil {
			return codec.Corruptf(pos, "invalid huffman code lengths")
		}
		if tc == 0 {
			d.dcTab[th] = t
		} else {
			d.acTab[th] = t
		}
	}
	return nil
}

func (d *Decoder) parseDRI() error {
	pos := d.r.Position()
	data, err := d.readSegment()
	if err != nil {
		return err
	}
	if len(data) != 2 {
		return codec.Malformedf(pos, "restart interval segment length %d", len(data))
	}
	d.restart = int(data[0])<<8 | int(data[1])
	return nil
}

func (d *Decoder) parseSOS() error {
	pos := d.r.Position()
	data, err := d.readSegment()
	if err != nil {
		return err
	}
	if len(data) < 1 {
		return codec.Malformedf(pos, "scan header too short")
	}

	ns := int(data[0])
	if ns != len(d.comps) {
		if ns >= 1 && ns < len(d.comps) {
			return codec.Unsupportedf(pos, "non-interleaved scan with %d of %d components", ns, len(d.comps))
		}
		return codec.Malformedf(pos, "scan component count %d", ns)
	}
	if len(data) != 1+2*ns+3 {
		return codec.Malformedf(pos, "scan header length %d for %d components", len(data), ns)
	}

	for i := 0; i < ns; i++ {
		cs := data[1+2*i]
		sel := data[2+2*i]
		td, ta := int(sel>>4), int(sel&0x0F)
		if td > 3 || ta > 3 {
			return codec.Malformedf(pos, "scan component %d table selectors %#02x", cs, sel)
		}

		var c *component
		for _, cc := range d.comps {
			if cc.id == cs {
				c = cc
				break
			}
		}
		if c == nil {
			return codec.Malformedf(pos, "scan component %d not in frame", cs)
		}
		c.dcSel, c.acSel = td, ta

		if d.dcTab[td] == nil || d.acTab[ta] == nil {
			return codec.Malformedf(pos, "huffman table not defined for component %d", cs)
		}
		if !d.qdef[c.tq] {
			return codec.Malformedf(pos, "quantization table %d not defined", c.tq)
		}
	}

	ss, se, a := data[1+2*ns], data[2+2*ns], data[3+2*ns]
	if ss != 0 || se != 63 || a != 0 {
		return codec.Malformedf(pos, "spectral selection %d..%d/%#02x in sequential scan", ss, se, a)
	}
	return nil
}

// decodeScan runs the interleaved MCU loop over the entropy-coded segment,
// honoring the restart interval.
func (d *Decoder) decodeScan() error {
	er := &entropyReader{src: d.src}
	for _, c := range d.comps {
		c.dcPred = 0
	}

	var coef [64]int32
	restarts := 0
	for my := 0; my < d.mcuRows; my++ {
		for mx := 0; mx < d.mcuCols; mx++ {
			idx := my*d.mcuCols + mx
			if d.restart > 0 && idx > 0 && idx%d.restart == 0 {
				if err := er.restart(restarts % 8); err != nil {
					return err
				}
				restarts++
				for _, c := range d.comps {
					c.dcPred = 0
				}
			}
			for _, c := range d.comps {
				for v := 0; v < c.v; v++ {
					for h := 0; h < c.h; h++ {
						if err := d.decodeBlock(er, c, &coef, mx*c.h+h, my*c.v+v); err != nil {
							return err
						}
					}
				}
			}
		}
	}
	return nil
}

// decodeBlock entropy-decodes one 8x8 block, dequantizes it and runs the
// inverse DCT into the component's block storage.
func (d *Decoder) decodeBlock(er *entropyReader, c *component, coef *[64]int32, bx, by int) error {
	*coef = [64]int32{}

	s, err := er.decode(d.dcTab[c.dcSel])
	if err != nil {
		return err
	}
	if s > 11 {
		return codec.Corruptf(er.src.Position(), "DC category %d out of range", s)
	}
	diff, err := er.receiveExtend(int(s))
	if err != nil {
		return err
	}
	c.dcPred += diff
	coef[0] = c.dcPred

	acTab := d.acTab[c.acSel]
	k := 1
	for k < 64 {
		rs, err := er.decode(acTab)
		if err != nil {
			return err
		}
		r, ssss := int(rs>>4), int(rs&0x0F)
		if ssss == 0 {
			if r != 15 {
				break // EOB
			}
			k += 16
			continue
		}
		if ssss > 10 {
			return codec.Corruptf(er.src.Position(), "AC category %d out of range", ssss)
		}
		k += r
		if k >= 64 {
			return codec.Corruptf(er.src.Position(), "coefficient run past end of block")
		}
		v, err := er.receiveExtend(ssss)
		if err != nil {
			return err
		}
		coef[zigzag[k]] = v
		k++
	}

	q := &d.qtab[c.tq]
	for i := 0; i < 64; i++ {
		coef[i] *= q[i]
	}

	off := (by*c.bw + bx) * 64
	idct(coef, c.data[off:off+64], 8)
	return nil
}

// assemble interleaves the component planes into the output pixel layout,
// upsampling chroma by sample replication and converting YCbCr to RGB.
func (d *Decoder) assemble() *codec.Image {
	w, h := d.hdr.Width, d.hdr.Height

	var pixels []byte
	if len(d.comps) == 1 {
		c := d.comps[0]
		pixels = make([]byte, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				pixels[y*w+x] = c.sample(x, y)
			}
		}
	} else {
		pixels = make([]byte, w*h*3)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var ycc [3]byte
				for i, c := range d.comps {
					ycc[i] = c.sample(x*c.h/d.maxH, y*c.v/d.maxV)
				}
				r, g, b := ycbcrToRGB(ycc[0], ycc[1], ycc[2])
				off := (y*w + x) * 3
				pixels[off+0] = r
				pixels[off+1] = g
				pixels[off+2] = b
			}
		}
	}

	return &codec.Image{
		Header: *d.hdr,
		Frames: []*codec.Frame{{Width: w, Height: h, Pixels: pixels}},
	}
}

func ycbcrToRGB(yy, cb, cr byte) (byte, byte, byte) {
	y := int(yy)
	cbv := int(cb) - 128
	crv := int(cr) - 128

	r := y + ((91881 * crv) >> 16)
	g := y - ((22554*cbv + 46802*crv) >> 16)
	b := y + ((116130 * cbv) >> 16)

	return byte(clamp(r, 0, 255)), byte(clamp(g, 0, 255)), byte(clamp(b, 0, 255))
}
