package png

import (
	"encoding/binary"
	"io"

	"github.com/cocosip/go-image-codec/bytestream"
	"github.com/cocosip/go-image-codec/codec"
	"github.com/cocosip/go-image-codec/inflate"
)

// Decoder decodes one PNG or APNG stream. Instances are single-use and
// bound to one source; frames can be pulled one at a time with NextFrame or
// all at once with Decode.
type Decoder struct {
	cr   *chunkReader
	opts *codec.DecoderOptions

	raw        *ihdr
	hdr        *codec.ImageHeader
	headerDone bool

	palette []byte
	trns    []byte
	anim    *actl

	seenIDAT   bool
	idatClosed bool
	done       bool

	seq      sequencer
	fcTLSeen int
	preIDAT  *fctl // frame control owning the IDAT stream, if any

	// Open data stream: the frame being accumulated and its inflater.
	cur       *codec.Frame
	curIsIDAT bool
	isDefault bool // the open IDAT stream is a non-animated default image
	z         *inflate.ZlibDecompressor
	streamOff int64 // file offset where the stream's first payload began
	streamEnd int64 // file offset just past the last payload fed
	expected  int

	pending []*codec.Frame
	err     error
}

var _ codec.FrameDecoder = (*Decoder)(nil)

// NewDecoder returns a decoder over src. A nil opts selects the strict
// defaults.
func NewDecoder(src bytestream.Source, opts *codec.DecoderOptions) (*Decoder, error) {
	if opts == nil {
		opts = codec.DefaultDecoderOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Decoder{cr: newChunkReader(src, opts), opts: opts}, nil
}

// ReadHeader parses the signature and header chunk. It may be called before
// Decode or NextFrame; repeated calls return the same header.
func (d *Decoder) ReadHeader() (*codec.ImageHeader, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.headerDone {
		return d.hdr, nil
	}
	if err := d.cr.readSignature(); err != nil {
		return nil, d.fail(err)
	}
	c, err := d.cr.next()
	if err != nil {
		return nil, d.fail(err)
	}
	if c.typ != tIHDR {
		return nil, d.fail(codec.Malformedf(c.offset, "first chunk %s, want IHDR", c.name()))
	}
	raw, hdr, err := parseIHDR(c, d.opts)
	if err != nil {
		return nil, d.fail(err)
	}
	d.raw, d.hdr = raw, hdr
	d.headerDone = true
	return d.hdr, nil
}

// Decode runs the full decode. With LenientFrames set, a failure after at
// least one decoded frame returns the frames obtained so far instead of the
// error.
func (d *Decoder) Decode() (*codec.Image, error) {
	if _, err := d.ReadHeader(); err != nil {
		return nil, err
	}
	var frames []*codec.Frame
	for {
		f, err := d.NextFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			if d.opts.LenientFrames && len(frames) > 0 {
				break
			}
			return nil, err
		}
		frames = append(frames, f)
	}
	img := &codec.Image{
		Header:       *d.hdr,
		Frames:       frames,
		Palette:      d.palette,
		Transparency: d.trns,
	}
	if d.anim != nil {
		img.LoopCount = d.anim.numPlays
	}
	return img, nil
}

// NextFrame returns the next frame in sequence order, decoding just far
// enough to produce it. After the last frame it returns io.EOF.
func (d *Decoder) NextFrame() (*codec.Frame, error) {
	if _, err := d.ReadHeader(); err != nil {
		return nil, err
	}
	for {
		if d.err != nil {
			return nil, d.err
		}
		if len(d.pending) > 0 {
			f := d.pending[0]
			d.pending = d.pending[1:]
			return f, nil
		}
		if d.done {
			return nil, io.EOF
		}
		c, err := d.cr.next()
		if err != nil {
			return nil, d.fail(err)
		}
		if err := d.dispatch(c); err != nil {
			return nil, d.fail(err)
		}
	}
}

func (d *Decoder) fail(err error) error {
	if d.err == nil {
		d.err = err
	}
	return d.err
}

// dispatch routes one chunk through the ordering state machine.
func (d *Decoder) dispatch(c *chunk) error {
	if d.seenIDAT && c.typ != tIDAT {
		d.idatClosed = true
	}
	if c.bad {
		// Ancillary chunk with a failed checksum under the lenient
		// option: skipped wholesale.
		return nil
	}

	switch c.typ {
	case tIHDR:
		return codec.Malformedf(c.offset, "duplicate IHDR")
	case tPLTE:
		return d.onPLTE(c)
	case tTRNS:
		return d.onTRNS(c)
	case tACTL:
		return d.onACTL(c)
	case tFCTL:
		return d.onFCTL(c)
	case tIDAT:
		return d.onIDAT(c)
	case tFDAT:
		return d.onFDAT(c)
	case tIEND:
		return d.onIEND(c)
	default:
		if c.critical() {
			return codec.Malformedf(c.offset, "unrecognized critical chunk %s", c.name())
		}
		return nil
	}
}

func (d *Decoder) onPLTE(c *chunk) error {
	if d.seenIDAT {
		return codec.Malformedf(c.offset, "PLTE after image data")
	}
	if d.palette != nil {
		return codec.Malformedf(c.offset, "duplicate PLTE")
	}
	if d.hdr.Mode != codec.Indexed {
		return codec.Malformedf(c.offset, "PLTE with color type %d", d.raw.colorType)
	}
	n := len(c.data)
	if n == 0 || n%3 != 0 || n/3 > 256 {
		return codec.Malformedf(c.offset, "PLTE length %d", n)
	}
	if n/3 > 1<<d.raw.depth {
		return codec.Malformedf(c.offset, "%d palette entries at depth %d", n/3, d.raw.depth)
	}
	d.palette = append([]byte(nil), c.data...)
	return nil
}

func (d *Decoder) onTRNS(c *chunk) error {
	if d.seenIDAT {
		return codec.Malformedf(c.offset, "tRNS after image data")
	}
	if d.trns != nil {
		return codec.Malformedf(c.offset, "duplicate tRNS")
	}
	switch d.hdr.Mode {
	case codec.Indexed:
		if d.palette == nil {
			return codec.Malformedf(c.offset, "tRNS before PLTE")
		}
		if len(c.data) == 0 || len(c.data) > len(d.palette)/3 {
			return codec.Malformedf(c.offset, "tRNS length %d for %d palette entries", len(c.data), len(d.palette)/3)
		}
	case codec.Grayscale:
		if len(c.data) != 2 {
			return codec.Malformedf(c.offset, "tRNS length %d, want 2", len(c.data))
		}
	case codec.Truecolor:
		if len(c.data) != 6 {
			return codec.Malformedf(c.offset, "tRNS length %d, want 6", len(c.data))
		}
	default:
		return codec.Malformedf(c.offset, "tRNS with alpha color type")
	}
	d.trns = append([]byte(nil), c.data...)
	return nil
}

func (d *Decoder) onACTL(c *chunk) error {
	if d.seenIDAT {
		return codec.Malformedf(c.offset, "acTL after image data")
	}
	if d.anim != nil {
		return codec.Malformedf(c.offset, "duplicate acTL")
	}
	if d.hdr.Interlaced {
		return codec.Unsupportedf(c.offset, "interlaced animation")
	}
	a, err := parseACTL(c)
	if err != nil {
		return err
	}
	d.anim = a
	return nil
}

func (d *Decoder) onFCTL(c *chunk) error {
	if d.anim == nil {
		return codec.Malformedf(c.offset, "fcTL without acTL")
	}
	f, err := parseFCTL(c, d.hdr)
	if err != nil {
		return err
	}
	if err := d.seq.expect(f.sequence, c.offset); err != nil {
		return err
	}
	if d.fcTLSeen >= int(d.anim.numFrames) {
		return codec.Malformedf(c.offset, "more fcTL chunks than the %d frames declared", d.anim.numFrames)
	}

	if !d.seenIDAT {
		if d.preIDAT != nil {
			return codec.Malformedf(c.offset, "second fcTL before image data")
		}
		// A frame riding the IDAT stream must cover the whole canvas.
		if f.x != 0 || f.y != 0 || int(f.width) != d.hdr.Width || int(f.height) != d.hdr.Height {
			return codec.Malformedf(c.offset, "first frame %dx%d at (%d,%d) must match the canvas",
				f.width, f.height, f.x, f.y)
		}
		d.preIDAT = f
		d.fcTLSeen++
		return nil
	}

	// A later fcTL closes the open stream and opens a new frame.
	if d.cur != nil {
		if err := d.closeStream(); err != nil {
			return err
		}
	}
	d.fcTLSeen++
	d.openFrameStream(f)
	return nil
}

func (d *Decoder) onIDAT(c *chunk) error {
	if d.idatClosed {
		return codec.Malformedf(c.offset, "IDAT chunks must be consecutive")
	}
	if !d.seenIDAT {
		d.seenIDAT = true
		if d.hdr.Mode == codec.Indexed && d.palette == nil {
			return codec.Malformedf(c.offset, "missing PLTE for indexed color")
		}
		d.openIDATStream(c.offset)
	}
	return d.feed(c.data, c.offset+8)
}

func (d *Decoder) onFDAT(c *chunk) error {
	if d.anim == nil {
		return codec.Malformedf(c.offset, "fdAT without acTL")
	}
	if !d.seenIDAT {
		return codec.Malformedf(c.offset, "fdAT before image data")
	}
	if d.cur == nil || d.curIsIDAT {
		return codec.Malformedf(c.offset, "fdAT without fcTL")
	}
	if len(c.data) < 4 {
		return codec.Malformedf(c.offset, "fdAT length %d", len(c.data))
	}
	if err := d.seq.expect(binary.BigEndian.Uint32(c.data[:4]), c.offset); err != nil {
		return err
	}
	return d.feed(c.data[4:], c.offset+8+4)
}

func (d *Decoder) onIEND(c *chunk) error {
	if len(c.data) != 0 {
		return codec.Malformedf(c.offset, "IEND carries %d payload bytes", len(c.data))
	}
	if !d.seenIDAT {
		return codec.Malformedf(c.offset, "missing image data")
	}
	if d.cur != nil {
		if err := d.closeStream(); err != nil {
			return err
		}
	}
	if d.anim != nil && d.fcTLSeen != int(d.anim.numFrames) {
		return codec.Malformedf(c.offset, "acTL declares %d frames, found %d", d.anim.numFrames, d.fcTLSeen)
	}
	d.done = true
	return nil
}

// openIDATStream starts the inflater for the IDAT stream: either the
// animation's first frame (fcTL seen before IDAT) or the default image.
func (d *Decoder) openIDATStream(offset int64) {
	if d.preIDAT != nil {
		d.cur = d.preIDAT.newFrame()
		d.cur.Sequence = 0
		d.isDefault = false
	} else {
		d.cur = &codec.Frame{Width: d.hdr.Width, Height: d.hdr.Height}
		d.isDefault = d.anim != nil
	}
	d.curIsIDAT = true
	if d.hdr.Interlaced {
		d.expected = interlacedLength(d.hdr)
	} else {
		d.expected = d.filteredLength(d.hdr.Width, d.hdr.Height)
	}
	d.newStream(offset + 8)
}

// openFrameStream starts the inflater for one fdAT-carried frame.
func (d *Decoder) openFrameStream(f *fctl) {
	d.cur = f.newFrame()
	d.cur.Sequence = uint32(d.fcTLSeen - 1)
	d.curIsIDAT = false
	d.isDefault = false
	d.expected = d.filteredLength(int(f.width), int(f.height))
	d.newStream(f.offset)
}

func (d *Decoder) newStream(offset int64) {
	d.z = inflate.NewZlibDecompressor()
	d.z.SkipChecksum = d.opts.SkipChecksums
	d.z.SetOutputLimit(int64(d.expected))
	d.streamOff = offset
	d.streamEnd = offset
}

func (d *Decoder) filteredLength(w, h int) int {
	bits := d.hdr.Mode.Channels() * d.hdr.Depth
	return (1 + (w*bits+7)/8) * h
}

// feed pushes one payload into the open inflater, translating
// stream-relative error offsets into file offsets.
func (d *Decoder) feed(payload []byte, payloadOff int64) error {
	before := d.z.InputConsumed()
	consumed, _, err := d.z.Feed(payload)
	if err != nil {
		if ce, ok := err.(*codec.Error); ok {
			return &codec.Error{Kind: ce.Kind, Offset: payloadOff + (ce.Offset - before), Msg: ce.Msg, Err: ce.Err}
		}
		return err
	}
	if consumed < len(payload) {
		return codec.Corruptf(payloadOff+int64(consumed), "trailing data after compressed stream")
	}
	d.streamEnd = payloadOff + int64(len(payload))
	return nil
}

// closeStream finishes the open inflater, checks the decompressed length,
// reverses the filters and routes the completed frame.
func (d *Decoder) closeStream() error {
	if !d.curIsIDAT && d.z.InputConsumed() == 0 {
		return codec.Malformedf(d.streamOff, "frame %d has no image data", d.cur.Sequence)
	}
	if err := d.z.Finish(); err != nil {
		if ce, ok := err.(*codec.Error); ok {
			return &codec.Error{Kind: ce.Kind, Offset: d.streamEnd, Msg: ce.Msg, Err: ce.Err}
		}
		return err
	}
	out := d.z.Output()
	if len(out) != d.expected {
		return codec.Corruptf(d.streamEnd, "decompressed %d bytes, want %d", len(out), d.expected)
	}

	var pixels []byte
	if d.curIsIDAT && d.hdr.Interlaced {
		var err error
		if pixels, err = deinterlace(out, d.hdr, d.streamOff); err != nil {
			return err
		}
	} else {
		bits := d.hdr.Mode.Channels() * d.hdr.Depth
		rowBytes := (d.cur.Width*bits + 7) / 8
		pixels = make([]byte, rowBytes*d.cur.Height)
		if badRow, badFilter, ok := reconstruct(pixels, out, rowBytes, d.cur.Height, d.hdr.BytesPerPixel()); !ok {
			return codec.Corruptf(d.streamOff, "invalid filter %d on row %d", badFilter, badRow)
		}
	}
	d.cur.Pixels = pixels

	frame := d.cur
	d.cur, d.z = nil, nil
	if d.isDefault {
		d.isDefault = false
		if d.opts.DecodeDefaultImage {
			d.pending = append(d.pending, frame)
		}
		return nil
	}
	d.pending = append(d.pending, frame)
	return nil
}
