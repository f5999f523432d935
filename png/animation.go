package png

import (
	"encoding/binary"

	"github.com/cocosip/go-image-codec/codec"
)

// actl is the decoded animation control chunk.
type actl struct {
	numFrames uint32
	numPlays  uint32
}

func parseACTL(c *chunk) (*actl, error) {
	if len(c.data) != 8 {
		return nil, codec.Malformedf(c.offset, "acTL length %d, want 8", len(c.data))
	}
	a := &actl{
		numFrames: binary.BigEndian.Uint32(c.data[0:4]),
		numPlays:  binary.BigEndian.Uint32(c.data[4:8]),
	}
	if a.numFrames == 0 {
		return nil, codec.Malformedf(c.offset, "acTL declares zero frames")
	}
	return a, nil
}

// fctl is a decoded frame control record.
type fctl struct {
	sequence uint32
	width    uint32
	height   uint32
	x        uint32
	y        uint32
	delayNum uint16
	delayDen uint16
	dispose  uint8
	blend    uint8
	offset   int64
}

func parseFCTL(c *chunk, hdr *codec.ImageHeader) (*fctl, error) {
	if len(c.data) != 26 {
		return nil, codec.Malformedf(c.offset, "fcTL length %d, want 26", len(c.data))
	}
	f := &fctl{
		sequence: binary.BigEndian.Uint32(c.data[0:4]),
		width:    binary.BigEndian.Uint32(c.data[4:8]),
		height:   binary.BigEndian.Uint32(c.data[8:12]),
		x:        binary.BigEndian.Uint32(c.data[12:16]),
		y:        binary.BigEndian.Uint32(c.data[16:20]),
		delayNum: binary.BigEndian.Uint16(c.data[20:22]),
		delayDen: binary.BigEndian.Uint16(c.data[22:24]),
		dispose:  c.data[24],
		blend:    c.data[25],
		offset:   c.offset,
	}
	if f.width == 0 || f.height == 0 {
		return nil, codec.Malformedf(c.offset, "fcTL declares empty frame %dx%d", f.width, f.height)
	}
	if uint64(f.x)+uint64(f.width) > uint64(hdr.Width) || uint64(f.y)+uint64(f.height) > uint64(hdr.Height) {
		return nil, codec.Malformedf(c.offset, "frame %dx%d at (%d,%d) exceeds %dx%d canvas",
			f.width, f.height, f.x, f.y, hdr.Width, hdr.Height)
	}
	if f.dispose > uint8(codec.DisposePrevious) {
		return nil, codec.Malformedf(c.offset, "invalid dispose op %d", f.dispose)
	}
	if f.blend > uint8(codec.BlendOver) {
		return nil, codec.Malformedf(c.offset, "invalid blend op %d", f.blend)
	}
	return f, nil
}

// newFrame allocates the Frame shell for a control record; pixels are
// attached when the frame's data stream closes.
func (f *fctl) newFrame() *codec.Frame {
	return &codec.Frame{
		X:        int(f.x),
		Y:        int(f.y),
		Width:    int(f.width),
		Height:   int(f.height),
		DelayNum: f.delayNum,
		DelayDen: f.delayDen,
		Dispose:  codec.DisposeOp(f.dispose),
		Blend:    codec.BlendOp(f.blend),
	}
}

// sequencer tracks the shared, strictly contiguous sequence numbering of
// fcTL and fdAT chunks.
type sequencer struct {
	next uint32
}

func (s *sequencer) expect(got uint32, offset int64) error {
	if got != s.next {
		return codec.Malformedf(offset, "sequence number %d, want %d", got, s.next)
	}
	s.next++
	return nil
}
