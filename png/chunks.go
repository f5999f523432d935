package png

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cocosip/go-image-codec/bytestream"
	"github.com/cocosip/go-image-codec/codec"
)

// Chunk type tags as big-endian packed four-byte codes.
const (
	tIHDR = 0x49484452
	tPLTE = 0x504C5445
	tIDAT = 0x49444154
	tIEND = 0x49454E44
	tTRNS = 0x74524E53
	tACTL = 0x6163544C
	tFCTL = 0x6663544C
	tFDAT = 0x66644154
)

const (
	// maxChunkLen is the largest declared chunk length the format allows.
	maxChunkLen = 1<<31 - 1

	// readStep caps single allocations while reading a payload, so a huge
	// declared length on a truncated input fails fast instead of
	// allocating gigabytes up front.
	readStep = 1 << 20
)

// chunk is one decoded framing unit. Its data aliases the reader's reusable
// buffer and is only valid until the next chunk is read; handlers copy what
// they keep.
type chunk struct {
	typ    uint32
	data   []byte
	offset int64 // file offset of the length field
	bad    bool  // ancillary chunk with a failed checksum, to be skipped
}

// critical reports whether the chunk type's critical bit is set (bit 5 of
// the first type byte clear).
func (c *chunk) critical() bool {
	return c.typ&0x20000000 == 0
}

func (c *chunk) name() string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], c.typ)
	return string(b[:])
}

// chunkReader walks the chunk sequence of a PNG stream, validating CRCs as
// configured.
type chunkReader struct {
	r    *bytestream.Reader
	opts *codec.DecoderOptions
	buf  []byte
}

func newChunkReader(src bytestream.Source, opts *codec.DecoderOptions) *chunkReader {
	return &chunkReader{r: bytestream.NewReader(src), opts: opts}
}

// readSignature consumes and checks the eight-byte file header.
func (cr *chunkReader) readSignature() error {
	var sig [8]byte
	if err := cr.r.ReadFull(sig[:]); err != nil {
		return codec.WrapTruncated(cr.r.Position(), err)
	}
	for i, b := range signature {
		if sig[i] != b {
			return codec.Malformedf(int64(i), "bad signature byte %#02x", sig[i])
		}
	}
	return nil
}

// next reads the following chunk. Failed checksums on critical chunks are
// fatal; on ancillary chunks they either fail the decode or mark the chunk
// bad, per options.
func (cr *chunkReader) next() (*chunk, error) {
	off := cr.r.Position()

	length, err := cr.r.ReadUint32BE()
	if err != nil {
		return nil, codec.WrapTruncated(off, err)
	}
	if length > maxChunkLen {
		return nil, codec.Malformedf(off, "chunk length %d exceeds 2^31-1", length)
	}

	var typ [4]byte
	if err := cr.r.ReadFull(typ[:]); err != nil {
		return nil, codec.WrapTruncated(cr.r.Position(), err)
	}

	c := &chunk{typ: binary.BigEndian.Uint32(typ[:]), offset: off}

	if err := cr.readPayload(int(length)); err != nil {
		return nil, err
	}
	c.data = cr.buf

	crcOff := cr.r.Position()
	want, err := cr.r.ReadUint32BE()
	if err != nil {
		return nil, codec.WrapTruncated(crcOff, err)
	}
	if !cr.opts.SkipChecksums {
		crc := crc32.NewIEEE()
		crc.Write(typ[:])
		crc.Write(c.data)
		if got := crc.Sum32(); got != want {
			if c.critical() || !cr.opts.LenientAncillaryChecksums {
				return nil, codec.Corruptf(crcOff, "%s checksum mismatch: %#08x != %#08x", c.name(), got, want)
			}
			c.bad = true
		}
	}
	return c, nil
}

// readPayload fills cr.buf with length bytes, reading in bounded steps so
// truncation is detected before large allocations.
func (cr *chunkReader) readPayload(length int) error {
	if cap(cr.buf) >= length {
		cr.buf = cr.buf[:length]
		if err := cr.r.ReadFull(cr.buf); err != nil {
			return codec.WrapTruncated(cr.r.Position(), err)
		}
		return nil
	}
	cr.buf = cr.buf[:0]
	for got := 0; got < length; {
		step := length - got
		if step > readStep {
			step = readStep
		}
		start := len(cr.buf)
		cr.buf = append(cr.buf, make([]byte, step)...)
		if err := cr.r.ReadFull(cr.buf[start:]); err != nil {
			return codec.WrapTruncated(cr.r.Position(), err)
		}
		got += step
	}
	return nil
}

// writeChunk appends one framed chunk with its CRC to out.
func writeChunk(out []byte, typ uint32, payload []byte) []byte {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(hdr[4:], typ)
	out = append(out, hdr[:]...)
	out = append(out, payload...)

	crc := crc32.NewIEEE()
	crc.Write(hdr[4:])
	crc.Write(payload)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	return append(out, sum[:]...)
}
