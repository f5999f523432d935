package inflate

import (
	"encoding/binary"
	"hash"
	"hash/adler32"
	"io"

	"github.com/cocosip/go-image-codec/codec"
)

type zlibPhase int

const (
	zHeader zlibPhase = iota
	zBody
	zTrailer
	zDone
)

// ZlibDecompressor inflates a zlib-framed deflate stream (RFC 1950): a
// two-byte header, the deflate body, and an Adler-32 trailer over the
// decompressed bytes. Push-based like Decompressor; not safe for concurrent
// use.
type ZlibDecompressor struct {
	// SkipChecksum disables Adler-32 trailer verification. Set before the
	// first Feed.
	SkipChecksum bool

	d       *Decompressor
	phase   zlibPhase
	err     error
	hdr     [2]byte
	hdrLen  int
	trailer [4]byte
	trLen   int
	adler   hash.Hash32
	hashed  int
	totalIn int64
}

// NewZlibDecompressor returns a decompressor positioned at the zlib header.
func NewZlibDecompressor() *ZlibDecompressor {
	return &ZlibDecompressor{d: NewDecompressor(), adler: adler32.New()}
}

// SetOutputLimit caps the decompressed size when n is positive.
func (z *ZlibDecompressor) SetOutputLimit(n int64) {
	z.d.OutputLimit = n
}

// Output returns the decompressed bytes so far, aliasing the internal
// buffer.
func (z *ZlibDecompressor) Output() []byte {
	return z.d.Output()
}

// InputConsumed returns the total compressed bytes consumed, header and
// trailer included.
func (z *ZlibDecompressor) InputConsumed() int64 {
	return z.totalIn
}

// Feed consumes compressed bytes with the same contract as
// Decompressor.Feed: everything is consumed until the stream (trailer
// included) completes, then the remainder is left to the caller.
func (z *ZlibDecompressor) Feed(p []byte) (consumed int, done bool, err error) {
	if z.err != nil {
		return 0, false, z.err
	}
	total := 0
	for {
		switch z.phase {
		case zHeader:
			for z.hdrLen < 2 && total < len(p) {
				z.hdr[z.hdrLen] = p[total]
				z.hdrLen++
				total++
				z.totalIn++
			}
			if z.hdrLen < 2 {
				return total, false, nil
			}
			if err := z.checkHeader(); err != nil {
				z.err = err
				return total, false, z.err
			}
			z.phase = zBody

		case zBody:
			c, bodyDone, err := z.d.Feed(p[total:])
			total += c
			z.totalIn += int64(c)
			z.updateAdler()
			if err != nil {
				z.err = rebase(err, 2)
				return total, false, z.err
			}
			if !bodyDone {
				return total, false, nil
			}
			z.phase = zTrailer

		case zTrailer:
			for z.trLen < 4 && total < len(p) {
				z.trailer[z.trLen] = p[total]
				z.trLen++
				total++
				z.totalIn++
			}
			if z.trLen < 4 {
				return total, false, nil
			}
			if !z.SkipChecksum {
				want := binary.BigEndian.Uint32(z.trailer[:])
				if got := z.adler.Sum32(); got != want {
					z.err = &codec.Error{Kind: codec.KindCorruptStream, Offset: z.totalIn - 4, Err: ErrChecksum}
					return total, false, z.err
				}
			}
			z.phase = zDone

		case zDone:
			return total, true, nil
		}
	}
}

// Finish signals end of input, failing with a Truncated error if the stream
// (trailer included) has not completed.
func (z *ZlibDecompressor) Finish() error {
	if z.err != nil {
		return z.err
	}
	if z.phase != zDone {
		z.err = &codec.Error{Kind: codec.KindTruncated, Offset: z.totalIn, Err: io.ErrUnexpectedEOF}
		return z.err
	}
	return nil
}

func (z *ZlibDecompressor) checkHeader() error {
	method := z.hdr[0] & 0x0F
	cinfo := z.hdr[0] >> 4
	if method != 8 || cinfo > 7 {
		return &codec.Error{Kind: codec.KindCorruptStream, Offset: 0, Err: ErrZlibHeader}
	}
	if (uint32(z.hdr[0])<<8|uint32(z.hdr[1]))%31 != 0 {
		return &codec.Error{Kind: codec.KindCorruptStream, Offset: 0, Err: ErrZlibHeader}
	}
	if z.hdr[1]&0x20 != 0 {
		return &codec.Error{Kind: codec.KindUnsupportedFeature, Offset: 1, Err: ErrDictionary}
	}
	return nil
}

func (z *ZlibDecompressor) updateAdler() {
	if z.SkipChecksum {
		return
	}
	out := z.d.Output()
	if len(out) > z.hashed {
		z.adler.Write(out[z.hashed:])
		z.hashed = len(out)
	}
}

// rebase shifts a deflate-stream-relative error offset into the enclosing
// zlib stream.
func rebase(err error, delta int64) error {
	if ce, ok := err.(*codec.Error); ok {
		return &codec.Error{Kind: ce.Kind, Offset: ce.Offset + delta, Msg: ce.Msg, Err: ce.Err}
	}
	return err
}
