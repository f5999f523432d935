// Package inflate decodes DEFLATE (RFC 1951) and zlib (RFC 1950) streams
// incrementally. The decompressor is push-based: callers feed compressed
// bytes in pieces of any size, as they fall out of a container's chunking,
// and the decoder carries partial-bit and partial-symbol state across calls
// in an explicit state machine rather than in suspended control flow.
package inflate

import (
	"io"

	"github.com/cocosip/go-image-codec/codec"
)

const (
	maxLitCodes  = 286
	maxDistCodes = 30
)

type state int

const (
	stateBlockHeader state = iota
	stateStoredLen
	stateStoredCopy
	stateDynHeader
	stateDynCodeLens
	stateDynLens
	stateSymbol
	stateLenExtra
	stateDistSym
	stateDistExtra
	stateDone
)

// Decompressor inflates a raw deflate bitstream fed to it in arbitrary
// pieces. The zero value is not usable; construct with NewDecompressor.
// Not safe for concurrent use.
type Decompressor struct {
	// OutputLimit caps the decompressed size when positive. Exceeding it
	// fails the stream with ErrOutputLimit.
	OutputLimit int64

	state state
	err   error
	final bool

	// Bit accumulator, least significant bits first.
	acc   uint64
	nbits uint

	// Current feed slice; never retained across calls.
	in      []byte
	inPos   int
	totalIn int64

	out []byte

	// Partial Huffman walk, preserved when input runs out mid-symbol.
	wLen   int
	wCode  int
	wFirst int
	wIndex int

	lit  *huffTable
	dist *huffTable

	litTable  huffTable
	distTable huffTable
	clTable   huffTable

	// Dynamic block construction state.
	nlit     int
	ndist    int
	hclen    int
	clIndex  int
	clLens   [19]uint8
	lens     [maxLitCodes + maxDistCodes]uint8
	lenIndex int
	lenSym   int // pending repeat op awaiting extra bits, -1 if none

	storedRemain int
	copyLen      int
	copyDist     int
	extraBits    uint
}

// NewDecompressor returns a decompressor positioned at the first deflate
// block header.
func NewDecompressor() *Decompressor {
	d := &Decompressor{lenSym: -1}
	d.resetWalk()
	return d
}

// Feed consumes compressed bytes. It returns the number of bytes of p
// consumed, whether the stream completed, and the first error the stream
// failed with. Until the final block ends, every byte is consumed; once the
// stream completes, bytes past its end are left unconsumed for the caller
// (trailers, containers). Feeding after completion consumes nothing.
func (d *Decompressor) Feed(p []byte) (consumed int, done bool, err error) {
	if d.err != nil {
		return 0, false, d.err
	}
	if d.state == stateDone {
		return 0, true, nil
	}
	d.in = p
	d.inPos = 0
	d.run()
	d.in = nil
	return d.inPos, d.state == stateDone, d.err
}

// Finish signals end of input. It fails with a Truncated error if the
// stream has not completed.
func (d *Decompressor) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.state != stateDone {
		d.err = &codec.Error{Kind: codec.KindTruncated, Offset: d.totalIn, Err: io.ErrUnexpectedEOF}
		return d.err
	}
	return nil
}

// Output returns the decompressed bytes so far. The slice aliases the
// decompressor's buffer and grows across Feed calls; the caller takes
// ownership once the stream is done.
func (d *Decompressor) Output() []byte {
	return d.out
}

// InputConsumed returns the total number of compressed bytes consumed,
// which is the stream-relative offset used in errors.
func (d *Decompressor) InputConsumed() int64 {
	return d.totalIn
}

func (d *Decompressor) fail(cause error) {
	if d.err == nil {
		d.err = &codec.Error{Kind: codec.KindCorruptStream, Offset: d.totalIn, Err: cause}
	}
}

// pull ensures at least n accumulator bits, returning false when the feed
// slice is exhausted first.
func (d *Decompressor) pull(n uint) bool {
	for d.nbits < n {
		if d.inPos >= len(d.in) {
			return false
		}
		d.acc |= uint64(d.in[d.inPos]) << d.nbits
		d.inPos++
		d.totalIn++
		d.nbits += 8
	}
	return true
}

func (d *Decompressor) take(n uint) uint32 {
	v := uint32(d.acc) & (1<<n - 1)
	d.acc >>= n
	d.nbits -= n
	return v
}

func (d *Decompressor) resetWalk() {
	d.wLen = 1
	d.wCode = 0
	d.wFirst = 0
	d.wIndex = 0
}

// decodeSym decodes one canonical Huffman symbol bit by bit. A false return
// means either suspended on input (d.err nil) or failed (d.err set); the
// walk state survives suspension.
func (d *Decompressor) decodeSym(t *huffTable) (int, bool) {
	for d.wLen <= maxCodeBits {
		if !d.pull(1) {
			return 0, false
		}
		d.wCode |= int(d.take(1))
		c := int(t.count[d.wLen])
		if d.wCode-c < d.wFirst {
			sym := int(t.symbol[d.wIndex+d.wCode-d.wFirst])
			d.resetWalk()
			return sym, true
		}
		d.wIndex += c
		d.wFirst = (d.wFirst + c) << 1
		d.wCode <<= 1
		d.wLen++
	}
	d.fail(ErrBadSymbol)
	return 0, false
}

func (d *Decompressor) emit(b byte) bool {
	if d.OutputLimit > 0 && int64(len(d.out)) >= d.OutputLimit {
		d.fail(ErrOutputLimit)
		return false
	}
	d.out = append(d.out, b)
	return true
}

// run advances the state machine until input runs out, the stream ends, or
// an error is recorded.
func (d *Decompressor) run() {
	for d.err == nil {
		switch d.state {
		case stateBlockHeader:
			if !d.pull(3) {
				return
			}
			v := d.take(3)
			d.final = v&1 == 1
			switch v >> 1 {
			case 0:
				// Stored blocks restart on a byte boundary.
				d.take(d.nbits % 8)
				d.state = stateStoredLen
			case 1:
				d.lit, d.dist = &fixedLit, &fixedDist
				d.state = stateSymbol
			case 2:
				d.state = stateDynHeader
			default:
				d.fail(ErrBlockType)
			}

		case stateStoredLen:
			if !d.pull(32) {
				return
			}
			length := d.take(16)
			nlen := d.take(16)
			if length != ^nlen&0xFFFF {
				d.fail(ErrStoredLength)
				return
			}
			d.storedRemain = int(length)
			d.state = stateStoredCopy

		case stateStoredCopy:
			// The accumulator is byte-aligned and empty here, so the
			// payload comes straight from the feed slice.
			n := d.storedRemain
			if avail := len(d.in) - d.inPos; n > avail {
				n = avail
			}
			if d.OutputLimit > 0 && int64(len(d.out)+n) > d.OutputLimit {
				d.fail(ErrOutputLimit)
				return
			}
			d.out = append(d.out, d.in[d.inPos:d.inPos+n]...)
			d.inPos += n
			d.totalIn += int64(n)
			d.storedRemain -= n
			if d.storedRemain > 0 {
				return
			}
			if d.final {
				d.state = stateDone
			} else {
				d.state = stateBlockHeader
			}

		case stateDynHeader:
			if !d.pull(14) {
				return
			}
			d.nlit = int(d.take(5)) + 257
			d.ndist = int(d.take(5)) + 1
			d.hclen = int(d.take(4)) + 4
			if d.nlit > maxLitCodes || d.ndist > maxDistCodes {
				d.fail(ErrTooManyCodes)
				return
			}
			d.clLens = [19]uint8{}
			d.clIndex = 0
			d.state = stateDynCodeLens

		case stateDynCodeLens:
			for d.clIndex < d.hclen {
				if !d.pull(3) {
					return
				}
				d.clLens[clOrder[d.clIndex]] = uint8(d.take(3))
				d.clIndex++
			}
			if err := d.clTable.buildChecked(d.clLens[:]); err != nil {
				d.fail(err)
				return
			}
			d.lenIndex = 0
			d.lenSym = -1
			d.state = stateDynLens

		case stateDynLens:
			if !d.readCodeLengths() {
				return
			}
			if d.lens[256] == 0 {
				d.fail(ErrMissingEOB)
				return
			}
			if err := d.litTable.buildChecked(d.lens[:d.nlit]); err != nil {
				d.fail(err)
				return
			}
			if err := d.distTable.buildChecked(d.lens[d.nlit : d.nlit+d.ndist]); err != nil {
				d.fail(err)
				return
			}
			d.lit, d.dist = &d.litTable, &d.distTable
			d.state = stateSymbol

		case stateSymbol:
			sym, ok := d.decodeSym(d.lit)
			if !ok {
				return
			}
			switch {
			case sym < 256:
				if !d.emit(byte(sym)) {
					return
				}
			case sym == 256:
				if d.final {
					d.state = stateDone
				} else {
					d.state = stateBlockHeader
				}
			case sym < 257+len(lengthBase):
				d.copyLen = int(lengthBase[sym-257])
				d.extraBits = uint(lengthExtra[sym-257])
				d.state = stateLenExtra
			default:
				d.fail(ErrBadSymbol)
			}

		case stateLenExtra:
			if !d.pull(d.extraBits) {
				return
			}
			d.copyLen += int(d.take(d.extraBits))
			d.state = stateDistSym

		case stateDistSym:
			sym, ok := d.decodeSym(d.dist)
			if !ok {
				return
			}
			if sym >= len(distBase) {
				d.fail(ErrBadSymbol)
				return
			}
			d.copyDist = int(distBase[sym])
			d.extraBits = uint(distExtra[sym])
			d.state = stateDistExtra

		case stateDistExtra:
			if !d.pull(d.extraBits) {
				return
			}
			d.copyDist += int(d.take(d.extraBits))
			if d.copyDist > len(d.out) {
				d.fail(ErrDistanceTooFar)
				return
			}
			if d.OutputLimit > 0 && int64(len(d.out)+d.copyLen) > d.OutputLimit {
				d.fail(ErrOutputLimit)
				return
			}
			// The copy needs no further input and the output is fully
			// buffered, so it never suspends. Byte-at-a-time supports
			// overlapping references.
			start := len(d.out) - d.copyDist
			for i := 0; i < d.copyLen; i++ {
				d.out = append(d.out, d.out[start+i])
			}
			d.state = stateSymbol

		case stateDone:
			return
		}
	}
}

// readCodeLengths decodes literal/length and distance code lengths through
// the code-length code, handling the three repeat ops. False means
// suspended or failed.
func (d *Decompressor) readCodeLengths() bool {
	total := d.nlit + d.ndist
	for d.lenIndex < total {
		if d.lenSym < 0 {
			sym, ok := d.decodeSym(&d.clTable)
			if !ok {
				return false
			}
			if sym < 16 {
				d.lens[d.lenIndex] = uint8(sym)
				d.lenIndex++
				continue
			}
			d.lenSym = sym
		}

		var need uint
		var repeat int
		var value uint8
		switch d.lenSym {
		case 16:
			if d.lenIndex == 0 {
				d.fail(ErrLengthRepeat)
				return false
			}
			need, repeat = 2, 3
			value = d.lens[d.lenIndex-1]
		case 17:
			need, repeat = 3, 3
		default: // 18
			need, repeat = 7, 11
		}
		if !d.pull(need) {
			return false
		}
		repeat += int(d.take(need))
		d.lenSym = -1

		if d.lenIndex+repeat > total {
			d.fail(ErrLengthRepeat)
			return false
		}
		for i := 0; i < repeat; i++ {
			d.lens[d.lenIndex] = value
			d.lenIndex++
		}
	}
	return true
}
