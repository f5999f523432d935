package bytestream

// BitOrder selects which end of each byte a BitReader consumes first. Image
// containers and entropy coders disagree: PNG sub-byte samples and JPEG
// entropy data are MSB-first, DEFLATE is LSB-first.
type BitOrder int

const (
	// MSBFirst consumes the most significant bit of each byte first.
	MSBFirst BitOrder = iota
	// LSBFirst consumes the least significant bit of each byte first.
	LSBFirst
)

// BitReader reads bit fields of 1..32 bits from a Source in a fixed bit
// order. Byte-aligned fields can be read through a Reader on the same
// Source after AlignToByte.
type BitReader struct {
	src   Source
	order BitOrder
	acc   uint64
	nbits uint
	one   [1]byte
}

// NewBitReader returns a BitReader over src consuming bits in the given
// order.
func NewBitReader(src Source, order BitOrder) *BitReader {
	return &BitReader{src: src, order: order}
}

func (b *BitReader) refill() error {
	if err := b.src.ReadExact(b.one[:]); err != nil {
		return err
	}
	if b.order == MSBFirst {
		b.acc = b.acc<<8 | uint64(b.one[0])
	} else {
		b.acc |= uint64(b.one[0]) << b.nbits
	}
	b.nbits += 8
	return nil
}

// ReadBit reads a single bit.
func (b *BitReader) ReadBit() (uint32, error) {
	return b.ReadBits(1)
}

// ReadBits reads an n-bit field, 0 <= n <= 32. In MSB-first order the first
// bit read lands in the field's most significant position; in LSB-first
// order it lands in the least significant position.
func (b *BitReader) ReadBits(n uint) (uint32, error) {
	if n > 32 {
		return 0, ErrBitCount
	}
	for b.nbits < n {
		if err := b.refill(); err != nil {
			return 0, err
		}
	}
	var v uint32
	if b.order == MSBFirst {
		b.nbits -= n
		v = uint32(b.acc>>b.nbits) & mask32(n)
		b.acc &= (1 << b.nbits) - 1
	} else {
		v = uint32(b.acc) & mask32(n)
		b.acc >>= n
		b.nbits -= n
	}
	return v, nil
}

// AlignToByte discards buffered bits up to the next byte boundary.
func (b *BitReader) AlignToByte() {
	drop := b.nbits % 8
	if drop == 0 {
		return
	}
	if b.order == MSBFirst {
		b.nbits -= drop
		b.acc &= (1 << b.nbits) - 1
	} else {
		b.acc >>= drop
		b.nbits -= drop
	}
}

// Buffered returns the number of bits read from the source but not yet
// consumed.
func (b *BitReader) Buffered() uint {
	return b.nbits
}

// Position returns the underlying source position. Buffered bits count as
// consumed.
func (b *BitReader) Position() int64 {
	return b.src.Position()
}

func mask32(n uint) uint32 {
	if n >= 32 {
		return ^uint32(0)
	}
	return uint32(1)<<n - 1
}
