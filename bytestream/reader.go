package bytestream

import "encoding/binary"

// Reader layers typed field reads over a Source. All multi-byte reads are
// explicit about endianness because the formats disagree with each other.
type Reader struct {
	src     Source
	scratch [8]byte
}

// NewReader returns a Reader over src.
func NewReader(src Source) *Reader {
	return &Reader{src: src}
}

// Source returns the underlying Source.
func (r *Reader) Source() Source {
	return r.src
}

// Position returns the underlying source position.
func (r *Reader) Position() int64 {
	return r.src.Position()
}

// ReadFull fills p from the source.
func (r *Reader) ReadFull(p []byte) error {
	return r.src.ReadExact(p)
}

// ReadBytes reads and returns n freshly allocated bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeCount
	}
	p := make([]byte, n)
	if err := r.src.ReadExact(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Peek returns the next n bytes without advancing.
func (r *Reader) Peek(n int) ([]byte, error) {
	return r.src.Peek(n)
}

// Skip advances past n bytes.
func (r *Reader) Skip(n int) error {
	return r.src.Skip(n)
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.src.ReadExact(r.scratch[:1]); err != nil {
		return 0, err
	}
	return r.scratch[0], nil
}

// ReadUint16BE reads a big-endian 16-bit value.
func (r *Reader) ReadUint16BE() (uint16, error) {
	if err := r.src.ReadExact(r.scratch[:2]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(r.scratch[:2]), nil
}

// ReadUint16LE reads a little-endian 16-bit value.
func (r *Reader) ReadUint16LE() (uint16, error) {
	if err := r.src.ReadExact(r.scratch[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.scratch[:2]), nil
}

// ReadUint32BE reads a big-endian 32-bit value.
func (r *Reader) ReadUint32BE() (uint32, error) {
	if err := r.src.ReadExact(r.scratch[:4]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(r.scratch[:4]), nil
}

// ReadUint32LE reads a little-endian 32-bit value.
func (r *Reader) ReadUint32LE() (uint32, error) {
	if err := r.src.ReadExact(r.scratch[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.scratch[:4]), nil
}
