package jpeg

import (
	"github.com/cocosip/go-image-codec/bytestream"
	"github.com/cocosip/go-image-codec/codec"
)

// huffTable is a canonical Huffman table built from a DHT segment, with a
// one-byte lookup table accelerating codes of up to eight bits.
type huffTable struct {
	bits   [16]int // number of codes of each length 1..16
	values []byte  // symbols in code order

	minCode [16]int32
	maxCode [16]int32
	valPtr  [16]int32

	// lookup holds (codeLength << 8) | symbol for every 8-bit prefix that
	// starts a short code, and -1 where the code is longer than 8 bits.
	lookup [256]int16
}

// build derives the decode tables, rejecting length counts that describe an
// impossible canonical code.
func (t *huffTable) build() error {
	code := int32(0)
	p := 0
	for l := 0; l < 16; l++ {
		if t.bits[l] == 0 {
			t.maxCode[l] = -1
		} else {
			t.valPtr[l] = int32(p)
			t.minCode[l] = code
			p += t.bits[l]
			code += int32(t.bits[l])
			t.maxCode[l] = code - 1
		}
		if code > int32(1)<<uint(l+1) {
			return codec.ErrCorruptStream
		}
		code <<= 1
	}
	if p != len(t.values) {
		return codec.ErrCorruptStream
	}

	for i := range t.lookup {
		t.lookup[i] = -1
	}
	p = 0
	for l := 0; l < 8; l++ {
		for i := 0; i < t.bits[l]; i++ {
			first := (int(t.minCode[l]) + i) << uint(7-l)
			for j := 0; j < 1<<uint(7-l); j++ {
				t.lookup[first+j] = int16((l+1)<<8 | int(t.values[p]))
			}
			p++
		}
	}
	return nil
}

// entropyReader reads the entropy-coded segment bit by bit, undoing byte
// stuffing and stopping at the first real marker without consuming it.
type entropyReader struct {
	src  bytestream.Source
	bits uint32
	n    int
}

// fill buffers one more data byte. A marker in the stream means the segment
// ended while the decoder still needed bits, which is a corrupt scan.
func (er *entropyReader) fill() error {
	p, err := er.src.Peek(1)
	if err != nil {
		return codec.WrapTruncated(er.src.Position(), err)
	}
	b := p[0]
	if b != 0xFF {
		_ = er.src.Skip(1)
		er.bits = er.bits<<8 | uint32(b)
		er.n += 8
		return nil
	}
	p, err = er.src.Peek(2)
	if err != nil {
		return codec.WrapTruncated(er.src.Position(), err)
	}
	if p[1] != 0x00 {
		return codec.Corruptf(er.src.Position(), "marker %#04x inside entropy-coded data", 0xFF00|uint16(p[1]))
	}
	_ = er.src.Skip(2)
	er.bits = er.bits<<8 | 0xFF
	er.n += 8
	return nil
}

func (er *entropyReader) readBit() (uint32, error) {
	if er.n == 0 {
		if err := er.fill(); err != nil {
			return 0, err
		}
	}
	er.n--
	return (er.bits >> uint(er.n)) & 1, nil
}

func (er *entropyReader) readBits(n int) (uint32, error) {
	for er.n < n {
		if err := er.fill(); err != nil {
			return 0, err
		}
	}
	er.n -= n
	return (er.bits >> uint(er.n)) & (1<<uint(n) - 1), nil
}

// decode reads the next Huffman symbol from the stream.
func (er *entropyReader) decode(t *huffTable) (byte, error) {
	if er.n < 8 {
		// Best effort: a marker or EOF here may still leave enough
		// buffered bits for the symbol, so defer the error to the
		// bit-level reads.
		for er.n < 8 {
			if err := er.fill(); err != nil {
				break
			}
		}
	}
	if er.n >= 8 {
		peek := (er.bits >> uint(er.n-8)) & 0xFF
		if entry := t.lookup[peek]; entry >= 0 {
			er.n -= int(entry >> 8)
			return byte(entry), nil
		}
	}

	code := int32(0)
	for l := 0; l < 16; l++ {
		bit, err := er.readBit()
		if err != nil {
			return 0, err
		}
		code = code<<1 | int32(bit)
		if t.maxCode[l] >= 0 && code >= t.minCode[l] && code <= t.maxCode[l] {
			return t.values[t.valPtr[l]+code-t.minCode[l]], nil
		}
	}
	return 0, codec.Corruptf(er.src.Position(), "invalid huffman code")
}

// receiveExtend reads an ssss-bit magnitude and sign-extends it per the
// EXTEND procedure of T.81.
func (er *entropyReader) receiveExtend(ssss int) (int32, error) {
	if ssss == 0 {
		return 0, nil
	}
	v, err := er.readBits(ssss)
	if err != nil {
		return 0, err
	}
	val := int32(v)
	if val < int32(1)<<uint(ssss-1) {
		val += (-1 << uint(ssss)) + 1
	}
	return val, nil
}

// restart discards the partial byte and consumes the expected RSTn marker.
func (er *entropyReader) restart(idx int) error {
	er.bits, er.n = 0, 0
	p, err := er.src.Peek(2)
	if err != nil {
		return codec.WrapTruncated(er.src.Position(), err)
	}
	m := uint16(p[0])<<8 | uint16(p[1])
	want := uint16(markerRST0 + idx)
	if m != want {
		return codec.Corruptf(er.src.Position(), "marker %#04x, want restart marker %#04x", m, want)
	}
	_ = er.src.Skip(2)
	return nil
}
