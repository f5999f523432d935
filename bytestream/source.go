// Package bytestream provides the byte-source abstraction the codecs decode
// from: sequential reads with bounded lookahead over either an in-memory
// buffer or any io.Reader, plus typed field and bit-level readers layered on
// top.
package bytestream

import (
	"errors"
	"io"
)

// Package errors. Format layers wrap these into their own typed errors with
// the offset obtained from Position.
var (
	// ErrTruncated is returned when the source ends before a required read
	// completes. The source never blocks indefinitely to avoid it.
	ErrTruncated = errors.New("bytestream: truncated input")

	// ErrPeek is returned when a peek asks for more lookahead than the
	// source can buffer.
	ErrPeek = errors.New("bytestream: peek beyond lookahead window")

	// ErrNegativeCount is returned for negative read/peek/skip sizes.
	ErrNegativeCount = errors.New("bytestream: negative count")

	// ErrBitCount is returned for bit-field widths outside 0..32.
	ErrBitCount = errors.New("bytestream: bit count out of range")
)

// Source is the byte-source contract. A Source is owned by a single decoder
// for the duration of one decode and is not safe for concurrent use.
type Source interface {
	// ReadExact fills p completely or fails with ErrTruncated (wrapped
	// read errors for stream-backed sources). On failure the read cursor
	// is unchanged.
	ReadExact(p []byte) error

	// Peek returns the next n bytes without advancing. The returned slice
	// is only valid until the next call on the Source. Fails with
	// ErrTruncated if fewer than n bytes remain, or ErrPeek if n exceeds
	// the source's lookahead capacity.
	Peek(n int) ([]byte, error)

	// Skip advances past n bytes, failing with ErrTruncated if fewer
	// remain.
	Skip(n int) error

	// Position returns the number of bytes consumed so far, used for error
	// offsets.
	Position() int64
}

// BytesSource is a Source over an in-memory buffer, the dominant concrete
// form. Peek is zero-copy and its lookahead is bounded only by the buffer.
type BytesSource struct {
	data []byte
	off  int
}

// NewBytesSource returns a Source reading from data. The buffer is not
// copied; the caller must not mutate it during the decode.
func NewBytesSource(data []byte) *BytesSource {
	return &BytesSource{data: data}
}

// ReadExact implements Source.
func (s *BytesSource) ReadExact(p []byte) error {
	if len(p) > len(s.data)-s.off {
		return ErrTruncated
	}
	copy(p, s.data[s.off:])
	s.off += len(p)
	return nil
}

// Peek implements Source.
func (s *BytesSource) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeCount
	}
	if n > len(s.data)-s.off {
		return nil, ErrTruncated
	}
	return s.data[s.off : s.off+n], nil
}

// Skip implements Source.
func (s *BytesSource) Skip(n int) error {
	if n < 0 {
		return ErrNegativeCount
	}
	if n > len(s.data)-s.off {
		return ErrTruncated
	}
	s.off += n
	return nil
}

// Position implements Source.
func (s *BytesSource) Position() int64 {
	return int64(s.off)
}

// Remaining returns the number of unread bytes.
func (s *BytesSource) Remaining() int {
	return len(s.data) - s.off
}

// defaultLookahead is the StreamSource peek window.
const defaultLookahead = 4096

// StreamSource is a Source over an arbitrary io.Reader with a bounded
// lookahead buffer for Peek. Reads larger than the buffer bypass it.
type StreamSource struct {
	r    io.Reader
	buf  []byte
	head int
	tail int
	pos  int64 // absolute position of buf[head]
	err  error // sticky terminal read error
}

// NewStreamSource returns a Source reading from r with the default
// lookahead window.
func NewStreamSource(r io.Reader) *StreamSource {
	return NewStreamSourceSize(r, defaultLookahead)
}

// NewStreamSourceSize returns a Source reading from r with a lookahead
// window of at least size bytes.
func NewStreamSourceSize(r io.Reader, size int) *StreamSource {
	if size < 16 {
		size = 16
	}
	return &StreamSource{r: r, buf: make([]byte, size)}
}

func (s *StreamSource) buffered() int {
	return s.tail - s.head
}

// fill tries to buffer at least n bytes; it stops early on a terminal read
// error, which is recorded and reported by the caller.
func (s *StreamSource) fill(n int) {
	if s.buffered() >= n || s.err != nil {
		return
	}
	if s.head > 0 {
		copy(s.buf, s.buf[s.head:s.tail])
		s.tail -= s.head
		s.head = 0
	}
	for s.tail < n && s.err == nil {
		m, err := s.r.Read(s.buf[s.tail:])
		s.tail += m
		if err != nil {
			s.err = err
		} else if m == 0 {
			s.err = io.ErrNoProgress
		}
	}
}

// ReadExact implements Source.
func (s *StreamSource) ReadExact(p []byte) error {
	n := len(p)
	if n <= s.buffered() {
		copy(p, s.buf[s.head:s.head+n])
		s.head += n
		s.pos += int64(n)
		return nil
	}
	if n <= len(s.buf) {
		s.fill(n)
		if s.buffered() < n {
			return ErrTruncated
		}
		copy(p, s.buf[s.head:s.head+n])
		s.head += n
		s.pos += int64(n)
		return nil
	}
	// Large read: drain the buffer, then read the remainder directly.
	got := s.buffered()
	copy(p, s.buf[s.head:s.tail])
	s.head = s.tail
	if _, err := io.ReadFull(s.r, p[got:]); err != nil {
		// The cursor moved for the buffered part; the contract says it
		// must not. Stash the bytes back so a retry sees them.
		copy(s.buf, p[:got])
		s.head, s.tail = 0, got
		return ErrTruncated
	}
	s.pos += int64(n)
	return nil
}

// Peek implements Source.
func (s *StreamSource) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeCount
	}
	if n > len(s.buf) {
		return nil, ErrPeek
	}
	s.fill(n)
	if s.buffered() < n {
		return nil, ErrTruncated
	}
	return s.buf[s.head : s.head+n], nil
}

// Skip implements Source.
func (s *StreamSource) Skip(n int) error {
	if n < 0 {
		return ErrNegativeCount
	}
	if b := s.buffered(); n <= b {
		s.head += n
		s.pos += int64(n)
		return nil
	}
	rest := n - s.buffered()
	s.pos += int64(s.buffered())
	s.head = s.tail
	m, err := io.CopyN(io.Discard, s.r, int64(rest))
	s.pos += m
	if err != nil {
		return ErrTruncated
	}
	return nil
}

// Position implements Source.
func (s *StreamSource) Position() int64 {
	return s.pos
}
