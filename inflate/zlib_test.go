package inflate

import (
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/zlib"

	"github.com/cocosip/go-image-codec/codec"
)

func zlibBytes(t *testing.T, data []byte, level int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		t.Fatalf("zlib.NewWriterLevel: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

func TestZlibRoundTrip(t *testing.T) {
	for name, payload := range testPayloads() {
		t.Run(name, func(t *testing.T) {
			stream := zlibBytes(t, payload, zlib.DefaultCompression)

			// Whole-buffer feed.
			z := NewZlibDecompressor()
			consumed, done, err := z.Feed(stream)
			if err != nil {
				t.Fatalf("Feed: %v", err)
			}
			if !done || consumed != len(stream) {
				t.Fatalf("Feed = (%d, %v), want (%d, true)", consumed, done, len(stream))
			}
			if err := z.Finish(); err != nil {
				t.Fatalf("Finish: %v", err)
			}
			if !bytes.Equal(z.Output(), payload) {
				t.Fatal("output mismatch")
			}

			// Byte-by-byte feed must agree.
			z = NewZlibDecompressor()
			for off := 0; off < len(stream); {
				c, d2, err := z.Feed(stream[off : off+1])
				if err != nil {
					t.Fatalf("byte feed at %d: %v", off, err)
				}
				off += c
				if d2 {
					break
				}
			}
			if err := z.Finish(); err != nil {
				t.Fatalf("byte-feed Finish: %v", err)
			}
			if !bytes.Equal(z.Output(), payload) {
				t.Fatal("byte-feed output mismatch")
			}
		})
	}
}

func TestZlibTrailingData(t *testing.T) {
	stream := zlibBytes(t, []byte("payload"), zlib.DefaultCompression)
	withTrailer := append(append([]byte{}, stream...), 1, 2, 3)

	z := NewZlibDecompressor()
	consumed, done, err := z.Feed(withTrailer)
	if err != nil || !done {
		t.Fatalf("Feed = (%d, %v, %v)", consumed, done, err)
	}
	if consumed != len(stream) {
		t.Errorf("consumed = %d, want %d (trailing bytes left to caller)", consumed, len(stream))
	}
}

func TestZlibHeaderErrors(t *testing.T) {
	tests := []struct {
		name  string
		hdr   []byte
		cause error
		kind  error
	}{
		{"BadCheck", []byte{0x78, 0x9D}, ErrZlibHeader, codec.ErrCorruptStream},
		{"BadMethod", []byte{0x77, 0x01}, ErrZlibHeader, codec.ErrCorruptStream},
		{"OversizedWindow", []byte{0x88, 0x98}, ErrZlibHeader, codec.ErrCorruptStream},
		{"PresetDictionary", []byte{0x78, 0x20}, ErrDictionary, codec.ErrUnsupportedFeature},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			z := NewZlibDecompressor()
			_, _, err := z.Feed(tc.hdr)
			if !errors.Is(err, tc.cause) {
				t.Fatalf("error = %v, want cause %v", err, tc.cause)
			}
			if !errors.Is(err, tc.kind) {
				t.Errorf("error = %v, want kind %v", err, tc.kind)
			}
		})
	}
}

func TestZlibChecksum(t *testing.T) {
	payload := []byte("checksummed payload")
	stream := zlibBytes(t, payload, zlib.DefaultCompression)

	corrupted := append([]byte{}, stream...)
	corrupted[len(corrupted)-1] ^= 0xFF

	z := NewZlibDecompressor()
	_, _, err := z.Feed(corrupted)
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("error = %v, want ErrChecksum", err)
	}
	if !errors.Is(err, codec.ErrCorruptStream) {
		t.Errorf("error = %v, want kind CorruptStream", err)
	}

	// The same stream passes with verification disabled.
	z = NewZlibDecompressor()
	z.SkipChecksum = true
	_, done, err := z.Feed(corrupted)
	if err != nil || !done {
		t.Fatalf("SkipChecksum feed = (%v, %v)", done, err)
	}
	if !bytes.Equal(z.Output(), payload) {
		t.Fatal("SkipChecksum output mismatch")
	}
}

func TestZlibTruncated(t *testing.T) {
	stream := zlibBytes(t, bytes.Repeat([]byte("x"), 1000), zlib.DefaultCompression)

	for _, cut := range []int{1, 2, len(stream) / 2, len(stream) - 3} {
		z := NewZlibDecompressor()
		_, done, err := z.Feed(stream[:cut])
		if err != nil {
			// A cut can also land as corruption; both kinds are fine, a
			// silent success is not.
			if !errors.Is(err, codec.ErrCorruptStream) && !errors.Is(err, codec.ErrTruncated) {
				t.Fatalf("cut %d: unexpected kind: %v", cut, err)
			}
			continue
		}
		if done {
			t.Fatalf("cut %d: stream reported complete", cut)
		}
		if err := z.Finish(); !errors.Is(err, codec.ErrTruncated) {
			t.Fatalf("cut %d: Finish = %v, want kind Truncated", cut, err)
		}
	}
}

func TestZlibOutputLimit(t *testing.T) {
	stream := zlibBytes(t, make([]byte, 4096), zlib.DefaultCompression)

	z := NewZlibDecompressor()
	z.SetOutputLimit(100)
	_, _, err := z.Feed(stream)
	if !errors.Is(err, ErrOutputLimit) {
		t.Fatalf("error = %v, want ErrOutputLimit", err)
	}
}
