package inflate

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/klauspost/compress/flate"

	"github.com/cocosip/go-image-codec/codec"
)

// deflateBytes compresses data to a raw deflate stream.
func deflateBytes(t *testing.T, data []byte, level int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		t.Fatalf("flate.NewWriter: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("flate write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("flate close: %v", err)
	}
	return buf.Bytes()
}

// feedPieces pushes stream through a fresh decompressor in pieces of the
// given size (0 = all at once) and returns the output.
func feedPieces(t *testing.T, stream []byte, piece int) []byte {
	t.Helper()
	d := NewDecompressor()
	if piece <= 0 {
		piece = len(stream)
	}
	for off := 0; off < len(stream); {
		end := off + piece
		if end > len(stream) {
			end = len(stream)
		}
		consumed, done, err := d.Feed(stream[off:end])
		if err != nil {
			t.Fatalf("Feed at %d: %v", off, err)
		}
		off += consumed
		if done {
			break
		}
		if consumed == 0 && end == len(stream) {
			t.Fatalf("no progress at %d without completion", off)
		}
	}
	if err := d.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return d.Output()
}

func testPayloads() map[string][]byte {
	rng := rand.New(rand.NewSource(7))
	random := make([]byte, 100000)
	rng.Read(random)
	text := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 400)
	return map[string][]byte{
		"Empty":   {},
		"OneByte": {0x42},
		"Text":    text,
		"Random":  random,
		"Overlap": bytes.Repeat([]byte("ab"), 2000),
		"Zeros":   make([]byte, 50000),
	}
}

func TestInflateRoundTrip(t *testing.T) {
	levels := map[string]int{
		"Stored":      flate.NoCompression,
		"Fast":        flate.BestSpeed,
		"Default":     flate.DefaultCompression,
		"Best":        flate.BestCompression,
		"HuffmanOnly": flate.HuffmanOnly,
	}
	for lname, level := range levels {
		for pname, payload := range testPayloads() {
			t.Run(lname+"/"+pname, func(t *testing.T) {
				stream := deflateBytes(t, payload, level)
				got := feedPieces(t, stream, 0)
				if !bytes.Equal(got, payload) {
					t.Fatalf("output mismatch: got %d bytes, want %d", len(got), len(payload))
				}
			})
		}
	}
}

func TestInflateResumable(t *testing.T) {
	payload := bytes.Repeat([]byte("resumable decompression across feeds "), 600)
	stream := deflateBytes(t, payload, flate.DefaultCompression)

	for _, piece := range []int{1, 2, 3, 7, 64, 1000} {
		got := feedPieces(t, stream, piece)
		if !bytes.Equal(got, payload) {
			t.Fatalf("piece size %d: output mismatch", piece)
		}
	}

	// Random split points must behave identically to whole-buffer decode.
	rng := rand.New(rand.NewSource(11))
	d := NewDecompressor()
	off := 0
	for off < len(stream) {
		n := 1 + rng.Intn(37)
		if off+n > len(stream) {
			n = len(stream) - off
		}
		consumed, done, err := d.Feed(stream[off : off+n])
		if err != nil {
			t.Fatalf("Feed at %d: %v", off, err)
		}
		off += consumed
		if done {
			break
		}
	}
	if err := d.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !bytes.Equal(d.Output(), payload) {
		t.Fatal("random-split output mismatch")
	}
}

func TestInflateStoredBlock(t *testing.T) {
	// Final stored block: LEN=5, NLEN=^5, payload "hello".
	stream := []byte{0x01, 0x05, 0x00, 0xFA, 0xFF, 'h', 'e', 'l', 'l', 'o'}

	d := NewDecompressor()
	consumed, done, err := d.Feed(stream)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !done || consumed != len(stream) {
		t.Fatalf("Feed = (%d, %v), want (%d, true)", consumed, done, len(stream))
	}
	if string(d.Output()) != "hello" {
		t.Errorf("Output = %q, want hello", d.Output())
	}

	// Bytes past the end of the stream stay unconsumed.
	d = NewDecompressor()
	withTrailer := append(append([]byte{}, stream...), 0xAA, 0xBB)
	consumed, done, err = d.Feed(withTrailer)
	if err != nil || !done {
		t.Fatalf("Feed = (%d, %v, %v)", consumed, done, err)
	}
	if consumed != len(stream) {
		t.Errorf("consumed = %d, want %d", consumed, len(stream))
	}
}

func TestInflateEmptyFixedBlock(t *testing.T) {
	// Final fixed-Huffman block holding only the end-of-block symbol.
	d := NewDecompressor()
	_, done, err := d.Feed([]byte{0x03, 0x00})
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !done || len(d.Output()) != 0 {
		t.Fatalf("done=%v len=%d, want true, 0", done, len(d.Output()))
	}
}

func TestInflateErrors(t *testing.T) {
	tests := []struct {
		name   string
		stream []byte
		cause  error
	}{
		{
			// Final block with reserved type 3.
			name:   "ReservedBlockType",
			stream: []byte{0x07},
			cause:  ErrBlockType,
		},
		{
			// Stored block where NLEN is not LEN's complement.
			name:   "StoredLengthCheck",
			stream: []byte{0x01, 0x05, 0x00, 0x00, 0x00},
			cause:  ErrStoredLength,
		},
		{
			// Fixed block: literal 'a', then a length-3 match at distance
			// 2 with only one byte produced.
			name:   "DistanceTooFar",
			stream: []byte{0x4B, 0x04, 0x42},
			cause:  ErrDistanceTooFar,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDecompressor()
			_, _, err := d.Feed(tc.stream)
			if err == nil {
				err = d.Finish()
			}
			if !errors.Is(err, tc.cause) {
				t.Fatalf("error = %v, want cause %v", err, tc.cause)
			}
			if !errors.Is(err, codec.ErrCorruptStream) {
				t.Errorf("error = %v, want kind CorruptStream", err)
			}
			var ce *codec.Error
			if !errors.As(err, &ce) {
				t.Fatalf("error is not a *codec.Error: %v", err)
			}
		})
	}
}

func TestInflateTruncated(t *testing.T) {
	// Stored block promising five bytes, delivering two.
	d := NewDecompressor()
	_, done, err := d.Feed([]byte{0x01, 0x05, 0x00, 0xFA, 0xFF, 'h', 'e'})
	if err != nil || done {
		t.Fatalf("Feed = (_, %v, %v), want incomplete", done, err)
	}
	err = d.Finish()
	if !errors.Is(err, codec.ErrTruncated) {
		t.Fatalf("Finish = %v, want kind Truncated", err)
	}
}

func TestInflateOutputLimit(t *testing.T) {
	stream := deflateBytes(t, []byte("hello world"), flate.DefaultCompression)

	d := NewDecompressor()
	d.OutputLimit = 5
	_, _, err := d.Feed(stream)
	if !errors.Is(err, ErrOutputLimit) {
		t.Fatalf("error = %v, want ErrOutputLimit", err)
	}

	// An exact-fit limit passes.
	d = NewDecompressor()
	d.OutputLimit = int64(len("hello world"))
	if _, done, err := d.Feed(stream); err != nil || !done {
		t.Fatalf("exact-fit decode failed: done=%v err=%v", done, err)
	}
}

func TestInflateFeedAfterDone(t *testing.T) {
	d := NewDecompressor()
	if _, done, err := d.Feed([]byte{0x03, 0x00}); err != nil || !done {
		t.Fatalf("setup failed: %v", err)
	}
	consumed, done, err := d.Feed([]byte{0x01, 0x02})
	if consumed != 0 || !done || err != nil {
		t.Fatalf("Feed after done = (%d, %v, %v), want (0, true, nil)", consumed, done, err)
	}
}

func TestHuffTablePolicy(t *testing.T) {
	tests := []struct {
		name    string
		lengths []uint8
		ok      bool
	}{
		{"Complete", []uint8{1, 2, 2}, true},
		{"OverSubscribed", []uint8{1, 1, 1}, false},
		{"IncompleteRejected", []uint8{2, 0, 0}, false},
		{"DegenerateSingleCode", []uint8{1, 0, 0}, true},
		{"DegenerateEmpty", []uint8{0, 0, 0}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var ht huffTable
			err := ht.buildChecked(tc.lengths)
			if tc.ok && err != nil {
				t.Fatalf("buildChecked = %v, want nil", err)
			}
			if !tc.ok && !errors.Is(err, ErrCodeLengths) {
				t.Fatalf("buildChecked = %v, want ErrCodeLengths", err)
			}
		})
	}
}

func TestFixedTablesComplete(t *testing.T) {
	if got := len(fixedLit.symbol); got != 288 {
		t.Errorf("fixed literal table has %d symbols, want 288", got)
	}
	if got := len(fixedDist.symbol); got != 32 {
		t.Errorf("fixed distance table has %d symbols, want 32", got)
	}
}
