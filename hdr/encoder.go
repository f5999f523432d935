package hdr

import (
	"fmt"

	"github.com/cocosip/go-image-codec/codec"
)

// Encoder writes Radiance pictures with new-style RLE scanlines where the
// width permits them.
type Encoder struct{}

var _ codec.Encoder = (*Encoder)(nil)

// NewEncoder returns an encoder. The format has no tunables; opts is
// validated and otherwise ignored.
func NewEncoder(opts *codec.EncoderOptions) (*Encoder, error) {
	if opts != nil {
		if err := opts.Validate(); err != nil {
			return nil, err
		}
	}
	return &Encoder{}, nil
}

// Encode serializes img, which must be a single four-channel 8-bit frame of
// RGBE quads covering the canvas.
func (e *Encoder) Encode(img *codec.Image) ([]byte, error) {
	if img == nil || len(img.Frames) == 0 {
		return nil, fmt.Errorf("hdr: nothing to encode")
	}
	if len(img.Frames) > 1 {
		return nil, fmt.Errorf("hdr: animation not supported")
	}
	hdr := &img.Header
	if hdr.Mode != codec.TruecolorAlpha || hdr.Depth != 8 {
		return nil, fmt.Errorf("hdr: requires 8-bit four-channel RGBE, have %d-bit %s", hdr.Depth, hdr.Mode)
	}
	w, h := hdr.Width, hdr.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("hdr: invalid dimensions %dx%d", w, h)
	}
	f := img.Frames[0]
	if f.X != 0 || f.Y != 0 || f.Width != w || f.Height != h {
		return nil, fmt.Errorf("hdr: frame must cover the canvas")
	}
	if len(f.Pixels) != w*h*4 {
		return nil, fmt.Errorf("hdr: %d pixel bytes, want %d", len(f.Pixels), w*h*4)
	}

	rle := w >= minRLEWidth && w <= maxRLEWidth
	if !rle {
		// Flat rows have no escape for a literal (1,1,1,x) quad; it
		// would read back as a run marker.
		for i := 0; i+3 < len(f.Pixels); i += 4 {
			if f.Pixels[i] == 1 && f.Pixels[i+1] == 1 && f.Pixels[i+2] == 1 {
				return nil, fmt.Errorf("hdr: pixel (1,1,1,%d) not representable in flat scanlines", f.Pixels[i+3])
			}
		}
	}

	out := []byte(fmt.Sprintf("#?RADIANCE\nFORMAT=%s\n\n-Y %d +X %d\n", formatLine, h, w))
	plane := make([]byte, w)
	for y := 0; y < h; y++ {
		row := f.Pixels[y*w*4 : (y+1)*w*4]
		if !rle {
			out = append(out, row...)
			continue
		}
		out = append(out, 2, 2, byte(w>>8), byte(w))
		for c := 0; c < 4; c++ {
			for x := 0; x < w; x++ {
				plane[x] = row[x*4+c]
			}
			out = appendRLE(out, plane)
		}
	}
	return out, nil
}

// appendRLE run-length codes one component plane: runs of at least three
// identical bytes become (128+len, value) pairs, everything between them
// literal chunks of at most 128 bytes.
func appendRLE(out, plane []byte) []byte {
	const minRun = 3
	w := len(plane)
	for j := 0; j < w; {
		beg, cnt := j, 0
		for beg < w {
			cnt = 1
			for beg+cnt < w && cnt < 127 && plane[beg+cnt] == plane[beg] {
				cnt++
			}
			if cnt >= minRun {
				break
			}
			beg += cnt
		}
		for j < beg {
			n := beg - j
			if n > 128 {
				n = 128
			}
			out = append(out, byte(n))
			out = append(out, plane[j:j+n]...)
			j += n
		}
		if beg < w {
			out = append(out, byte(128+cnt), plane[beg])
			j = beg + cnt
		}
	}
	return out
}
