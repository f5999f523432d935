package hdr

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cocosip/go-image-codec/bytestream"
	"github.com/cocosip/go-image-codec/codec"
)

func header(w, h int) string {
	return fmt.Sprintf("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n-Y %d +X %d\n", h, w)
}

func decode(t *testing.T, data []byte, opts *codec.DecoderOptions) (*codec.Image, error) {
	t.Helper()
	d, err := NewDecoder(bytestream.NewBytesSource(data), opts)
	require.NoError(t, err)
	return d.Decode()
}

func TestDecodeFlat(t *testing.T) {
	// Width 3 is below the RLE threshold: raw quads.
	pixels := []byte{
		10, 11, 12, 130, 20, 21, 22, 131, 30, 31, 32, 132,
		40, 41, 42, 133, 50, 51, 52, 134, 60, 61, 62, 135,
	}
	data := append([]byte(header(3, 2)), pixels...)
	img, err := decode(t, data, nil)
	require.NoError(t, err)
	require.Equal(t, 3, img.Header.Width)
	require.Equal(t, 2, img.Header.Height)
	require.Equal(t, 8, img.Header.Depth)
	require.Equal(t, codec.TruecolorAlpha, img.Header.Mode)
	require.Len(t, img.Frames, 1)
	require.Equal(t, pixels, img.Frames[0].Pixels)
}

func TestDecodeHeaderVariables(t *testing.T) {
	data := []byte("#?RGBE\n# a comment\nEXPOSURE=2.5\nFORMAT=32-bit_rle_rgbe\nGAMMA=1.0\n\n-Y 1 +X 2\n")
	data = append(data, 1, 2, 3, 4, 5, 6, 7, 8)
	img, err := decode(t, data, nil)
	require.NoError(t, err)
	require.Equal(t, 2, img.Header.Width)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, img.Frames[0].Pixels)
}

func TestDecodeRLE(t *testing.T) {
	// Hand-coded new-style scanline for an 8-wide row: R as one run,
	// G as one literal, B as a run then a literal, E as one run.
	scan := []byte{2, 2, 0, 8}
	scan = append(scan, 0x88, 0x40)
	scan = append(scan, 8, 1, 2, 3, 4, 5, 6, 7, 8)
	scan = append(scan, 0x85, 0x10, 3, 0xAA, 0xBB, 0xCC)
	scan = append(scan, 0x88, 0x80)
	data := append([]byte(header(8, 1)), scan...)

	img, err := decode(t, data, nil)
	require.NoError(t, err)
	px := img.Frames[0].Pixels
	require.Len(t, px, 8*4)
	blue := []byte{0x10, 0x10, 0x10, 0x10, 0x10, 0xAA, 0xBB, 0xCC}
	for x := 0; x < 8; x++ {
		require.Equal(t, byte(0x40), px[x*4], "x=%d", x)
		require.Equal(t, byte(x+1), px[x*4+1], "x=%d", x)
		require.Equal(t, blue[x], px[x*4+2], "x=%d", x)
		require.Equal(t, byte(0x80), px[x*4+3], "x=%d", x)
	}
}

func TestDecodeOldStyleRuns(t *testing.T) {
	// Width 4: one pixel, a marker repeating it twice, one more pixel.
	data := append([]byte(header(4, 1)),
		5, 6, 7, 8,
		1, 1, 1, 2,
		9, 10, 11, 12,
	)
	img, err := decode(t, data, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{
		5, 6, 7, 8, 5, 6, 7, 8, 5, 6, 7, 8, 9, 10, 11, 12,
	}, img.Frames[0].Pixels)
}

func TestDecodeOldStyleRunShift(t *testing.T) {
	// Consecutive markers scale by 256: 1 + 43 + 1<<8 pixels = 300.
	data := append([]byte(header(300, 1)),
		5, 6, 7, 8,
		1, 1, 1, 43,
		1, 1, 1, 1,
	)
	img, err := decode(t, data, nil)
	require.NoError(t, err)
	px := img.Frames[0].Pixels
	require.Len(t, px, 300*4)
	for x := 0; x < 300; x++ {
		require.Equal(t, []byte{5, 6, 7, 8}, px[x*4:x*4+4], "x=%d", x)
	}
}

func TestDecodeErrors(t *testing.T) {
	rle := func(tail ...byte) []byte {
		return append([]byte(header(8, 1)), tail...)
	}
	tests := []struct {
		name string
		data []byte
		want error
		msg  string
	}{
		{"BadMagic", []byte("#?RADIANC\nFORMAT=32-bit_rle_rgbe\n\n-Y 1 +X 1\n"), codec.ErrMalformedContainer, "bad magic"},
		{"MissingFormat", []byte("#?RADIANCE\nEXPOSURE=1\n\n-Y 1 +X 1\n"), codec.ErrMalformedContainer, "missing FORMAT"},
		{"WrongFormat", []byte("#?RADIANCE\nFORMAT=32-bit_rle_xyze\n\n-Y 1 +X 1\n"), codec.ErrUnsupportedFeature, "pixel format"},
		{"FlippedY", []byte("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n+Y 1 +X 1\n"), codec.ErrUnsupportedFeature, "orientation"},
		{"FlippedX", []byte("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n-Y 1 -X 1\n"), codec.ErrUnsupportedFeature, "orientation"},
		{"BadResolution", []byte("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n-Y one +X 1\n"), codec.ErrMalformedContainer, "resolution"},
		{"ShortResolution", []byte("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\nnope\n"), codec.ErrMalformedContainer, "resolution"},
		{"ZeroHeight", []byte("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n-Y 0 +X 1\n"), codec.ErrMalformedContainer, "resolution"},
		{"TruncatedHeader", []byte("#?RADIANCE\nFORMAT=32-bit"), codec.ErrTruncated, ""},
		{"TruncatedFlat", append([]byte(header(2, 1)), 1, 2, 3, 4, 9), codec.ErrTruncated, ""},
		{"TruncatedRLE", rle(2, 2, 0, 8, 0x88), codec.ErrTruncated, ""},
		{"RLEWidthMismatch", rle(2, 2, 0, 9, 1, 1), codec.ErrCorruptStream, "declares width 9"},
		{"ZeroRun", rle(2, 2, 0, 8, 0), codec.ErrCorruptStream, "zero-length run"},
		{"RunOverrun", rle(2, 2, 0, 8, 0x89, 1), codec.ErrCorruptStream, "overruns"},
		{"LiteralOverrun", rle(2, 2, 0, 8, 9, 1, 2, 3, 4, 5, 6, 7, 8, 9), codec.ErrCorruptStream, "overruns"},
		{"LeadingMarker", append([]byte(header(4, 1)), 1, 1, 1, 2), codec.ErrCorruptStream, "no previous pixel"},
		{"OldRunOverrun", append([]byte(header(4, 1)), 5, 6, 7, 8, 1, 1, 1, 200), codec.ErrCorruptStream, "overruns"},
		{"LongLine", []byte("#?RADIANCE\n" + strings.Repeat("x", 600) + "\n"), codec.ErrMalformedContainer, "exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(t, tt.data, nil)
			require.ErrorIs(t, err, tt.want)
			if tt.msg != "" {
				require.ErrorContains(t, err, tt.msg)
			}
		})
	}
}

func TestDecodeDimensionLimit(t *testing.T) {
	opts := codec.DefaultDecoderOptions()
	opts.MaxHeight = 4
	_, err := decode(t, []byte(header(1, 5)), opts)
	require.ErrorIs(t, err, codec.ErrUnsupportedFeature)
}

func rgbeImage(w, h int, seed int64) *codec.Image {
	f := &codec.Frame{Width: w, Height: h, Pixels: make([]byte, w*h*4)}
	rand.New(rand.NewSource(seed)).Read(f.Pixels)
	// Avoid quads that collide with the old-style run marker.
	for i := 0; i+3 < len(f.Pixels); i += 4 {
		if f.Pixels[i] == 1 && f.Pixels[i+1] == 1 && f.Pixels[i+2] == 1 {
			f.Pixels[i+2] = 2
		}
	}
	return &codec.Image{
		Header: codec.ImageHeader{Width: w, Height: h, Depth: 8, Mode: codec.TruecolorAlpha},
		Frames: []*codec.Frame{f},
	}
}

func TestRoundTrip(t *testing.T) {
	// A runs-heavy image exercises the run coder properly.
	runs := rgbeImage(64, 3, 5)
	for i := range runs.Frames[0].Pixels {
		runs.Frames[0].Pixels[i] = byte(i / 97)
	}

	tests := []struct {
		name string
		img  *codec.Image
	}{
		{"RLENoise", rgbeImage(16, 4, 1)},
		{"RLEWide", rgbeImage(129, 2, 2)},
		{"RLERuns", runs},
		{"FlatNarrow", rgbeImage(4, 3, 3)},
		{"FlatSinglePixel", rgbeImage(1, 1, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEncoder(nil)
			require.NoError(t, err)
			data, err := e.Encode(tt.img)
			require.NoError(t, err)

			out, err := decode(t, data, nil)
			require.NoError(t, err)
			require.Equal(t, tt.img.Header, out.Header)
			require.Equal(t, tt.img.Frames[0].Pixels, out.Frames[0].Pixels)
		})
	}
}

func TestEncodeGolden(t *testing.T) {
	img := &codec.Image{
		Header: codec.ImageHeader{Width: 1, Height: 1, Depth: 8, Mode: codec.TruecolorAlpha},
		Frames: []*codec.Frame{{Width: 1, Height: 1, Pixels: []byte{3, 4, 5, 6}}},
	}
	e, err := NewEncoder(nil)
	require.NoError(t, err)
	data, err := e.Encode(img)
	require.NoError(t, err)
	want := append([]byte("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n-Y 1 +X 1\n"), 3, 4, 5, 6)
	require.Equal(t, want, data)
}

func TestEncodeValidation(t *testing.T) {
	e, err := NewEncoder(nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		edit func(*codec.Image)
		msg  string
	}{
		{"NoFrames", func(img *codec.Image) { img.Frames = nil }, "nothing to encode"},
		{
			"Animated",
			func(img *codec.Image) { img.Frames = append(img.Frames, img.Frames[0]) },
			"animation not supported",
		},
		{"WrongDepth", func(img *codec.Image) { img.Header.Depth = 16 }, "8-bit"},
		{"WrongMode", func(img *codec.Image) { img.Header.Mode = codec.Truecolor }, "RGBE"},
		{"SubFrame", func(img *codec.Image) { img.Frames[0].Height = 1 }, "cover the canvas"},
		{
			"ShortPixels",
			func(img *codec.Image) { img.Frames[0].Pixels = img.Frames[0].Pixels[:9] },
			"pixel bytes",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := rgbeImage(4, 2, 7)
			tt.edit(img)
			_, err := e.Encode(img)
			require.Error(t, err)
			require.ErrorContains(t, err, tt.msg)
		})
	}

	// A literal run-marker quad cannot survive a flat row.
	img := rgbeImage(4, 1, 8)
	copy(img.Frames[0].Pixels[4:8], []byte{1, 1, 1, 9})
	_, err = e.Encode(img)
	require.ErrorContains(t, err, "not representable")
}

func TestFloatConversion(t *testing.T) {
	rgbe := []byte{128, 64, 32, 129, 0, 0, 0, 0}
	rgb := ToFloat(rgbe)
	require.Equal(t, []float32{1, 0.5, 0.25, 0, 0, 0}, rgb)

	back := FromFloat(rgb)
	require.Equal(t, rgbe, back)
}

func TestFloatRoundTripTolerance(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	rgb := make([]float32, 3*50)
	for i := range rgb {
		rgb[i] = rng.Float32() * 1000
	}
	out := ToFloat(FromFloat(rgb))
	require.Len(t, out, len(rgb))
	for i := range rgb {
		// The shared exponent quantizes each component to under 1% of
		// the pixel's maximum.
		maxc := rgb[i/3*3]
		for k := 1; k < 3; k++ {
			if v := rgb[i/3*3+k]; v > maxc {
				maxc = v
			}
		}
		require.InDelta(t, rgb[i], out[i], float64(maxc)/100, "component %d", i)
	}
}

func TestRegistered(t *testing.T) {
	data := append([]byte(header(2, 1)), 1, 2, 3, 4, 5, 6, 7, 8)

	f, err := codec.Detect(data[:codec.SniffLen])
	require.NoError(t, err)
	require.Equal(t, "hdr", f.Name)

	img, err := codec.Decode(data, nil)
	require.NoError(t, err)
	require.Equal(t, 2, img.Header.Width)

	variant := append([]byte("#?RGBE\nFORMAT=32-bit_rle_rgbe\n\n-Y 1 +X 1\n"), 9, 9, 9, 140)
	img, err = codec.Decode(variant, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{9, 9, 9, 140}, img.Frames[0].Pixels)
}
