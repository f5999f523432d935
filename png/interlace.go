package png

import (
	"github.com/cocosip/go-image-codec/bytestream"
	"github.com/cocosip/go-image-codec/codec"
)

// Adam7 pass geometry: origin and stride per pass.
var (
	passOrigX   = [7]int{0, 4, 0, 2, 0, 1, 0}
	passOrigY   = [7]int{0, 0, 4, 0, 2, 0, 1}
	passStrideX = [7]int{8, 8, 4, 4, 2, 2, 1}
	passStrideY = [7]int{8, 8, 8, 4, 4, 2, 2}
)

// passSize returns the pixel dimensions of one interlace pass; either may
// be zero, in which case the pass contributes no scanlines at all.
func passSize(pass, width, height int) (w, h int) {
	w = (width - passOrigX[pass] + passStrideX[pass] - 1) / passStrideX[pass]
	h = (height - passOrigY[pass] + passStrideY[pass] - 1) / passStrideY[pass]
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return w, h
}

// interlacedLength returns the total filtered byte length of all seven
// passes for the given header.
func interlacedLength(hdr *codec.ImageHeader) int {
	bits := hdr.Mode.Channels() * hdr.Depth
	total := 0
	for pass := 0; pass < 7; pass++ {
		w, h := passSize(pass, hdr.Width, hdr.Height)
		if w == 0 || h == 0 {
			continue
		}
		rowBytes := (w*bits + 7) / 8
		total += (1 + rowBytes) * h
	}
	return total
}

// deinterlace reconstructs each Adam7 pass independently and scatters its
// pixels into a packed full-size raster. filtered holds the concatenated
// filtered pass data; the returned error is positioned at streamOff, the
// file offset where the compressed image data began.
func deinterlace(filtered []byte, hdr *codec.ImageHeader, streamOff int64) ([]byte, error) {
	bits := hdr.Mode.Channels() * hdr.Depth
	bpp := hdr.BytesPerPixel()
	outRow := hdr.RowBytes()
	out := make([]byte, outRow*hdr.Height)

	pos := 0
	for pass := 0; pass < 7; pass++ {
		w, h := passSize(pass, hdr.Width, hdr.Height)
		if w == 0 || h == 0 {
			continue
		}
		rowBytes := (w*bits + 7) / 8
		raw := make([]byte, rowBytes*h)
		if badRow, badFilter, ok := reconstruct(raw, filtered[pos:pos+(1+rowBytes)*h], rowBytes, h, bpp); !ok {
			return nil, codec.Corruptf(streamOff, "invalid filter %d on pass %d row %d", badFilter, pass, badRow)
		}
		pos += (1 + rowBytes) * h

		for ry := 0; ry < h; ry++ {
			y := passOrigY[pass] + ry*passStrideY[pass]
			row := raw[ry*rowBytes : (ry+1)*rowBytes]
			if bits%8 == 0 {
				// Whole-byte pixels copy directly.
				px := bits / 8
				for rx := 0; rx < w; rx++ {
					x := passOrigX[pass] + rx*passStrideX[pass]
					copy(out[y*outRow+x*px:], row[rx*px:(rx+1)*px])
				}
				continue
			}
			// Sub-byte pixels move bit by bit; the source samples are
			// sequential, so a bit reader walks them in order.
			br := bytestream.NewBitReader(bytestream.NewBytesSource(row), bytestream.MSBFirst)
			for rx := 0; rx < w; rx++ {
				v, err := br.ReadBits(uint(bits))
				if err != nil {
					return nil, codec.Corruptf(streamOff, "pass %d row %d short of samples", pass, ry)
				}
				x := passOrigX[pass] + rx*passStrideX[pass]
				writeBits(out[y*outRow:(y+1)*outRow], x*bits, bits, v)
			}
		}
	}
	return out, nil
}

// writeBits stores an n-bit value into dst at the given bit offset,
// most significant bit first.
func writeBits(dst []byte, bitOff, n int, v uint32) {
	for i := n - 1; i >= 0; i-- {
		bit := byte(v>>uint(i)) & 1
		byteIdx := bitOff >> 3
		shift := uint(7 - bitOff&7)
		dst[byteIdx] = dst[byteIdx]&^(1<<shift) | bit<<shift
		bitOff++
	}
}
