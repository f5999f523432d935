package png

// Scanline filter selectors.
const (
	ftNone    = 0
	ftSub     = 1
	ftUp      = 2
	ftAverage = 3
	ftPaeth   = 4
)

// paeth picks the neighbor closest to left+up-upleft, ties resolved in the
// order left, up, upper-left.
func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := p-int(a), p-int(b), p-int(c)
	if pa < 0 {
		pa = -pa
	}
	if pb < 0 {
		pb = -pb
	}
	if pc < 0 {
		pc = -pc
	}
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

// reconstruct reverses the per-scanline filters of one filtered region. src
// holds height rows of 1+rowBytes bytes (selector first); dst receives
// height*rowBytes reconstructed bytes. A selector outside the defined set
// stops reconstruction and is reported with its row.
func reconstruct(dst, src []byte, rowBytes, height, bpp int) (badRow, badFilter int, ok bool) {
	var prior []byte
	pos := 0
	for y := 0; y < height; y++ {
		f := src[pos]
		pos++
		row := dst[y*rowBytes : (y+1)*rowBytes]
		copy(row, src[pos:pos+rowBytes])
		pos += rowBytes

		switch f {
		case ftNone:
		case ftSub:
			for i := bpp; i < rowBytes; i++ {
				row[i] += row[i-bpp]
			}
		case ftUp:
			if prior != nil {
				for i := 0; i < rowBytes; i++ {
					row[i] += prior[i]
				}
			}
		case ftAverage:
			for i := 0; i < rowBytes; i++ {
				var left, up int
				if i >= bpp {
					left = int(row[i-bpp])
				}
				if prior != nil {
					up = int(prior[i])
				}
				row[i] += byte((left + up) / 2)
			}
		case ftPaeth:
			for i := 0; i < rowBytes; i++ {
				var left, up, upLeft byte
				if i >= bpp {
					left = row[i-bpp]
					if prior != nil {
						upLeft = prior[i-bpp]
					}
				}
				if prior != nil {
					up = prior[i]
				}
				row[i] += paeth(left, up, upLeft)
			}
		default:
			return y, int(f), false
		}
		prior = row
	}
	return 0, 0, true
}

// applyFilter writes cur filtered with f into dst (selector not included).
// prior is nil on the first row.
func applyFilter(f int, dst, cur, prior []byte, bpp int) {
	switch f {
	case ftNone:
		copy(dst, cur)
	case ftSub:
		for i := range cur {
			var left byte
			if i >= bpp {
				left = cur[i-bpp]
			}
			dst[i] = cur[i] - left
		}
	case ftUp:
		for i := range cur {
			var up byte
			if prior != nil {
				up = prior[i]
			}
			dst[i] = cur[i] - up
		}
	case ftAverage:
		for i := range cur {
			var left, up int
			if i >= bpp {
				left = int(cur[i-bpp])
			}
			if prior != nil {
				up = int(prior[i])
			}
			dst[i] = cur[i] - byte((left+up)/2)
		}
	case ftPaeth:
		for i := range cur {
			var left, up, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				if prior != nil {
					upLeft = prior[i-bpp]
				}
			}
			if prior != nil {
				up = prior[i]
			}
			dst[i] = cur[i] - paeth(left, up, upLeft)
		}
	}
}

// chooseFilter picks the selector minimizing the sum of absolute differences
// of the filtered row, the usual compressibility heuristic.
func chooseFilter(scratch, cur, prior []byte, bpp int) int {
	best, bestSum := ftNone, -1
	for f := ftNone; f <= ftPaeth; f++ {
		applyFilter(f, scratch, cur, prior, bpp)
		sum := 0
		for _, b := range scratch {
			if b < 128 {
				sum += int(b)
			} else {
				sum += 256 - int(b)
			}
		}
		if bestSum < 0 || sum < bestSum {
			best, bestSum = f, sum
		}
	}
	return best
}
