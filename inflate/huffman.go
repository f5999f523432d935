package inflate

// maxCodeBits is the longest deflate Huffman code.
const maxCodeBits = 15

// huffTable is a canonical Huffman code in counts-and-symbols form: count[n]
// is the number of codes of length n, symbol holds the coded symbols sorted
// by code length then symbol value. Decoding walks the code space length by
// length, which suspends cleanly when input runs out mid-symbol.
type huffTable struct {
	count  [maxCodeBits + 1]uint16
	symbol []uint16
}

// build constructs the table from per-symbol code lengths (0 = symbol
// unused). The return value is the unused code space left after assignment:
// 0 for a complete code, negative for an over-subscribed one, positive for
// an incomplete one.
func (t *huffTable) build(lengths []uint8) int {
	for i := range t.count {
		t.count[i] = 0
	}
	used := 0
	for _, l := range lengths {
		t.count[l]++
		if l != 0 {
			used++
		}
	}

	left := 1
	for l := 1; l <= maxCodeBits; l++ {
		left <<= 1
		left -= int(t.count[l])
		if left < 0 {
			return left
		}
	}

	var offs [maxCodeBits + 1]int
	for l := 1; l < maxCodeBits; l++ {
		offs[l+1] = offs[l] + int(t.count[l])
	}

	if cap(t.symbol) < used {
		t.symbol = make([]uint16, used)
	} else {
		t.symbol = t.symbol[:used]
	}
	for sym, l := range lengths {
		if l != 0 {
			t.symbol[offs[l]] = uint16(sym)
			offs[l]++
		}
	}
	return left
}

// buildChecked builds the table and applies the validity policy: an
// over-subscribed code always fails; an incomplete code is tolerated only in
// its degenerate forms (no codes at all, or a single one-bit code), which the
// format permits for sparsely used alphabets. Anything decoded against a
// degenerate table that does not match its one code fails as ErrBadSymbol.
func (t *huffTable) buildChecked(lengths []uint8) error {
	left := t.build(lengths)
	if left < 0 {
		return ErrCodeLengths
	}
	if left > 0 {
		max := uint8(0)
		for _, l := range lengths {
			if l > max {
				max = l
			}
		}
		if max > 1 {
			return ErrCodeLengths
		}
	}
	return nil
}

// clOrder is the transmission order of the code-length alphabet's own code
// lengths in a dynamic block header.
var clOrder = [19]uint8{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// Length code 257+i decodes to lengthBase[i] plus lengthExtra[i] extra bits.
var lengthBase = [29]uint16{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
	35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
}

var lengthExtra = [29]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
	3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
}

// Distance code i decodes to distBase[i] plus distExtra[i] extra bits.
var distBase = [30]uint16{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
	257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145,
	8193, 12289, 16385, 24577,
}

var distExtra = [30]uint8{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
	7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
}

// Fixed-code tables shared by all decompressors; read-only after init.
var fixedLit, fixedDist huffTable

func init() {
	var lit [288]uint8
	for i := 0; i < 144; i++ {
		lit[i] = 8
	}
	for i := 144; i < 256; i++ {
		lit[i] = 9
	}
	for i := 256; i < 280; i++ {
		lit[i] = 7
	}
	for i := 280; i < 288; i++ {
		lit[i] = 8
	}
	fixedLit.build(lit[:])

	// All 32 five-bit patterns take part in the code; 30 and 31 decode and
	// are then rejected as reserved.
	var dist [32]uint8
	for i := range dist {
		dist[i] = 5
	}
	fixedDist.build(dist[:])
}
