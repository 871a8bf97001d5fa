package brotli

import (
	"math"
	"math/bits"
	"slices"
)

const (
	maxHuffmanBits           = 16
	numCodeLengthCodes       = 18
	repeatPreviousCodeLength = 16
	repeatZeroCodeLength     = 17
	initialRepeatedCodeLen   = 8
)

type huffmanNode struct {
	count uint32
	left  int // -1 for leaves
	right int // right child, or the symbol of a leaf
}

// createHuffmanTree fills depth with code lengths for the non-zero entries
// of data, no longer than limit. Counts are flattened until the tree fits.
func createHuffmanTree(data []uint32, limit int, depth []uint8) {
	tree := make([]huffmanNode, 0, 2*len(data)+1)
	sentinel := huffmanNode{count: math.MaxUint32, left: -1, right: -1}
	for countLimit := uint32(1); ; countLimit *= 2 {
		tree = tree[:0]
		for i := len(data) - 1; i >= 0; i-- {
			if data[i] != 0 {
				tree = append(tree, huffmanNode{count: max(data[i], countLimit), left: -1, right: i})
			}
		}
		n := len(tree)
		if n == 0 {
			return
		}
		if n == 1 {
			depth[tree[0].right] = 1
			return
		}
		slices.SortFunc(tree, func(a, b huffmanNode) int {
			if a.count != b.count {
				if a.count < b.count {
					return -1
				}
				return 1
			}
			return b.right - a.right
		})
		// [0, n) leaves, then parents in ascending order, with a sentinel
		// after the last parent.
		tree = append(tree, sentinel, sentinel)
		i, j := 0, n+1
		for k := n - 1; k > 0; k-- {
			var left, right int
			if tree[i].count <= tree[j].count {
				left = i
				i++
			} else {
				left = j
				j++
			}
			if tree[i].count <= tree[j].count {
				right = i
				i++
			} else {
				right = j
				j++
			}
			end := 2*n - k
			tree[end] = huffmanNode{count: tree[left].count + tree[right].count, left: left, right: right}
			tree = append(tree, sentinel)
		}
		if setDepth(tree, 2*n-1, depth, 0, limit) {
			return
		}
	}
}

func setDepth(tree []huffmanNode, p int, depth []uint8, level, limit int) bool {
	if tree[p].left < 0 {
		depth[tree[p].right] = uint8(level)
		return true
	}
	if level+1 > limit {
		return false
	}
	return setDepth(tree, tree[p].left, depth, level+1, limit) &&
		setDepth(tree, tree[p].right, depth, level+1, limit)
}

func reverseBits(n uint8, v uint16) uint16 {
	return bits.Reverse16(v) >> (16 - n)
}

// convertBitDepthsToSymbols assigns canonical codes, bit-reversed for LSB
// first output.
func convertBitDepthsToSymbols(depth []uint8, out []uint16) {
	var count [maxHuffmanBits]uint16
	var next [maxHuffmanBits]uint16
	for _, d := range depth {
		count[d]++
	}
	count[0] = 0
	code := 0
	for i := 1; i < maxHuffmanBits; i++ {
		code = (code + int(count[i-1])) << 1
		next[i] = uint16(code)
	}
	for i, d := range depth {
		if d != 0 {
			out[i] = reverseBits(d, next[d])
			next[d]++
		}
	}
}

func decideOverRLEUse(depth []uint8) (nonZero, zero bool) {
	var totalZero, totalNonZero int
	countZero, countNonZero := 1, 1
	for i := 0; i < len(depth); {
		v := depth[i]
		reps := 1
		for k := i + 1; k < len(depth) && depth[k] == v; k++ {
			reps++
		}
		if reps >= 3 && v == 0 {
			totalZero += reps
			countZero++
		}
		if reps >= 4 && v != 0 {
			totalNonZero += reps
			countNonZero++
		}
		i += reps
	}
	return totalNonZero > 2*countNonZero, totalZero > 2*countZero
}

type codeLengthWriter struct {
	tree  []uint8
	extra []uint8
}

func (c *codeLengthWriter) push(v, extra uint8) {
	c.tree = append(c.tree, v)
	c.extra = append(c.extra, extra)
}

func (c *codeLengthWriter) repetitions(previous, value uint8, reps int) {
	if previous != value {
		c.push(value, 0)
		reps--
	}
	if reps == 7 {
		c.push(value, 0)
		reps--
	}
	if reps < 3 {
		for ; reps > 0; reps-- {
			c.push(value, 0)
		}
		return
	}
	start := len(c.tree)
	reps -= 3
	for {
		c.push(repeatPreviousCodeLength, uint8(reps&3))
		reps >>= 2
		if reps == 0 {
			break
		}
		reps--
	}
	slices.Reverse(c.tree[start:])
	slices.Reverse(c.extra[start:])
}

func (c *codeLengthWriter) zeros(reps int) {
	if reps == 11 {
		c.push(0, 0)
		reps--
	}
	if reps < 3 {
		for ; reps > 0; reps-- {
			c.push(0, 0)
		}
		return
	}
	start := len(c.tree)
	reps -= 3
	for {
		c.push(repeatZeroCodeLength, uint8(reps&7))
		reps >>= 3
		if reps == 0 {
			break
		}
		reps--
	}
	slices.Reverse(c.tree[start:])
	slices.Reverse(c.extra[start:])
}

// writeHuffmanTree run-length encodes depth into code length symbols and
// their extra bits. Trailing zeros are implied.
func writeHuffmanTree(depth []uint8) (tree, extra []uint8) {
	n := len(depth)
	for n > 0 && depth[n-1] == 0 {
		n--
	}
	var rleNonZero, rleZero bool
	if len(depth) > 50 {
		rleNonZero, rleZero = decideOverRLEUse(depth[:n])
	}
	c := codeLengthWriter{
		tree:  make([]uint8, 0, n),
		extra: make([]uint8, 0, n),
	}
	previous := uint8(initialRepeatedCodeLen)
	for i := 0; i < n; {
		v := depth[i]
		reps := 1
		if (v != 0 && rleNonZero) || (v == 0 && rleZero) {
			for k := i + 1; k < n && depth[k] == v; k++ {
				reps++
			}
		}
		if v == 0 {
			c.zeros(reps)
		} else {
			c.repetitions(previous, v, reps)
			previous = v
		}
		i += reps
	}
	return c.tree, c.extra
}

var codeLengthStorageOrder = [numCodeLengthCodes]uint8{
	1, 2, 3, 4, 0, 5, 17, 6, 16, 7, 8, 9, 10, 11, 12, 13, 14, 15,
}

// Static code for the code length code lengths 0..5.
var (
	codeLengthLengthSymbols = [6]uint8{0, 7, 3, 2, 1, 15}
	codeLengthLengthDepths  = [6]uint8{2, 4, 3, 2, 2, 4}
)

// storeHuffmanTree writes a complex prefix code for depths.
func storeHuffmanTree(w *bitWriter, depths []uint8) {
	tree, extra := writeHuffmanTree(depths)

	var histogram [numCodeLengthCodes]uint32
	for _, t := range tree {
		histogram[t]++
	}
	numCodes, code := 0, 0
	for i, h := range histogram {
		if h == 0 {
			continue
		}
		if numCodes == 0 {
			code = i
			numCodes = 1
		} else {
			numCodes = 2
			break
		}
	}

	var clDepth [numCodeLengthCodes]uint8
	var clBits [numCodeLengthCodes]uint16
	createHuffmanTree(histogram[:], 5, clDepth[:])
	convertBitDepthsToSymbols(clDepth[:], clBits[:])

	toStore := numCodeLengthCodes
	if numCodes > 1 {
		for toStore > 0 && clDepth[codeLengthStorageOrder[toStore-1]] == 0 {
			toStore--
		}
	}
	skip := 0
	if clDepth[codeLengthStorageOrder[0]] == 0 && clDepth[codeLengthStorageOrder[1]] == 0 {
		skip = 2
		if clDepth[codeLengthStorageOrder[2]] == 0 {
			skip = 3
		}
	}
	w.writeBits(2, uint64(skip))
	for i := skip; i < toStore; i++ {
		l := clDepth[codeLengthStorageOrder[i]]
		w.writeBits(uint(codeLengthLengthDepths[l]), uint64(codeLengthLengthSymbols[l]))
	}

	if numCodes == 1 {
		clDepth[code] = 0
	}
	for i, t := range tree {
		w.writeBits(uint(clDepth[t]), uint64(clBits[t]))
		switch t {
		case repeatPreviousCodeLength:
			w.writeBits(2, uint64(extra[i]))
		case repeatZeroCodeLength:
			w.writeBits(3, uint64(extra[i]))
		}
	}
}

func storeSimpleHuffmanTree(w *bitWriter, depths []uint8, symbols []int, maxBits uint) {
	w.writeBits(2, 1)
	w.writeBits(2, uint64(len(symbols)-1))
	slices.SortStableFunc(symbols, func(a, b int) int {
		return int(depths[a]) - int(depths[b])
	})
	for _, s := range symbols {
		w.writeBits(maxBits, uint64(s))
	}
	if len(symbols) == 4 {
		if depths[symbols[0]] == 1 {
			w.writeBits(1, 1)
		} else {
			w.writeBits(1, 0)
		}
	}
}

// buildAndStoreHuffmanTree builds a code for histogram, writes it and
// leaves the code in depth and bits. A histogram with at most one symbol
// yields a zero-length code.
func buildAndStoreHuffmanTree(w *bitWriter, histogram []uint32, alphabetSize int, limit int, depth []uint8, codes []uint16) {
	var s4 [4]int
	count := 0
	for i, h := range histogram {
		if h == 0 {
			continue
		}
		if count < 4 {
			s4[count] = i
		} else if count > 4 {
			break
		}
		count++
	}
	maxBits := uint(bits.Len(uint(alphabetSize - 1)))

	clear(depth[:len(histogram)])
	clear(codes[:len(histogram)])
	if count <= 1 {
		w.writeBits(4, 1)
		w.writeBits(maxBits, uint64(s4[0]))
		return
	}
	createHuffmanTree(histogram, limit, depth)
	convertBitDepthsToSymbols(depth[:len(histogram)], codes)
	if count <= 4 {
		storeSimpleHuffmanTree(w, depth, s4[:count], maxBits)
		return
	}
	storeHuffmanTree(w, depth[:len(histogram)])
}
