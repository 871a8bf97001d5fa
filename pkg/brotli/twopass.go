package brotli

import "encoding/binary"

const (
	twoPassBlockSize   = 1 << 17
	twoPassMinMatchLen = 4
	matcherMinBits     = 10
	matcherMaxBits     = 16
)

// matcherParams tunes the match finder per quality.
type matcherParams struct {
	ways int // candidates kept per hash bucket, a power of two
	lazy bool
}

func paramsForQuality(q int) matcherParams {
	switch {
	case q <= 1:
		return matcherParams{ways: 1}
	case q <= 3:
		return matcherParams{ways: 4}
	case q <= 6:
		return matcherParams{ways: 8, lazy: true}
	case q <= 9:
		return matcherParams{ways: 16, lazy: true}
	default:
		return matcherParams{ways: 32, lazy: true}
	}
}

// matcher is a bucketed hash of recent 4 byte prefixes.
type matcher struct {
	matcherParams
	bits    uint
	buckets []int32
	num     []uint32
	next    int // first position not yet indexed
}

func newMatcher(quality, inputSize int) *matcher {
	p := paramsForQuality(quality)
	b := uint(matcherMinBits)
	for b < matcherMaxBits && 1<<b < inputSize {
		b++
	}
	// Keep the table near 2^20 slots at the highest qualities.
	for b > matcherMinBits && (1<<b)*p.ways > 1<<21 {
		b--
	}
	return &matcher{
		matcherParams: p,
		bits:          b,
		buckets:       make([]int32, (1<<b)*p.ways),
		num:           make([]uint32, 1<<b),
	}
}

func (m *matcher) reset() {
	clear(m.num)
	m.next = 0
}

func (m *matcher) hash(in []byte, p int) uint32 {
	return (binary.LittleEndian.Uint32(in[p:]) * hashMul32) >> (32 - m.bits)
}

// advance indexes every position before p.
func (m *matcher) advance(in []byte, p int) {
	last := len(in) - twoPassMinMatchLen
	for ; m.next < p && m.next <= last; m.next++ {
		h := m.hash(in, m.next)
		m.buckets[int(h)*m.ways+int(m.num[h])&(m.ways-1)] = int32(m.next)
		m.num[h]++
	}
	if m.next < p {
		m.next = p
	}
}

// longestMatch returns the longest earlier match for ip ending before end,
// preferring lastDistance on ties.
func (m *matcher) longestMatch(in []byte, ip, end, lastDistance, maxDistance int) (length, distance int) {
	limit := end - ip
	if lastDistance > 0 && lastDistance <= ip && lastDistance <= maxDistance {
		if l := matchLength(in[ip-lastDistance:], in[ip:end]); l >= twoPassMinMatchLen {
			length, distance = l, lastDistance
		}
	}
	h := m.hash(in, ip)
	n := int(m.num[h])
	bucket := m.buckets[int(h)*m.ways : int(h+1)*m.ways]
	for i := 0; i < m.ways && i < n && length < limit; i++ {
		cand := int(bucket[(n-1-i)&(m.ways-1)])
		d := ip - cand
		if d <= 0 || d > maxDistance || d == distance {
			continue
		}
		if in[cand+length] != in[ip+length] {
			continue
		}
		if l := matchLength(in[cand:], in[ip:end]); l > length && l >= twoPassMinMatchLen {
			length, distance = l, d
		}
	}
	return length, distance
}

type command struct {
	insertLen uint32
	copyLen   uint32 // zero for the trailing insert-only command
	distance  uint32

	cmdCode   uint16
	insCode   uint16
	copyCode  uint16
	distCode  uint16
	distNbits uint
	distExtra uint64
}

// createCommands splits in[start:end] into insert-and-copy commands.
func (m *matcher) createCommands(in []byte, start, end, lastDistance, maxDistance int, cmds []command) []command {
	ip, nextEmit := start, start
	for ip+twoPassMinMatchLen <= end {
		m.advance(in, ip)
		length, distance := m.longestMatch(in, ip, end, lastDistance, maxDistance)
		if length < twoPassMinMatchLen {
			ip++
			continue
		}
		if m.lazy {
			// Give up this match for a literal when the next position
			// starts a clearly longer one.
			for ip+1+twoPassMinMatchLen <= end {
				m.advance(in, ip+1)
				l, d := m.longestMatch(in, ip+1, end, lastDistance, maxDistance)
				if l < length+2 {
					break
				}
				ip++
				length, distance = l, d
			}
		}
		cmds = append(cmds, command{
			insertLen: uint32(ip - nextEmit),
			copyLen:   uint32(length),
			distance:  uint32(distance),
		})
		lastDistance = distance
		ip += length
		nextEmit = ip
	}
	if nextEmit < end {
		cmds = append(cmds, command{insertLen: uint32(end - nextEmit)})
	}
	return cmds
}

type histograms struct {
	literal  [numLiteralSymbols]uint32
	command  [numCommandSymbols]uint32
	distance [numDistanceSymbols]uint32
}

// prefixEncodeCommands assigns symbols to cmds and counts them. It returns
// the last distance the decoder will have seen after the block.
func prefixEncodeCommands(in []byte, pos int, cmds []command, lastDistance int, h *histograms) int {
	for i := range cmds {
		c := &cmds[i]
		c.insCode = insertLengthCode(c.insertLen)
		if c.copyLen == 0 {
			c.copyCode = 0
			c.cmdCode = combineLengthCodes(c.insCode, 0, false)
		} else {
			c.copyCode = copyLengthCode(c.copyLen)
			if int(c.distance) == lastDistance {
				c.distCode, c.distNbits, c.distExtra = 0, 0, 0
				c.cmdCode = combineLengthCodes(c.insCode, c.copyCode, true)
			} else {
				c.distCode, c.distNbits, c.distExtra = distanceCode(c.distance)
				c.cmdCode = combineLengthCodes(c.insCode, c.copyCode, false)
				lastDistance = int(c.distance)
			}
			if c.cmdCode >= 128 {
				h.distance[c.distCode]++
			}
		}
		h.command[c.cmdCode]++
		for _, b := range in[pos : pos+int(c.insertLen)] {
			h.literal[b]++
		}
		pos += int(c.insertLen) + int(c.copyLen)
	}
	return lastDistance
}

// compressFragmentTwoPass writes in as meta-blocks of at most
// twoPassBlockSize bytes. Matches may reach back anywhere in the fragment
// within maxDistance.
func compressFragmentTwoPass(w *bitWriter, in []byte, m *matcher, maxDistance int) {
	m.reset()
	lastDistance := -1
	var cmds []command
	for start := 0; start < len(in); {
		end := min(start+twoPassBlockSize, len(in))
		cmds = m.createCommands(in, start, end, lastDistance, maxDistance, cmds[:0])
		lastDistance = storeTwoPassBlock(w, in, start, end, cmds, lastDistance)
		start = end
	}
}

// storeTwoPassBlock writes one meta-block and falls back to storing it
// uncompressed when that is smaller.
func storeTwoPassBlock(w *bitWriter, in []byte, start, end int, cmds []command, lastDistance int) int {
	var h histograms
	next := prefixEncodeCommands(in, start, cmds, lastDistance, &h)

	var (
		litDepth  [numLiteralSymbols]uint8
		litBits   [numLiteralSymbols]uint16
		cmdDepth  [numCommandSymbols]uint8
		cmdBits   [numCommandSymbols]uint16
		distDepth [numDistanceSymbols]uint8
		distBits  [numDistanceSymbols]uint16
	)
	mark := w.pos
	storeCompressedMetaBlockPreamble(w, end-start)
	buildAndStoreHuffmanTree(w, h.literal[:], numLiteralSymbols, 15, litDepth[:], litBits[:])
	buildAndStoreHuffmanTree(w, h.command[:], numCommandSymbols, 15, cmdDepth[:], cmdBits[:])
	buildAndStoreHuffmanTree(w, h.distance[:], numDistanceSymbols, 15, distDepth[:], distBits[:])

	pos := start
	for i := range cmds {
		c := &cmds[i]
		w.writeBits(uint(cmdDepth[c.cmdCode]), uint64(cmdBits[c.cmdCode]))
		w.writeBits(uint(insExtra[c.insCode]), uint64(c.insertLen-insBase[c.insCode]))
		if c.copyLen > 0 {
			w.writeBits(uint(copyExtra[c.copyCode]), uint64(c.copyLen-copyBase[c.copyCode]))
		}
		for _, b := range in[pos : pos+int(c.insertLen)] {
			w.writeBits(uint(litDepth[b]), uint64(litBits[b]))
		}
		pos += int(c.insertLen)
		if c.copyLen > 0 && c.cmdCode >= 128 {
			w.writeBits(uint(distDepth[c.distCode]), uint64(distBits[c.distCode]))
			w.writeBits(c.distNbits, c.distExtra)
		}
		pos += int(c.copyLen)
	}
	if pos != end {
		panic(internalError("commands do not cover the meta-block"))
	}
	if w.pos-mark > 31+uint(end-start)<<3 {
		emitUncompressedMetaBlock(w, in[start:end], mark)
		return lastDistance
	}
	return next
}
