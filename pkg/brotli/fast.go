package brotli

import (
	"encoding/binary"
	"math"
)

const (
	hashMul32 = 0x1E35A7BD

	fastFirstBlockSize   = 3 << 15
	fastMergeBlockSize   = 1 << 16
	fastMaxMergedSize    = 1 << 20
	fastInputMarginBytes = 16
	fastMinMatchLen      = 5
	fastMaxDistance      = 1<<18 - 16
	fastMinTableBits     = 9
	fastMaxTableBits     = 15

	// Estimated millibytes per literal above which a long literal run is
	// stored uncompressed.
	minRatio = 980
)

// Seed counts for the compact command alphabet. Zero entries are symbols
// the fast path never emits; 16 and 40 share one full command code.
var cmdHistoSeed = [128]uint32{
	0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, 0, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0,
}

// fastState is a step of the one-pass compressor.
type fastState int

const (
	stateEmitCommands fastState = iota
	stateFor
	stateTrawl
	stateEmitRemainder
	stateNextBlock
	stateDone
)

func (s fastState) String() string {
	switch s {
	case stateEmitCommands:
		return "EMIT_COMMANDS"
	case stateFor:
		return "FOR"
	case stateTrawl:
		return "TRAWL"
	case stateEmitRemainder:
		return "EMIT_REMAINDER"
	case stateNextBlock:
		return "NEXT_BLOCK"
	default:
		return "DONE"
	}
}

// fastTableSize returns the hash table size for an input of n bytes: a
// power of two with an odd exponent between 2^9 and 2^15.
func fastTableSize(n int) int {
	size := 256
	for size < 1<<fastMaxTableBits && size < n {
		size <<= 1
	}
	if size&0xAAAAA == 0 {
		size <<= 1
	}
	return size
}

// fastCompressor holds the prefix codes of the one-pass compressor. The
// command and distance codes use a compact 128 symbol alphabet that maps
// onto the full command alphabet.
type fastCompressor struct {
	w           *bitWriter
	in          []byte
	table       []int32
	shift       uint
	maxDistance int

	litDepth [numLiteralSymbols]uint8
	litBits  [numLiteralSymbols]uint16
	cmdDepth [128]uint8
	cmdBits  [128]uint16
	cmdHisto [128]uint32
}

// compressFragmentFast writes in as a sequence of meta-blocks. table must
// have a size returned by fastTableSize and is cleared here.
func compressFragmentFast(w *bitWriter, in []byte, table []int32, maxDistance int) {
	if len(in) == 0 {
		return
	}
	tableBits := log2FloorNonZero(uint(len(table)))
	if len(table) != 1<<tableBits || tableBits < fastMinTableBits || tableBits > fastMaxTableBits || tableBits%2 == 0 {
		panic(internalError("hash table size mismatch"))
	}
	clear(table)
	start := w.pos
	f := &fastCompressor{
		w:           w,
		in:          in,
		table:       table,
		shift:       64 - tableBits,
		maxDistance: min(maxDistance, fastMaxDistance),
		cmdHisto:    cmdHistoSeed,
	}
	f.run()
	if w.pos-start > 31+uint(len(in))<<3 {
		emitUncompressedMetaBlock(w, in, start)
	}
}

func (f *fastCompressor) hash(p int) uint32 {
	h := (binary.LittleEndian.Uint64(f.in[p:]) << 24) * hashMul32
	return uint32(h >> f.shift)
}

func (f *fastCompressor) hashAt(v uint64, offset uint) uint32 {
	h := ((v >> (8 * offset)) << 24) * hashMul32
	return uint32(h >> f.shift)
}

func (f *fastCompressor) isMatch(a, b int) bool {
	in := f.in
	return binary.LittleEndian.Uint32(in[a:]) == binary.LittleEndian.Uint32(in[b:]) && in[a+4] == in[b+4]
}

// indexCopyTail hashes the positions just before ip and returns the
// previous occupant of ip's slot.
func (f *fastCompressor) indexCopyTail(ip int) int {
	v := binary.LittleEndian.Uint64(f.in[ip-3:])
	f.table[f.hashAt(v, 0)] = int32(ip - 3)
	f.table[f.hashAt(v, 1)] = int32(ip - 2)
	f.table[f.hashAt(v, 2)] = int32(ip - 1)
	cur := f.hashAt(v, 3)
	candidate := int(f.table[cur])
	f.table[cur] = int32(ip)
	return candidate
}

func (f *fastCompressor) run() {
	in := f.in
	inputSize := len(in)

	input := 0
	blockSize := min(inputSize, fastFirstBlockSize)
	totalBlockSize := blockSize
	metaStart := 0
	mlenPos := f.w.pos + 3
	storeCompressedMetaBlockPreamble(f.w, blockSize)
	literalRatio := f.buildAndStoreLiteralPrefixCode(in[:blockSize])
	f.buildAndStoreCommandPrefixCode()

	var (
		ip, nextIP, ipEnd, ipLimit int
		nextEmit, candidate        int
		lastDistance               int
		nextHash                   uint32
		skip                       uint32
	)
	state := stateEmitCommands
	for state != stateDone {
		switch state {
		case stateEmitCommands:
			f.cmdHisto = cmdHistoSeed
			ip = input
			lastDistance = -1
			ipEnd = input + blockSize
			if blockSize < fastInputMarginBytes {
				state = stateEmitRemainder
				break
			}
			// Keep 16 bytes at the end of the input so distances stay
			// within the window, and 5 at the end of a block so copies
			// stay inside it.
			ipLimit = input + min(blockSize-fastMinMatchLen, inputSize-input-fastInputMarginBytes)
			ip++
			nextHash = f.hash(ip)
			state = stateFor

		case stateFor:
			skip = 32
			nextIP = ip
			state = stateTrawl

		case stateTrawl:
			// Scan for a 5 byte match, looking at every byte at first
			// and skipping further the longer nothing is found.
			found := false
			for {
				h := nextHash
				step := skip >> 5
				skip++
				ip = nextIP
				nextIP = ip + int(step)
				if nextIP > ipLimit {
					break
				}
				nextHash = f.hash(nextIP)
				candidate = ip - lastDistance
				if f.isMatch(ip, candidate) && candidate < ip {
					f.table[h] = int32(ip)
					found = true
					break
				}
				candidate = int(f.table[h])
				f.table[h] = int32(ip)
				if f.isMatch(ip, candidate) {
					found = true
					break
				}
			}
			if !found {
				state = stateEmitRemainder
				break
			}
			if ip-candidate > f.maxDistance {
				break
			}

			base := ip
			matched := fastMinMatchLen + matchLength(in[candidate+fastMinMatchLen:], in[ip+fastMinMatchLen:ipEnd])
			distance := base - candidate
			insert := base - nextEmit
			ip += matched
			switch {
			case insert < 6210:
				f.emitInsertLen(insert)
			case shouldUseUncompressedMode(metaStart, nextEmit, insert, literalRatio):
				emitUncompressedMetaBlock(f.w, in[metaStart:base], mlenPos-3)
				input = base
				nextEmit = input
				state = stateNextBlock
				continue
			default:
				f.emitLongInsertLen(insert)
			}
			f.emitLiterals(in[nextEmit:base])
			if distance == lastDistance {
				f.writeCmd(64)
			} else {
				f.emitDistance(distance)
				lastDistance = distance
			}
			f.emitCopyLenLastDistance(matched)
			nextEmit = ip
			if ip >= ipLimit {
				state = stateEmitRemainder
				break
			}
			candidate = f.indexCopyTail(ip)

			// Emit further matches that start right where the last one
			// ended, without literals in between.
			for f.isMatch(ip, candidate) {
				base := ip
				matched := fastMinMatchLen + matchLength(in[candidate+fastMinMatchLen:], in[ip+fastMinMatchLen:ipEnd])
				if ip-candidate > f.maxDistance {
					break
				}
				ip += matched
				lastDistance = base - candidate
				f.emitCopyLen(matched)
				f.emitDistance(lastDistance)
				nextEmit = ip
				if ip >= ipLimit {
					state = stateEmitRemainder
					break
				}
				candidate = f.indexCopyTail(ip)
			}
			if state == stateEmitRemainder {
				break
			}
			ip++
			nextHash = f.hash(ip)
			state = stateFor

		case stateEmitRemainder:
			input += blockSize
			blockSize = min(inputSize-input, fastMergeBlockSize)
			// Extend the current meta-block rather than starting a new one
			// when the next block's literals fit the current code.
			if inputSize-input > 0 && totalBlockSize+blockSize <= fastMaxMergedSize &&
				shouldMergeBlock(in[input:input+blockSize], &f.litDepth) {
				totalBlockSize += blockSize
				f.w.updateBits(20, uint32(totalBlockSize-1), mlenPos)
				state = stateEmitCommands
				break
			}
			if nextEmit < ipEnd {
				insert := ipEnd - nextEmit
				switch {
				case insert < 6210:
					f.emitInsertLen(insert)
					f.emitLiterals(in[nextEmit:ipEnd])
				case shouldUseUncompressedMode(metaStart, nextEmit, insert, literalRatio):
					emitUncompressedMetaBlock(f.w, in[metaStart:ipEnd], mlenPos-3)
				default:
					f.emitLongInsertLen(insert)
					f.emitLiterals(in[nextEmit:ipEnd])
				}
			}
			nextEmit = ipEnd
			state = stateNextBlock

		case stateNextBlock:
			if inputSize-input == 0 {
				state = stateDone
				break
			}
			metaStart = input
			blockSize = min(inputSize-input, fastFirstBlockSize)
			totalBlockSize = blockSize
			mlenPos = f.w.pos + 3
			storeCompressedMetaBlockPreamble(f.w, blockSize)
			literalRatio = f.buildAndStoreLiteralPrefixCode(in[input : input+blockSize])
			f.buildAndStoreCommandPrefixCode()
			state = stateEmitCommands

		default:
			panic(internalError("invalid compress state " + state.String()))
		}
	}
}

func matchLength(a, b []byte) int {
	n := min(len(a), len(b))
	i := 0
	for i+8 <= n {
		x := binary.LittleEndian.Uint64(a[i:]) ^ binary.LittleEndian.Uint64(b[i:])
		if x != 0 {
			return i + trailingZeroBytes(x)
		}
		i += 8
	}
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func trailingZeroBytes(x uint64) int {
	n := 0
	for x&0xff == 0 {
		x >>= 8
		n++
	}
	return n
}

func shouldUseUncompressedMode(metaStart, nextEmit, insert, literalRatio int) bool {
	compressed := nextEmit - metaStart
	if compressed*50 > insert {
		return false
	}
	return literalRatio > minRatio
}

func fastLog2(n uint32) float64 {
	if n == 0 {
		return 0
	}
	return math.Log2(float64(n))
}

func shouldMergeBlock(data []byte, depths *[numLiteralSymbols]uint8) bool {
	const sampleRate = 43
	var histo [numLiteralSymbols]uint32
	for i := 0; i < len(data); i += sampleRate {
		histo[data[i]]++
	}
	total := uint32((len(data) + sampleRate - 1) / sampleRate)
	r := (fastLog2(total)+0.5)*float64(total) + 200
	for i, h := range histo {
		r -= float64(h) * (float64(depths[i]) + fastLog2(h))
	}
	return r >= 0
}

// buildAndStoreLiteralPrefixCode writes a literal code for block and
// returns the estimated cost in millibytes per literal.
func (f *fastCompressor) buildAndStoreLiteralPrefixCode(block []byte) int {
	var histogram [numLiteralSymbols]uint32
	var total uint32
	if len(block) < 1<<15 {
		for _, b := range block {
			histogram[b]++
		}
		total = uint32(len(block))
		// Weigh the first 11 samples three times: the matcher removes
		// frequent symbols from the literal stream.
		for i := range histogram {
			adjust := 2 * min(histogram[i], 11)
			histogram[i] += adjust
			total += adjust
		}
	} else {
		const sampleRate = 29
		for i := 0; i < len(block); i += sampleRate {
			histogram[block[i]]++
		}
		total = uint32((len(block) + sampleRate - 1) / sampleRate)
		// A sample cannot tell absent symbols apart, so none gets a zero
		// count.
		for i := range histogram {
			adjust := 1 + 2*min(histogram[i], 11)
			histogram[i] += adjust
			total += adjust
		}
	}
	buildAndStoreHuffmanTree(f.w, histogram[:], numLiteralSymbols, 8, f.litDepth[:], f.litBits[:])

	var ratio uint64
	for i, h := range histogram {
		ratio += uint64(h) * uint64(f.litDepth[i])
	}
	return int(ratio * 125 / uint64(total))
}

// buildAndStoreCommandPrefixCode derives the command and distance codes
// from the current histogram and writes them in full alphabet form.
func (f *fastCompressor) buildAndStoreCommandPrefixCode() {
	var depth [128]uint8
	createHuffmanTree(f.cmdHisto[:64], 15, depth[:64])
	createHuffmanTree(f.cmdHisto[64:], 14, depth[64:])

	// Canonical codes are assigned in full alphabet order, which differs
	// from the compact order.
	var ordered [64]uint8
	copy(ordered[0:24], depth[0:24])
	copy(ordered[24:32], depth[40:48])
	copy(ordered[32:40], depth[24:32])
	copy(ordered[40:48], depth[48:56])
	copy(ordered[48:56], depth[32:40])
	copy(ordered[56:64], depth[56:64])
	var orderedBits [64]uint16
	convertBitDepthsToSymbols(ordered[:], orderedBits[:])
	copy(f.cmdBits[0:24], orderedBits[0:24])
	copy(f.cmdBits[24:32], orderedBits[32:40])
	copy(f.cmdBits[32:40], orderedBits[48:56])
	copy(f.cmdBits[40:48], orderedBits[24:32])
	copy(f.cmdBits[48:56], orderedBits[40:48])
	copy(f.cmdBits[56:64], orderedBits[56:64])
	convertBitDepthsToSymbols(depth[64:], f.cmdBits[64:])
	f.cmdDepth = depth

	var full [numCommandSymbols]uint8
	copy(full[0:8], depth[0:8])
	copy(full[64:72], depth[8:16])
	copy(full[128:136], depth[16:24])
	copy(full[192:200], depth[24:32])
	copy(full[384:392], depth[32:40])
	for i := 0; i < 8; i++ {
		full[128+8*i] = depth[40+i]
		full[256+8*i] = depth[48+i]
		full[448+8*i] = depth[56+i]
	}
	storeHuffmanTree(f.w, full[:])
	storeHuffmanTree(f.w, depth[64:])
}

func (f *fastCompressor) writeCmd(code int) {
	f.w.writeBits(uint(f.cmdDepth[code]), uint64(f.cmdBits[code]))
	f.cmdHisto[code]++
}

func (f *fastCompressor) emitLiterals(lits []byte) {
	for _, b := range lits {
		f.w.writeBits(uint(f.litDepth[b]), uint64(f.litBits[b]))
	}
}

// emitInsertLen writes a command inserting n literals followed by a two
// byte copy whose distance comes next.
func (f *fastCompressor) emitInsertLen(n int) {
	switch {
	case n < 6:
		f.writeCmd(n + 40)
	case n < 130:
		tail := uint(n - 2)
		nbits := log2FloorNonZero(tail) - 1
		prefix := tail >> nbits
		f.writeCmd(int((nbits << 1) + prefix + 42))
		f.w.writeBits(nbits, uint64(tail-prefix<<nbits))
	case n < 2114:
		tail := uint(n - 66)
		nbits := log2FloorNonZero(tail)
		f.writeCmd(int(nbits + 50))
		f.w.writeBits(nbits, uint64(tail-1<<nbits))
	default:
		f.writeCmd(61)
		f.w.writeBits(12, uint64(n-2114))
	}
}

func (f *fastCompressor) emitLongInsertLen(n int) {
	if n < 22594 {
		f.writeCmd(62)
		f.w.writeBits(14, uint64(n-6210))
		return
	}
	f.writeCmd(63)
	f.w.writeBits(24, uint64(n-22594))
}

func (f *fastCompressor) emitDistance(distance int) {
	d := uint(distance) + 3
	nbits := log2FloorNonZero(d) - 1
	prefix := (d >> nbits) & 1
	offset := (2 + prefix) << nbits
	f.writeCmd(int(2*(nbits-1) + prefix + 80))
	f.w.writeBits(nbits, uint64(d-offset))
}

// emitCopyLenLastDistance completes a match of n bytes of which two were
// copied by the preceding insert command.
func (f *fastCompressor) emitCopyLenLastDistance(n int) {
	switch {
	case n < 12:
		f.writeCmd(n - 4)
	case n < 72:
		tail := uint(n - 8)
		nbits := log2FloorNonZero(tail) - 1
		prefix := tail >> nbits
		f.writeCmd(int((nbits << 1) + prefix + 4))
		f.w.writeBits(nbits, uint64(tail-prefix<<nbits))
	case n < 136:
		tail := uint(n - 8)
		f.writeCmd(int(tail>>5 + 30))
		f.w.writeBits(5, uint64(tail&31))
		f.writeCmd(64)
	case n < 2120:
		tail := uint(n - 72)
		nbits := log2FloorNonZero(tail)
		f.writeCmd(int(nbits + 28))
		f.w.writeBits(nbits, uint64(tail-1<<nbits))
		f.writeCmd(64)
	default:
		f.writeCmd(39)
		f.w.writeBits(24, uint64(n-2120))
		f.writeCmd(64)
	}
}

// emitCopyLen writes a command copying n bytes at an explicit distance.
func (f *fastCompressor) emitCopyLen(n int) {
	switch {
	case n < 10:
		f.writeCmd(n + 14)
	case n < 134:
		tail := uint(n - 6)
		nbits := log2FloorNonZero(tail) - 1
		prefix := tail >> nbits
		f.writeCmd(int((nbits << 1) + prefix + 20))
		f.w.writeBits(nbits, uint64(tail-prefix<<nbits))
	case n < 2118:
		tail := uint(n - 70)
		nbits := log2FloorNonZero(tail)
		f.writeCmd(int(nbits + 28))
		f.w.writeBits(nbits, uint64(tail-1<<nbits))
	default:
		f.writeCmd(39)
		f.w.writeBits(24, uint64(n-2118))
	}
}
