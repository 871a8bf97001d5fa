package brotli

import "math/bits"

const (
	numLiteralSymbols  = 256
	numCommandSymbols  = 704
	numDistanceSymbols = 64
	numDistanceShort   = 16
)

var (
	insBase  = [24]uint32{0, 1, 2, 3, 4, 5, 6, 8, 10, 14, 18, 26, 34, 50, 66, 98, 130, 194, 322, 578, 1090, 2114, 6210, 22594}
	insExtra = [24]uint8{0, 0, 0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 7, 8, 9, 10, 12, 14, 24}

	copyBase  = [24]uint32{2, 3, 4, 5, 6, 7, 8, 9, 10, 12, 14, 18, 22, 30, 38, 54, 70, 102, 134, 198, 326, 582, 1094, 2118}
	copyExtra = [24]uint8{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 7, 8, 9, 10, 24}
)

// Command code offsets for explicit-distance cells, by insert code / 8
// and copy code / 8.
var commandCellBase = [3][3]uint16{
	{128, 192, 384},
	{256, 320, 512},
	{448, 576, 640},
}

func log2FloorNonZero(n uint) uint {
	return uint(bits.Len(n)) - 1
}

func insertLengthCode(n uint32) uint16 {
	switch {
	case n < 6:
		return uint16(n)
	case n < 130:
		nbits := log2FloorNonZero(uint(n-2)) - 1
		return uint16((nbits << 1) + uint(n-2)>>nbits + 2)
	case n < 2114:
		return uint16(log2FloorNonZero(uint(n-66)) + 10)
	case n < 6210:
		return 21
	case n < 22594:
		return 22
	default:
		return 23
	}
}

func copyLengthCode(n uint32) uint16 {
	switch {
	case n < 10:
		return uint16(n - 2)
	case n < 134:
		nbits := log2FloorNonZero(uint(n-6)) - 1
		return uint16((nbits << 1) + uint(n-6)>>nbits + 4)
	case n < 2118:
		return uint16(log2FloorNonZero(uint(n-70)) + 12)
	default:
		return 23
	}
}

// combineLengthCodes returns the insert-and-copy command symbol. With
// useLastDistance the implicit distance cells are chosen when possible.
func combineLengthCodes(insCode, copyCode uint16, useLastDistance bool) uint16 {
	low := copyCode&7 | (insCode&7)<<3
	if useLastDistance && insCode < 8 && copyCode < 16 {
		if copyCode < 8 {
			return low
		}
		return low | 64
	}
	return commandCellBase[insCode>>3][copyCode>>3] | low
}

// distanceCode maps a backward distance to its symbol and extra bits,
// with no direct codes and no postfix bits.
func distanceCode(distance uint32) (code uint16, nbits uint, extra uint64) {
	d := uint(distance) + 3
	nbits = log2FloorNonZero(d) - 1
	prefix := (d >> nbits) & 1
	offset := (2 + prefix) << nbits
	code = uint16(numDistanceShort + 2*(nbits-1) + prefix)
	return code, nbits, uint64(d - offset)
}

// storeMetaBlockHeader writes a non-final meta-block header.
func storeMetaBlockHeader(w *bitWriter, length int, uncompressed bool) {
	if length < 1 || length > 1<<24 {
		panic(internalError("meta-block length out of range"))
	}
	nibbles := uint(6)
	if length <= 1<<16 {
		nibbles = 4
	} else if length <= 1<<20 {
		nibbles = 5
	}
	w.writeBits(1, 0)
	w.writeBits(2, uint64(nibbles-4))
	w.writeBits(nibbles*4, uint64(length-1))
	if uncompressed {
		w.writeBits(1, 1)
	} else {
		w.writeBits(1, 0)
	}
}

// storeCompressedMetaBlockPreamble writes the header of a compressed
// meta-block with one block type per category, no context modelling and
// no direct distance codes.
func storeCompressedMetaBlockPreamble(w *bitWriter, length int) {
	storeMetaBlockHeader(w, length, false)
	w.writeBits(13, 0)
}

// emitUncompressedMetaBlock replaces everything written since start with
// data stored as is.
func emitUncompressedMetaBlock(w *bitWriter, data []byte, start uint) {
	w.rewind(start)
	storeMetaBlockHeader(w, len(data), true)
	w.alignToByte()
	w.writeBytes(data)
}

// windowBits returns the stream header encoding of lgwin.
func windowBits(lgwin uint) (value uint64, n uint) {
	switch {
	case lgwin == 16:
		return 0, 1
	case lgwin == 17:
		return 1, 7
	case lgwin > 17:
		return uint64((lgwin-17)<<1 | 1), 4
	default:
		return uint64((lgwin-8)<<4 | 1), 7
	}
}
