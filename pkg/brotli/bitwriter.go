package brotli

import "encoding/binary"

// bitWriter packs bits LSB first into a growable byte slice. Bytes at and
// after the current byte are kept zero above the write position, so every
// write may OR into the current byte and overwrite the ones after it.
type bitWriter struct {
	buf []byte
	pos uint // in bits
}

func (w *bitWriter) grow(n int) {
	if n <= len(w.buf) {
		return
	}
	size := 2 * len(w.buf)
	if size < n {
		size = n
	}
	if size < 64 {
		size = 64
	}
	nb := make([]byte, size)
	copy(nb, w.buf)
	w.buf = nb
}

func (w *bitWriter) writeBits(n uint, bits uint64) {
	if n > 56 {
		panic(internalError("bit count exceeds 56"))
	}
	i := int(w.pos >> 3)
	w.grow(i + 8)
	v := uint64(w.buf[i]) | (bits&(1<<n-1))<<(w.pos&7)
	binary.LittleEndian.PutUint64(w.buf[i:], v)
	w.pos += n
}

// rewind moves the write position back to pos, dropping what follows.
func (w *bitWriter) rewind(pos uint) {
	if pos > w.pos {
		panic(internalError("rewind past the write position"))
	}
	w.buf[pos>>3] &= byte(1<<(pos&7) - 1)
	w.pos = pos
}

func (w *bitWriter) alignToByte() {
	w.pos = (w.pos + 7) &^ 7
	w.grow(int(w.pos>>3) + 1)
	w.buf[w.pos>>3] = 0
}

// writeBytes copies p at the current position, which must be byte aligned.
func (w *bitWriter) writeBytes(p []byte) {
	if w.pos&7 != 0 {
		panic(internalError("unaligned byte copy"))
	}
	i := int(w.pos >> 3)
	w.grow(i + len(p) + 1)
	copy(w.buf[i:], p)
	w.pos += uint(len(p)) << 3
	w.buf[w.pos>>3] = 0
}

// updateBits overwrites n bits at an earlier position.
func (w *bitWriter) updateBits(n uint, bits uint32, pos uint) {
	for n > 0 {
		bytePos := pos >> 3
		unchanged := pos & 7
		changed := min(n, 8-unchanged)
		total := unchanged + changed
		mask := ^uint32(1<<total-1) | uint32(1<<unchanged-1)
		kept := uint32(w.buf[bytePos]) & mask
		w.buf[bytePos] = byte((bits&(1<<changed-1))<<unchanged | kept)
		n -= changed
		bits >>= changed
		pos += changed
	}
}

// appendFull appends the completed bytes to dst and keeps only the
// partial trailing byte.
func (w *bitWriter) appendFull(dst []byte) []byte {
	n := int(w.pos >> 3)
	w.grow(n + 1)
	dst = append(dst, w.buf[:n]...)
	w.buf[0] = w.buf[n]
	w.pos &= 7
	return dst
}

func (w *bitWriter) reset() {
	clear(w.buf)
	w.pos = 0
}
