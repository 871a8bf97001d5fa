package netio

import "io"

const initialWriteBufferSize = 128

// Writer buffers outbound bytes until Flush. The buffer starts small and
// doubles as needed.
type Writer struct {
	dst io.Writer
	buf []byte
}

// NewWriter returns a Writer flushing to dst.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{dst: dst, buf: make([]byte, 0, initialWriteBufferSize)}
}

func (w *Writer) grow(n int) {
	if len(w.buf)+n <= cap(w.buf) {
		return
	}
	c := cap(w.buf)
	if c == 0 {
		c = initialWriteBufferSize
	}
	for c < len(w.buf)+n {
		c *= 2
	}
	nb := make([]byte, len(w.buf), c)
	copy(nb, w.buf)
	w.buf = nb
}

// Write appends p to the buffer. It never fails.
func (w *Writer) Write(p []byte) (int, error) {
	w.grow(len(p))
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// WriteString appends s to the buffer.
func (w *Writer) WriteString(s string) (int, error) {
	w.grow(len(s))
	w.buf = append(w.buf, s...)
	return len(s), nil
}

// WriteByte appends c to the buffer.
func (w *Writer) WriteByte(c byte) error {
	w.grow(1)
	w.buf = append(w.buf, c)
	return nil
}

// Buffered returns the number of bytes waiting for Flush.
func (w *Writer) Buffered() int { return len(w.buf) }

// Cap returns the current buffer capacity.
func (w *Writer) Cap() int { return cap(w.buf) }

// Bytes returns the pending bytes. The slice aliases the buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Reset drops pending bytes and switches destination.
func (w *Writer) Reset(dst io.Writer) {
	w.dst = dst
	w.buf = w.buf[:0]
}

// Flush writes all pending bytes to the destination.
func (w *Writer) Flush() error {
	for len(w.buf) > 0 {
		n, err := w.dst.Write(w.buf)
		if n > 0 {
			w.buf = w.buf[:copy(w.buf, w.buf[n:])]
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}
