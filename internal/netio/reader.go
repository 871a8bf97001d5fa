// Package netio provides the buffered byte reader and writer that sit
// between a socket and the HTTP/1 codec. They are the only places where
// the pipeline blocks on I/O.
package netio

import (
	"bytes"
	"errors"
	"io"
)

const (
	defaultReadBufferSize = 4096
	maxReadFullPrealloc   = 64 << 10
)

var crlf = []byte("\r\n")

// ErrNegativeCount is returned when a negative length is requested.
var ErrNegativeCount = errors.New("netio: negative count")

// Reader is an incremental reader over a raw byte source.
//
// Slices returned by ReadBuffer and Peek alias the internal buffer and are
// only valid until the next call that may fill the buffer.
type Reader struct {
	src  io.Reader
	buf  []byte
	r, w int
	err  error // sticky error from src

	received int64
}

// NewReader returns a Reader with an initial buffer of size bytes.
func NewReader(src io.Reader, size int) *Reader {
	if size <= 0 {
		size = defaultReadBufferSize
	}
	return &Reader{src: src, buf: make([]byte, size)}
}

// Reset discards buffered data and switches to a new source.
func (r *Reader) Reset(src io.Reader) {
	r.src = src
	r.r, r.w = 0, 0
	r.err = nil
	r.received = 0
}

// Available returns the number of bytes that can be read without blocking.
func (r *Reader) Available() int {
	return r.w - r.r
}

// Received returns the number of bytes read from the source so far,
// buffered or not.
func (r *Reader) Received() int64 {
	return r.received
}

// fill reads at least one more byte from src into the buffer, compacting
// or growing the buffer as needed.
func (r *Reader) fill() error {
	if r.err != nil {
		return r.err
	}
	if r.r > 0 {
		copy(r.buf, r.buf[r.r:r.w])
		r.w -= r.r
		r.r = 0
	}
	if r.w == len(r.buf) {
		nb := make([]byte, len(r.buf)*2)
		copy(nb, r.buf[:r.w])
		r.buf = nb
	}
	// a well-behaved source returns data or an error eventually; give up
	// after a bounded number of empty reads
	for i := 0; i < 100; i++ {
		n, err := r.src.Read(r.buf[r.w:])
		if n < 0 {
			panic("netio: source returned negative count")
		}
		r.w += n
		r.received += int64(n)
		if err != nil {
			r.err = err
			if n > 0 {
				return nil
			}
			return err
		}
		if n > 0 {
			return nil
		}
	}
	r.err = io.ErrNoProgress
	return r.err
}

// Err returns the sticky error recorded from the source, if any.
func (r *Reader) Err() error {
	return r.err
}

// EnsureAvailable blocks until at least one byte is buffered.
// It returns io.EOF when the source is exhausted.
func (r *Reader) EnsureAvailable() error {
	if r.w > r.r {
		return nil
	}
	return r.fill()
}

// ReadBuffer returns up to n buffered bytes without blocking.
// It returns nil when nothing is buffered.
func (r *Reader) ReadBuffer(n int) []byte {
	if n <= 0 || r.w == r.r {
		return nil
	}
	if avail := r.w - r.r; n > avail {
		n = avail
	}
	b := r.buf[r.r : r.r+n]
	r.r += n
	return b
}

// Read implements io.Reader, blocking only when nothing is buffered.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.EnsureAvailable(); err != nil {
		return 0, err
	}
	return copy(p, r.ReadBuffer(len(p))), nil
}

// ReadFull reads exactly n bytes into a newly allocated slice.
func (r *Reader) ReadFull(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeCount
	}
	// capacity follows the bytes actually received, not the declared size
	c := n
	if c > maxReadFullPrealloc {
		c = maxReadFullPrealloc
	}
	out := make([]byte, 0, c)
	for len(out) < n {
		if err := r.EnsureAvailable(); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return out, err
		}
		out = append(out, r.ReadBuffer(n-len(out))...)
	}
	return out, nil
}

// Peek returns the next n bytes without consuming them, blocking until
// they are buffered.
func (r *Reader) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeCount
	}
	for r.w-r.r < n {
		if err := r.fill(); err != nil {
			return r.buf[r.r:r.w], err
		}
	}
	return r.buf[r.r : r.r+n], nil
}

// Skip discards the next n bytes.
func (r *Reader) Skip(n int) error {
	for n > 0 {
		if err := r.EnsureAvailable(); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		n -= len(r.ReadBuffer(n))
	}
	return nil
}

// StartsWithNewLine reports whether the next two bytes are CRLF.
func (r *Reader) StartsWithNewLine() bool {
	b, err := r.Peek(2)
	return err == nil && bytes.Equal(b, crlf)
}

// FindNewLine returns the offset of the next CRLF if it starts within the
// first max bytes. When no CRLF can start within that window it returns
// max, which callers must treat as a protocol error. It blocks only
// while the window is not yet fully buffered.
func (r *Reader) FindNewLine(max int) (int, error) {
	for {
		b := r.buf[r.r:r.w]
		lim := len(b)
		if lim > max+1 {
			lim = max + 1
		}
		if i := bytes.Index(b[:lim], crlf); i >= 0 {
			return i, nil
		}
		if len(b) > max || (len(b) == max && (max == 0 || b[max-1] != '\r')) {
			return max, nil
		}
		if err := r.fill(); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
	}
}

// ReadLine returns the next line without its CRLF. The returned slice
// aliases the buffer. found is false when no CRLF appears within max
// bytes; in that case nothing is consumed.
func (r *Reader) ReadLine(max int) (line []byte, found bool, err error) {
	i, err := r.FindNewLine(max)
	if err != nil {
		return nil, false, err
	}
	if i == max {
		return nil, false, nil
	}
	line = r.buf[r.r : r.r+i]
	r.r += i + 2
	return line, true, nil
}
