// Package brotli implements a Brotli (RFC 7932) encoder.
//
// Quality 0 selects a one-pass compressor that emits commands while it
// scans. Qualities 1 to 11 collect commands for a block first and build
// prefix codes from their statistics, searching harder as quality rises.
// Both paths store a block uncompressed when compression would expand it.
package brotli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	// MinQuality and MaxQuality bound Options.Quality.
	MinQuality     = 0
	MaxQuality     = 11
	DefaultQuality = 5

	// MinWindowBits and MaxWindowBits bound Options.LGWin.
	MinWindowBits = 10
	MaxWindowBits = 24
	// DefaultWindowBits is used when neither LGWin nor a size is known.
	DefaultWindowBits = 22

	windowGap = 16
)

// ErrInternal reports a defect in the encoder. A Writer that returned it
// is unusable.
var ErrInternal = errors.New("brotli: internal error")

var errWriterClosed = errors.New("brotli: writer is closed")

type internalError string

func (e internalError) Error() string { return "brotli: internal error: " + string(e) }

// Options configures a Writer.
type Options struct {
	// Quality trades speed for density, 0 to 11.
	Quality int
	// LGWin is the base two logarithm of the window, 10 to 24. Zero
	// derives it from SizeHint.
	LGWin int
	// SizeHint is the expected total input size, or 0 when unknown.
	SizeHint int
}

// WindowBits returns the window size chosen for opts: LGWin when set,
// otherwise the smallest window whose usable span covers SizeHint.
func (o Options) WindowBits() int {
	if o.LGWin != 0 {
		return o.LGWin
	}
	if o.SizeHint <= 0 {
		return DefaultWindowBits
	}
	lgwin := MinWindowBits
	for lgwin < MaxWindowBits && 1<<lgwin-windowGap < o.SizeHint {
		lgwin++
	}
	return lgwin
}

func (o Options) validate() error {
	if o.Quality < MinQuality || o.Quality > MaxQuality {
		return fmt.Errorf("brotli: quality %d out of range [%d, %d]", o.Quality, MinQuality, MaxQuality)
	}
	if o.LGWin != 0 && (o.LGWin < MinWindowBits || o.LGWin > MaxWindowBits) {
		return fmt.Errorf("brotli: window bits %d out of range [%d, %d]", o.LGWin, MinWindowBits, MaxWindowBits)
	}
	if o.SizeHint < 0 {
		return fmt.Errorf("brotli: negative size hint %d", o.SizeHint)
	}
	return nil
}

// Writer compresses what is written to it. Input is buffered up to the
// window size and compressed when the buffer fills, on Flush and on Close.
// A Writer must not be used from several goroutines at once.
type Writer struct {
	dst   io.Writer
	opts  Options
	lgwin uint

	buf     []byte
	bw      bitWriter
	out     []byte
	started bool
	closed  bool
	err     error

	table   []int32
	matcher *matcher
}

// NewWriter returns a Writer compressing to dst.
func NewWriter(dst io.Writer, opts Options) (*Writer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	w := &Writer{opts: opts, lgwin: uint(opts.WindowBits())}
	w.Reset(dst)
	return w, nil
}

// Reset discards the Writer's state and makes it write a new stream to
// dst with the same options.
func (w *Writer) Reset(dst io.Writer) {
	w.dst = dst
	w.buf = w.buf[:0]
	w.bw.reset()
	w.started = false
	w.closed = false
	w.err = nil
}

func (w *Writer) blockLimit() int {
	return 1 << w.lgwin
}

// Write buffers p, compressing whenever a full window has accumulated.
func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.closed {
		return 0, errWriterClosed
	}
	n := 0
	for len(p) > 0 {
		room := w.blockLimit() - len(w.buf)
		k := min(room, len(p))
		w.buf = append(w.buf, p[:k]...)
		p = p[k:]
		n += k
		if len(w.buf) == w.blockLimit() {
			if err := w.compress(); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// Flush compresses buffered input and pads the stream to a byte boundary
// with an empty metadata block, so a reader can decode everything written
// so far.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return errWriterClosed
	}
	return w.run(func() {
		w.compressBuffered()
		if w.bw.pos&7 != 0 {
			w.bw.writeBits(6, 6)
			w.bw.alignToByte()
		}
	})
}

// Close compresses buffered input and ends the stream. It does not close
// the underlying writer.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return nil
	}
	err := w.run(func() {
		w.compressBuffered()
		w.writeStreamHeader()
		w.bw.writeBits(1, 1) // ISLAST
		w.bw.writeBits(1, 1) // ISEMPTY
		w.bw.alignToByte()
	})
	w.closed = true
	return err
}

func (w *Writer) compress() error {
	return w.run(w.compressBuffered)
}

// run executes step, converting internal panics into a sticky error, and
// writes out the completed bytes.
func (w *Writer) run(step func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(internalError)
			if !ok {
				panic(r)
			}
			w.err = fmt.Errorf("%w: %s", ErrInternal, string(ie))
			err = w.err
		}
	}()
	step()
	w.out = w.bw.appendFull(w.out[:0])
	if len(w.out) > 0 {
		if _, err := w.dst.Write(w.out); err != nil {
			w.err = err
			return err
		}
	}
	return nil
}

func (w *Writer) writeStreamHeader() {
	if w.started {
		return
	}
	v, n := windowBits(w.lgwin)
	w.bw.writeBits(n, v)
	w.started = true
}

func (w *Writer) compressBuffered() {
	w.writeStreamHeader()
	if len(w.buf) == 0 {
		return
	}
	maxDistance := 1<<w.lgwin - windowGap
	if w.opts.Quality == 0 {
		size := fastTableSize(len(w.buf))
		if len(w.table) != size {
			w.table = make([]int32, size)
		}
		compressFragmentFast(&w.bw, w.buf, w.table, maxDistance)
	} else {
		if w.matcher == nil {
			size := w.blockLimit()
			if w.opts.SizeHint > 0 {
				size = min(size, w.opts.SizeHint)
			}
			w.matcher = newMatcher(w.opts.Quality, size)
		}
		compressFragmentTwoPass(&w.bw, w.buf, w.matcher, maxDistance)
	}
	w.buf = w.buf[:0]
}

// Encode compresses src in one call. When opts sets neither LGWin nor
// SizeHint the window is sized to src.
func Encode(src []byte, opts Options) ([]byte, error) {
	opts = oneShotOptions(src, opts)
	var out bytes.Buffer
	w, err := NewWriter(&out, opts)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// oneShotOptions sizes the window to src, using the smallest window for
// empty input.
func oneShotOptions(src []byte, opts Options) Options {
	if opts.LGWin == 0 && opts.SizeHint == 0 {
		if len(src) == 0 {
			opts.LGWin = MinWindowBits
		}
		opts.SizeHint = len(src)
	}
	return opts
}
