package hwire

import (
	"bytes"
	"io"
	"strconv"
	"sync"

	"github.com/corewire/hwire/internal/netio"
)

// maxChunkSizeLine bounds the scan for a chunk size line.
const maxChunkSizeLine = 256

// completion is a one-shot signal fired when an entity is exhausted.
// fn runs before the channel is closed so waiters observe its effects.
type completion struct {
	once sync.Once
	ch   chan struct{}
	err  error
	fn   func(err error)
}

func newCompletion(fn func(err error)) *completion {
	return &completion{ch: make(chan struct{}), fn: fn}
}

func (c *completion) fire(err error) {
	c.once.Do(func() {
		c.err = err
		if c.fn != nil {
			c.fn(err)
		}
		close(c.ch)
	})
}

// entityStream is a pull-based response body. Once exhausted it never
// touches the connection again.
type entityStream interface {
	io.Reader
	exhausted() bool
}

// lengthEntity streams exactly remaining bytes, never reading into the
// next message on the connection.
type lengthEntity struct {
	r         *netio.Reader
	remaining int64
	done      bool
	err       error
	comp      *completion
}

func newLengthEntity(r *netio.Reader, length int64, comp *completion) *lengthEntity {
	return &lengthEntity{r: r, remaining: length, comp: comp}
}

func (e *lengthEntity) exhausted() bool { return e.done }

func (e *lengthEntity) finish(err error) {
	e.done = true
	e.err = err
	e.comp.fire(err)
}

func (e *lengthEntity) Read(p []byte) (int, error) {
	if e.done {
		if e.err != nil {
			return 0, e.err
		}
		return 0, io.EOF
	}
	if e.remaining == 0 {
		e.finish(nil)
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	max := len(p)
	if int64(max) > e.remaining {
		max = int(e.remaining)
	}
	if err := e.r.EnsureAvailable(); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		e.finish(err)
		return 0, err
	}
	n := copy(p, e.r.ReadBuffer(max))
	e.remaining -= int64(n)
	if e.remaining == 0 {
		e.finish(nil)
	}
	return n, nil
}

// chunkedEntity decodes chunked transfer coding. Each chunk is read fully
// into memory before it is handed out. The trailer section after the last
// chunk is left on the reader for the connection layer.
type chunkedEntity struct {
	r        *netio.Reader
	maxChunk int64
	cur      []byte
	done     bool
	err      error
	comp     *completion

	// trailersPending is set when the last chunk is followed by trailer
	// fields rather than an immediate CRLF.
	trailersPending bool

	// budget caps the chunk bytes still read when limited is set.
	limited bool
	budget  int64
}

func newChunkedEntity(r *netio.Reader, maxChunk int64, comp *completion) *chunkedEntity {
	return &chunkedEntity{r: r, maxChunk: maxChunk, comp: comp}
}

func (e *chunkedEntity) exhausted() bool { return e.done }

func (e *chunkedEntity) finish(err error) {
	e.done = true
	e.err = err
	e.cur = nil
	e.comp.fire(err)
}

func (e *chunkedEntity) Read(p []byte) (int, error) {
	if len(e.cur) == 0 {
		if e.done {
			if e.err != nil {
				return 0, e.err
			}
			return 0, io.EOF
		}
		if err := e.ensureBuffer(); err != nil {
			e.finish(err)
			return 0, err
		}
		if e.done {
			return 0, io.EOF
		}
	}
	n := copy(p, e.cur)
	e.cur = e.cur[n:]
	return n, nil
}

func (e *chunkedEntity) ensureBuffer() error {
	i, err := e.r.FindNewLine(maxChunkSizeLine)
	if err != nil {
		return err
	}
	if i == maxChunkSizeLine {
		return protocolError("chunked entity", "chunk size line not found within %d bytes", maxChunkSizeLine)
	}
	size, err := parseChunkSize(e.r.ReadBuffer(i))
	if err != nil {
		return err
	}
	if err := e.r.Skip(2); err != nil {
		return err
	}
	if size == 0 {
		if e.r.StartsWithNewLine() {
			if err := e.r.Skip(2); err != nil {
				return err
			}
		} else {
			e.trailersPending = true
		}
		e.finish(nil)
		return nil
	}
	if e.maxChunk > 0 && size > e.maxChunk {
		return ErrChunkTooLarge
	}
	if e.limited {
		if size > e.budget {
			return ErrEntityClosed
		}
		e.budget -= size
	}
	chunk, err := e.r.ReadFull(int(size))
	if err != nil {
		return err
	}
	end, err := e.r.Peek(2)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	if !bytes.Equal(end, crlf) {
		return protocolError("chunked entity", "missing CRLF after chunk data")
	}
	if err := e.r.Skip(2); err != nil {
		return err
	}
	e.cur = chunk
	return nil
}

var crlf = []byte("\r\n")

// parseChunkSize parses the hex size field, ignoring chunk extensions.
func parseChunkSize(line []byte) (int64, error) {
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = bytes.TrimRight(line, " \t")
	if len(line) == 0 {
		return 0, protocolError("chunked entity", "empty chunk size")
	}
	n, err := strconv.ParseUint(string(line), 16, 63)
	if err != nil {
		return 0, protocolError("chunked entity", "chunk size %q is not a hex number", truncate(line, 32))
	}
	return int64(n), nil
}

// untilCloseEntity treats the rest of the connection as the entity. It is
// used for responses that declare neither a length nor chunked coding.
type untilCloseEntity struct {
	r    *netio.Reader
	done bool
	err  error
	comp *completion
}

func newUntilCloseEntity(r *netio.Reader, comp *completion) *untilCloseEntity {
	return &untilCloseEntity{r: r, comp: comp}
}

func (e *untilCloseEntity) exhausted() bool { return e.done }

func (e *untilCloseEntity) Read(p []byte) (int, error) {
	if e.done {
		if e.err != nil {
			return 0, e.err
		}
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := e.r.EnsureAvailable(); err != nil {
		e.done = true
		if err != io.EOF {
			e.err = err
			e.comp.fire(err)
			return 0, err
		}
		e.comp.fire(nil)
		return 0, io.EOF
	}
	return copy(p, e.r.ReadBuffer(len(p))), nil
}
