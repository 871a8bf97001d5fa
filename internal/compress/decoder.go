package compress

import (
	"bufio"
	"io"
	"io/fs"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// opener builds a decoder over src. The returned close func releases
// decoder resources and may be nil.
type opener func(src io.Reader) (io.Reader, func() error, error)

// lazyReader defers decoder construction to the first Read so that a body
// which is never read costs nothing.
type lazyReader struct {
	Body     io.ReadCloser // underlying entity
	open     opener
	dec      io.Reader
	closeDec func() error
	err      error // sticky error
}

func newLazyReader(body io.ReadCloser, open opener) *lazyReader {
	return &lazyReader{Body: body, open: open}
}

func (l *lazyReader) Read(p []byte) (n int, err error) {
	if l.err != nil {
		return 0, l.err
	}
	if l.dec == nil {
		l.dec, l.closeDec, err = l.open(l.Body)
		if err != nil {
			l.err = err
			return 0, err
		}
	}
	n, err = l.dec.Read(p)
	if err != nil && err != io.EOF {
		l.err = err
	}
	return n, err
}

func (l *lazyReader) Close() error {
	if l.closeDec != nil {
		l.closeDec()
		l.closeDec = nil
	}
	if l.err == nil {
		l.err = fs.ErrClosed
	}
	return l.Body.Close()
}

func (l *lazyReader) GetUnderlyingBody() io.ReadCloser {
	return l.Body
}

func (l *lazyReader) SetUnderlyingBody(body io.ReadCloser) {
	l.Body = body
}

// NewGzipReader decodes gzip.
func NewGzipReader(body io.ReadCloser) CompressReader {
	return newLazyReader(body, func(src io.Reader) (io.Reader, func() error, error) {
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	})
}

// NewDeflateReader decodes "deflate", which is zlib framing in HTTP. Raw
// deflate streams sent by non-conforming servers are accepted as well.
func NewDeflateReader(body io.ReadCloser) CompressReader {
	return newLazyReader(body, func(src io.Reader) (io.Reader, func() error, error) {
		br := bufio.NewReader(src)
		head, err := br.Peek(2)
		if err != nil && len(head) < 2 {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, nil, err
		}
		if isZlibHeader(head[0], head[1]) {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return nil, nil, err
			}
			return zr, zr.Close, nil
		}
		fr := flate.NewReader(br)
		return fr, fr.Close, nil
	})
}

func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && cmf>>4 <= 7 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// NewBrotliReader decodes br.
func NewBrotliReader(body io.ReadCloser) CompressReader {
	return newLazyReader(body, func(src io.Reader) (io.Reader, func() error, error) {
		return brotli.NewReader(src), nil, nil
	})
}

// NewZstdReader decodes zstd.
func NewZstdReader(body io.ReadCloser) CompressReader {
	return newLazyReader(body, func(src io.Reader) (io.Reader, func() error, error) {
		zr, err := zstd.NewReader(src)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() error { zr.Close(); return nil }, nil
	})
}
