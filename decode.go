package hwire

import (
	"bytes"
	"io"

	"golang.org/x/text/transform"

	"github.com/corewire/hwire/internal/charsets"
	"github.com/corewire/hwire/internal/util"
)

// charsetSniffLen is how much of a body is inspected when the
// Content-Type names no charset.
const charsetSniffLen = 1024

func responseBodyIsText(contentType string) bool {
	return util.IsTextType(contentType)
}

// charsetReadCloser converts a text body to UTF-8. The charset comes from
// the Content-Type, a byte order mark or an HTML meta prescan of the first
// read, in that order.
type charsetReadCloser struct {
	io.ReadCloser
	contentType  string
	decodeReader io.Reader
	charset      string
}

func newCharsetReadCloser(body io.ReadCloser, contentType string) *charsetReadCloser {
	return &charsetReadCloser{ReadCloser: body, contentType: contentType}
}

func (c *charsetReadCloser) detect() error {
	buf := make([]byte, charsetSniffLen)
	var n int
	var err error
	for n == 0 && err == nil {
		n, err = c.ReadCloser.Read(buf)
	}
	if err != nil && err != io.EOF {
		return err
	}
	head := buf[:n]
	var src io.Reader = bytes.NewReader(head)
	if err == nil {
		src = io.MultiReader(src, c.ReadCloser)
	}
	enc, name := charsets.FindEncoding(c.contentType, head)
	c.charset = name
	if enc == nil {
		c.decodeReader = src
		return nil
	}
	c.decodeReader = transform.NewReader(src, enc.NewDecoder())
	return nil
}

func (c *charsetReadCloser) Read(p []byte) (int, error) {
	if c.decodeReader == nil {
		if err := c.detect(); err != nil {
			return 0, err
		}
	}
	return c.decodeReader.Read(p)
}

// Charset returns the detected charset name after the first Read.
func (c *charsetReadCloser) Charset() string {
	return c.charset
}
