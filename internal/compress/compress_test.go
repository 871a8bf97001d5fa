package compress

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/flate"

	"github.com/corewire/hwire/internal/tests"
)

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func roundTrip(t *testing.T, enc string, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, enc, EncoderOptions{BrotliQuality: 5})
	tests.AssertNoError(t, err)
	_, err = w.Write(payload)
	tests.AssertNoError(t, err)
	tests.AssertNoError(t, w.Close())

	body := &closeRecorder{Reader: &buf}
	r := NewCompressReader(body, enc)
	tests.AssertNotNil(t, r)
	out, err := io.ReadAll(r)
	tests.AssertNoError(t, err)
	tests.AssertNoError(t, r.Close())
	tests.AssertTrue(t, body.closed, "underlying body closed")
	return out
}

func TestRoundTripAllEncodings(t *testing.T) {
	payload := []byte(strings.Repeat("hwire compresses entities. ", 200))
	for _, enc := range Supported() {
		t.Run(enc, func(t *testing.T) {
			tests.AssertBytesEqual(t, payload, roundTrip(t, enc, payload))
		})
	}
}

func TestRawDeflateAccepted(t *testing.T) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.BestSpeed)
	tests.AssertNoError(t, err)
	fw.Write([]byte("raw deflate body"))
	fw.Close()
	r := NewDeflateReader(io.NopCloser(&buf))
	out, err := io.ReadAll(r)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "raw deflate body", string(out))
}

func TestUnsupported(t *testing.T) {
	tests.AssertTrue(t, !IsSupported("compress"), "compress is unsupported")
	tests.AssertTrue(t, IsSupported(" GZIP "), "case and space insensitive")
	tests.AssertIsNil(t, NewCompressReader(io.NopCloser(strings.NewReader("")), "compress"))
	_, err := NewWriter(io.Discard, "compress", EncoderOptions{})
	tests.AssertErrorContains(t, err, "unsupported")
}

func TestLazyReaderStickyError(t *testing.T) {
	r := NewGzipReader(io.NopCloser(strings.NewReader("not gzip at all")))
	_, err := r.Read(make([]byte, 8))
	tests.AssertNotNil(t, err)
	_, err2 := r.Read(make([]byte, 8))
	tests.AssertEqual(t, err, err2)
}

func TestUnderlyingBody(t *testing.T) {
	b1 := io.NopCloser(strings.NewReader("a"))
	b2 := io.NopCloser(strings.NewReader("b"))
	r := NewBrotliReader(b1)
	tests.AssertEqual(t, b1, r.GetUnderlyingBody())
	r.SetUnderlyingBody(b2)
	tests.AssertEqual(t, b2, r.GetUnderlyingBody())
}
