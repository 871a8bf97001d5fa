package netio

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/corewire/hwire/internal/tests"
)

func TestEnsureAvailableAndReadBuffer(t *testing.T) {
	r := NewReader(strings.NewReader("hello"), 16)
	tests.AssertEqual(t, 0, r.Available())
	tests.AssertNoError(t, r.EnsureAvailable())
	tests.AssertEqual(t, 5, r.Available())
	tests.AssertEqual(t, "hel", string(r.ReadBuffer(3)))
	tests.AssertEqual(t, "lo", string(r.ReadBuffer(10)))
	tests.AssertIsNil(t, r.ReadBuffer(1))
	tests.AssertEqual(t, io.EOF, r.EnsureAvailable())
}

func TestReadBufferDoesNotBlock(t *testing.T) {
	r := NewReader(&tests.OneByteReader{R: strings.NewReader("abc")}, 4)
	tests.AssertNoError(t, r.EnsureAvailable())
	tests.AssertEqual(t, "a", string(r.ReadBuffer(3)))
}

func TestReceivedCountsConsumedBytes(t *testing.T) {
	r := NewReader(&tests.OneByteReader{R: strings.NewReader("A: 1\r\n\r\n")}, 4)
	tests.AssertEqual(t, int64(0), r.Received())
	line, found, err := r.ReadLine(16)
	tests.AssertNoError(t, err)
	tests.AssertTrue(t, found, "line found")
	tests.AssertEqual(t, "A: 1", string(line))
	tests.AssertEqual(t, 0, r.Available())
	tests.AssertEqual(t, int64(6), r.Received())
	r.Reset(strings.NewReader(""))
	tests.AssertEqual(t, int64(0), r.Received())
}

func TestFindNewLine(t *testing.T) {
	cases := []struct {
		input string
		max   int
		want  int
	}{
		{"abc\r\nrest", 256, 3},
		{"\r\n", 256, 0},
		{"abcd\r\n", 4, 4},
		{"abcde\r\n", 4, 4},
		{"abc\r\n", 4, 3},
	}
	for _, c := range cases {
		r := NewReader(&tests.OneByteReader{R: strings.NewReader(c.input)}, 2)
		got, err := r.FindNewLine(c.max)
		tests.AssertNoError(t, err)
		tests.AssertEqual(t, c.want, got)
	}
}

func TestFindNewLineBoundedScan(t *testing.T) {
	// exactly 256 bytes with no line end must report not-found, not block
	line := strings.Repeat("f", 256)
	r := NewReader(io.MultiReader(strings.NewReader(line), &blockingReader{}), 64)
	got, err := r.FindNewLine(256)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, 256, got)
}

func TestFindNewLineEOF(t *testing.T) {
	r := NewReader(strings.NewReader("abc"), 8)
	_, err := r.FindNewLine(256)
	tests.AssertEqual(t, io.ErrUnexpectedEOF, err)
}

func TestReadLine(t *testing.T) {
	r := NewReader(strings.NewReader("first\r\nsecond\r\n"), 4)
	line, found, err := r.ReadLine(64)
	tests.AssertNoError(t, err)
	tests.AssertTrue(t, found, "first line found")
	tests.AssertEqual(t, "first", string(line))
	line, found, err = r.ReadLine(64)
	tests.AssertNoError(t, err)
	tests.AssertTrue(t, found, "second line found")
	tests.AssertEqual(t, "second", string(line))
}

func TestReadFullAndSkip(t *testing.T) {
	r := NewReader(&tests.OneByteReader{R: strings.NewReader("0123456789")}, 2)
	b, err := r.ReadFull(4)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "0123", string(b))
	tests.AssertNoError(t, r.Skip(2))
	b, err = r.ReadFull(4)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "6789", string(b))
	_, err = r.ReadFull(1)
	tests.AssertEqual(t, io.ErrUnexpectedEOF, err)
}

func TestStartsWithNewLine(t *testing.T) {
	r := NewReader(strings.NewReader("\r\nx"), 4)
	tests.AssertTrue(t, r.StartsWithNewLine(), "crlf prefix")
	tests.AssertNoError(t, r.Skip(2))
	tests.AssertTrue(t, !r.StartsWithNewLine(), "no crlf prefix")
}

func TestReaderStickyError(t *testing.T) {
	boom := errors.New("boom")
	r := NewReader(io.MultiReader(strings.NewReader("ab"), &errReader{boom}), 8)
	b, err := r.ReadFull(2)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "ab", string(b))
	tests.AssertEqual(t, boom, r.EnsureAvailable())
	tests.AssertEqual(t, boom, r.EnsureAvailable())
}

func TestWriterGrowth(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)
	tests.AssertEqual(t, 128, w.Cap())
	w.WriteString(strings.Repeat("x", 129))
	tests.AssertEqual(t, 256, w.Cap())
	w.Write(bytes.Repeat([]byte("y"), 600))
	tests.AssertEqual(t, 1024, w.Cap())
	tests.AssertEqual(t, 0, out.Len())
	tests.AssertNoError(t, w.Flush())
	tests.AssertEqual(t, 729, out.Len())
	tests.AssertEqual(t, 0, w.Buffered())
}

func TestWriterFlushShortWrite(t *testing.T) {
	w := NewWriter(&halfWriter{})
	w.WriteString("abcdef")
	tests.AssertNoError(t, w.Flush())
	tests.AssertEqual(t, 0, w.Buffered())
}

type blockingReader struct{}

func (blockingReader) Read(p []byte) (int, error) {
	panic("read past the scan window")
}

type errReader struct{ err error }

func (e *errReader) Read(p []byte) (int, error) { return 0, e.err }

type halfWriter struct{ bytes.Buffer }

func (h *halfWriter) Write(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:len(p)/2]
	}
	return h.Buffer.Write(p)
}
