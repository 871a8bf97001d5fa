package dump

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/corewire/hwire/internal/tests"
)

func TestDumperFilters(t *testing.T) {
	var buf bytes.Buffer
	d := NewDumper(Options{Output: &buf, RequestHeader: true, ResponseBody: true})
	d.DumpRequestHeader([]byte("GET / HTTP/1.1\r\n\r\n"))
	d.DumpRequestBody([]byte("request body"))
	d.DumpResponseHeader([]byte("HTTP/1.1 200 OK\r\n\r\n"))

	body := d.WrapResponseBodyReadCloser(io.NopCloser(strings.NewReader("hello")))
	b, err := io.ReadAll(body)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "hello", string(b))
	tests.AssertEqual(t, "GET / HTTP/1.1\r\n\r\nhello\r\n", buf.String())
}

func TestDumperRequestBodyWriter(t *testing.T) {
	var out, dumped bytes.Buffer
	d := NewDumper(Options{Output: &dumped, RequestBody: true})
	w := d.WrapRequestBodyWriter(&out)
	io.WriteString(w, "payload")
	tests.AssertEqual(t, "payload", out.String())
	tests.AssertEqual(t, "payload", dumped.String())

	quiet := NewDumper(Options{Output: &dumped})
	tests.AssertTrue(t, quiet.WrapRequestBodyWriter(&out) == io.Writer(&out), "unwrapped when disabled")
}

func TestDumperAsync(t *testing.T) {
	defer goleak.VerifyNone(t)
	var buf bytes.Buffer
	d := NewDumper(Options{Output: &buf, RequestHeader: true, Async: true})
	d.Start()
	p := []byte("first ")
	d.DumpRequestHeader(p)
	copy(p, "XXXXXX")
	d.DumpRequestHeader([]byte("second"))
	d.Stop()
	d.Stop()
	tests.AssertEqual(t, "first second", buf.String())
}

func TestDumperStopWithoutStart(t *testing.T) {
	d := NewDumper(Options{Async: true})
	d.Stop()
}
