package hwire

import (
	"errors"
	"strings"
	"testing"

	"github.com/corewire/hwire/internal/header"
	"github.com/corewire/hwire/internal/netio"
	"github.com/corewire/hwire/internal/tests"
)

func reader(s string) *netio.Reader {
	return netio.NewReader(strings.NewReader(s), 64)
}

func TestHeaderNameKnown(t *testing.T) {
	n := NewHeaderName("content-LENGTH")
	tests.AssertEqual(t, header.ContentLength, n.Tag())
	tests.AssertEqual(t, "Content-Length", n.String())
	tests.AssertTrue(t, n.Equal(NewHeaderName("Content-Length")), "known names compare by tag")

	u := NewHeaderName("X-Trace-Id")
	tests.AssertEqual(t, header.Unknown, u.Tag())
	tests.AssertEqual(t, "X-Trace-Id", u.String())
	tests.AssertEqual(t, "x-trace-id", u.Lower())
	tests.AssertTrue(t, u.Equal(NewHeaderName("x-TRACE-id")), "unknown names compare case-insensitively")
	tests.AssertTrue(t, !u.Equal(n), "different names")
}

func TestHeadersOrderAndDuplicates(t *testing.T) {
	h := NewHeaders("Set-Cookie", "a=1", "X-A", "1", "set-cookie", "b=2")
	tests.AssertEqual(t, 3, h.Len())
	tests.AssertEqual(t, []string{"a=1", "b=2"}, h.Values("Set-Cookie"))
	tests.AssertEqual(t, "a=1", h.Get("SET-COOKIE"))

	h.Set("set-cookie", "c=3")
	tests.AssertEqual(t, "Set-Cookie: c=3\r\nX-A: 1\r\n", h.String())

	tests.AssertTrue(t, !h.SetIfAbsent("x-a", "2"), "present")
	tests.AssertTrue(t, h.SetIfAbsent("X-B", "2"), "absent")
	h.Del("x-a")
	tests.AssertTrue(t, !h.Contains("X-A"), "deleted")
	tests.AssertEqual(t, 2, h.Len())
}

func TestHeadersCloneIsDeep(t *testing.T) {
	h := NewHeaders("A", "1")
	c := h.Clone()
	c.Set("A", "2")
	tests.AssertEqual(t, "1", h.Get("A"))
	tests.AssertEqual(t, "2", c.Get("A"))
}

func TestContainsValue(t *testing.T) {
	h := NewHeaders("Connection", "Keep-Alive, Upgrade")
	tests.AssertTrue(t, h.ContainsValue("connection", "upgrade"), "token in list")
	tests.AssertTrue(t, !h.ContainsValue("connection", "close"), "missing token")
}

func TestContentLength(t *testing.T) {
	cases := []struct {
		values []string
		n      int64
		ok     bool
		err    bool
	}{
		{nil, -1, false, false},
		{[]string{"42"}, 42, true, false},
		{[]string{"42", "42"}, 42, true, false},
		{[]string{"42, 42"}, 42, true, false},
		{[]string{"42", "43"}, -1, false, true},
		{[]string{"-1"}, -1, false, true},
		{[]string{"abc"}, -1, false, true},
		{[]string{""}, -1, false, true},
	}
	for _, c := range cases {
		var h Headers
		for _, v := range c.values {
			h.Add("Content-Length", v)
		}
		n, ok, err := h.ContentLength()
		tests.AssertEqual(t, c.n, n)
		tests.AssertEqual(t, c.ok, ok)
		tests.AssertEqual(t, c.err, err != nil)
	}
}

func TestIsChunked(t *testing.T) {
	tests.AssertTrue(t, NewHeaders("Transfer-Encoding", "chunked").IsChunked(), "chunked")
	tests.AssertTrue(t, NewHeaders("Transfer-Encoding", "gzip, Chunked").IsChunked(), "last coding")
	tests.AssertTrue(t, !NewHeaders("Transfer-Encoding", "chunked, gzip").IsChunked(), "not last")
	tests.AssertTrue(t, !NewHeaders().IsChunked(), "absent")
}

func TestParseHeaders(t *testing.T) {
	h, err := ParseHeaders(reader("Content-Type:  text/plain \r\nX-Empty:\r\nX-A: 1\r\nx-a: 2\r\n\r\nrest"), 1024, true)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "text/plain", h.Get("content-type"))
	tests.AssertEqual(t, "", h.Get("X-Empty"))
	tests.AssertTrue(t, h.Contains("X-Empty"), "empty value kept")
	tests.AssertEqual(t, []string{"1", "2"}, h.Values("X-A"))
}

func TestParseHeadersErrors(t *testing.T) {
	_, err := ParseHeaders(reader("NoColon\r\n\r\n"), 1024, true)
	tests.AssertTrue(t, IsProtocolError(err), "missing colon")

	_, err = ParseHeaders(reader("A: 1\r\n folded\r\n\r\n"), 1024, true)
	tests.AssertTrue(t, IsProtocolError(err), "obsolete folding")

	_, err = ParseHeaders(reader("Bad Name: 1\r\n\r\n"), 1024, true)
	tests.AssertTrue(t, IsProtocolError(err), "invalid name")

	_, err = ParseHeaders(reader("Bad Name: 1\r\n\r\n"), 1024, false)
	tests.AssertNoError(t, err)

	_, err = ParseHeaders(reader("A: "+strings.Repeat("x", 200)+"\r\n\r\n"), 128, true)
	tests.AssertTrue(t, errors.Is(err, ErrHeaderTooLarge), "line beyond limit")

	big := strings.Repeat("X-A: 1234567890\r\n", 20) + "\r\n"
	_, err = ParseHeaders(reader(big), 200, true)
	tests.AssertTrue(t, errors.Is(err, ErrHeaderTooLarge), "block beyond limit")
}

func TestWriteHeaders(t *testing.T) {
	var sb strings.Builder
	w := netio.NewWriter(&sb)
	tests.AssertNoError(t, WriteHeaders(w, NewHeaders("Host", "example.com", "x-custom", "v"), true))
	tests.AssertNoError(t, w.Flush())
	tests.AssertEqual(t, "Host: example.com\r\nx-custom: v\r\n\r\n", sb.String())
}

func TestHeadersWriteParseRoundTrip(t *testing.T) {
	blocks := []Headers{
		NewHeaders(),
		NewHeaders("Content-Type", "text/html; charset=utf-8", "content-length", "12"),
		NewHeaders("Set-Cookie", "a=1", "X-Custom-Thing", "v1", "set-cookie", "b=2", "SET-COOKIE", "c=3"),
		NewHeaders("x-unknown-zz", "", "Etag", `"abc"`, "X-Unknown-ZZ", "two words", "Vary", "Accept, Accept-Encoding"),
	}
	for _, h := range blocks {
		var sb strings.Builder
		w := netio.NewWriter(&sb)
		tests.AssertNoError(t, WriteHeaders(w, h, true))
		tests.AssertNoError(t, w.Flush())

		got, err := ParseHeaders(reader(sb.String()), 1024, true)
		tests.AssertNoError(t, err)
		tests.AssertEqual(t, h.Len(), got.Len())
		for i, f := range h.Fields() {
			g := got.Fields()[i]
			tests.AssertTrue(t, f.Name.Equal(g.Name), f.Name.String()+" vs "+g.Name.String())
			tests.AssertEqual(t, f.Value, g.Value)
		}
		for _, f := range h.Fields() {
			upper := strings.ToUpper(f.Name.String())
			tests.AssertEqual(t, h.Values(f.Name.String()), got.Values(upper))
		}
	}
}

func TestWriteHeadersRejectsCRLF(t *testing.T) {
	w := netio.NewWriter(&strings.Builder{})
	err := WriteHeaders(w, NewHeaders("X-A", "v\r\nInjected: 1"), false)
	tests.AssertErrorContains(t, err, "CR or LF")

	err = WriteHeaders(w, NewHeaders("X A", "v"), true)
	tests.AssertErrorContains(t, err, "invalid header name")
}

func TestParseStatusLine(t *testing.T) {
	proto, st, err := parseStatusLine("HTTP/1.1 200 OK")
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "HTTP/1.1", proto)
	tests.AssertEqual(t, Status{Code: 200, Reason: "OK"}, st)

	_, st, err = parseStatusLine("HTTP/1.0 404 Not Found Here")
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "Not Found Here", st.Reason)

	_, st, err = parseStatusLine("HTTP/1.1 204")
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "204", st.String())

	for _, bad := range []string{"HTTP/2.0 200 OK", "HTTP/1.1 2x0 OK", "HTTP/1.1 099 Low", "HTTP/1.1 2000 OK", "garbage"} {
		_, _, err := parseStatusLine(bad)
		tests.AssertTrue(t, IsProtocolError(err), bad)
	}
}

func TestReadStatusLineBounded(t *testing.T) {
	_, _, err := readStatusLine(reader("HTTP/1.1 200 "+strings.Repeat("x", 300)+"\r\n"), 256)
	tests.AssertTrue(t, errors.Is(err, ErrStatusLineTooLong), "too long")

	_, st, err := readStatusLine(reader("HTTP/1.1 101 Switching Protocols\r\n"), 256)
	tests.AssertNoError(t, err)
	tests.AssertTrue(t, st.Informational(), "1xx")
}
