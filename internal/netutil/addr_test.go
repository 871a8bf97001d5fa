package netutil

import (
	"net/url"
	"testing"

	"github.com/corewire/hwire/internal/tests"
)

func TestAuthorityHostPort(t *testing.T) {
	cases := []struct {
		url  string
		host string
		port int
	}{
		{"http://example.com/x", "example.com", 80},
		{"https://Example.COM", "example.com", 443},
		{"http://example.com:8080", "example.com", 8080},
		{"https://[::1]:8443/", "::1", 8443},
		{"http://bücher.example/", "xn--bcher-kva.example", 80},
	}
	for _, c := range cases {
		u, err := url.Parse(c.url)
		tests.AssertNoError(t, err)
		host, port, err := AuthorityHostPort(u)
		tests.AssertNoError(t, err)
		tests.AssertEqual(t, c.host, host)
		tests.AssertEqual(t, c.port, port)
	}
}

func TestAuthorityHostPortErrors(t *testing.T) {
	for _, raw := range []string{"ftp://example.com", "http://example.com:99999", "/relative"} {
		u, err := url.Parse(raw)
		tests.AssertNoError(t, err)
		_, _, err = AuthorityHostPort(u)
		tests.AssertNotNil(t, err)
	}
}

func TestHostHeader(t *testing.T) {
	tests.AssertEqual(t, "example.com", HostHeader("http", "example.com", 80))
	tests.AssertEqual(t, "example.com:8080", HostHeader("http", "example.com", 8080))
	tests.AssertEqual(t, "example.com:80", HostHeader("https", "example.com", 80))
	tests.AssertEqual(t, "[::1]", HostHeader("https", "::1", 443))
	tests.AssertEqual(t, "[::1]:81", HostHeader("http", "::1", 81))
}
