package hwire

import (
	"context"
	cryptotls "crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corewire/hwire/internal/tests"
	"github.com/corewire/hwire/pkg/tls"
)

func TestImpersonateSetsFingerprintAndHeaders(t *testing.T) {
	c := newTestClient(t, nil).ImpersonateFirefox()
	defer c.Close()
	bc, ok := c.tls.(tls.BuiltContext)
	tests.AssertTrue(t, ok, "built policy")
	tests.AssertEqual(t, "Firefox", bc.Fingerprint.Client)
	tests.AssertEqual(t, []string{"http/1.1"}, bc.NextProtos)
	tests.AssertContains(t, c.headers.Get("User-Agent"), "Firefox/", true)
	tests.AssertEqual(t, "?1", c.headers.Get("Sec-Fetch-User"))
}

func TestImpersonateChromeOverTLS(t *testing.T) {
	var ua, fetchMode, proto string
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua, fetchMode, proto = r.UserAgent(), r.Header.Get("Sec-Fetch-Mode"), r.Proto
	}))
	srv.EnableHTTP2 = true
	srv.TLS = &cryptotls.Config{NextProtos: []string{"h2", "http/1.1"}}
	srv.StartTLS()
	defer srv.Close()

	c := newTestClient(t, nil).ImpersonateChrome()
	defer c.Close()
	bc := c.tls.(tls.BuiltContext)
	bc.InsecureSkipVerify = true
	c.SetTLSPolicy(bc)

	resp, err := c.Get(context.Background(), srv.URL)
	tests.AssertNoError(t, err)
	resp.Close()
	tests.AssertContains(t, ua, "Chrome/", true)
	tests.AssertEqual(t, "navigate", fetchMode)
	tests.AssertEqual(t, "HTTP/1.1", proto)
	tests.AssertEqual(t, "http/1.1", resp.Connection.Protocol())
}
