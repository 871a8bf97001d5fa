package tls

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corewire/hwire/internal/tests"
	utls "github.com/refraction-networking/utls"
)

func TestKeyDistinguishesPolicies(t *testing.T) {
	cfg := &tls.Config{}
	k1 := Key(ExplicitContext{Config: cfg})
	k2 := Key(ExplicitContext{Config: &tls.Config{}})
	tests.AssertTrue(t, k1 != k2, "distinct explicit configs have distinct keys")
	tests.AssertEqual(t, k1, Key(&ExplicitContext{Config: cfg}))

	b1 := Key(BuiltContext{ServerName: "a"})
	b2 := Key(BuiltContext{ServerName: "a", InsecureSkipVerify: true})
	tests.AssertTrue(t, b1 != b2, "insecure flag changes key")
	b3 := Key(BuiltContext{ServerName: "a", Fingerprint: &utls.HelloChrome_Auto})
	tests.AssertTrue(t, b1 != b3, "fingerprint changes key")
	tests.AssertEqual(t, "", Key(nil))
}

func handshakeAgainst(t *testing.T, p Policy) tls.ConnectionState {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	raw, err := net.Dial("tcp", srv.Listener.Addr().String())
	tests.AssertNoError(t, err)
	defer raw.Close()
	c, err := Handshake(context.Background(), raw, "example.com", p)
	tests.AssertNoError(t, err)
	return c.ConnectionState()
}

func TestHandshakeBuiltContext(t *testing.T) {
	cs := handshakeAgainst(t, BuiltContext{InsecureSkipVerify: true, NextProtos: []string{"http/1.1"}})
	tests.AssertTrue(t, cs.HandshakeComplete, "handshake complete")
}

func TestHandshakeExplicitContext(t *testing.T) {
	cs := handshakeAgainst(t, ExplicitContext{Config: &tls.Config{InsecureSkipVerify: true}})
	tests.AssertTrue(t, cs.HandshakeComplete, "handshake complete")
}

func TestHandshakeFingerprint(t *testing.T) {
	cs := handshakeAgainst(t, BuiltContext{InsecureSkipVerify: true, Fingerprint: &utls.HelloGolang})
	tests.AssertTrue(t, cs.HandshakeComplete, "handshake complete")
}

func TestHandshakeVerifyFailureClosesConn(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	raw, err := net.Dial("tcp", srv.Listener.Addr().String())
	tests.AssertNoError(t, err)
	_, err = Handshake(context.Background(), raw, "example.com", Default())
	tests.AssertNotNil(t, err)
	_, err = raw.Write([]byte("x"))
	tests.AssertNotNil(t, err)
}

// negotiate handshakes with a server preferring h2 over http/1.1 and
// returns the protocol it selected.
func negotiate(t *testing.T, p Policy) string {
	t.Helper()
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.TLS = &tls.Config{NextProtos: []string{"h2", "http/1.1"}}
	srv.StartTLS()
	defer srv.Close()
	raw, err := net.Dial("tcp", srv.Listener.Addr().String())
	tests.AssertNoError(t, err)
	defer raw.Close()
	c, err := Handshake(context.Background(), raw, "example.com", p)
	tests.AssertNoError(t, err)
	return c.ConnectionState().NegotiatedProtocol
}

func TestFingerprintKeepsALPN(t *testing.T) {
	tests.AssertEqual(t, "http/1.1", negotiate(t, BuiltContext{
		InsecureSkipVerify: true,
		NextProtos:         []string{"http/1.1"},
		Fingerprint:        &utls.HelloChrome_Auto,
	}))
	// without NextProtos the browser's own ALPN list goes out unchanged
	tests.AssertEqual(t, "h2", negotiate(t, BuiltContext{
		InsecureSkipVerify: true,
		Fingerprint:        &utls.HelloChrome_Auto,
	}))
	tests.AssertEqual(t, "http/1.1", negotiate(t, BuiltContext{
		InsecureSkipVerify: true,
		NextProtos:         []string{"http/1.1"},
	}))
}
