package tls

import (
	"context"
	"crypto/tls"
	"net"

	utls "github.com/refraction-networking/utls"
)

// Conn is the connection returned by Handshake. The pipeline reads the
// negotiated protocol and peer details from it for routing and logging.
type Conn interface {
	net.Conn
	// ConnectionState returns basic TLS details about the connection.
	ConnectionState() tls.ConnectionState
	// HandshakeContext runs the client handshake if it has not yet been run.
	HandshakeContext(ctx context.Context) error
}

var _ Conn = (*tls.Conn)(nil)

// uConn adapts a utls connection to Conn by translating its state.
type uConn struct {
	*utls.UConn
}

func (c *uConn) ConnectionState() tls.ConnectionState {
	cs := c.UConn.ConnectionState()
	return tls.ConnectionState{
		Version:                     cs.Version,
		HandshakeComplete:           cs.HandshakeComplete,
		DidResume:                   cs.DidResume,
		CipherSuite:                 cs.CipherSuite,
		NegotiatedProtocol:          cs.NegotiatedProtocol,
		NegotiatedProtocolIsMutual:  cs.NegotiatedProtocolIsMutual,
		ServerName:                  cs.ServerName,
		PeerCertificates:            cs.PeerCertificates,
		VerifiedChains:              cs.VerifiedChains,
		SignedCertificateTimestamps: cs.SignedCertificateTimestamps,
		OCSPResponse:                cs.OCSPResponse,
		TLSUnique:                   cs.TLSUnique,
	}
}

func (c *uConn) HandshakeContext(ctx context.Context) error {
	return c.UConn.HandshakeContext(ctx)
}

// NetConn returns the underlying connection.
func (c *uConn) NetConn() net.Conn {
	return c.UConn.NetConn()
}
