// Package tls models the TLS policy of a destination as a closed set of
// variants and performs client handshakes according to it.
package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strconv"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Policy is either an ExplicitContext or a BuiltContext. The set of
// variants is closed; dispatch with a type switch.
type Policy interface {
	policy()
}

// ExplicitContext uses a caller supplied *tls.Config as is.
type ExplicitContext struct {
	Config *tls.Config
}

func (ExplicitContext) policy() {}

// BuiltContext describes a TLS configuration assembled by the library.
// When Fingerprint is set the handshake mimics that client hello.
type BuiltContext struct {
	ServerName         string
	InsecureSkipVerify bool
	RootCAs            *x509.CertPool
	MinVersion         uint16
	NextProtos         []string
	Fingerprint        *utls.ClientHelloID
}

func (BuiltContext) policy() {}

// Default returns the policy used when a request names none.
func Default() Policy {
	return BuiltContext{MinVersion: tls.VersionTLS12, NextProtos: []string{"http/1.1"}}
}

// Key returns a stable identity for p so connections negotiated under
// different policies never share a pool slot.
func Key(p Policy) string {
	switch v := p.(type) {
	case nil:
		return ""
	case ExplicitContext:
		return fmt.Sprintf("explicit:%p", v.Config)
	case *ExplicitContext:
		return Key(*v)
	case BuiltContext:
		var sb strings.Builder
		sb.WriteString("built:")
		sb.WriteString(v.ServerName)
		sb.WriteByte('|')
		sb.WriteString(strconv.FormatBool(v.InsecureSkipVerify))
		sb.WriteByte('|')
		fmt.Fprintf(&sb, "%p|%d|%s", v.RootCAs, v.MinVersion, strings.Join(v.NextProtos, ","))
		if v.Fingerprint != nil {
			sb.WriteByte('|')
			sb.WriteString(v.Fingerprint.Str())
		}
		return sb.String()
	case *BuiltContext:
		return Key(*v)
	default:
		panic(fmt.Sprintf("tls: unknown policy %T", p))
	}
}

// Handshake runs a client handshake over conn for serverName according
// to p. conn is closed when the handshake fails.
func Handshake(ctx context.Context, conn net.Conn, serverName string, p Policy) (Conn, error) {
	if p == nil {
		p = Default()
	}
	var tc Conn
	switch v := p.(type) {
	case ExplicitContext:
		cfg := v.Config
		if cfg == nil {
			cfg = &tls.Config{}
		} else {
			cfg = cfg.Clone()
		}
		if cfg.ServerName == "" {
			cfg.ServerName = serverName
		}
		tc = tls.Client(conn, cfg)
	case *ExplicitContext:
		return Handshake(ctx, conn, serverName, *v)
	case BuiltContext:
		name := v.ServerName
		if name == "" {
			name = serverName
		}
		if v.Fingerprint != nil {
			ucfg := &utls.Config{
				ServerName:         name,
				InsecureSkipVerify: v.InsecureSkipVerify,
				RootCAs:            v.RootCAs,
				MinVersion:         v.MinVersion,
				NextProtos:         v.NextProtos,
			}
			uc, err := fingerprintConn(conn, ucfg, *v.Fingerprint, v.NextProtos)
			if err != nil {
				conn.Close()
				return nil, err
			}
			tc = &uConn{uc}
		} else {
			tc = tls.Client(conn, &tls.Config{
				ServerName:         name,
				InsecureSkipVerify: v.InsecureSkipVerify,
				RootCAs:            v.RootCAs,
				MinVersion:         v.MinVersion,
				NextProtos:         v.NextProtos,
			})
		}
	case *BuiltContext:
		return Handshake(ctx, conn, serverName, *v)
	default:
		conn.Close()
		return nil, fmt.Errorf("tls: unknown policy %T", p)
	}
	if err := tc.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tc, nil
}

// fingerprintConn mimics the client hello of id with its ALPN list
// replaced by protos. Ids without a fixed spec are used as they are.
func fingerprintConn(conn net.Conn, cfg *utls.Config, id utls.ClientHelloID, protos []string) (*utls.UConn, error) {
	if len(protos) == 0 {
		return utls.UClient(conn, cfg, id), nil
	}
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return utls.UClient(conn, cfg, id), nil
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = protos
		}
	}
	uc := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uc.ApplyPreset(&spec); err != nil {
		return nil, fmt.Errorf("tls: fingerprint %s: %w", id.Str(), err)
	}
	return uc, nil
}
