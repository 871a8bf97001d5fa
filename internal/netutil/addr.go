// Package netutil normalises request authorities for dialing, pool keys
// and the Host header.
package netutil

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// DefaultPort returns the well-known port of scheme, or 0.
func DefaultPort(scheme string) int {
	switch strings.ToLower(scheme) {
	case "http", "ws":
		return 80
	case "https", "wss":
		return 443
	}
	return 0
}

// IsTLSScheme reports whether scheme implies a TLS connection.
func IsTLSScheme(scheme string) bool {
	s := strings.ToLower(scheme)
	return s == "https" || s == "wss"
}

// AuthorityHostPort splits the authority of u into an ASCII host and a
// port, filling in the default port of the scheme.
func AuthorityHostPort(u *url.URL) (host string, port int, err error) {
	host = u.Hostname()
	if host == "" {
		return "", 0, fmt.Errorf("missing host in %q", u.String())
	}
	if a, err := idna.Lookup.ToASCII(host); err == nil {
		host = a
	}
	host = strings.ToLower(host)
	if ps := u.Port(); ps != "" {
		port, err = strconv.Atoi(ps)
		if err != nil || port <= 0 || port > 65535 {
			return "", 0, fmt.Errorf("invalid port %q", ps)
		}
		return host, port, nil
	}
	port = DefaultPort(u.Scheme)
	if port == 0 {
		return "", 0, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return host, port, nil
}

// AuthorityAddr returns host:port suitable for dialing, bracketing IPv6
// literals.
func AuthorityAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// HostHeader returns the Host header value for host and port, omitting
// the port when it is the default for scheme.
func HostHeader(scheme, host string, port int) string {
	if port == DefaultPort(scheme) {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return AuthorityAddr(host, port)
}
