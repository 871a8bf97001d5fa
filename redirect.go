package hwire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/corewire/hwire/internal/header"
)

// RedirectPolicy decides whether req, built from a redirect response, is
// sent. via holds the requests already sent, oldest first. Returning
// ErrUseLastResponse hands the redirect response to the caller; any other
// error fails the call.
type RedirectPolicy func(req *Request, via []*Request) error

// ErrUseLastResponse stops redirect following without an error.
var ErrUseLastResponse = errors.New("hwire: use last response")

// MaxRedirectPolicy follows at most noOfRedirect redirects.
func MaxRedirectPolicy(noOfRedirect int) RedirectPolicy {
	return func(req *Request, via []*Request) error {
		if len(via) > noOfRedirect {
			return fmt.Errorf("hwire: stopped after %d redirects", noOfRedirect)
		}
		return nil
	}
}

// NoRedirectPolicy disable redirect behaviour
func NoRedirectPolicy() RedirectPolicy {
	return func(req *Request, via []*Request) error {
		return ErrUseLastResponse
	}
}

// SameDomainRedirectPolicy allows redirect only if the redirected domain
// is the same as original domain, e.g. redirect to "www.example.com" from
// "api.example.com" is allowed, but redirect to "example.org" is not.
func SameDomainRedirectPolicy() RedirectPolicy {
	return func(req *Request, via []*Request) error {
		if getDomain(req.URL.Host) != getDomain(via[0].URL.Host) {
			return errors.New("hwire: different domain name is not allowed")
		}
		return nil
	}
}

// SameHostRedirectPolicy allows redirect only if the redirected host
// is the same as original host.
func SameHostRedirectPolicy() RedirectPolicy {
	return func(req *Request, via []*Request) error {
		if getHostname(req.URL.Host) != getHostname(via[0].URL.Host) {
			return errors.New("hwire: different host name is not allowed")
		}
		return nil
	}
}

// AllowedHostRedirectPolicy allows redirect only if the redirected host
// match one of the host that specified.
func AllowedHostRedirectPolicy(hosts ...string) RedirectPolicy {
	m := make(map[string]bool)
	for _, h := range hosts {
		m[getHostname(h)] = true
	}
	return func(req *Request, via []*Request) error {
		h := getHostname(req.URL.Host)
		if !m[h] {
			return fmt.Errorf("hwire: redirect host [%s] is not allowed", h)
		}
		return nil
	}
}

// AllowedDomainRedirectPolicy allows redirect only if the redirected domain
// match one of the domain that specified.
func AllowedDomainRedirectPolicy(hosts ...string) RedirectPolicy {
	domains := make(map[string]bool)
	for _, h := range hosts {
		domains[getDomain(h)] = true
	}
	return func(req *Request, via []*Request) error {
		domain := getDomain(req.URL.Host)
		if !domains[domain] {
			return fmt.Errorf("hwire: redirect domain [%s] is not allowed", domain)
		}
		return nil
	}
}

// AlwaysCopyHeaderRedirectPolicy copies the named headers from the first
// request even when the redirect leaves its host, where credentials are
// otherwise dropped.
func AlwaysCopyHeaderRedirectPolicy(headers ...string) RedirectPolicy {
	return func(req *Request, via []*Request) error {
		for _, name := range headers {
			if len(req.Headers.Values(name)) > 0 {
				continue
			}
			for _, v := range via[0].Headers.Values(name) {
				req.Headers.Add(name, v)
			}
		}
		return nil
	}
}

func getHostname(host string) string {
	if strings.Index(host, ":") > 0 {
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
	}
	return strings.ToLower(host)
}

func getDomain(host string) string {
	host = getHostname(host)
	ss := strings.Split(host, ".")
	if len(ss) < 3 {
		return host
	}
	return strings.Join(ss[1:], ".")
}

// sensitiveHeaders are dropped when a redirect changes host.
var sensitiveHeaders = []string{"Authorization", "Www-Authenticate", "Cookie", "Cookie2"}

func isRedirect(code int) bool {
	switch code {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// redirectRequest builds the request that follows resp, or returns nil
// when resp cannot be followed.
func redirectRequest(req *Request, resp *Response) (*Request, error) {
	loc := resp.Headers.getName(knownName(header.Location))
	if loc == "" || req.Connection != nil || req.Method == MethodConnect {
		return nil, nil
	}
	u, err := req.URL.Parse(loc)
	if err != nil {
		return nil, fmt.Errorf("hwire: failed to parse Location header %q: %w", loc, err)
	}
	next := &Request{
		Method:        req.Method,
		URL:           u,
		Headers:       req.Headers.Clone(),
		Body:          req.Body,
		BodyReader:    req.BodyReader,
		ContentLength: req.ContentLength,
		TLS:           req.TLS,
		Proxy:         req.Proxy,
		KeepAlive:     req.KeepAlive,
		digestUser:    req.digestUser,
		digestPass:    req.digestPass,
		bodyRead:      req.bodyRead,
		trace:         req.trace,
	}
	switch resp.Status.Code {
	case 301, 302, 303:
		if req.Method != MethodGet && req.Method != MethodHead {
			next.Method = MethodGet
		}
		next.Body, next.BodyReader, next.ContentLength = nil, nil, 0
		for _, name := range []string{"Content-Length", "Content-Type", "Content-Encoding", "Transfer-Encoding"} {
			next.Headers.Del(name)
		}
	default:
		if !req.replayable() {
			return nil, nil
		}
	}
	if getHostname(u.Host) != getHostname(req.URL.Host) {
		for _, name := range sensitiveHeaders {
			next.Headers.Del(name)
		}
		next.digestUser, next.digestPass = "", ""
	}
	return next, nil
}

// followRedirects sends the request named by each redirect response until
// a response is not a redirect or a policy stops it.
func (c *Client) followRedirects(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if c.cfg.MaxRedirects == 0 {
		return resp, nil
	}
	via := []*Request{req}
	for isRedirect(resp.Status.Code) {
		next, err := redirectRequest(req, resp)
		if err != nil {
			resp.Close()
			return nil, err
		}
		if next == nil {
			return resp, nil
		}
		for _, p := range c.redirectPolicies() {
			if err := p(next, via); err != nil {
				if errors.Is(err, ErrUseLastResponse) {
					return resp, nil
				}
				resp.Close()
				return nil, err
			}
		}
		c.debugf("redirect %d %s -> %s %s", resp.Status.Code, req.URL.Redacted(), next.Method, next.URL.Redacted())
		resp.Close()
		via = append(via, next)
		req = next
		if resp, err = c.roundTrip(ctx, req); err != nil {
			return nil, err
		}
		if resp, err = c.handleDigestAuth(ctx, req, resp); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (c *Client) redirectPolicies() []RedirectPolicy {
	return append([]RedirectPolicy{MaxRedirectPolicy(c.cfg.MaxRedirects)}, c.redirectPolicy...)
}
