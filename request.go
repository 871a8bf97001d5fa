package hwire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/google/go-querystring/query"

	"github.com/corewire/hwire/internal/compress"
	"github.com/corewire/hwire/internal/netutil"
	"github.com/corewire/hwire/internal/util"
	"github.com/corewire/hwire/pkg/tls"
)

// Request is an outbound HTTP/1.1 request. Setters return the Request so
// calls can be chained; the first setter error is kept and returned by Do.
type Request struct {
	Method  string
	URL     *url.URL
	Headers Headers
	// Body is sent with a Content-Length.
	Body []byte
	// BodyReader is used when Body is nil. ContentLength of -1 streams it
	// with chunked coding.
	BodyReader    io.Reader
	ContentLength int64
	// Connection, when set, carries the exchange instead of a pooled or
	// newly dialed connection.
	Connection *Connection
	TLS        tls.Policy
	Proxy      *Proxy
	// KeepAlive overrides Config.KeepAlive for this request.
	KeepAlive *bool

	encoding   string
	digestUser string
	digestPass string
	bodyRead   bool
	trace      bool
	err        error
}

// NewRequest parses rawURL and returns a request with no body.
func NewRequest(method, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = MethodGet
	}
	return &Request{Method: strings.ToUpper(method), URL: u}, nil
}

// Common request methods.
const (
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodPatch   = "PATCH"
	MethodDelete  = "DELETE"
	MethodConnect = "CONNECT"
	MethodOptions = "OPTIONS"
	MethodTrace   = "TRACE"
)

func (r *Request) appendError(err error) {
	r.err = errors.Join(r.err, err)
}

// Err returns the errors collected by setters.
func (r *Request) Err() error { return r.err }

// SetHeader replaces the values of name.
func (r *Request) SetHeader(name, value string) *Request {
	r.Headers.Set(name, value)
	return r
}

// AddHeader appends a value for name.
func (r *Request) AddHeader(name, value string) *Request {
	r.Headers.Add(name, value)
	return r
}

// SetContentType sets the Content-Type header.
func (r *Request) SetContentType(contentType string) *Request {
	return r.SetHeader("Content-Type", contentType)
}

// SetBasicAuth sets the Authorization header.
func (r *Request) SetBasicAuth(username, password string) *Request {
	return r.SetHeader("Authorization", util.BasicAuthHeaderValue(username, password))
}

// SetDigestAuth answers a 401 digest challenge with the credentials,
// resending the request once.
func (r *Request) SetDigestAuth(username, password string) *Request {
	r.digestUser, r.digestPass = username, password
	return r
}

// SetBody sets a body of known length.
func (r *Request) SetBody(body []byte) *Request {
	r.Body = body
	r.BodyReader = nil
	r.ContentLength = int64(len(body))
	return r
}

// SetBodyString sets a string body.
func (r *Request) SetBodyString(body string) *Request {
	return r.SetBody([]byte(body))
}

// SetBodyReader streams body. A negative length sends it chunked.
func (r *Request) SetBodyReader(body io.Reader, length int64) *Request {
	r.Body = nil
	r.BodyReader = body
	r.ContentLength = length
	return r
}

// SetQueryParam sets one query parameter.
func (r *Request) SetQueryParam(key, value string) *Request {
	q := r.URL.Query()
	q.Set(key, value)
	r.URL.RawQuery = q.Encode()
	return r
}

// SetQueryParams adds the fields of a struct, encoded with `url` tags,
// to the query string.
func (r *Request) SetQueryParams(v interface{}) *Request {
	values, err := query.Values(v)
	if err != nil {
		r.appendError(fmt.Errorf("hwire: encoding query params: %w", err))
		return r
	}
	q := r.URL.Query()
	for k, vs := range values {
		for _, s := range vs {
			q.Add(k, s)
		}
	}
	r.URL.RawQuery = q.Encode()
	return r
}

// Encode compresses the body with coding ("br", "gzip", "deflate" or
// "zstd") when the request is sent.
func (r *Request) Encode(coding string) *Request {
	if !compress.IsSupported(coding) {
		r.appendError(&UnsupportedEncodingError{Encoding: coding})
		return r
	}
	r.encoding = strings.ToLower(strings.TrimSpace(coding))
	return r
}

// EnableTrace records the timings of the exchange, see Response.TraceInfo.
func (r *Request) EnableTrace() *Request {
	r.trace = true
	return r
}

// DisableKeepAlive asks for the connection to be closed after the
// exchange.
func (r *Request) DisableKeepAlive() *Request {
	ka := false
	r.KeepAlive = &ka
	return r
}

// SetConnection makes the request use c.
func (r *Request) SetConnection(c *Connection) *Request {
	r.Connection = c
	return r
}

// SetTLS sets the TLS policy for https destinations.
func (r *Request) SetTLS(p tls.Policy) *Request {
	r.TLS = p
	return r
}

// SetProxy routes the request through p, overriding the client proxy.
func (r *Request) SetProxy(p *Proxy) *Request {
	r.Proxy = p
	return r
}

func (r *Request) hasBody() bool {
	return r.Body != nil || r.BodyReader != nil
}

// replayable reports whether the body can be sent again.
func (r *Request) replayable() bool {
	return r.BodyReader == nil || !r.bodyRead
}

func (r *Request) idempotent() bool {
	switch r.Method {
	case MethodGet, MethodHead, MethodOptions, MethodTrace, MethodPut, MethodDelete:
		return true
	}
	return false
}

// target returns the request-target of the prologue.
func (r *Request) target(absolute bool, host string, port int) string {
	if r.Method == MethodConnect {
		return netutil.AuthorityAddr(host, port)
	}
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	if r.URL.Opaque != "" {
		path = r.URL.Opaque
	}
	if r.URL.ForceQuery || r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	if !absolute {
		return path
	}
	return strings.ToLower(r.URL.Scheme) + "://" + netutil.AuthorityAddr(host, port) + path
}

// encodeBody applies the requested content coding to the body in memory.
func (r *Request) encodeBody(cfg *Config) error {
	if r.encoding == "" || !r.hasBody() || r.Headers.Contains("Content-Encoding") {
		return nil
	}
	src := r.Body
	if src == nil {
		b, err := io.ReadAll(r.BodyReader)
		if err != nil {
			return err
		}
		src = b
	}
	var buf bytes.Buffer
	w, err := compress.NewWriter(&buf, r.encoding, compress.EncoderOptions{
		BrotliQuality: cfg.Brotli.Quality,
		BrotliLGWin:   cfg.Brotli.LGWin,
		SizeHint:      len(src),
	})
	if err != nil {
		return err
	}
	if _, err := w.Write(src); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	r.SetBody(buf.Bytes())
	r.Headers.Set("Content-Encoding", r.encoding)
	return nil
}
