package hwire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/corewire/hwire/internal/compress"
	"github.com/corewire/hwire/internal/header"
	"github.com/corewire/hwire/internal/netio"
	"github.com/corewire/hwire/internal/netutil"
	"github.com/corewire/hwire/pkg/tls"
)

const (
	// bodyFlushThreshold bounds how much request body is buffered before
	// it is pushed to the socket.
	bodyFlushThreshold = 32 << 10
	// maxDrain is how much of an unread entity is discarded to reach its
	// end and keep the connection reusable, either past the end of a
	// decoded stream or when the response is closed early.
	maxDrain            = 4 << 10
	maxInterimResponses = 8
)

type pipelineState int

const (
	stateWritePrologue pipelineState = iota
	stateWriteHeaders
	stateFlush
	stateReadStatus
	stateReadHeaders
	stateBuildEntity
	stateComplete
)

func (s pipelineState) String() string {
	switch s {
	case stateWritePrologue:
		return "WRITE_PROLOGUE"
	case stateWriteHeaders:
		return "WRITE_HEADERS"
	case stateFlush:
		return "FLUSH"
	case stateReadStatus:
		return "READ_STATUS"
	case stateReadHeaders:
		return "READ_HEADERS"
	case stateBuildEntity:
		return "BUILD_ENTITY"
	case stateComplete:
		return "COMPLETE"
	}
	return "UNKNOWN"
}

// destination is where a request goes and how it gets there.
type destination struct {
	scheme    string
	host      string
	port      int
	tls       bool
	proxy     *Proxy // nil when connecting directly
	tlsPolicy tls.Policy
}

func (d destination) addr() string {
	return netutil.AuthorityAddr(d.host, d.port)
}

func (d destination) key() poolKey {
	k := poolKey{
		scheme: d.scheme,
		host:   d.host,
		port:   strconv.Itoa(d.port),
		proxy:  d.proxy.key(),
	}
	if d.tls {
		k.tls = tls.Key(d.tlsPolicy)
	}
	return k
}

// tunnel reports whether the HTTP proxy is passed with CONNECT.
func (d destination) tunnel() bool {
	return d.proxy != nil && d.proxy.Type == ProxyHTTP && (d.tls || d.proxy.ForceConnect)
}

// forwarded reports whether requests are sent to an HTTP proxy as is.
func (d destination) forwarded() bool {
	return d.proxy != nil && d.proxy.Type == ProxyHTTP && !d.tunnel()
}

// callChain runs exchanges for a Client.
type callChain struct {
	c *Client
}

// staleConnError marks a failure on a reused connection before any part
// of the response arrived. The server most likely closed the idle
// connection, so the request may be sent again on a new one.
type staleConnError struct {
	err error
}

func (e *staleConnError) Error() string { return e.err.Error() }
func (e *staleConnError) Unwrap() error { return e.err }

func isStaleConnError(err error) bool {
	var se *staleConnError
	return errors.As(err, &se)
}

func unwrapStale(err error) error {
	var se *staleConnError
	if errors.As(err, &se) {
		return se.err
	}
	return err
}

func isConnDropped(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed)
}

// proceed sends req and reads the response head. With fresh set a pooled
// connection is never used.
func (cc *callChain) proceed(ctx context.Context, req *Request, fresh bool) (*Response, error) {
	c := cc.c
	dst, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	var tr *exchangeTrace
	if c.trace || req.trace {
		tr = &exchangeTrace{start: time.Now()}
	}
	conn := req.Connection
	var pool *Pool
	if conn == nil {
		pool = c.pool
		if !fresh {
			conn = pool.acquire(dst.key())
			if conn != nil && tr != nil {
				tr.connIdleSince = conn.idleSince
			}
		}
		if conn == nil {
			if conn, err = cc.dial(ctx, dst); err != nil {
				return nil, err
			}
		}
	} else if conn.Closed() {
		return nil, ErrConnectionClosed
	}
	conn.SetReadTimeout(c.cfg.ReadTimeout)

	keepAlive := c.cfg.KeepAlive
	if req.KeepAlive != nil {
		keepAlive = *req.KeepAlive
	}
	x := &exchange{
		c:         c,
		cfg:       &c.cfg,
		conn:      conn,
		pool:      pool,
		req:       req,
		dst:       dst,
		keepAlive: keepAlive && conn.keepAlive,
		tr:        tr,
	}
	x.comp = newCompletion(x.onEntityDone)
	return x.run(ctx)
}

func (c *Client) resolve(req *Request) (destination, error) {
	if req.URL == nil {
		return destination{}, errors.New("hwire: request has no URL")
	}
	host, port, err := netutil.AuthorityHostPort(req.URL)
	if err != nil {
		return destination{}, fmt.Errorf("hwire: %w", err)
	}
	dst := destination{
		scheme: strings.ToLower(req.URL.Scheme),
		host:   host,
		port:   port,
	}
	dst.tls = netutil.IsTLSScheme(dst.scheme)
	p := req.Proxy
	if p == nil {
		p = c.proxy
	}
	if p.appliesTo(host, port) {
		dst.proxy = p
	}
	if dst.tls {
		dst.tlsPolicy = req.TLS
		if dst.tlsPolicy == nil {
			dst.tlsPolicy = c.tls
		}
		if dst.tlsPolicy == nil {
			dst.tlsPolicy = tls.Default()
		}
	}
	return dst, nil
}

// dial opens a connection to dst, through its proxy and TLS policy.
func (cc *callChain) dial(ctx context.Context, dst destination) (*Connection, error) {
	c := cc.c
	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}
	var (
		raw   net.Conn
		err   error
		start = time.Now()
	)
	switch {
	case dst.proxy == nil:
		raw, err = c.dialer.DialContext(ctx, "tcp", dst.addr())
	case dst.proxy.Type == ProxySOCKS5:
		raw, err = dst.proxy.dialSOCKS5(ctx, c.dialer, dst.addr())
	default:
		raw, err = c.dialer.DialContext(ctx, "tcp", dst.proxy.Addr())
		if err == nil && dst.tunnel() {
			if err = cc.connectTunnel(ctx, raw, dst); err != nil {
				raw.Close()
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("hwire: dial %s: %w", dst.addr(), err)
	}
	connected := time.Now()
	var tlsTime time.Duration
	if dst.tls {
		tc, err := tls.Handshake(ctx, raw, dst.host, dst.tlsPolicy)
		if err != nil {
			return nil, fmt.Errorf("hwire: tls handshake with %s: %w", dst.addr(), err)
		}
		raw = tc
		tlsTime = time.Since(connected)
	}
	conn := newConnection(raw, dst.key(), true)
	conn.connectTime, conn.tlsTime = connected.Sub(start), tlsTime
	c.pool.track(conn)
	c.debugf("conn %s: connected to %s", conn.id, dst.key())
	if p := conn.Protocol(); p != "" && p != "http/1.1" {
		conn.Close()
		return nil, fmt.Errorf("hwire: server at %s negotiated unsupported protocol %q", dst.addr(), p)
	}
	return conn, nil
}

var aLongTimeAgo = time.Unix(1, 0)

// connectTunnel asks the HTTP proxy on raw to open a tunnel to dst.
func (cc *callChain) connectTunnel(ctx context.Context, raw net.Conn, dst destination) error {
	cfg := &cc.c.cfg
	if deadline, ok := ctx.Deadline(); ok {
		raw.SetDeadline(deadline)
		defer raw.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() { raw.SetDeadline(aLongTimeAgo) })
	defer stop()

	bw := netio.NewWriter(raw)
	bw.WriteString("CONNECT " + dst.addr() + " HTTP/1.1\r\n")
	h := NewHeaders("Host", dst.addr())
	if auth := dst.proxy.authorization(); auth != "" {
		h.Add("Proxy-Authorization", auth)
	}
	if err := WriteHeaders(bw, h, true); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	br := netio.NewReader(raw, 1024)
	_, st, err := readStatusLine(br, cfg.MaxStatusLineLength)
	if err != nil {
		return err
	}
	if _, err := ParseHeaders(br, cfg.MaxHeaderSize, cfg.ValidateResponseHeaders); err != nil {
		return err
	}
	if st.Code < 200 || st.Code > 299 {
		return fmt.Errorf("proxy refused CONNECT: %s", st)
	}
	if br.Available() > 0 {
		return protocolError("proxy tunnel", "unexpected data after CONNECT response")
	}
	return nil
}

// exchange is one request and response on a connection. finish decides,
// exactly once, whether the connection is released or closed.
type exchange struct {
	c    *Client
	cfg  *Config
	conn *Connection
	pool *Pool // nil for a connection supplied with the request
	req  *Request
	dst  destination
	resp *Response
	tr   *exchangeTrace // nil unless tracing

	keepAlive  bool
	detached   bool
	entity     entityStream
	comp       *completion
	bodyClosed atomic.Bool
	stop       func() bool
	once       sync.Once
}

func (x *exchange) trace(s pipelineState) {
	x.c.debugf("conn %s: %s %s", x.conn.id, s, x.req.Method)
}

func (x *exchange) run(ctx context.Context) (*Response, error) {
	x.stop = context.AfterFunc(ctx, func() { x.conn.Close() })
	received := x.conn.br.Received()
	if err := x.writeRequest(); err != nil {
		return nil, x.fail(ctx, err, x.conn.br.Received() == received)
	}
	resp, err := x.readResponse()
	if err != nil {
		return nil, x.fail(ctx, err, x.conn.br.Received() == received)
	}
	return resp, nil
}

// fail closes the connection after a fatal error. A dropped reused
// connection is reported as stale when nothing of the response arrived.
func (x *exchange) fail(ctx context.Context, err error, nothingRead bool) error {
	x.stop()
	x.conn.Close()
	x.comp.fire(err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	x.c.log.Warnf("conn %s: %s %s failed: %v", x.conn.id, x.req.Method, x.dst.key(), err)
	if x.conn.reused && nothingRead && isConnDropped(err) {
		return &staleConnError{err}
	}
	return err
}

func (x *exchange) requestHeaders() Headers {
	req := x.req
	h := req.Headers.Clone()
	if req.Method == MethodConnect {
		h.SetIfAbsent("Host", x.dst.addr())
	} else {
		h.SetIfAbsent("Host", netutil.HostHeader(x.dst.scheme, x.dst.host, x.dst.port))
	}
	switch {
	case req.Body != nil:
		h.Del("Transfer-Encoding")
		h.Set("Content-Length", strconv.Itoa(len(req.Body)))
	case req.BodyReader != nil && req.ContentLength >= 0:
		h.Del("Transfer-Encoding")
		h.Set("Content-Length", strconv.FormatInt(req.ContentLength, 10))
	case req.BodyReader != nil:
		h.Del("Content-Length")
		h.Set("Transfer-Encoding", header.Chunked)
	case req.Method == MethodPost || req.Method == MethodPut || req.Method == MethodPatch:
		h.SetIfAbsent("Content-Length", "0")
	}
	if !x.keepAlive {
		h.Set("Connection", header.Close)
	}
	if x.cfg.ContentDecoding && len(x.cfg.Encodings) > 0 {
		h.SetIfAbsent("Accept-Encoding", strings.Join(x.cfg.Encodings, ", "))
	}
	ua := x.cfg.UserAgent
	if ua == "" {
		ua = header.DefaultUserAgent
	}
	h.SetIfAbsent("User-Agent", ua)
	if x.dst.forwarded() {
		if auth := x.dst.proxy.authorization(); auth != "" {
			h.SetIfAbsent("Proxy-Authorization", auth)
		}
	}
	return h
}

func (x *exchange) writeRequest() error {
	req, bw := x.req, x.conn.bw
	x.trace(stateWritePrologue)
	absolute := x.dst.forwarded() && !x.cfg.RelativeURIs
	bw.WriteString(req.Method)
	bw.WriteByte(' ')
	bw.WriteString(req.target(absolute, x.dst.host, x.dst.port))
	bw.WriteString(" HTTP/1.1\r\n")

	x.trace(stateWriteHeaders)
	if err := WriteHeaders(bw, x.requestHeaders(), x.cfg.ValidateRequestHeaders); err != nil {
		bw.Reset(x.conn.conn)
		return err
	}
	if x.c.dumper != nil {
		x.c.dumper.DumpRequestHeader(bw.Bytes())
	}
	if err := x.writeBody(); err != nil {
		return err
	}
	x.trace(stateFlush)
	if err := bw.Flush(); err != nil {
		return err
	}
	if x.tr != nil {
		x.tr.wroteRequest = time.Now()
	}
	return nil
}

func (x *exchange) writeBody() error {
	req := x.req
	if !req.hasBody() {
		return nil
	}
	w := &bodyWriter{bw: x.conn.bw, chunked: req.Body == nil && req.ContentLength < 0}
	var dst io.Writer = w
	if x.c.dumper != nil {
		dst = x.c.dumper.WrapRequestBodyWriter(w)
	}
	if req.Body != nil {
		if _, err := dst.Write(req.Body); err != nil {
			return err
		}
		return nil
	}
	req.bodyRead = true
	if w.chunked {
		if _, err := io.Copy(dst, req.BodyReader); err != nil {
			return err
		}
		return w.close()
	}
	n, err := io.Copy(dst, io.LimitReader(req.BodyReader, req.ContentLength))
	if err != nil {
		return err
	}
	if n != req.ContentLength {
		return fmt.Errorf("hwire: request body has %d bytes, declared %d", n, req.ContentLength)
	}
	return nil
}

// bodyWriter frames request body bytes and pushes them to the socket in
// bounded pieces.
type bodyWriter struct {
	bw      *netio.Writer
	chunked bool
}

func (w *bodyWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if w.chunked {
		w.bw.WriteString(strconv.FormatInt(int64(len(p)), 16))
		w.bw.WriteString("\r\n")
	}
	w.bw.Write(p)
	if w.chunked {
		w.bw.WriteString("\r\n")
	}
	if w.bw.Buffered() >= bodyFlushThreshold {
		if err := w.bw.Flush(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (w *bodyWriter) close() error {
	if w.chunked {
		w.bw.WriteString("0\r\n\r\n")
	}
	return nil
}

func (x *exchange) readResponse() (*Response, error) {
	br, cfg := x.conn.br, x.cfg
	var (
		proto string
		st    Status
		h     Headers
		err   error
	)
	for interim := 0; ; interim++ {
		x.trace(stateReadStatus)
		if proto, st, err = readStatusLine(br, cfg.MaxStatusLineLength); err != nil {
			return nil, err
		}
		if x.tr != nil && interim == 0 {
			x.tr.firstByte = time.Now()
		}
		x.trace(stateReadHeaders)
		if h, err = ParseHeaders(br, cfg.MaxHeaderSize, cfg.ValidateResponseHeaders); err != nil {
			return nil, err
		}
		if !st.Informational() || st.Code == 101 {
			break
		}
		if interim == maxInterimResponses {
			return nil, protocolError("status line", "too many interim responses")
		}
		x.c.debugf("conn %s: skipping interim response %s", x.conn.id, st)
	}
	if x.c.dumper != nil {
		x.c.dumper.DumpResponseHeader([]byte(proto + " " + st.String() + "\r\n" + h.String() + "\r\n"))
	}
	x.resp = &Response{
		Status:     st,
		Proto:      proto,
		Headers:    h,
		Connection: x.conn,
		Request:    x.req,
		ex:         x,
	}
	x.trace(stateBuildEntity)
	if err := x.buildEntity(); err != nil {
		return nil, err
	}
	return x.resp, nil
}

// responseKeepAlive applies the Connection header and protocol version.
func responseKeepAlive(resp *Response) bool {
	conn := knownName(header.Connection)
	if resp.Headers.containsToken(conn, header.Close) {
		return false
	}
	if resp.Proto == "HTTP/1.0" {
		return resp.Headers.containsToken(conn, header.KeepAliveValue)
	}
	return true
}

func (x *exchange) buildEntity() error {
	resp, req := x.resp, x.req
	h := &resp.Headers
	code := resp.Status.Code
	x.keepAlive = x.keepAlive && responseKeepAlive(resp)

	if code == 101 || (req.Method == MethodConnect && resp.IsSuccess()) {
		x.detached = true
		return x.noEntity()
	}
	if req.Method == MethodHead || resp.Status.Informational() || code == 204 || code == 304 {
		return x.noEntity()
	}
	length, hasLength, err := h.ContentLength()
	if err != nil {
		return err
	}
	chunked := h.IsChunked()
	if !hasLength && !chunked && h.containsName(knownName(header.Upgrade)) {
		return x.noEntity()
	}
	switch {
	case hasLength && length == 0:
		return x.noEntity()
	case hasLength:
		if h.containsName(knownName(header.TransferEncoding)) {
			// Conflicting framing: trust the length but never reuse.
			x.keepAlive = false
		}
		x.entity = newLengthEntity(x.conn.br, length, x.comp)
	case chunked:
		x.entity = newChunkedEntity(x.conn.br, x.cfg.MaxChunkSize, x.comp)
	default:
		x.keepAlive = false
		x.entity = newUntilCloseEntity(x.conn.br, x.comp)
	}

	var body io.ReadCloser = entityBody{x}
	if x.cfg.ContentDecoding {
		if body, err = x.decodeContent(body); err != nil {
			return err
		}
	}
	if x.c.dumper != nil {
		body = x.c.dumper.WrapResponseBodyReadCloser(body)
	}
	resp.Body = body
	return nil
}

func (x *exchange) noEntity() error {
	x.resp.Body = noBody{}
	x.comp.fire(nil)
	return nil
}

// contentCodings returns the codings of the entity in the order they
// were applied, without identity.
func contentCodings(h *Headers) []string {
	var codings []string
	for _, v := range h.valuesName(knownName(header.ContentEncoding)) {
		for _, c := range strings.Split(v, ",") {
			c = strings.ToLower(strings.TrimSpace(c))
			if c != "" && c != header.Identity {
				codings = append(codings, c)
			}
		}
	}
	return codings
}

func (c *Client) acceptsCoding(coding string) bool {
	if !compress.IsSupported(coding) {
		return false
	}
	if coding == "x-gzip" {
		coding = "gzip"
	}
	return slices.ContainsFunc(c.cfg.Encodings, func(e string) bool {
		return strings.EqualFold(strings.TrimSpace(e), coding)
	})
}

// decodeContent wraps body with decoders for its Content-Encoding. An
// unsupported coding fails before any of the entity is read.
func (x *exchange) decodeContent(body io.ReadCloser) (io.ReadCloser, error) {
	codings := contentCodings(&x.resp.Headers)
	if len(codings) == 0 {
		return body, nil
	}
	for _, coding := range codings {
		if !x.c.acceptsCoding(coding) {
			return nil, &UnsupportedEncodingError{Encoding: coding}
		}
	}
	for i := len(codings) - 1; i >= 0; i-- {
		body = compress.NewCompressReader(body, codings[i])
	}
	return &decodedBody{ReadCloser: body, x: x}, nil
}

// entityBody exposes the entity stream until the response is closed.
type entityBody struct {
	x *exchange
}

func (b entityBody) Read(p []byte) (int, error) {
	if b.x.bodyClosed.Load() {
		return 0, ErrEntityClosed
	}
	return b.x.entity.Read(p)
}

func (b entityBody) Close() error {
	return b.x.close()
}

// decodedBody reads the rest of the entity once the decoders report the
// end of their stream, so trailing framing does not cost the connection.
type decodedBody struct {
	io.ReadCloser
	x *exchange
}

func (d *decodedBody) Read(p []byte) (int, error) {
	n, err := d.ReadCloser.Read(p)
	if err == io.EOF {
		d.x.drain()
	}
	return n, err
}

func (x *exchange) drain() {
	if x.entity == nil || x.entity.exhausted() || x.bodyClosed.Load() {
		return
	}
	io.CopyN(io.Discard, x.entity, maxDrain)
}

type noBody struct{}

func (noBody) Read([]byte) (int, error) { return 0, io.EOF }
func (noBody) Close() error             { return nil }

// onEntityDone runs once when the entity is exhausted, failed or was
// discarded. Trailer fields after a final chunk are read here.
func (x *exchange) onEntityDone(err error) {
	if x.tr != nil {
		x.tr.endTime = time.Now()
	}
	if err == nil {
		if ce, ok := x.entity.(*chunkedEntity); ok && ce.trailersPending {
			t, terr := ParseHeaders(x.conn.br, x.cfg.MaxHeaderSize, x.cfg.ValidateResponseHeaders)
			if terr != nil {
				x.c.log.Warnf("conn %s: reading trailers: %v", x.conn.id, terr)
				err = terr
			} else {
				x.resp.Trailers = t
			}
		}
	}
	x.finish(err == nil && x.keepAlive)
}

// finish releases or closes the connection. Only the first call counts.
func (x *exchange) finish(reuse bool) {
	x.once.Do(func() {
		if x.stop != nil && !x.stop() {
			// the context fired and closed the connection
			reuse = false
		}
		x.trace(stateComplete)
		switch {
		case x.detached:
		case !reuse:
			x.conn.Close()
		case x.pool != nil:
			x.pool.release(x.conn)
		}
	})
}

// close discards an unread entity. A remainder of at most maxDrain bytes
// is read off so the connection can be released; otherwise the
// connection is closed.
func (x *exchange) close() error {
	if x.entity == nil || x.entity.exhausted() || x.bodyClosed.Load() {
		return nil
	}
	if x.keepAlive && drainable(x.entity) {
		io.CopyN(io.Discard, x.entity, maxDrain)
	}
	x.bodyClosed.Store(true)
	if !x.entity.exhausted() {
		x.comp.fire(ErrEntityClosed)
	}
	return nil
}

// drainable reports whether the rest of e may fit in maxDrain bytes. A
// chunked entity is limited so a chunk beyond the budget ends it.
func drainable(e entityStream) bool {
	switch e := e.(type) {
	case *lengthEntity:
		return e.remaining <= maxDrain
	case *chunkedEntity:
		if int64(len(e.cur)) > maxDrain {
			return false
		}
		e.limited, e.budget = true, maxDrain-int64(len(e.cur))
		return true
	}
	return false
}
