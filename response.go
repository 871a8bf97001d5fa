package hwire

import (
	"io"
	"strings"

	"github.com/corewire/hwire/internal/header"
)

// Response is the status, headers and streamed entity of an exchange.
// The caller must read Body to the end or call Close; either returns the
// connection to the pool when it is reusable.
type Response struct {
	Status  Status
	Proto   string
	Headers Headers
	// Trailers holds the trailer fields of a chunked entity. It is
	// complete once Done is closed.
	Trailers Headers
	Body     io.ReadCloser
	// Connection carried the exchange. After a successful CONNECT or a
	// 101 response it belongs to the caller.
	Connection *Connection
	Request    *Request

	ex *exchange
}

// Done is closed when the entity has been fully read, failed or was
// discarded by Close.
func (r *Response) Done() <-chan struct{} {
	return r.ex.comp.ch
}

// Close discards an unread entity. The connection is released when the
// entity was fully read, or its unread rest was at most 4 KiB, and the
// connection may be reused; otherwise it is closed. Close may be called
// more than once.
func (r *Response) Close() error {
	if r.Body != nil {
		r.Body.Close()
	}
	if r.ex == nil {
		return nil
	}
	return r.ex.close()
}

// Detached reports whether the connection was handed over to the caller
// by a protocol switch or tunnel.
func (r *Response) Detached() bool {
	return r.ex != nil && r.ex.detached
}

// TraceInfo returns the timings of the exchange when tracing was enabled
// on the client or the request. Entity timings are complete once Done is
// closed.
func (r *Response) TraceInfo() TraceInfo {
	if r.ex == nil {
		return TraceInfo{}
	}
	return r.ex.traceInfo()
}

// ContentType returns the Content-Type header.
func (r *Response) ContentType() string {
	return r.Headers.getName(knownName(header.ContentType))
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.Status.Code >= 200 && r.Status.Code < 300
}

// IsError reports a status of 400 or above.
func (r *Response) IsError() bool {
	return r.Status.Code >= 400
}

// Bytes reads the whole entity and closes the response.
func (r *Response) Bytes() ([]byte, error) {
	defer r.Close()
	return io.ReadAll(r.Body)
}

// String reads the whole entity as text converted to UTF-8 and closes
// the response.
func (r *Response) String() (string, error) {
	defer r.Close()
	if !responseBodyIsText(strings.ToLower(r.ContentType())) {
		b, err := io.ReadAll(r.Body)
		return string(b), err
	}
	b, err := io.ReadAll(newCharsetReadCloser(r.Body, r.ContentType()))
	return string(b), err
}

// TextReader returns the entity converted to UTF-8 as it is read.
func (r *Response) TextReader() io.ReadCloser {
	return newCharsetReadCloser(r.Body, r.ContentType())
}
