package hwire

import (
	"errors"
	"fmt"

	"github.com/corewire/hwire/internal/netutil"
)

type (
	// RequestMiddleware type is for request middleware, called before a request is sent
	RequestMiddleware func(*Client, *Request) error

	// ResponseMiddleware type is for response middleware, called after a response has been received
	ResponseMiddleware func(*Client, *Response) error
)

func validateRequest(c *Client, r *Request) error {
	if r.URL == nil {
		return errors.New("hwire: request has no URL")
	}
	if r.Connection == nil && netutil.DefaultPort(r.URL.Scheme) == 0 {
		return fmt.Errorf("hwire: unsupported scheme %q", r.URL.Scheme)
	}
	if r.Method == "" {
		r.Method = MethodGet
	}
	return nil
}

func parseRequestHeader(c *Client, r *Request) error {
	own := r.Headers.Clone()
	for _, f := range c.headers.Fields() {
		if !own.containsName(f.Name) {
			r.Headers.AddName(f.Name, f.Value)
		}
	}
	return nil
}

func parseRequestBody(c *Client, r *Request) error {
	return r.encodeBody(&c.cfg)
}
