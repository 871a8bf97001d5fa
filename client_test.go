package hwire

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"

	"github.com/corewire/hwire/internal/tests"
)

func TestNewClientDefaults(t *testing.T) {
	c := New()
	defer c.Close()
	tests.AssertNotNil(t, c.Pool())
	tests.AssertTrue(t, c.ownPool, "owns its pool")
	tests.AssertEqual(t, DefaultConfig().MaxHeaderSize, c.Config().MaxHeaderSize)
	tests.AssertEqual(t, 3, len(c.beforeRequest))
}

func TestSharedPoolOutlivesClient(t *testing.T) {
	pool := NewPool(PoolOptions{MaxIdlePerKey: 2})
	defer pool.Close()
	srv := tests.NewScriptServer(t,
		"HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\na",
		"HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\nb",
	)
	defer srv.Close()

	c1 := newTestClient(t, nil, WithPool(pool))
	resp, err := c1.Get(context.Background(), srv.URL("/"))
	tests.AssertNoError(t, err)
	resp.Bytes()
	tests.AssertNoError(t, c1.Close())
	tests.AssertEqual(t, 1, pool.Len())

	c2 := newTestClient(t, nil, WithPool(pool))
	defer c2.Close()
	resp, err = c2.Get(context.Background(), srv.URL("/"))
	tests.AssertNoError(t, err)
	tests.AssertTrue(t, resp.Connection.Reused(), "connection shared through the pool")
	b, _ := resp.Bytes()
	tests.AssertEqual(t, "b", string(b))
}

func TestClientCloseClosesOwnPool(t *testing.T) {
	defer goleak.VerifyNone(t)
	srv := tests.NewScriptServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
	defer srv.Close()
	c := newTestClient(t, nil)
	resp, err := c.Get(context.Background(), srv.URL("/"))
	tests.AssertNoError(t, err)
	resp.Close()
	tests.AssertEqual(t, 1, c.Pool().Len())
	tests.AssertNoError(t, c.Close())
	tests.AssertEqual(t, 0, c.Pool().Len())
	tests.AssertTrue(t, resp.Connection.Closed(), "idle connection closed")
}

func TestCommonHeaders(t *testing.T) {
	srv := tests.NewScriptServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
	defer srv.Close()
	c := newTestClient(t, nil).
		SetCommonHeader("X-Tenant", "acme").
		SetCommonHeader("Accept", "application/json").
		SetUserAgent("hwire-test")
	defer c.Close()
	req := mustRequest(t, MethodGet, srv.URL("/")).SetHeader("accept", "text/plain")
	resp, err := c.Do(context.Background(), req)
	tests.AssertNoError(t, err)
	resp.Close()
	raw := nextRequest(t, srv)
	tests.AssertContains(t, raw, "X-Tenant: acme\r\n", true)
	tests.AssertContains(t, raw, "Accept: text/plain\r\n", true)
	tests.AssertContains(t, raw, "application/json", false)
	tests.AssertContains(t, raw, "User-Agent: hwire-test\r\n", true)
}

func TestMiddlewares(t *testing.T) {
	srv := tests.NewScriptServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")
	defer srv.Close()
	var seen []int
	c := newTestClient(t, nil).
		OnBeforeRequest(func(c *Client, r *Request) error {
			r.SetHeader("X-Signed", "yes")
			return nil
		}).
		OnAfterResponse(func(c *Client, r *Response) error {
			seen = append(seen, r.Status.Code)
			return nil
		})
	defer c.Close()
	resp, err := c.Get(context.Background(), srv.URL("/"))
	tests.AssertNoError(t, err)
	resp.Close()
	tests.AssertEqual(t, []int{200}, seen)
	tests.AssertContains(t, nextRequest(t, srv), "X-Signed: yes\r\n", true)
}

func TestMiddlewareErrors(t *testing.T) {
	errStop := errors.New("stop")
	c := newTestClient(t, nil).OnBeforeRequest(func(*Client, *Request) error { return errStop })
	defer c.Close()
	_, err := c.Get(context.Background(), "http://127.0.0.1:1/")
	tests.AssertTrue(t, errors.Is(err, errStop), "before request error")

	srv := tests.NewScriptServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")
	defer srv.Close()
	c2 := newTestClient(t, nil).OnAfterResponse(func(*Client, *Response) error { return errStop })
	defer c2.Close()
	_, err = c2.Get(context.Background(), srv.URL("/"))
	tests.AssertTrue(t, errors.Is(err, errStop), "after response error")
	// the short entity is drained by the close
	tests.AssertEqual(t, 1, c2.Pool().Len())
}

func TestValidateRequest(t *testing.T) {
	c := newTestClient(t, nil)
	defer c.Close()
	_, err := c.Get(context.Background(), "ftp://example.com/file")
	tests.AssertErrorContains(t, err, `unsupported scheme "ftp"`)
	_, err = c.Do(context.Background(), &Request{})
	tests.AssertErrorContains(t, err, "no URL")
	_, err = c.Do(context.Background(), nil)
	tests.AssertErrorContains(t, err, "nil request")
}

func TestDialFailure(t *testing.T) {
	c := newTestClient(t, nil)
	defer c.Close()
	_, err := c.Get(context.Background(), "http://127.0.0.1:1/")
	tests.AssertErrorContains(t, err, "dial 127.0.0.1:1")
}

func TestRegistererReceivesPoolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := tests.NewScriptServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
	defer srv.Close()
	c := newTestClient(t, nil, WithRegisterer(reg))
	defer c.Close()
	resp, err := c.Get(context.Background(), srv.URL("/"))
	tests.AssertNoError(t, err)
	resp.Close()
	mfs, err := reg.Gather()
	tests.AssertNoError(t, err)
	var names []string
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	joined := strings.Join(names, ",")
	tests.AssertContains(t, joined, "hwire_pool_acquire_total", true)
	tests.AssertContains(t, joined, "hwire_connections_opened_total", true)
}

func TestAsyncDump(t *testing.T) {
	defer goleak.VerifyNone(t)
	srv := tests.NewScriptServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")
	defer srv.Close()
	var out bytes.Buffer
	c := newTestClient(t, nil).EnableDump(DumpOptions{
		Output:         &out,
		RequestHeader:  true,
		ResponseHeader: true,
		Async:          true,
	})
	resp, err := c.Get(context.Background(), srv.URL("/async"))
	tests.AssertNoError(t, err)
	resp.Bytes()
	c.Close()
	s := out.String()
	tests.AssertContains(t, s, "GET /async HTTP/1.1", true)
	tests.AssertContains(t, s, "HTTP/1.1 200 OK", true)
	tests.AssertContains(t, s, "\r\nok", false)
}
