package hwire

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/corewire/hwire/internal/tests"
)

func TestTraceInfo(t *testing.T) {
	srv := tests.NewScriptServer(t,
		"HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello",
		"HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nagain",
	)
	defer srv.Close()
	c := newTestClient(t, nil)
	defer c.Close()

	resp, err := c.Do(context.Background(), mustRequest(t, MethodGet, srv.URL("/")).EnableTrace())
	tests.AssertNoError(t, err)
	resp.Bytes()
	ti := resp.TraceInfo()
	tests.AssertNotNil(t, ti.RemoteAddr)
	tests.AssertEqual(t, srv.Addr(), ti.RemoteAddr.String())
	tests.AssertTrue(t, !ti.IsConnReused, "fresh connection")
	tests.AssertTrue(t, ti.TotalTime > 0, "total time")
	tests.AssertTrue(t, ti.TotalTime >= ti.FirstResponseTime+ti.ResponseTime, "total covers the parts")
	tests.AssertContains(t, ti.String(), "IsConnReused:     : false", true)

	c.EnableTrace(true)
	resp, err = c.Get(context.Background(), srv.URL("/"))
	tests.AssertNoError(t, err)
	resp.Bytes()
	ti = resp.TraceInfo()
	tests.AssertTrue(t, ti.IsConnReused, "pooled connection")
	tests.AssertEqual(t, time.Duration(0), ti.TCPConnectTime)
	tests.AssertTrue(t, ti.ConnIdleTime >= 0, "idle time")
	tests.AssertContains(t, ti.String(), "ConnIdleTime", true)
}

func TestTraceDisabled(t *testing.T) {
	srv := tests.NewScriptServer(t, "HTTP/1.1 204 No Content\r\n\r\n")
	defer srv.Close()
	c := newTestClient(t, nil)
	defer c.Close()
	resp, err := c.Get(context.Background(), srv.URL("/"))
	tests.AssertNoError(t, err)
	resp.Close()
	tests.AssertEqual(t, "trace is not enabled", resp.TraceInfo().String())
	tests.AssertEqual(t, "trace is not enabled", resp.TraceInfo().Blame())
}

func TestTraceBlame(t *testing.T) {
	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 80}
	ti := TraceInfo{
		TCPConnectTime:    time.Millisecond,
		FirstResponseTime: 40 * time.Millisecond,
		ResponseTime:      2 * time.Millisecond,
		TotalTime:         43 * time.Millisecond,
		RemoteAddr:        addr,
	}
	tests.AssertEqual(t, "the request total time is 43ms, and costs 40ms from request sent to server respond first byte", ti.Blame())
	tests.AssertEqual(t, "nothing to blame", TraceInfo{RemoteAddr: addr}.Blame())
}
