package tests

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"
)

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

// Conn is an in-memory net.Conn that replays canned server bytes and
// records everything the client writes.
type Conn struct {
	mu         sync.Mutex
	in         io.Reader
	written    bytes.Buffer
	closed     bool
	closeCount int
	deadline   time.Time
}

// NewConn returns a Conn whose reads yield response.
func NewConn(response string) *Conn {
	return &Conn{in: bytes.NewReader([]byte(response))}
}

func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, net.ErrClosed
	}
	return c.in.Read(p)
}

func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.written.Write(p)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	c.closed = true
	return nil
}

// Written returns what the client has written so far.
func (c *Conn) Written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.String()
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseCount returns how many times Close was called.
func (c *Conn) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}

// ReadDeadline returns the last deadline set on the connection.
func (c *Conn) ReadDeadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

func (c *Conn) LocalAddr() net.Addr  { return fakeAddr("127.0.0.1:50000") }
func (c *Conn) RemoteAddr() net.Addr { return fakeAddr("127.0.0.1:80") }

func (c *Conn) SetDeadline(t time.Time) error {
	return c.SetReadDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}

func (c *Conn) SetWriteDeadline(t time.Time) error { return nil }
