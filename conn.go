package hwire

import (
	"crypto/tls"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/corewire/hwire/internal/netio"
)

const defaultConnReadBufferSize = 4096

type connState int32

const (
	connActive connState = iota
	connIdle
	connClosed
)

func (s connState) String() string {
	switch s {
	case connActive:
		return "active"
	case connIdle:
		return "idle"
	default:
		return "closed"
	}
}

// Connection is one socket with its reader and writer. A Connection is
// driven by a single request at a time.
type Connection struct {
	id          string
	key         poolKey
	conn        net.Conn
	br          *netio.Reader
	bw          *netio.Writer
	keepAlive   bool
	readTimeout time.Duration
	deadlineSet bool
	state       atomic.Int32
	reused      bool
	idleSince   time.Time // guarded by the owning pool shard
	connectTime time.Duration
	tlsTime     time.Duration
	onClose     func(*Connection)
}

// NewConnection wraps an established socket so it can be passed
// explicitly on a Request. Such connections are never pooled.
func NewConnection(conn net.Conn) *Connection {
	return newConnection(conn, poolKey{}, true)
}

func newConnection(conn net.Conn, key poolKey, keepAlive bool) *Connection {
	c := &Connection{
		id:        uuid.New().String(),
		key:       key,
		conn:      conn,
		keepAlive: keepAlive,
	}
	c.br = netio.NewReader(timeoutReader{c}, defaultConnReadBufferSize)
	c.bw = netio.NewWriter(conn)
	return c
}

// timeoutReader arms the read deadline before every socket read.
type timeoutReader struct {
	c *Connection
}

func (t timeoutReader) Read(p []byte) (int, error) {
	c := t.c
	if c.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		c.deadlineSet = true
	} else if c.deadlineSet {
		c.conn.SetReadDeadline(time.Time{})
		c.deadlineSet = false
	}
	return c.conn.Read(p)
}

// ID returns the unique identifier used in log lines.
func (c *Connection) ID() string { return c.id }

// SetReadTimeout sets the per-read timeout. Zero disables it.
func (c *Connection) SetReadTimeout(d time.Duration) { c.readTimeout = d }

// ReadTimeout returns the per-read timeout.
func (c *Connection) ReadTimeout() time.Duration { return c.readTimeout }

// KeepAlive reports whether the connection may be reused.
func (c *Connection) KeepAlive() bool { return c.keepAlive }

// Reused reports whether the connection served an earlier exchange.
func (c *Connection) Reused() bool { return c.reused }

// NetConn returns the underlying socket.
func (c *Connection) NetConn() net.Conn { return c.conn }

// Protocol returns the ALPN protocol negotiated on a TLS connection, or "".
func (c *Connection) Protocol() string {
	if tc, ok := c.conn.(interface{ ConnectionState() tls.ConnectionState }); ok {
		return tc.ConnectionState().NegotiatedProtocol
	}
	return ""
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	return connState(c.state.Load()) == connClosed
}

func (c *Connection) loadState() connState { return connState(c.state.Load()) }

func (c *Connection) casState(from, to connState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// reusable reports whether the reader is clean enough to serve another
// exchange.
func (c *Connection) reusable() bool {
	return c.keepAlive && c.br.Available() == 0 && c.br.Err() == nil && c.bw.Buffered() == 0
}

// Close closes the socket. It is safe to call more than once.
func (c *Connection) Close() error {
	for {
		s := c.loadState()
		if s == connClosed {
			return nil
		}
		if c.casState(s, connClosed) {
			break
		}
	}
	if c.onClose != nil {
		c.onClose(c)
	}
	return c.conn.Close()
}
