package tests

import (
	"bufio"
	"io"
	"net"
	"net/http/httputil"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// ScriptServer is a loopback HTTP/1.1 server that answers each request with
// the next canned response, verbatim. It closes a connection after writing
// a response containing "Connection: close" or when the script runs out.
type ScriptServer struct {
	ln        net.Listener
	mu        sync.Mutex
	responses []string
	next      int
	conns     map[net.Conn]struct{}
	accepted  atomic.Int32
	wg        sync.WaitGroup

	// Requests receives the raw head and body of every request served.
	Requests chan string
}

// NewScriptServer starts a server on 127.0.0.1 with a random port.
func NewScriptServer(t *testing.T, responses ...string) *ScriptServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &ScriptServer{
		ln:        ln,
		responses: responses,
		conns:     make(map[net.Conn]struct{}),
		Requests:  make(chan string, 64),
	}
	s.wg.Add(1)
	go s.serve()
	return s
}

// Addr returns host:port of the listener.
func (s *ScriptServer) Addr() string { return s.ln.Addr().String() }

// URL returns an http URL for path on the server.
func (s *ScriptServer) URL(path string) string { return "http://" + s.Addr() + path }

// Port returns the listening port.
func (s *ScriptServer) Port() int { return s.ln.Addr().(*net.TCPAddr).Port }

// Accepted returns the number of accepted connections.
func (s *ScriptServer) Accepted() int { return int(s.accepted.Load()) }

// Close stops the listener, closes open connections and waits for the
// serving goroutines to exit.
func (s *ScriptServer) Close() {
	s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *ScriptServer) serve() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handle(c)
	}
}

func (s *ScriptServer) nextResponse() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.responses) {
		return "", false
	}
	r := s.responses[s.next]
	s.next++
	return r, true
}

func (s *ScriptServer) handle(c net.Conn) {
	defer s.wg.Done()
	defer func() {
		c.Close()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()
	br := bufio.NewReader(c)
	for {
		req, err := readRequest(br)
		if err != nil {
			return
		}
		select {
		case s.Requests <- req:
		default:
		}
		resp, ok := s.nextResponse()
		if !ok {
			return
		}
		if _, err := io.WriteString(c, resp); err != nil {
			return
		}
		if strings.Contains(strings.ToLower(resp), "connection: close") {
			return
		}
	}
}

func readRequest(br *bufio.Reader) (string, error) {
	tp := textproto.NewReader(br)
	var sb strings.Builder
	line, err := tp.ReadLine()
	if err != nil {
		return "", err
	}
	sb.WriteString(line + "\r\n")
	hdr, err := tp.ReadMIMEHeader()
	if err != nil {
		return "", err
	}
	for k, vv := range hdr {
		for _, v := range vv {
			sb.WriteString(k + ": " + v + "\r\n")
		}
	}
	sb.WriteString("\r\n")
	var body io.Reader
	if strings.EqualFold(hdr.Get("Transfer-Encoding"), "chunked") {
		body = httputil.NewChunkedReader(br)
	} else if cl := hdr.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil {
			return "", err
		}
		body = io.LimitReader(br, n)
	}
	if body != nil {
		b, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		sb.Write(b)
	}
	if _, ok := body.(*io.LimitedReader); !ok && body != nil {
		// trailer section and final CRLF of a chunked body
		if _, err := tp.ReadMIMEHeader(); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}
