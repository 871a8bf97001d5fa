package hwire

import (
	"fmt"
	"net"
	"time"
)

const (
	traceFmt = `TotalTime         : %v
TCPConnectTime    : %v
TLSHandshakeTime  : %v
FirstResponseTime : %v
ResponseTime      : %v
IsConnReused:     : false
RemoteAddr        : %v`
	traceReusedFmt = `TotalTime         : %v
FirstResponseTime : %v
ResponseTime      : %v
IsConnReused:     : true
ConnIdleTime      : %v
RemoteAddr        : %v`
)

// TraceInfo represents the trace information.
type TraceInfo struct {
	// TCPConnectTime is a duration that took to obtain the TCP connection,
	// including the proxy handshake.
	TCPConnectTime time.Duration

	// TLSHandshakeTime is a duration that TLS handshake took place.
	TLSHandshakeTime time.Duration

	// FirstResponseTime is a duration that server took to respond first
	// byte since the request was flushed.
	FirstResponseTime time.Duration

	// ResponseTime is a duration since first response byte from server to
	// entity completion.
	ResponseTime time.Duration

	// TotalTime is a duration that total request took end-to-end.
	TotalTime time.Duration

	// IsConnReused is whether this connection has been previously
	// used for another request.
	IsConnReused bool

	// ConnIdleTime is how long a reused connection sat in the pool.
	ConnIdleTime time.Duration

	// RemoteAddr returns the remote network address.
	RemoteAddr net.Addr
}

// Blame return the human-readable reason of why request is slowing.
func (t TraceInfo) Blame() string {
	if t.RemoteAddr == nil {
		return "trace is not enabled"
	}
	var mk string
	var mv time.Duration
	steps := []struct {
		name string
		d    time.Duration
	}{
		{"on tcp connect", t.TCPConnectTime},
		{"on tls handshake", t.TLSHandshakeTime},
		{"from request sent to server respond first byte", t.FirstResponseTime},
		{"from server respond first byte to request completion", t.ResponseTime},
	}
	for _, s := range steps {
		if s.d > mv {
			mk, mv = s.name, s.d
		}
	}
	if mk == "" {
		return "nothing to blame"
	}
	return fmt.Sprintf("the request total time is %v, and costs %v %s", t.TotalTime, mv, mk)
}

// String return the details of trace information.
func (t TraceInfo) String() string {
	if t.RemoteAddr == nil {
		return "trace is not enabled"
	}
	if t.IsConnReused {
		return fmt.Sprintf(traceReusedFmt, t.TotalTime, t.FirstResponseTime, t.ResponseTime, t.ConnIdleTime, t.RemoteAddr)
	}
	return fmt.Sprintf(traceFmt, t.TotalTime, t.TCPConnectTime, t.TLSHandshakeTime, t.FirstResponseTime, t.ResponseTime, t.RemoteAddr)
}

// exchangeTrace collects the timestamps of one exchange. endTime is
// written by whoever completes the entity and read after Done.
type exchangeTrace struct {
	start         time.Time
	wroteRequest  time.Time
	firstByte     time.Time
	endTime       time.Time
	connIdleSince time.Time
}

func (x *exchange) traceInfo() TraceInfo {
	t := x.tr
	if t == nil {
		return TraceInfo{}
	}
	ti := TraceInfo{
		IsConnReused: x.conn.reused,
		RemoteAddr:   x.conn.conn.RemoteAddr(),
	}
	if ti.IsConnReused {
		if !t.connIdleSince.IsZero() {
			ti.ConnIdleTime = t.start.Sub(t.connIdleSince)
		}
	} else {
		ti.TCPConnectTime = x.conn.connectTime
		ti.TLSHandshakeTime = x.conn.tlsTime
	}
	if !t.firstByte.IsZero() {
		ti.FirstResponseTime = t.firstByte.Sub(t.wroteRequest)
	}
	end := t.endTime
	if end.IsZero() {
		end = t.firstByte
	} else if !t.firstByte.IsZero() {
		ti.ResponseTime = end.Sub(t.firstByte)
	}
	if !end.IsZero() {
		ti.TotalTime = end.Sub(t.start)
	}
	return ti
}
