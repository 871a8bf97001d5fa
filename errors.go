package hwire

import (
	"errors"
	"fmt"
)

var (
	// ErrHeaderTooLarge is returned when a header block exceeds Config.MaxHeaderSize.
	ErrHeaderTooLarge = errors.New("hwire: header block too large")
	// ErrStatusLineTooLong is returned when the status line exceeds Config.MaxStatusLineLength.
	ErrStatusLineTooLong = errors.New("hwire: status line too long")
	// ErrChunkTooLarge is returned when a chunk exceeds Config.MaxChunkSize.
	ErrChunkTooLarge = errors.New("hwire: chunk too large")
	// ErrConnectionClosed is returned when a closed connection is used.
	ErrConnectionClosed = errors.New("hwire: connection closed")
	// ErrEntityClosed is returned when reading an entity after Response.Close.
	ErrEntityClosed = errors.New("hwire: read on closed response entity")
	// ErrPoolClosed is returned when acquiring from a closed pool.
	ErrPoolClosed = errors.New("hwire: pool closed")
)

// ProtocolError is a violation of the HTTP/1.1 wire format by the peer.
// It is always fatal for the connection it was read from.
type ProtocolError struct {
	Op  string
	Msg string
}

func (e *ProtocolError) Error() string {
	return "hwire: protocol error in " + e.Op + ": " + e.Msg
}

func protocolError(op, format string, v ...interface{}) error {
	return &ProtocolError{Op: op, Msg: fmt.Sprintf(format, v...)}
}

// UnsupportedEncodingError is returned when a response declares a
// Content-Encoding that cannot be decoded.
type UnsupportedEncodingError struct {
	Encoding string
}

func (e *UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("hwire: unsupported content encoding %q", e.Encoding)
}

// IsProtocolError reports whether err is or wraps a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
