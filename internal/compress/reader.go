// Package compress maps Content-Encoding tokens to stream decoders and
// encoders.
package compress

import (
	"io"
	"strings"
)

// CompressReader decodes an underlying body lazily on first Read.
type CompressReader interface {
	io.ReadCloser
	GetUnderlyingBody() io.ReadCloser
	SetUnderlyingBody(body io.ReadCloser)
}

var supported = []string{"gzip", "deflate", "br", "zstd"}

// Supported returns the codings that can be decoded, in preference order.
func Supported() []string {
	return append([]string(nil), supported...)
}

// IsSupported reports whether the coding token can be decoded.
func IsSupported(contentEncoding string) bool {
	switch normalize(contentEncoding) {
	case "gzip", "x-gzip", "deflate", "br", "zstd":
		return true
	}
	return false
}

func normalize(contentEncoding string) string {
	return strings.ToLower(strings.TrimSpace(contentEncoding))
}

// NewCompressReader wraps body with the decoder for contentEncoding. It
// returns nil for an unsupported coding.
func NewCompressReader(body io.ReadCloser, contentEncoding string) CompressReader {
	switch normalize(contentEncoding) {
	case "gzip", "x-gzip":
		return NewGzipReader(body)
	case "deflate":
		return NewDeflateReader(body)
	case "br":
		return NewBrotliReader(body)
	case "zstd":
		return NewZstdReader(body)
	}
	return nil
}
