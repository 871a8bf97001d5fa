package compress

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/corewire/hwire/pkg/brotli"
)

// EncoderOptions tunes NewWriter.
type EncoderOptions struct {
	// BrotliQuality is 0..11.
	BrotliQuality int
	// BrotliLGWin is 0 for automatic or 10..24.
	BrotliLGWin int
	// SizeHint is the expected input size, 0 if unknown.
	SizeHint int
}

// NewWriter returns an encoder for contentEncoding writing to w. Close
// must be called to flush the encoded stream; it does not close w.
func NewWriter(w io.Writer, contentEncoding string, opts EncoderOptions) (io.WriteCloser, error) {
	switch normalize(contentEncoding) {
	case "br":
		return brotli.NewWriter(w, brotli.Options{
			Quality:  opts.BrotliQuality,
			LGWin:    opts.BrotliLGWin,
			SizeHint: opts.SizeHint,
		})
	case "gzip", "x-gzip":
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case "deflate":
		return zlib.NewWriterLevel(w, zlib.DefaultCompression)
	case "zstd":
		return zstd.NewWriter(w)
	}
	return nil, fmt.Errorf("compress: unsupported content encoding %q", contentEncoding)
}
