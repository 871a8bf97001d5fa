package tests

import "io"

// OneByteReader returns at most one byte per Read, which exercises the
// incremental paths of buffered readers.
type OneByteReader struct {
	R io.Reader
}

func (r *OneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return r.R.Read(p[:1])
}
