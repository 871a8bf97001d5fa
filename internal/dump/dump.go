// Package dump copies the bytes of HTTP/1.1 exchanges to a writer for
// debugging.
package dump

import (
	"io"
	"sync"
)

// Options controls the dump behavior.
type Options struct {
	Output         io.Writer
	RequestHeader  bool
	RequestBody    bool
	ResponseHeader bool
	ResponseBody   bool
	// Async hands dumped bytes to a background goroutine started with
	// Start, so a slow Output never stalls the connection.
	Async bool
}

// Dumper is the dump tool.
type Dumper struct {
	Options
	mu      sync.Mutex // serializes synchronous writes
	ch      chan *dumpTask
	done    chan struct{}
	started bool
	stop    sync.Once
}

type dumpTask struct {
	Data   []byte
	Output io.Writer
}

// NewDumper create a new Dumper.
func NewDumper(opt Options) *Dumper {
	if opt.Output == nil {
		opt.Output = io.Discard
	}
	return &Dumper{
		Options: opt,
		ch:      make(chan *dumpTask, 20),
		done:    make(chan struct{}),
	}
}

// DumpTo writes p to output, copying it first when dumping asynchronously.
func (d *Dumper) DumpTo(p []byte, output io.Writer) {
	if len(p) == 0 || output == nil {
		return
	}
	if d.Async {
		b := make([]byte, len(p))
		copy(b, p)
		d.ch <- &dumpTask{Data: b, Output: output}
		return
	}
	d.mu.Lock()
	output.Write(p)
	d.mu.Unlock()
}

func (d *Dumper) DumpDefault(p []byte) {
	d.DumpTo(p, d.Output)
}

func (d *Dumper) DumpRequestHeader(p []byte) {
	if d.RequestHeader {
		d.DumpDefault(p)
	}
}

func (d *Dumper) DumpRequestBody(p []byte) {
	if d.RequestBody {
		d.DumpDefault(p)
	}
}

func (d *Dumper) DumpResponseHeader(p []byte) {
	if d.ResponseHeader {
		d.DumpDefault(p)
	}
}

func (d *Dumper) DumpResponseBody(p []byte) {
	if d.ResponseBody {
		d.DumpDefault(p)
	}
}

// Start launches the goroutine writing asynchronous dumps. It is a no-op
// for a synchronous Dumper.
func (d *Dumper) Start() {
	if !d.Async {
		return
	}
	d.started = true
	go d.loop()
}

func (d *Dumper) loop() {
	defer close(d.done)
	for t := range d.ch {
		if t == nil {
			return
		}
		t.Output.Write(t.Data)
	}
}

// Stop waits until queued dumps are written and the goroutine launched
// by Start has returned.
func (d *Dumper) Stop() {
	d.stop.Do(func() {
		if !d.started {
			return
		}
		d.ch <- nil
		<-d.done
	})
}

// WrapResponseBodyReadCloser dumps what is read from rc.
func (d *Dumper) WrapResponseBodyReadCloser(rc io.ReadCloser) io.ReadCloser {
	if !d.ResponseBody {
		return rc
	}
	return &dumpResponseBodyReadCloser{rc, d}
}

type dumpResponseBodyReadCloser struct {
	io.ReadCloser
	dump *Dumper
}

func (r *dumpResponseBodyReadCloser) Read(p []byte) (n int, err error) {
	n, err = r.ReadCloser.Read(p)
	r.dump.DumpResponseBody(p[:n])
	if err == io.EOF {
		r.dump.DumpDefault([]byte("\r\n"))
	}
	return
}

// WrapRequestBodyWriter dumps what is written to w.
func (d *Dumper) WrapRequestBodyWriter(w io.Writer) io.Writer {
	if !d.RequestBody {
		return w
	}
	return &dumpRequestBodyWriter{w: w, dump: d}
}

type dumpRequestBodyWriter struct {
	w    io.Writer
	dump *Dumper
}

func (w *dumpRequestBodyWriter) Write(p []byte) (n int, err error) {
	n, err = w.w.Write(p)
	w.dump.DumpRequestBody(p[:n])
	return
}
