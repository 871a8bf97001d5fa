package hwire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// ParallelDownload fetches one entity with concurrent Range requests and
// writes every segment at its offset of the output.
type ParallelDownload struct {
	url         string
	client      *Client
	concurrency int
	segmentSize int64
	output      io.WriterAt
	filename    string
	perm        os.FileMode
}

// NewParallelDownload prepares a download of url.
func (c *Client) NewParallelDownload(url string) *ParallelDownload {
	return &ParallelDownload{url: url, client: c}
}

func (pd *ParallelDownload) SetConcurrency(concurrency int) *ParallelDownload {
	pd.concurrency = concurrency
	return pd
}

func (pd *ParallelDownload) SetSegmentSize(segmentSize int64) *ParallelDownload {
	pd.segmentSize = segmentSize
	return pd
}

func (pd *ParallelDownload) SetFileMode(perm os.FileMode) *ParallelDownload {
	pd.perm = perm
	return pd
}

// SetOutput writes segments to w instead of a file.
func (pd *ParallelDownload) SetOutput(w io.WriterAt) *ParallelDownload {
	pd.output = w
	return pd
}

func (pd *ParallelDownload) SetOutputFile(filename string) *ParallelDownload {
	pd.filename = filename
	return pd
}

func (pd *ParallelDownload) ensure() {
	if pd.concurrency <= 0 {
		pd.concurrency = 5
	}
	if pd.segmentSize <= 0 {
		pd.segmentSize = 10 << 20
	}
	if pd.perm == 0 {
		pd.perm = 0o644
	}
}

type downloadTask struct {
	index                int
	rangeStart, rangeEnd int64
}

// contentLength asks for the entity size with HEAD.
func (pd *ParallelDownload) contentLength(ctx context.Context) (int64, error) {
	resp, err := pd.client.Head(ctx, pd.url)
	if err != nil {
		return 0, err
	}
	resp.Close()
	if !resp.IsSuccess() {
		return 0, fmt.Errorf("hwire: HEAD %s: %s", pd.url, resp.Status)
	}
	n, ok, err := resp.Headers.ContentLength()
	if err != nil {
		return 0, err
	}
	if !ok || n <= 0 {
		return 0, fmt.Errorf("hwire: bad content length: %d", n)
	}
	return n, nil
}

// Do downloads the entity. The first failing segment cancels the others.
func (pd *ParallelDownload) Do(ctx context.Context) error {
	pd.ensure()
	total, err := pd.contentLength(ctx)
	if err != nil {
		return err
	}
	out := pd.output
	if out == nil {
		if pd.filename == "" {
			return errors.New("hwire: parallel download needs an output")
		}
		f, err := os.OpenFile(pd.filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, pd.perm)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	pd.client.debugf("download %s: %d bytes with %d concurrency and %d bytes segment size",
		pd.url, total, pd.concurrency, pd.segmentSize)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	taskCh := make(chan downloadTask)
	var wg sync.WaitGroup
	for i := 0; i < pd.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskCh {
				if err := pd.handleTask(ctx, t, out); err != nil {
					cancel(err)
				}
			}
		}()
	}

	index := 0
feed:
	for start := int64(0); start < total; start += pd.segmentSize {
		end := min(start+pd.segmentSize, total) - 1
		select {
		case taskCh <- downloadTask{index: index, rangeStart: start, rangeEnd: end}:
			index++
		case <-ctx.Done():
			break feed
		}
	}
	close(taskCh)
	wg.Wait()
	if err := context.Cause(ctx); err != nil {
		return err
	}
	pd.client.debugf("download completed for %s in %d segments", pd.url, index)
	return nil
}

func (pd *ParallelDownload) handleTask(ctx context.Context, t downloadTask, out io.WriterAt) error {
	if ctx.Err() != nil {
		return nil
	}
	req, err := NewRequest(MethodGet, pd.url)
	if err != nil {
		return err
	}
	req.SetHeader("Range", fmt.Sprintf("bytes=%d-%d", t.rangeStart, t.rangeEnd))
	resp, err := pd.client.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Close()
	if resp.Status.Code != 206 {
		return fmt.Errorf("hwire: segment %d: server answered %s to a range request", t.index, resp.Status)
	}
	if err := checkContentRange(resp.Headers.Get("Content-Range"), t.rangeStart, t.rangeEnd); err != nil {
		return fmt.Errorf("hwire: segment %d: %w", t.index, err)
	}
	want := t.rangeEnd - t.rangeStart + 1
	n, err := io.Copy(io.NewOffsetWriter(out, t.rangeStart), io.LimitReader(resp.Body, want+1))
	if err != nil {
		return err
	}
	if n != want {
		return fmt.Errorf("hwire: segment %d: got %d bytes, want %d", t.index, n, want)
	}
	return nil
}

// checkContentRange verifies "bytes start-end/size" matches the request.
func checkContentRange(v string, start, end int64) error {
	spec, ok := strings.CutPrefix(v, "bytes ")
	if !ok {
		return fmt.Errorf("unexpected Content-Range %q", v)
	}
	rng, _, _ := strings.Cut(spec, "/")
	s, e, ok := strings.Cut(rng, "-")
	if !ok {
		return fmt.Errorf("unexpected Content-Range %q", v)
	}
	gs, err1 := strconv.ParseInt(s, 10, 64)
	ge, err2 := strconv.ParseInt(e, 10, 64)
	if err1 != nil || err2 != nil || gs != start || ge != end {
		return fmt.Errorf("range %q does not match bytes=%d-%d", v, start, end)
	}
	return nil
}
