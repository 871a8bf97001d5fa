package hwire

import (
	"bytes"
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corewire/hwire/internal/tests"
)

func TestParallelDownload(t *testing.T) {
	content := make([]byte, 100_000+17)
	rand.New(rand.NewSource(1)).Read(content)
	var ranges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			ranges.Add(1)
		}
		http.ServeContent(w, r, "blob.bin", time.Time{}, bytes.NewReader(content))
	}))
	defer srv.Close()
	c := newTestClient(t, nil)
	defer c.Close()

	dst := filepath.Join(t.TempDir(), "blob.bin")
	err := c.NewParallelDownload(srv.URL + "/blob.bin").
		SetConcurrency(4).
		SetSegmentSize(10_000).
		SetOutputFile(dst).
		Do(context.Background())
	tests.AssertNoError(t, err)
	got, err := os.ReadFile(dst)
	tests.AssertNoError(t, err)
	tests.AssertTrue(t, bytes.Equal(content, got), "content matches")
	tests.AssertEqual(t, int32(11), ranges.Load())
	tests.AssertTrue(t, c.Pool().Len() > 0, "segment connections were pooled")
}

func TestParallelDownloadWithoutRangeSupport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "20000")
		if r.Method == http.MethodGet {
			w.Write(make([]byte, 20000))
		}
	}))
	defer srv.Close()
	c := newTestClient(t, nil)
	defer c.Close()

	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	tests.AssertNoError(t, err)
	defer f.Close()
	err = c.NewParallelDownload(srv.URL).SetSegmentSize(5000).SetOutput(f).Do(context.Background())
	tests.AssertErrorContains(t, err, "answered 200 OK to a range request")
}

func TestParallelDownloadNeedsOutputAndLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10")
	}))
	defer srv.Close()
	c := newTestClient(t, nil)
	defer c.Close()
	err := c.NewParallelDownload(srv.URL).Do(context.Background())
	tests.AssertErrorContains(t, err, "needs an output")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer empty.Close()
	err = c.NewParallelDownload(empty.URL).SetOutputFile(filepath.Join(t.TempDir(), "x")).Do(context.Background())
	tests.AssertErrorContains(t, err, "bad content length")
}

func TestCheckContentRange(t *testing.T) {
	tests.AssertNoError(t, checkContentRange("bytes 0-99/1000", 0, 99))
	tests.AssertNoError(t, checkContentRange("bytes 100-199/*", 100, 199))
	tests.AssertNotNil(t, checkContentRange("bytes 0-98/1000", 0, 99))
	tests.AssertNotNil(t, checkContentRange("items 0-99/1000", 0, 99))
	tests.AssertNotNil(t, checkContentRange("", 0, 99))
}
