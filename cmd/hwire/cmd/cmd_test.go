package cmd

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	"github.com/corewire/hwire"
	"github.com/corewire/hwire/internal/tests"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestConfigDefaults(t *testing.T) {
	_, _, err := execute(t, "", "config", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	tests.AssertErrorContains(t, err, "failed to read config file")

	t.Chdir(t.TempDir())
	out, _, err := execute(t, "", "config")
	tests.AssertNoError(t, err)
	var cfg hwire.Config
	tests.AssertNoError(t, yaml.Unmarshal([]byte(out), &cfg))
	tests.AssertEqual(t, hwire.DefaultConfig(), cfg)
}

func TestConfigFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hwire.yaml")
	tests.AssertNoError(t, os.WriteFile(path, []byte(`
max_header_size: 4096
read_timeout: 5s
encodings: [gzip]
brotli:
  quality: 9
`), 0o600))
	t.Setenv("HWIRE_BROTLI_LGWIN", "18")
	t.Setenv("HWIRE_KEEP_ALIVE", "false")

	out, errOut, err := execute(t, "", "config", "--config", path, "--debug")
	tests.AssertNoError(t, err)
	tests.AssertContains(t, errOut, "# loaded from "+path, true)
	var cfg hwire.Config
	tests.AssertNoError(t, yaml.Unmarshal([]byte(out), &cfg))
	tests.AssertEqual(t, 4096, cfg.MaxHeaderSize)
	tests.AssertEqual(t, "5s", cfg.ReadTimeout.String())
	tests.AssertEqual(t, []string{"gzip"}, cfg.Encodings)
	tests.AssertEqual(t, 9, cfg.Brotli.Quality)
	tests.AssertEqual(t, 18, cfg.Brotli.LGWin)
	tests.AssertTrue(t, !cfg.KeepAlive, "env override")
	tests.AssertTrue(t, cfg.Debug, "flag override")
}

func TestConfigValidation(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HWIRE_BROTLI_QUALITY", "12")
	_, _, err := execute(t, "", "config")
	tests.AssertErrorContains(t, err, "Config.Brotli.Quality: must be at most 11")
}

func TestFindConfigFileInPaths(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	tests.AssertEqual(t, "", findConfigFileInPaths([]string{a, b}))
	tests.AssertNoError(t, os.WriteFile(filepath.Join(b, "hwire.yml"), nil, 0o600))
	tests.AssertEqual(t, filepath.Join(b, "hwire.yml"), findConfigFileInPaths([]string{a, b}))
}

func TestGet(t *testing.T) {
	t.Chdir(t.TempDir())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Token", r.Header.Get("X-Token"))
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		body, _ := io.ReadAll(r.Body)
		zw.Write([]byte("hello " + string(body)))
		zw.Close()
	}))
	defer srv.Close()

	out, _, err := execute(t, "", "get", "-i", "-H", "X-Token: abc", "-d", "world", srv.URL+"/x")
	tests.AssertNoError(t, err)
	tests.AssertContains(t, out, "HTTP/1.1 200 OK\n", true)
	tests.AssertContains(t, out, "X-Method: POST\n", true)
	tests.AssertContains(t, out, "X-Token: abc\n", true)
	tests.AssertTrue(t, strings.HasSuffix(out, "\n\nhello world"), out)
}

func TestGetToFileAndFail(t *testing.T) {
	t.Chdir(t.TempDir())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "missing")
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "out.txt")
	out, _, err := execute(t, "", "get", "-o", dst, "--fail", srv.URL)
	tests.AssertErrorContains(t, err, "404 Not Found")
	tests.AssertEqual(t, "", out)
	b, err := os.ReadFile(dst)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "missing", string(b))
}

func TestGetRejectsBadFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _, err := execute(t, "", "get", "-H", "novalue", "http://127.0.0.1:1/")
	tests.AssertErrorContains(t, err, `invalid header "novalue"`)
	_, _, err = execute(t, "", "get", "--fingerprint", "netscape", "https://127.0.0.1:1/")
	tests.AssertErrorContains(t, err, `unknown fingerprint "netscape"`)
	_, _, err = execute(t, "", "get", "--proxy", "ftp://p", "http://127.0.0.1:1/")
	tests.AssertErrorContains(t, err, "unsupported proxy scheme")
	_, _, err = execute(t, "", "get", "--encode", "lzma", "-d", "x", "http://127.0.0.1:1/")
	tests.AssertErrorContains(t, err, "lzma")
}

func TestCompress(t *testing.T) {
	t.Chdir(t.TempDir())
	input := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 500)
	for _, args := range [][]string{
		{"compress"},
		{"compress", "-q", "0"},
		{"compress", "-q", "11", "--lgwin", "16"},
		{"compress", "--stream"},
	} {
		out, _, err := execute(t, input, args...)
		tests.AssertNoError(t, err)
		tests.AssertTrue(t, len(out) < len(input), strings.Join(args, " "))
		b, err := io.ReadAll(brotli.NewReader(strings.NewReader(out)))
		tests.AssertNoError(t, err)
		tests.AssertEqual(t, input, string(b))
	}

	_, _, err := execute(t, "x", "compress", "-q", "12")
	tests.AssertErrorContains(t, err, "quality 12 out of range")
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")
	tests.AssertNoError(t, err)
	tests.AssertContains(t, out, "hwire "+Version, true)
}

func TestGetImpersonate(t *testing.T) {
	t.Chdir(t.TempDir())
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.UserAgent()
	}))
	defer srv.Close()
	_, _, err := execute(t, "", "get", "--impersonate", "safari", srv.URL)
	tests.AssertNoError(t, err)
	tests.AssertContains(t, ua, "Safari/", true)

	_, _, err = execute(t, "", "get", "--impersonate", "lynx", srv.URL)
	tests.AssertErrorContains(t, err, `unknown browser "lynx"`)
}

func TestGetParallel(t *testing.T) {
	t.Chdir(t.TempDir())
	content := bytes.Repeat([]byte("0123456789abcdef"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(content))
	}))
	defer srv.Close()

	_, _, err := execute(t, "", "get", "--parallel", "3", srv.URL)
	tests.AssertErrorContains(t, err, "--parallel needs --output")

	dst := filepath.Join(t.TempDir(), "data")
	_, _, err = execute(t, "", "get", "--parallel", "3", "--segment-size", "5000", "-o", dst, srv.URL)
	tests.AssertNoError(t, err)
	got, err := os.ReadFile(dst)
	tests.AssertNoError(t, err)
	tests.AssertTrue(t, bytes.Equal(content, got), "downloaded content")
}
