package cmd

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
	"github.com/spf13/cobra"

	"github.com/corewire/hwire"
	hwtls "github.com/corewire/hwire/pkg/tls"
)

var fingerprints = map[string]*utls.ClientHelloID{
	"chrome":  &utls.HelloChrome_Auto,
	"firefox": &utls.HelloFirefox_Auto,
	"safari":  &utls.HelloSafari_Auto,
	"edge":    &utls.HelloEdge_Auto,
	"ios":     &utls.HelloIOS_Auto,
}

func fingerprintNames() string {
	names := make([]string, 0, len(fingerprints))
	for k := range fingerprints {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

type getOptions struct {
	method      string
	headers     []string
	data        string
	encode      string
	proxy       string
	insecure    bool
	fingerprint string
	impersonate string
	include     bool
	text        bool
	output      string
	fail        bool
	retries     int
	dump        bool
	parallel    int
	segmentSize int64
}

func newGetCmd(o *rootOptions) *cobra.Command {
	g := &getOptions{}
	cmd := &cobra.Command{
		Use:   "get URL",
		Short: "Fetch a URL and write the entity to stdout",
		Long: `Send one request through the hwire pipeline and stream the
decoded entity to stdout or a file.

Example:
  hwire get -i https://example.com/
  hwire get -X PUT -d @payload.json -H 'Content-Type: application/json' --encode br http://localhost:8080/items/1
  hwire get --proxy socks5://127.0.0.1:1080 --fingerprint chrome https://example.com/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			return g.run(cmd, cfg, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVarP(&g.method, "request", "X", "", "request method (default GET, or POST with --data)")
	f.StringArrayVarP(&g.headers, "header", "H", nil, `extra header "Name: value", repeatable`)
	f.StringVarP(&g.data, "data", "d", "", "request body, or @file to read it from a file")
	f.StringVar(&g.encode, "encode", "", "content-code the request body (gzip, deflate, br, zstd)")
	f.StringVar(&g.proxy, "proxy", "", "proxy URL, http:// or socks5://")
	f.BoolVarP(&g.insecure, "insecure", "k", false, "skip TLS certificate verification")
	f.StringVar(&g.fingerprint, "fingerprint", "", "mimic a browser TLS client hello: "+fingerprintNames())
	f.StringVar(&g.impersonate, "impersonate", "", "send a browser's client hello and navigation headers: chrome, firefox, safari")
	f.BoolVarP(&g.include, "include", "i", false, "print the status line and headers")
	f.BoolVar(&g.text, "text", false, "convert textual entities to UTF-8")
	f.StringVarP(&g.output, "output", "o", "", "write the entity to a file")
	f.BoolVarP(&g.fail, "fail", "f", false, "exit non-zero on a 4xx or 5xx status")
	f.IntVar(&g.retries, "retry", 0, "retry transport errors, 429 and 5xx this many times")
	f.BoolVar(&g.dump, "dump", false, "dump request and response headers to stderr")
	f.IntVar(&g.parallel, "parallel", 0, "download with this many concurrent range requests, needs --output")
	f.Int64Var(&g.segmentSize, "segment-size", 10<<20, "bytes per range request with --parallel")
	return cmd
}

func (g *getOptions) tlsPolicy() (hwtls.Policy, error) {
	if !g.insecure && g.fingerprint == "" {
		return nil, nil
	}
	p := hwtls.BuiltContext{
		InsecureSkipVerify: g.insecure,
		MinVersion:         tls.VersionTLS12,
		NextProtos:         []string{"http/1.1"},
	}
	if g.fingerprint != "" {
		id, ok := fingerprints[strings.ToLower(g.fingerprint)]
		if !ok {
			return nil, fmt.Errorf("unknown fingerprint %q, want one of %s", g.fingerprint, fingerprintNames())
		}
		p.Fingerprint = id
	}
	return p, nil
}

func (g *getOptions) request(rawURL string) (*hwire.Request, error) {
	method := g.method
	if method == "" {
		method = hwire.MethodGet
		if g.data != "" {
			method = hwire.MethodPost
		}
	}
	req, err := hwire.NewRequest(method, rawURL)
	if err != nil {
		return nil, err
	}
	for _, h := range g.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, want \"Name: value\"", h)
		}
		req.AddHeader(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	switch {
	case strings.HasPrefix(g.data, "@"):
		b, err := os.ReadFile(g.data[1:])
		if err != nil {
			return nil, err
		}
		req.SetBody(b)
	case g.data != "":
		req.SetBodyString(g.data)
	}
	if g.encode != "" {
		req.Encode(g.encode)
	}
	return req, req.Err()
}

func (g *getOptions) run(cmd *cobra.Command, cfg hwire.Config, rawURL string) error {
	opts := []hwire.ClientOption{
		hwire.WithLogger(hwire.NewLogger(cmd.ErrOrStderr(), "", log.Ltime)),
	}
	if g.proxy != "" {
		p, err := hwire.ParseProxyURL(g.proxy)
		if err != nil {
			return err
		}
		opts = append(opts, hwire.WithProxy(p))
	}
	policy, err := g.tlsPolicy()
	if err != nil {
		return err
	}
	if policy != nil {
		opts = append(opts, hwire.WithTLSPolicy(policy))
	}
	c, err := hwire.NewClient(cfg, opts...)
	if err != nil {
		return err
	}
	defer c.Close()
	switch strings.ToLower(g.impersonate) {
	case "":
	case "chrome":
		c.ImpersonateChrome()
	case "firefox":
		c.ImpersonateFirefox()
	case "safari":
		c.ImpersonateSafari()
	default:
		return fmt.Errorf("unknown browser %q, want chrome, firefox or safari", g.impersonate)
	}
	if g.impersonate != "" && policy != nil {
		// explicit TLS flags win over the browser preset
		c.SetTLSPolicy(policy)
	}
	if g.dump {
		c.EnableDump(hwire.DumpOptions{
			Output:         cmd.ErrOrStderr(),
			RequestHeader:  true,
			ResponseHeader: true,
		})
	}
	if g.retries > 0 {
		c.SetCommonRetryCount(g.retries).
			SetCommonRetryBackoffInterval(100*time.Millisecond, 2*time.Second).
			AddCommonRetryCondition(func(resp *hwire.Response, err error) bool {
				return err != nil || resp.Status.Code == 429 || resp.Status.Code >= 500
			})
	}

	if g.parallel > 0 {
		if g.output == "" {
			return errors.New("--parallel needs --output")
		}
		return c.NewParallelDownload(rawURL).
			SetConcurrency(g.parallel).
			SetSegmentSize(g.segmentSize).
			SetOutputFile(g.output).
			Do(cmd.Context())
	}

	req, err := g.request(rawURL)
	if err != nil {
		return err
	}
	resp, err := c.Do(cmd.Context(), req)
	if err != nil {
		return err
	}
	defer resp.Close()

	out := cmd.OutOrStdout()
	if g.include {
		writeHead(out, resp.Proto, resp.Status, resp.Headers)
	}
	var dst io.Writer = out
	if g.output != "" {
		f, err := os.Create(g.output)
		if err != nil {
			return err
		}
		defer f.Close()
		dst = f
	}
	body := resp.Body
	if g.text {
		body = resp.TextReader()
	}
	if _, err := io.Copy(dst, body); err != nil {
		return fmt.Errorf("reading entity: %w", err)
	}
	<-resp.Done()
	if g.include && len(resp.Trailers.Fields()) > 0 {
		fmt.Fprintln(out)
		for _, f := range resp.Trailers.Fields() {
			fmt.Fprintf(out, "%s: %s\n", f.Name, f.Value)
		}
	}
	if g.fail && resp.IsError() {
		return errors.New(resp.Status.String())
	}
	return nil
}

func writeHead(w io.Writer, proto string, st hwire.Status, h hwire.Headers) {
	fmt.Fprintf(w, "%s %s\n", proto, st)
	for _, f := range h.Fields() {
		fmt.Fprintf(w, "%s: %s\n", f.Name, f.Value)
	}
	fmt.Fprintln(w)
}
