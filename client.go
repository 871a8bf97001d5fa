package hwire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/corewire/hwire/internal/dump"
	"github.com/corewire/hwire/pkg/tls"
)

// Client sends HTTP/1.1 requests over pooled connections.
type Client struct {
	cfg     Config
	pool    *Pool
	ownPool bool
	log     Logger
	reg     prometheus.Registerer
	tls     tls.Policy
	proxy   *Proxy
	dialer  *net.Dialer
	dumper  *dump.Dumper
	headers Headers
	chain   *callChain
	trace   bool

	retryOption     *retryOption
	redirectPolicy  []RedirectPolicy
	beforeRequest   []RequestMiddleware
	udBeforeRequest []RequestMiddleware
	afterResponse   []ResponseMiddleware
}

// ClientOption customizes a Client in NewClient.
type ClientOption func(*Client)

// WithPool makes the client use p instead of a pool of its own. The
// caller keeps ownership of p.
func WithPool(p *Pool) ClientOption {
	return func(c *Client) { c.pool = p }
}

// WithLogger sets the logger.
func WithLogger(l Logger) ClientOption {
	return func(c *Client) { c.SetLogger(l) }
}

// WithRegisterer registers the metrics of the client's own pool.
func WithRegisterer(reg prometheus.Registerer) ClientOption {
	return func(c *Client) { c.reg = reg }
}

// WithTLSPolicy sets the default TLS policy for https destinations.
func WithTLSPolicy(p tls.Policy) ClientOption {
	return func(c *Client) { c.tls = p }
}

// WithProxy routes requests through p.
func WithProxy(p *Proxy) ClientOption {
	return func(c *Client) { c.proxy = p }
}

// WithDialer replaces the dialer used for new connections.
func WithDialer(d *net.Dialer) ClientOption {
	return func(c *Client) { c.dialer = d }
}

// NewClient validates cfg and creates a client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:         cfg,
		log:         createDefaultLogger(),
		dialer:      &net.Dialer{KeepAlive: 30 * time.Second},
		retryOption: newDefaultRetryOption(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pool == nil {
		c.pool = NewPool(PoolOptions{
			MaxIdlePerKey: cfg.MaxIdlePerKey,
			IdleTimeout:   cfg.IdleTimeout,
			Registerer:    c.reg,
			Logger:        c.log,
		})
		c.ownPool = true
	}
	c.chain = &callChain{c: c}
	c.beforeRequest = []RequestMiddleware{
		validateRequest,
		parseRequestHeader,
		parseRequestBody,
	}
	return c, nil
}

// New creates a client with DefaultConfig.
func New(opts ...ClientOption) *Client {
	c, err := NewClient(DefaultConfig(), opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Client) debugf(format string, v ...interface{}) {
	if c.cfg.Debug {
		c.log.Debugf(format, v...)
	}
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Pool returns the pool the client releases connections to.
func (c *Client) Pool() *Pool {
	return c.pool
}

// SetLogger sets the logger. A nil logger disables logging.
func (c *Client) SetLogger(log Logger) *Client {
	if log == nil {
		c.log = &disableLogger{}
		return c
	}
	c.log = log
	return c
}

// EnableDebug traces pipeline states through the logger.
func (c *Client) EnableDebug(enable bool) *Client {
	c.cfg.Debug = enable
	return c
}

// SetProxy routes requests through p. A nil proxy connects directly.
func (c *Client) SetProxy(p *Proxy) *Client {
	c.proxy = p
	return c
}

// SetTLSPolicy sets the default TLS policy.
func (c *Client) SetTLSPolicy(p tls.Policy) *Client {
	c.tls = p
	return c
}

// SetCommonHeader sets a header sent with every request that does not
// set it itself.
func (c *Client) SetCommonHeader(name, value string) *Client {
	c.headers.Set(name, value)
	return c
}

// SetUserAgent sets the default User-Agent.
func (c *Client) SetUserAgent(ua string) *Client {
	c.cfg.UserAgent = ua
	return c
}

// DumpOptions controls which parts of each exchange are dumped.
type DumpOptions = dump.Options

// EnableDump copies request and response bytes to opt.Output.
func (c *Client) EnableDump(opt DumpOptions) *Client {
	if c.dumper != nil {
		c.dumper.Stop()
	}
	c.dumper = dump.NewDumper(opt)
	c.dumper.Start()
	return c
}

// EnableDumpTo dumps every part of each exchange to output.
func (c *Client) EnableDumpTo(output io.Writer) *Client {
	return c.EnableDump(DumpOptions{
		Output:         output,
		RequestHeader:  true,
		RequestBody:    true,
		ResponseHeader: true,
		ResponseBody:   true,
	})
}

// DisableDump stops dumping.
func (c *Client) DisableDump() *Client {
	if c.dumper != nil {
		c.dumper.Stop()
		c.dumper = nil
	}
	return c
}

// SetCommonRetryCount enables retry and sets the maximum retry count
// for all requests.
func (c *Client) SetCommonRetryCount(count int) *Client {
	c.retryOption.MaxRetries = count
	return c
}

// SetCommonRetryInterval sets a custom retry interval function.
func (c *Client) SetCommonRetryInterval(getRetryIntervalFunc GetRetryIntervalFunc) *Client {
	c.retryOption.GetRetryInterval = getRetryIntervalFunc
	return c
}

// SetCommonRetryFixedInterval sets a fixed retry interval.
func (c *Client) SetCommonRetryFixedInterval(interval time.Duration) *Client {
	c.retryOption.GetRetryInterval = func(resp *Response, attempt int) time.Duration {
		return interval
	}
	return c
}

// SetCommonRetryBackoffInterval sets a capped exponential backoff with
// jitter.
func (c *Client) SetCommonRetryBackoffInterval(min, max time.Duration) *Client {
	c.retryOption.GetRetryInterval = backoffInterval(min, max)
	return c
}

// AddCommonRetryCondition adds a retry condition. Without conditions
// only errors are retried.
func (c *Client) AddCommonRetryCondition(condition RetryConditionFunc) *Client {
	c.retryOption.RetryConditions = append(c.retryOption.RetryConditions, condition)
	return c
}

// AddCommonRetryHook adds a hook run before each retry.
func (c *Client) AddCommonRetryHook(hook RetryHookFunc) *Client {
	c.retryOption.RetryHooks = append(c.retryOption.RetryHooks, hook)
	return c
}

// EnableTrace records exchange timings for every request.
func (c *Client) EnableTrace(enable bool) *Client {
	c.trace = enable
	return c
}

// SetRedirectPolicy adds policies checked before each redirect is
// followed, on top of the Config.MaxRedirects limit.
func (c *Client) SetRedirectPolicy(policies ...RedirectPolicy) *Client {
	c.redirectPolicy = policies
	return c
}

// OnBeforeRequest adds a request middleware run before sending.
func (c *Client) OnBeforeRequest(m RequestMiddleware) *Client {
	c.udBeforeRequest = append(c.udBeforeRequest, m)
	return c
}

// OnAfterResponse adds a response middleware run on each response.
func (c *Client) OnAfterResponse(m ResponseMiddleware) *Client {
	c.afterResponse = append(c.afterResponse, m)
	return c
}

// Do sends req and returns the response with its entity unread. The
// caller must read the body to the end or close the response.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("hwire: nil request")
	}
	if req.err != nil {
		return nil, req.err
	}
	for _, m := range c.udBeforeRequest {
		if err := m(c, req); err != nil {
			return nil, err
		}
	}
	for _, m := range c.beforeRequest {
		if err := m(c, req); err != nil {
			return nil, err
		}
	}
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp, err = c.handleDigestAuth(ctx, req, resp); err != nil {
		return nil, err
	}
	if resp, err = c.followRedirects(ctx, req, resp); err != nil {
		return nil, err
	}
	for _, m := range c.afterResponse {
		if err := m(c, resp); err != nil {
			resp.Close()
			return nil, err
		}
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, url string, body []byte, contentType string) (*Response, error) {
	req, err := NewRequest(method, url)
	if err != nil {
		return nil, fmt.Errorf("hwire: %w", err)
	}
	if body != nil {
		req.SetBody(body)
	}
	if contentType != "" {
		req.SetContentType(contentType)
	}
	return c.Do(ctx, req)
}

// Get sends a GET request to url.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.send(ctx, MethodGet, url, nil, "")
}

// Head sends a HEAD request to url.
func (c *Client) Head(ctx context.Context, url string) (*Response, error) {
	return c.send(ctx, MethodHead, url, nil, "")
}

// Post sends body to url.
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*Response, error) {
	req, err := NewRequest(MethodPost, url)
	if err != nil {
		return nil, fmt.Errorf("hwire: %w", err)
	}
	if contentType != "" {
		req.SetContentType(contentType)
	}
	switch b := body.(type) {
	case nil:
	case *bytes.Buffer:
		req.SetBody(b.Bytes())
	case *bytes.Reader:
		req.SetBodyReader(b, int64(b.Len()))
	default:
		req.SetBodyReader(body, -1)
	}
	return c.Do(ctx, req)
}

// Close stops dumping and closes the pool when the client created it.
func (c *Client) Close() error {
	c.DisableDump()
	if c.ownPool {
		return c.pool.Close()
	}
	return nil
}
