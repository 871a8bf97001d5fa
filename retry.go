package hwire

import (
	"context"
	"math"
	"math/rand"
	"time"
)

func defaultGetRetryInterval(resp *Response, attempt int) time.Duration {
	return 100 * time.Millisecond
}

// RetryConditionFunc is a retry condition, which determines
// whether the request should retry.
type RetryConditionFunc func(resp *Response, err error) bool

// RetryHookFunc is a retry hook which will be executed before a retry.
type RetryHookFunc func(resp *Response, err error)

// GetRetryIntervalFunc is a function that determines how long should
// sleep between retry attempts.
type GetRetryIntervalFunc func(resp *Response, attempt int) time.Duration

func backoffInterval(min, max time.Duration) GetRetryIntervalFunc {
	base := float64(min)
	capLevel := float64(max)
	return func(resp *Response, attempt int) time.Duration {
		temp := math.Min(capLevel, base*math.Exp2(float64(attempt)))
		halfTemp := int64(temp / 2)
		if halfTemp <= 0 {
			return time.Duration(temp)
		}
		sleep := halfTemp + rand.Int63n(halfTemp)
		return time.Duration(sleep)
	}
}

func newDefaultRetryOption() *retryOption {
	return &retryOption{
		GetRetryInterval: defaultGetRetryInterval,
	}
}

// retryOption is the retry policy applied on top of the transparent retry
// of requests that failed on a stale pooled connection.
type retryOption struct {
	MaxRetries       int
	GetRetryInterval GetRetryIntervalFunc
	RetryConditions  []RetryConditionFunc
	RetryHooks       []RetryHookFunc
}

// shouldRetry retries on any error unless conditions are set, in which
// case one matching condition is enough.
func (ro *retryOption) shouldRetry(resp *Response, err error) bool {
	if len(ro.RetryConditions) == 0 {
		return err != nil
	}
	for _, cond := range ro.RetryConditions {
		if cond(resp, err) {
			return true
		}
	}
	return false
}

// roundTrip sends req with the client's retry policy.
func (c *Client) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	ro := c.retryOption
	staleRetried, fresh := false, false
	for attempt := 0; ; attempt++ {
		resp, err := c.chain.proceed(ctx, req, fresh)
		fresh = false
		if err != nil && isStaleConnError(err) && !staleRetried && req.idempotent() && req.replayable() {
			c.debugf("retrying %s %s on a new connection: %v", req.Method, req.URL.Redacted(), err)
			staleRetried, fresh = true, true
			attempt--
			continue
		}
		err = unwrapStale(err)
		if attempt >= ro.MaxRetries || !ro.shouldRetry(resp, err) || !req.replayable() {
			return resp, err
		}
		for _, hook := range ro.RetryHooks {
			hook(resp, err)
		}
		if resp != nil {
			resp.Close()
		}
		interval := ro.GetRetryInterval(resp, attempt+1)
		c.debugf("retry #%d of %s %s in %s", attempt+1, req.Method, req.URL.Redacted(), interval)
		if interval > 0 {
			t := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
	}
}
