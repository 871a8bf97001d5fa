package hwire

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/icholy/digest"

	"github.com/corewire/hwire/internal/header"
)

// handleDigestAuth answers a digest challenge in a 401 response by
// sending req again with credentials. Other responses are returned as is.
func (c *Client) handleDigestAuth(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if req.digestUser == "" || resp.Status.Code != 401 || !req.replayable() {
		return resp, nil
	}
	auth, err := createDigestAuth(req, resp)
	if err != nil {
		c.debugf("digest auth for %s: %v", req.URL.Redacted(), err)
		return resp, nil
	}
	resp.Close()
	req.SetHeader("Authorization", auth)
	return c.roundTrip(ctx, req)
}

func createDigestAuth(req *Request, resp *Response) (string, error) {
	challenges := resp.Headers.valuesName(knownName(header.WwwAuthenticate))
	chal, err := digest.FindChallenge(http.Header{"Www-Authenticate": challenges})
	if err != nil {
		return "", err
	}
	opts := digest.Options{
		Username: req.digestUser,
		Password: req.digestPass,
		Method:   req.Method,
		URI:      req.URL.RequestURI(),
		Count:    1,
	}
	if req.Body != nil {
		body := req.Body
		opts.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	cred, err := digest.Digest(chal, opts)
	if err != nil {
		return "", err
	}
	return cred.String(), nil
}
