/*
Package hwire is an HTTP/1.1 client pipeline.

A Client writes a request, reads the status line and headers, and hands
the caller a Response whose Body streams the entity. Entities framed by
Content-Length, chunked transfer coding or connection close are read
incrementally and decoded per Content-Encoding (gzip, deflate, br, zstd).
When the entity has been read to the end, or discarded with Close, the
connection goes back to a sharded idle Pool keyed by destination, proxy
and TLS policy.

	c := hwire.New()
	defer c.Close()

	resp, err := c.Get(ctx, "https://example.com/")
	if err != nil {
		return err
	}
	text, err := resp.String()

Requests may go through an HTTP proxy, a CONNECT tunnel or SOCKS5, use a
caller supplied or library built TLS policy, retry with a backoff, and
carry a request body compressed with the package's Brotli encoder.
*/
package hwire
