package hwire

import (
	stdtls "crypto/tls"

	utls "github.com/refraction-networking/utls"

	"github.com/corewire/hwire/pkg/tls"
)

// browserProfile is a TLS client hello plus the navigation headers a
// browser sends, in its order.
type browserProfile struct {
	hello   *utls.ClientHelloID
	headers []string // name, value pairs
}

var chromeProfile = browserProfile{
	hello: &utls.HelloChrome_Auto,
	headers: []string{
		"Cache-Control", "max-age=0",
		"sec-ch-ua", `"Chromium";v="131", "Not_A Brand";v="24"`,
		"sec-ch-ua-mobile", "?0",
		"sec-ch-ua-platform", `"macOS"`,
		"Upgrade-Insecure-Requests", "1",
		"User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
		"Sec-Fetch-Site", "none",
		"Sec-Fetch-Mode", "navigate",
		"Sec-Fetch-User", "?1",
		"Sec-Fetch-Dest", "document",
		"Accept-Language", "en-US,en;q=0.9",
	},
}

var firefoxProfile = browserProfile{
	hello: &utls.HelloFirefox_Auto,
	headers: []string{
		"User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
		"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language", "en-US,en;q=0.5",
		"Upgrade-Insecure-Requests", "1",
		"Sec-Fetch-Dest", "document",
		"Sec-Fetch-Mode", "navigate",
		"Sec-Fetch-Site", "none",
		"Sec-Fetch-User", "?1",
		"Priority", "u=0, i",
	},
}

var safariProfile = browserProfile{
	hello: &utls.HelloSafari_Auto,
	headers: []string{
		"Sec-Fetch-Dest", "document",
		"User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
		"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Sec-Fetch-Site", "none",
		"Sec-Fetch-Mode", "navigate",
		"Accept-Language", "en-US,en;q=0.9",
		"Priority", "u=0, i",
	},
}

func (c *Client) impersonate(p browserProfile) *Client {
	c.tls = tls.BuiltContext{
		MinVersion:  stdtls.VersionTLS12,
		NextProtos:  []string{"http/1.1"},
		Fingerprint: p.hello,
	}
	for i := 0; i+1 < len(p.headers); i += 2 {
		c.SetCommonHeader(p.headers[i], p.headers[i+1])
	}
	return c
}

// ImpersonateChrome sends Chrome's TLS client hello and navigation headers.
func (c *Client) ImpersonateChrome() *Client { return c.impersonate(chromeProfile) }

// ImpersonateFirefox sends Firefox's TLS client hello and navigation headers.
func (c *Client) ImpersonateFirefox() *Client { return c.impersonate(firefoxProfile) }

// ImpersonateSafari sends Safari's TLS client hello and navigation headers.
func (c *Client) ImpersonateSafari() *Client { return c.impersonate(safariProfile) }
