// Package header holds the static table of well-known HTTP header names.
package header

import "strings"

// Tag identifies a well-known header name. Unknown is the zero value.
type Tag uint8

const (
	Unknown Tag = iota
	Accept
	AcceptEncoding
	Age
	Authorization
	CacheControl
	Connection
	ContentDisposition
	ContentEncoding
	ContentLength
	ContentType
	Cookie
	Date
	Etag
	Expect
	Host
	KeepAlive
	Location
	ProxyAuthorization
	ProxyConnection
	RetryAfter
	Server
	SetCookie
	Te
	Trailer
	TransferEncoding
	Upgrade
	UserAgent
	Vary
	Via
	WwwAuthenticate

	numTags
)

// canonical holds the serialized form of each known name, indexed by Tag.
var canonical = [numTags]string{
	Unknown:            "",
	Accept:             "Accept",
	AcceptEncoding:     "Accept-Encoding",
	Age:                "Age",
	Authorization:      "Authorization",
	CacheControl:       "Cache-Control",
	Connection:         "Connection",
	ContentDisposition: "Content-Disposition",
	ContentEncoding:    "Content-Encoding",
	ContentLength:      "Content-Length",
	ContentType:        "Content-Type",
	Cookie:             "Cookie",
	Date:               "Date",
	Etag:               "ETag",
	Expect:             "Expect",
	Host:               "Host",
	KeepAlive:          "Keep-Alive",
	Location:           "Location",
	ProxyAuthorization: "Proxy-Authorization",
	ProxyConnection:    "Proxy-Connection",
	RetryAfter:         "Retry-After",
	Server:             "Server",
	SetCookie:          "Set-Cookie",
	Te:                 "TE",
	Trailer:            "Trailer",
	TransferEncoding:   "Transfer-Encoding",
	Upgrade:            "Upgrade",
	UserAgent:          "User-Agent",
	Vary:               "Vary",
	Via:                "Via",
	WwwAuthenticate:    "WWW-Authenticate",
}

var byLower = func() map[string]Tag {
	m := make(map[string]Tag, numTags)
	for t := Tag(1); t < numTags; t++ {
		m[strings.ToLower(canonical[t])] = t
	}
	return m
}()

// Lookup resolves a lowercase header name to its tag.
func Lookup(lower string) Tag {
	return byLower[lower]
}

// String returns the canonical spelling of a known name, or "" for Unknown.
func (t Tag) String() string {
	if t >= numTags {
		return ""
	}
	return canonical[t]
}

// Common header values.
const (
	DefaultUserAgent = "hwire/1 (https://github.com/corewire/hwire)"
	Chunked          = "chunked"
	Close            = "close"
	KeepAliveValue   = "keep-alive"
	Identity         = "identity"
	Continue         = "100-continue"
)
