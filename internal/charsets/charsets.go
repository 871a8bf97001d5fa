// Package charsets picks the text encoding of a response body.
package charsets

import (
	"bytes"
	"mime"
	"strings"

	htmlcharset "golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
)

var boms = []struct {
	bom []byte
	enc string
}{
	{[]byte{0xfe, 0xff}, "utf-16be"},
	{[]byte{0xff, 0xfe}, "utf-16le"},
	{[]byte{0xef, 0xbb, 0xbf}, "utf-8"},
}

// FromContentType returns the encoding named by the charset parameter of a
// Content-Type value. A nil encoding means UTF-8 or unknown.
func FromContentType(contentType string) (encoding.Encoding, string) {
	if contentType == "" {
		return nil, ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, ""
	}
	cs, ok := params["charset"]
	if !ok {
		return nil, ""
	}
	return lookup(cs)
}

// FindEncoding determines the encoding of content, preferring the
// Content-Type charset, then a byte order mark, then HTML meta prescan.
// A nil encoding means the content is UTF-8 and needs no decoding.
func FindEncoding(contentType string, content []byte) (encoding.Encoding, string) {
	if enc, name := FromContentType(contentType); name != "" {
		return enc, name
	}
	for _, b := range boms {
		if bytes.HasPrefix(content, b.bom) {
			return lookup(b.enc)
		}
	}
	if len(content) == 0 {
		return nil, ""
	}
	enc, name, certain := htmlcharset.DetermineEncoding(content, contentType)
	if !certain && name == "windows-1252" {
		// the fallback guess for undeclared content; leave it untouched
		return nil, ""
	}
	if strings.EqualFold(name, "utf-8") {
		return nil, "utf-8"
	}
	return enc, name
}

func lookup(label string) (encoding.Encoding, string) {
	enc, name := htmlcharset.Lookup(label)
	if enc == nil {
		return nil, ""
	}
	if strings.EqualFold(name, "utf-8") {
		return nil, "utf-8"
	}
	return enc, name
}
