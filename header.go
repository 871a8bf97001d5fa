package hwire

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/corewire/hwire/internal/header"
	"github.com/corewire/hwire/internal/netio"
)

// HeaderName is a header field name. Well-known names carry a tag from a
// static table so comparisons are a small integer check; other names keep
// the caller's spelling for serialization and compare by lowercase form.
type HeaderName struct {
	original string
	lower    string
	tag      header.Tag
}

var knownNames = func() map[header.Tag]HeaderName {
	m := make(map[header.Tag]HeaderName)
	for t := header.Tag(1); t.String() != ""; t++ {
		m[t] = HeaderName{original: t.String(), lower: strings.ToLower(t.String()), tag: t}
	}
	return m
}()

// NewHeaderName resolves name against the known-header table.
func NewHeaderName(name string) HeaderName {
	lower := lowerASCII(name)
	if tag := header.Lookup(lower); tag != header.Unknown {
		return knownNames[tag]
	}
	return HeaderName{original: name, lower: lower}
}

func knownName(t header.Tag) HeaderName { return knownNames[t] }

// String returns the spelling used on the wire.
func (n HeaderName) String() string { return n.original }

// Lower returns the lowercase form used for lookup.
func (n HeaderName) Lower() string { return n.lower }

// Tag returns the known-header tag, or header.Unknown.
func (n HeaderName) Tag() header.Tag { return n.tag }

// Equal reports whether two names are the same ignoring case.
func (n HeaderName) Equal(o HeaderName) bool {
	if n.tag != header.Unknown || o.tag != header.Unknown {
		return n.tag == o.tag
	}
	return n.lower == o.lower
}

func lowerASCII(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; 'A' <= c && c <= 'Z' {
			return strings.ToLower(s)
		}
	}
	return s
}

// HeaderField is one name/value line.
type HeaderField struct {
	Name  HeaderName
	Value string
}

// Headers is an ordered header block. Duplicate names are kept as
// separate fields in arrival order.
type Headers struct {
	fields []HeaderField
}

// NewHeaders builds a block from alternating name/value pairs.
func NewHeaders(kv ...string) Headers {
	var h Headers
	for i := 0; i+1 < len(kv); i += 2 {
		h.Add(kv[i], kv[i+1])
	}
	return h
}

// Len returns the number of fields.
func (h *Headers) Len() int { return len(h.fields) }

// Fields returns the fields in order. The slice must not be modified.
func (h *Headers) Fields() []HeaderField { return h.fields }

// Clone returns a deep copy.
func (h Headers) Clone() Headers {
	if h.fields == nil {
		return Headers{}
	}
	return Headers{fields: append([]HeaderField(nil), h.fields...)}
}

// Add appends a field.
func (h *Headers) Add(name, value string) {
	h.AddName(NewHeaderName(name), value)
}

// AddName appends a field with a pre-resolved name.
func (h *Headers) AddName(name HeaderName, value string) {
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Set replaces all fields named name with a single field.
func (h *Headers) Set(name, value string) {
	h.SetName(NewHeaderName(name), value)
}

// SetName is Set with a pre-resolved name. The replacement keeps the
// position of the first existing field.
func (h *Headers) SetName(name HeaderName, value string) {
	out := h.fields[:0]
	set := false
	for _, f := range h.fields {
		if f.Name.Equal(name) {
			if !set {
				out = append(out, HeaderField{Name: name, Value: value})
				set = true
			}
			continue
		}
		out = append(out, f)
	}
	if !set {
		out = append(out, HeaderField{Name: name, Value: value})
	}
	h.fields = out
}

// SetIfAbsent adds the field only when no field named name exists.
func (h *Headers) SetIfAbsent(name, value string) bool {
	n := NewHeaderName(name)
	if h.containsName(n) {
		return false
	}
	h.AddName(n, value)
	return true
}

// Del removes all fields named name.
func (h *Headers) Del(name string) {
	n := NewHeaderName(name)
	out := h.fields[:0]
	for _, f := range h.fields {
		if !f.Name.Equal(n) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Get returns the first value for name, or "".
func (h *Headers) Get(name string) string {
	return h.getName(NewHeaderName(name))
}

func (h *Headers) getName(n HeaderName) string {
	for _, f := range h.fields {
		if f.Name.Equal(n) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name in order.
func (h *Headers) Values(name string) []string {
	return h.valuesName(NewHeaderName(name))
}

func (h *Headers) valuesName(n HeaderName) []string {
	var vv []string
	for _, f := range h.fields {
		if f.Name.Equal(n) {
			vv = append(vv, f.Value)
		}
	}
	return vv
}

// Contains reports whether a field named name exists.
func (h *Headers) Contains(name string) bool {
	return h.containsName(NewHeaderName(name))
}

func (h *Headers) containsName(n HeaderName) bool {
	for _, f := range h.fields {
		if f.Name.Equal(n) {
			return true
		}
	}
	return false
}

// ContainsValue reports whether any field named name lists token in its
// comma separated value, ignoring case.
func (h *Headers) ContainsValue(name, token string) bool {
	return h.containsToken(NewHeaderName(name), token)
}

func (h *Headers) containsToken(n HeaderName, token string) bool {
	for _, f := range h.fields {
		if !f.Name.Equal(n) {
			continue
		}
		for _, v := range strings.Split(f.Value, ",") {
			if strings.EqualFold(strings.TrimSpace(v), token) {
				return true
			}
		}
	}
	return false
}

// ContentLength returns the declared Content-Length. ok is false when the
// header is absent. Repeated fields must agree.
func (h *Headers) ContentLength() (n int64, ok bool, err error) {
	n = -1
	for _, v := range h.valuesName(knownName(header.ContentLength)) {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			l, perr := strconv.ParseUint(part, 10, 63)
			if perr != nil || part == "" {
				return -1, false, protocolError("content length", "invalid Content-Length %q", v)
			}
			if ok && int64(l) != n {
				return -1, false, protocolError("content length", "conflicting Content-Length values")
			}
			n, ok = int64(l), true
		}
	}
	return n, ok, nil
}

// IsChunked reports whether chunked is the final transfer coding.
func (h Headers) IsChunked() bool {
	last := ""
	for _, v := range h.valuesName(knownName(header.TransferEncoding)) {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				last = c
			}
		}
	}
	return strings.EqualFold(last, header.Chunked)
}

// String renders the block as it would appear on the wire.
func (h Headers) String() string {
	var sb strings.Builder
	for _, f := range h.fields {
		sb.WriteString(f.Name.String())
		sb.WriteString(": ")
		sb.WriteString(f.Value)
		sb.WriteString("\r\n")
	}
	return sb.String()
}

// ParseHeaders reads a header block terminated by an empty line. The
// whole block, including line terminators, may not exceed maxSize bytes.
func ParseHeaders(r *netio.Reader, maxSize int, validate bool) (Headers, error) {
	var h Headers
	remaining := maxSize
	for {
		if remaining < 2 {
			return h, ErrHeaderTooLarge
		}
		line, found, err := r.ReadLine(remaining - 1)
		if err != nil {
			return h, err
		}
		if !found {
			return h, ErrHeaderTooLarge
		}
		remaining -= len(line) + 2
		if len(line) == 0 {
			return h, nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			return h, protocolError("header", "obsolete line folding is not supported")
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return h, protocolError("header", "missing colon in line %q", truncate(line, 64))
		}
		name := string(bytes.TrimSpace(line[:colon]))
		value := string(bytes.Trim(line[colon+1:], " \t"))
		if name == "" {
			return h, protocolError("header", "empty header name")
		}
		if validate {
			if !httpguts.ValidHeaderFieldName(name) {
				return h, protocolError("header", "invalid header name %q", name)
			}
			if !httpguts.ValidHeaderFieldValue(value) {
				return h, protocolError("header", "invalid value for header %q", name)
			}
		}
		h.AddName(NewHeaderName(name), value)
	}
}

// WriteHeaders serializes h followed by the terminating empty line.
// Values carrying CR or LF are always rejected.
func WriteHeaders(w *netio.Writer, h Headers, validate bool) error {
	for _, f := range h.fields {
		if strings.ContainsAny(f.Value, "\r\n") || strings.ContainsAny(f.Name.String(), "\r\n") {
			return fmt.Errorf("hwire: header %q contains CR or LF", f.Name.String())
		}
		if validate {
			if !httpguts.ValidHeaderFieldName(f.Name.String()) {
				return fmt.Errorf("hwire: invalid header name %q", f.Name.String())
			}
			if !httpguts.ValidHeaderFieldValue(f.Value) {
				return fmt.Errorf("hwire: invalid value for header %q", f.Name.String())
			}
		}
		w.WriteString(f.Name.String())
		w.WriteString(": ")
		w.WriteString(f.Value)
		w.WriteString("\r\n")
	}
	w.WriteString("\r\n")
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
