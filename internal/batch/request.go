package batch

import (
	"net/http"
	"strings"
)

// HeaderContentID carries the correlation token of a change-set request and
// echoes it on the matching response.
const HeaderContentID = "Content-ID"

// Request is one logical request of a batch. Values are treated as immutable
// once handed to the executor; use the With* helpers to derive changed copies.
type Request struct {
	Method string
	// Path is relative to the service root and may start with a forward
	// reference segment such as "$1/Address".
	Path string
	// Query is the raw query string without the leading '?'.
	Query string
	// RawURI echoes the request URI as the client sent it.
	RawURI string
	Header http.Header
	// ContentID is the correlation token, unique within its change set.
	ContentID string
	Body      []byte
}

// ForwardRef returns the correlation token referenced by the first path
// segment, if that segment has the form "$<token>".
func (r Request) ForwardRef() (string, bool) {
	seg := firstSegment(r.Path)
	if len(seg) < 2 || seg[0] != '$' {
		return "", false
	}
	return seg[1:], true
}

// EntitySet returns the first path segment without any key predicate, e.g.
// "Employees" for "Employees('1')/Address".
func (r Request) EntitySet() string {
	seg := firstSegment(r.Path)
	if i := strings.IndexByte(seg, '('); i >= 0 {
		seg = seg[:i]
	}
	return seg
}

// WithHeader returns a copy of r with header key set to value.
func (r Request) WithHeader(key, value string) Request {
	out := r.clone()
	out.Header.Set(key, value)
	return out
}

func (r Request) clone() Request {
	out := r
	if r.Header != nil {
		out.Header = r.Header.Clone()
	} else {
		out.Header = http.Header{}
	}
	return out
}

func firstSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
