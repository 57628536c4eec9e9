package result

import (
	"net/http"
	"sort"
	"strings"
)

// FlattenHeader renders h as one "name=value" line per header value,
// sorted by canonical header name
func FlattenHeader(h http.Header) string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		for _, v := range h[name] {
			b.WriteString(name)
			b.WriteByte('=')
			b.WriteString(v)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// HeaderValue returns the first value of the named header in the
// flattened header text, or the empty string
func (r *Result) HeaderValue(name string) string {
	if r.HTTP == nil {
		return ""
	}
	name = http.CanonicalHeaderKey(name)
	for _, line := range strings.Split(r.HTTP.Response.Header, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok && k == name {
			return v
		}
	}
	return ""
}
