// Package cookie holds the per-session cookie store.
package cookie

import (
	"sort"
	"strings"
)

// Jar maps cookie names to values. Names are unique; adding an
// existing name overwrites its value.
//
// A Jar is not safe for concurrent use. The session serializes access
// to it with its HTTP exchange lock.
type Jar struct {
	m map[string]string
}

// NewJar returns an empty Jar
func NewJar() *Jar { return &Jar{m: map[string]string{}} }

// Add stores value under name
func (j *Jar) Add(name, value string) {
	if j.m == nil {
		j.m = map[string]string{}
	}
	j.m[name] = value
}

// Get returns the value stored under name
func (j *Jar) Get(name string) (value string, ok bool) {
	value, ok = j.m[name]
	return value, ok
}

// Len returns the number of cookies stored
func (j *Jar) Len() int { return len(j.m) }

// Clear removes all cookies
func (j *Jar) Clear() {
	for k := range j.m {
		delete(j.m, k)
	}
}

// Extract parses one Set-Cookie style string and stores the cookie.
//
// The name is the text before the first '=' and the value the text
// between it and the first ';'. Strings missing either delimiter are
// skipped and Extract returns false.
func (j *Jar) Extract(setCookie string) bool {
	eq := strings.IndexByte(setCookie, '=')
	semi := strings.IndexByte(setCookie, ';')
	if eq < 0 || semi < 0 || semi < eq {
		return false
	}
	j.Add(setCookie[:eq], setCookie[eq+1:semi])
	return true
}

// Header renders the Jar as a Cookie request header value, sorted by
// name, or the empty string if the Jar is empty
func (j *Jar) Header() string {
	names := j.names()
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+j.m[name])
	}
	return strings.Join(pairs, "; ")
}

// Snapshot returns a copy of the Jar contents
func (j *Jar) Snapshot() map[string]string {
	out := make(map[string]string, len(j.m))
	for k, v := range j.m {
		out[k] = v
	}
	return out
}

func (j *Jar) names() []string {
	names := make([]string, 0, len(j.m))
	for name := range j.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
