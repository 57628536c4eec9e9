// Package rwstest provides an in-process RWS server for tests: digest
// authenticated HTTP resources and a scripted WebSocket peer.
package rwstest

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gobwas/ws"
)

const (
	// Realm is the digest authentication realm
	Realm = "validusers@robapi.abb"
	// Protocol is the default WebSocket subprotocol accepted
	Protocol = "robapi2_subscription"
)

// Request is a request seen by the Server
type Request struct {
	Method        string
	URI           string
	Cookie        string
	Authorization string
	ContentType   string
	ContentLength int64
	Body          string
	Upgrade       bool

	// ContentLengthHeader is the Content-Length header as sent, empty if absent
	ContentLengthHeader string
}

// Server is an in-process RWS server
type Server struct {
	*httptest.Server

	username  string
	password  string
	setCookie []string
	rejectAll bool
	handler   http.HandlerFunc
	protocol  string
	script    func(*Conn)

	mu       sync.Mutex
	nonces   int
	requests []Request
}

// Option is a Server option function
type Option func(*Server)

// WithCredentials sets the accepted digest credentials
func WithCredentials(username, password string) Option {
	return func(s *Server) { s.username, s.password = username, password }
}

// WithSetCookies sets the Set-Cookie values sent by each digest
// authenticated response. Requests carrying any of these cookies are
// authorized without digest credentials.
func WithSetCookies(values ...string) Option {
	return func(s *Server) { s.setCookie = values }
}

// WithRejectAll answers every request 401, valid credentials or not
func WithRejectAll() Option { return func(s *Server) { s.rejectAll = true } }

// WithHandler serves authorized requests with h
func WithHandler(h http.HandlerFunc) Option { return func(s *Server) { s.handler = h } }

// WithWebSocket runs script on each upgraded connection offering protocol
func WithWebSocket(protocol string, script func(*Conn)) Option {
	return func(s *Server) { s.protocol, s.script = protocol, script }
}

// New starts a Server, closed when the test ends
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		username:  "Default User",
		password:  "robotics",
		setCookie: []string{"-http-session-=1::http.session::1234; path=/; httponly", "ABBCX=abc123; Path=/"},
		handler: func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "ok")
		},
		protocol: Protocol,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Close)
	return s
}

// Requests returns the requests seen so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Authorized returns the number of requests carrying an Authorization header
func (s *Server) Authorized() (n int) {
	for _, r := range s.Requests() {
		if r.Authorization != "" {
			n++
		}
	}
	return n
}

func (s *Server) record(r *http.Request) Request {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	req := Request{
		Method:        r.Method,
		URI:           r.URL.RequestURI(),
		Cookie:        r.Header.Get("Cookie"),
		Authorization: r.Header.Get("Authorization"),
		ContentType:   r.Header.Get("Content-Type"),
		ContentLength: r.ContentLength,
		Body:          string(body),
		Upgrade:       strings.EqualFold(r.Header.Get("Upgrade"), "websocket"),

		ContentLengthHeader: r.Header.Get("Content-Length"),
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return req
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	req := s.record(r)
	if req.Upgrade && s.script != nil {
		s.serveWebSocket(w, r)
		return
	}

	switch {
	case s.rejectAll:
	case s.hasSessionCookie(req.Cookie):
		s.handler(w, r)
		return
	case req.Authorization != "" && s.validDigest(req):
		for _, c := range s.setCookie {
			w.Header().Add("Set-Cookie", c)
		}
		s.handler(w, r)
		return
	}

	s.mu.Lock()
	s.nonces++
	nonce := fmt.Sprintf("%08x", s.nonces)
	s.mu.Unlock()
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Digest realm="%s", nonce="%s", algorithm=MD5, qop="auth"`, Realm, nonce))
	w.WriteHeader(http.StatusUnauthorized)
	io.WriteString(w, "unauthorized")
}

func (s *Server) hasSessionCookie(header string) bool {
	if header == "" {
		return false
	}
	for _, sc := range s.setCookie {
		pair, _, _ := strings.Cut(sc, ";")
		for _, c := range strings.Split(header, "; ") {
			if c == pair {
				return true
			}
		}
	}
	return false
}

// validDigest checks an RFC2617 qop=auth (or legacy) MD5 digest response
func (s *Server) validDigest(req Request) bool {
	p, ok := ParseDigest(req.Authorization)
	if !ok || p["username"] != s.username || p["realm"] != Realm || p["uri"] != req.URI {
		return false
	}
	ha1 := md5hex(s.username + ":" + Realm + ":" + s.password)
	ha2 := md5hex(req.Method + ":" + p["uri"])
	want := md5hex(ha1 + ":" + p["nonce"] + ":" + ha2)
	if p["qop"] == "auth" {
		want = md5hex(strings.Join([]string{ha1, p["nonce"], p["nc"], p["cnonce"], p["qop"], ha2}, ":"))
	}
	return p["response"] == want
}

// ParseDigest parses the parameters of a Digest Authorization header
func ParseDigest(h string) (map[string]string, bool) {
	rest, ok := strings.CutPrefix(h, "Digest ")
	if !ok {
		return nil, false
	}
	params := map[string]string{}
	for rest = strings.TrimSpace(rest); rest != ""; rest = strings.TrimLeft(rest, ", ") {
		key, after, found := strings.Cut(rest, "=")
		if !found {
			return nil, false
		}
		key = strings.TrimSpace(key)
		var value string
		if strings.HasPrefix(after, `"`) {
			end := strings.IndexByte(after[1:], '"')
			if end < 0 {
				return nil, false
			}
			value, rest = after[1:end+1], after[end+2:]
		} else {
			value, rest, _ = strings.Cut(after, ",")
			value = strings.TrimSpace(value)
		}
		params[key] = value
	}
	return params, true
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	u := ws.HTTPUpgrader{Protocol: func(p string) bool { return p == s.protocol }}
	conn, rw, _, err := u.Upgrade(r, w)
	if err != nil {
		return
	}
	defer conn.Close()
	s.script(&Conn{Conn: conn, r: rw.Reader})
}

// Conn is the server side of an upgraded WebSocket connection
type Conn struct {
	net.Conn
	r *bufio.Reader
}

// Send writes one unmasked frame
func (c *Conn) Send(op ws.OpCode, payload []byte) error {
	return ws.WriteFrame(c.Conn, ws.NewFrame(op, true, payload))
}

// Receive reads one client frame, unmasking its payload
func (c *Conn) Receive() (ws.Frame, error) {
	f, err := ws.ReadFrame(c.r)
	if err != nil {
		return f, err
	}
	if f.Header.Masked {
		ws.Cipher(f.Payload, f.Header.Mask, 0)
	}
	return f, nil
}
