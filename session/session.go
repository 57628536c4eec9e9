package session

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andaru/rws/cookie"
	"github.com/andaru/rws/result"
	"github.com/andaru/rws/transport"
	"github.com/pkg/errors"
)

const (
	// DefaultUsername is the controller's default RWS user
	DefaultUsername = "Default User"
	// DefaultPassword is the default RWS user's password
	DefaultPassword = "robotics"
)

// Config contains Session configuration
type Config struct {
	// Host is the base URL of the server, e.g. "http://192.168.125.1:80"
	Host string
	// Username and Password are the digest authentication credentials.
	// The defaults are used when both are empty.
	Username string
	Password string
	// Timeout bounds each HTTP request (zero means no client timeout)
	Timeout time.Duration
	// ReceiveTimeout bounds the wait for each WebSocket frame
	// (transport.DefaultReceiveTimeout if zero)
	ReceiveTimeout time.Duration
	// MaxFrameSize bounds received WebSocket payloads
	MaxFrameSize int64
	// TLSConfig is used for https:// and wss:// connections
	TLSConfig *tls.Config
	// Logger receives session events (slog.Default() if nil)
	Logger *slog.Logger
}

// State contains runtime Session counters
type State struct {
	// Requests is the number of HTTP exchanges performed
	Requests int
	// AuthRetries is the number of digest authenticated retries
	AuthRetries int
	// Resets is the number of connection resets after failures
	Resets int
	// Frames is the number of WebSocket frames delivered
	Frames int
}

// Session is a client session with one server.
//
// HTTP exchanges and the WebSocket channel are guarded by two
// independent locks: one HTTP exchange and one WebSocket operation may
// run concurrently, while calls within the same domain are serialized.
type Session struct {
	Config *Config

	log  *slog.Logger
	base *url.URL
	conn *transport.Conn

	httpMu   sync.Mutex
	jar      *cookie.Jar
	engine   *transport.Engine
	requests int

	wsMu   sync.Mutex
	ws     *transport.WebSocket
	frames int
}

// New returns a new Session for config.Host with an empty cookie store
func New(config Config) (*Session, error) {
	base, err := url.Parse(config.Host)
	if err != nil {
		return nil, errors.Wrap(err, "invalid host")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Errorf("invalid host %q: scheme must be http or https", config.Host)
	}
	if config.Username == "" && config.Password == "" {
		config.Username, config.Password = DefaultUsername, DefaultPassword
	}
	log := config.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("host", base.Host)

	s := &Session{
		Config: &config,
		log:    log,
		base:   base,
		conn:   transport.NewConn(config.Timeout, config.TLSConfig),
		jar:    cookie.NewJar(),
	}
	s.engine = &transport.Engine{
		Base:        base,
		Conn:        s.conn,
		Jar:         s.jar,
		Credentials: transport.Credentials{Username: config.Username, Password: config.Password},
		Logger:      log,
	}
	return s, nil
}

// Get performs an HTTP GET of uri
func (s *Session) Get(ctx context.Context, uri string) *result.Result {
	return s.Execute(ctx, http.MethodGet, uri, "")
}

// Post performs an HTTP POST of body to uri
func (s *Session) Post(ctx context.Context, uri, body string) *result.Result {
	return s.Execute(ctx, http.MethodPost, uri, body)
}

// Put performs an HTTP PUT of body to uri
func (s *Session) Put(ctx context.Context, uri, body string) *result.Result {
	return s.Execute(ctx, http.MethodPut, uri, body)
}

// Delete performs an HTTP DELETE of uri
func (s *Session) Delete(ctx context.Context, uri string) *result.Result {
	return s.Execute(ctx, http.MethodDelete, uri, "")
}

// Execute performs one HTTP exchange, including at most one digest
// authenticated retry after a 401 Unauthorized response.
//
// A second 401 is not retried: the Result has StatusOK and carries the
// second response, and callers must check Result.StatusCode.
func (s *Session) Execute(ctx context.Context, method, uri, body string) *result.Result {
	s.httpMu.Lock()
	defer s.httpMu.Unlock()
	s.requests++
	return s.engine.Execute(ctx, method, uri, body)
}

// Cookies returns a copy of the session's cookie store
func (s *Session) Cookies() map[string]string {
	s.httpMu.Lock()
	defer s.httpMu.Unlock()
	return s.jar.Snapshot()
}

// State returns a snapshot of the session counters
func (s *Session) State() State {
	s.httpMu.Lock()
	st := State{Requests: s.requests, AuthRetries: s.engine.AuthRetries}
	s.httpMu.Unlock()
	s.wsMu.Lock()
	st.Frames = s.frames
	s.wsMu.Unlock()
	st.Resets = s.conn.Resets()
	return st
}

// WebSocketConnect opens the WebSocket channel on uri, offering the
// subprotocol protocol and the current cookies.
//
// uri may be a path relative to the session host or an absolute ws://,
// wss://, http:// or https:// URL. An already open channel is shut down
// first. On failure no handle is kept and the connection is reset; the
// cookie store is left untouched.
func (s *Session) WebSocketConnect(ctx context.Context, uri, protocol string) *result.Result {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	res := result.NewHTTP(http.MethodGet, uri, "")
	if s.ws != nil {
		if err := s.ws.Shutdown(); err != nil {
			s.log.Debug("websocket shutdown failed", "uri", uri, "error", err)
		}
		s.ws = nil
	}

	target, err := s.webSocketURL(uri)
	if err != nil {
		res.Fail(result.StatusWebSocketError, err)
		return res
	}

	s.httpMu.Lock()
	cookies := s.jar.Header()
	s.httpMu.Unlock()

	w, err := transport.DialWebSocket(ctx, target, transport.DialOptions{
		Protocol:       protocol,
		Cookie:         cookies,
		ReceiveTimeout: s.Config.ReceiveTimeout,
		MaxFrameSize:   s.Config.MaxFrameSize,
		TLSConfig:      s.Config.TLSConfig,
	}, res)
	if err != nil {
		res.Fail(transport.ClassifyWebSocket(err), err)
		s.log.Warn("websocket connect failed", "uri", uri, "status", res.Status, "error", err)
		s.conn.Reset()
		return res
	}

	s.ws = w
	res.Status = result.StatusOK
	s.log.Info("websocket connected", "uri", uri, "protocol", w.Protocol())
	return res
}

// WebSocketReceiveFrame waits for the next application frame.
//
// PING frames are answered and never returned. A CLOSE frame is
// returned with an empty payload and releases the channel, after which
// calls return StatusWebSocketNotAllocated until the next successful
// WebSocketConnect. Any failure, including cancellation of ctx, releases
// the channel and resets the connection.
func (s *Session) WebSocketReceiveFrame(ctx context.Context) *result.Result {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	res := result.NewWebSocket()
	if s.ws == nil {
		res.Status = result.StatusWebSocketNotAllocated
		return res
	}

	hdr, payload, err := s.ws.ReceiveFrame(ctx)
	if err != nil {
		res.Fail(transport.ClassifyWebSocket(err), err)
		s.log.Warn("websocket receive failed", "status", res.Status, "error", err)
		s.ws.Close()
		s.ws = nil
		s.conn.Reset()
		return res
	}

	op := result.Opcode(hdr.OpCode)
	if op == result.OpClose {
		s.ws = nil
		s.log.Info("websocket closed by peer")
	}
	s.frames++
	res.SetFrame(hdr.Fin, op, payload)
	res.Status = result.StatusOK
	return res
}

// WebSocketShutdown performs an orderly close of the WebSocket channel
// and releases it. Returns StatusWebSocketNotAllocated if none is open.
func (s *Session) WebSocketShutdown() *result.Result {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	res := result.NewWebSocket()
	if s.ws == nil {
		res.Status = result.StatusWebSocketNotAllocated
		return res
	}
	err := s.ws.Shutdown()
	s.ws = nil
	if err != nil {
		res.Fail(transport.ClassifyWebSocket(err), err)
		return res
	}
	res.Status = result.StatusOK
	res.SetFrame(true, result.OpClose, nil)
	return res
}

// WebSocketOpen returns true if the WebSocket channel is allocated
func (s *Session) WebSocketOpen() bool {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return s.ws != nil
}

// Close shuts down the WebSocket channel and closes idle HTTP connections
func (s *Session) Close() error {
	s.WebSocketShutdown()
	s.conn.Close()
	return nil
}

// webSocketURL resolves uri against the session host and maps the
// http(s) scheme to ws(s)
func (s *Session) webSocketURL(uri string) (string, error) {
	ref, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(err, "invalid uri %q", uri)
	}
	u := s.base.ResolveReference(ref)
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Errorf("unsupported websocket scheme %q", u.Scheme)
	}
	return u.String(), nil
}
