package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"
)

// Conn is the session's HTTP transport handle.
//
// The underlying connection is torn down and recreated by Reset, so
// the next exchange dials a fresh TCP (and TLS) connection. Conn is
// safe for concurrent use.
type Conn struct {
	timeout   time.Duration
	tlsConfig *tls.Config

	mu     sync.Mutex
	client *http.Client
	resets int
}

// NewConn returns a Conn whose requests time out after timeout
// (zero means no client timeout)
func NewConn(timeout time.Duration, tlsConfig *tls.Config) *Conn {
	c := &Conn{timeout: timeout, tlsConfig: tlsConfig}
	c.client = c.newClient()
	return c
}

func (c *Conn) newClient() *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:     c.tlsConfig,
		MaxIdleConns:        1,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     90 * time.Second,
		// one logical HTTP/1.1 connection per session
		ForceAttemptHTTP2: false,
		TLSNextProto:      map[string]func(string, *tls.Conn) http.RoundTripper{},
	}
	return &http.Client{
		Transport: tr,
		Timeout:   c.timeout,
		// one request, one response
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

// Do sends req using the current connection
func (c *Conn) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	return client.Do(req)
}

// Reset tears down the current connection and replaces it with a new one
func (c *Conn) Reset() {
	c.mu.Lock()
	old := c.client
	c.client = c.newClient()
	c.resets++
	c.mu.Unlock()
	old.CloseIdleConnections()
}

// Resets returns the number of times the connection has been reset
func (c *Conn) Resets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

// Close closes any idle connections
func (c *Conn) Close() {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	client.CloseIdleConnections()
}
