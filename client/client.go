// Package client implements the RWS resource interface on top of a
// session: IO signals, RAPID symbols and execution, controller state,
// the file service, users and subscriptions.
package client

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/andaru/rws/result"
	"github.com/antchfx/xmlquery"
	"github.com/pkg/errors"
)

// DefaultLogSize is the number of results kept for LogText
const DefaultLogSize = 20

// Communicator is the session layer used by a Client.
// *session.Session implements Communicator.
type Communicator interface {
	Execute(ctx context.Context, method, uri, body string) *result.Result
	WebSocketConnect(ctx context.Context, uri, protocol string) *result.Result
	WebSocketReceiveFrame(ctx context.Context) *result.Result
	WebSocketShutdown() *result.Result
}

// ResultError reports a failed exchange or an unexpected HTTP status
type ResultError struct {
	Result *result.Result
}

func (e *ResultError) Error() string { return "rws: " + e.Result.String() }

// Client is an RWS resource interface
type Client struct {
	comm    Communicator
	logSize int

	mu           sync.Mutex
	log          []*result.Result
	subscription string
}

// Option is a Client option function
type Option func(*Client)

// WithLogSize sets the number of results kept for LogText
func WithLogSize(n int) Option { return func(c *Client) { c.logSize = n } }

// New returns a Client using comm
func New(comm Communicator, opts ...Option) *Client {
	c := &Client{comm: comm, logSize: DefaultLogSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// record adds res to the result log, dropping the oldest entries
func (c *Client) record(res *result.Result) {
	if c.logSize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, res)
	if n := len(c.log) - c.logSize; n > 0 {
		c.log = append(c.log[:0], c.log[n:]...)
	}
}

// LogText renders the logged results, newest first
func (c *Client) LogText(verbose bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	for i := len(c.log) - 1; i >= 0; i-- {
		b.WriteString(strings.Repeat("=", 10))
		b.WriteByte('\n')
		b.WriteString(c.log[i].Format(verbose, 2))
		b.WriteByte('\n')
	}
	return b.String()
}

// execute performs one exchange, which must complete with one of the
// accepted HTTP status codes (any 2xx status if none are given)
func (c *Client) execute(ctx context.Context, method, uri, body string, accept ...int) (*result.Result, error) {
	res := c.comm.Execute(ctx, method, uri, body)
	c.record(res)
	if !res.OK() || !accepted(res.StatusCode(), accept) {
		return res, &ResultError{Result: res}
	}
	return res, nil
}

func accepted(code int, accept []int) bool {
	if len(accept) == 0 {
		return code >= 200 && code < 300
	}
	for _, a := range accept {
		if code == a {
			return true
		}
	}
	return false
}

func (c *Client) get(ctx context.Context, uri string) (*result.Result, error) {
	return c.execute(ctx, http.MethodGet, uri, "", http.StatusOK)
}

func (c *Client) post(ctx context.Context, uri, body string) error {
	_, err := c.execute(ctx, http.MethodPost, uri, body)
	return err
}

// document fetches uri and parses the response body
func (c *Client) document(ctx context.Context, uri string) (*xmlquery.Node, error) {
	res, err := c.get(ctx, uri)
	if err != nil {
		return nil, err
	}
	doc, err := parse(res)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", uri)
	}
	return doc, nil
}
