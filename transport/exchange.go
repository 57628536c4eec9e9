package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/andaru/rws/cookie"
	"github.com/andaru/rws/result"
	"github.com/icholy/digest"
	"github.com/pkg/errors"
)

// ContentTypeForm is the content type of request bodies
const ContentTypeForm = "application/x-www-form-urlencoded"

// Credentials are the digest authentication credentials
type Credentials struct {
	Username string
	Password string
}

// Engine performs HTTP exchanges against one server, answering a
// 401 Unauthorized response with exactly one digest authenticated retry.
//
// An Engine is not safe for concurrent use; the session serializes
// exchanges with its HTTP lock.
type Engine struct {
	Base        *url.URL
	Conn        *Conn
	Jar         *cookie.Jar
	Credentials Credentials
	Logger      *slog.Logger

	// AuthRetries counts digest authenticated retries performed
	AuthRetries int
}

// Execute performs one HTTP exchange of method on uri (relative to the
// engine's base URL) with the given body.
//
// Any response, including 4xx and 5xx after the single authentication
// retry, yields StatusOK; callers inspect the response status code.
// A transport failure clears the cookie store and resets the connection.
func (e *Engine) Execute(ctx context.Context, method, uri, body string) *result.Result {
	res := result.NewHTTP(method, uri, body)

	resp, err := e.sendAndReceive(ctx, res, method, uri, body, "")
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		err = e.authenticate(ctx, res, resp, method, uri, body)
	}
	if err != nil {
		res.Fail(Classify(err), err)
		e.logger().Warn("http exchange failed", "method", method, "uri", uri, "status", res.Status, "error", err)
		e.Jar.Clear()
		e.Conn.Reset()
		return res
	}

	res.Status = result.StatusOK
	e.logger().Debug("http exchange", "method", method, "uri", uri, "code", res.StatusCode())
	return res
}

// NewRequest builds a request for method on uri carrying the current
// cookies, a content length and, for POST or any body, a form content type
func (e *Engine) NewRequest(ctx context.Context, method, uri, body string) (*http.Request, error) {
	target, err := e.resolve(uri)
	if err != nil {
		return nil, err
	}
	var rd io.Reader = http.NoBody
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.ContentLength = int64(len(body))
	if method == http.MethodPost || body != "" {
		req.Header.Set("Content-Type", ContentTypeForm)
	}
	if cookies := e.Jar.Header(); cookies != "" {
		req.Header.Set("Cookie", cookies)
	}
	return req, nil
}

func (e *Engine) resolve(uri string) (string, error) {
	ref, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(err, "invalid uri %q", uri)
	}
	if e.Base == nil {
		return ref.String(), nil
	}
	return e.Base.ResolveReference(ref).String(), nil
}

// sendAndReceive sends one request and records the full response in res.
// The returned response body has already been consumed.
func (e *Engine) sendAndReceive(ctx context.Context, res *result.Result, method, uri, body, authorization string) (*http.Response, error) {
	req, err := e.NewRequest(ctx, method, uri, body)
	if err != nil {
		return nil, err
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := e.Conn.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}
	res.SetResponse(resp.StatusCode, resp.Header, string(content))
	return resp, nil
}

// authenticate clears the cookie store, answers the digest challenge in
// resp by re-issuing the request once and stores the cookies set by the
// authenticated response. A second 401 is returned as is.
func (e *Engine) authenticate(ctx context.Context, res *result.Result, resp *http.Response, method, uri, body string) error {
	e.Jar.Clear()

	chal, err := findChallenge(resp.Header)
	if err != nil {
		return err
	}
	cred, err := digest.Digest(chal, digest.Options{
		Method:   method,
		URI:      resp.Request.URL.RequestURI(),
		Username: e.Credentials.Username,
		Password: e.Credentials.Password,
		Count:    1,
	})
	if err != nil {
		return errors.Wrap(err, "digest credentials")
	}

	e.AuthRetries++
	resp, err = e.sendAndReceive(ctx, res, method, uri, body, cred.String())
	if err != nil {
		return err
	}
	for _, sc := range resp.Header.Values("Set-Cookie") {
		e.Jar.Extract(sc)
	}
	return nil
}

func findChallenge(h http.Header) (*digest.Challenge, error) {
	for _, v := range h.Values("Www-Authenticate") {
		if len(v) >= 6 && strings.EqualFold(v[:6], "digest") {
			chal, err := digest.ParseChallenge(v)
			if err != nil {
				return nil, errors.Wrap(err, "digest challenge")
			}
			return chal, nil
		}
	}
	return nil, errors.New("no digest challenge in 401 response")
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
