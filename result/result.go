// Package result describes the outcome of one session exchange: either an
// HTTP request/response cycle or the receipt of one WebSocket frame.
package result

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Status is the general outcome of an exchange
type Status int

const (
	// StatusUnknown is the zero value; no exchange has completed
	StatusUnknown Status = iota
	// StatusOK indicates the exchange completed at the transport level.
	// HTTP callers must still inspect the response status code.
	StatusOK
	// StatusWebSocketNotAllocated indicates a frame was requested
	// while no WebSocket channel was open
	StatusWebSocketNotAllocated
	// StatusTimeout indicates the transport timed out
	StatusTimeout
	// StatusNetworkError indicates a lower level network fault
	StatusNetworkError
	// StatusWebSocketError indicates a WebSocket protocol fault
	StatusWebSocketError
)

var statusNames = map[Status]string{
	StatusUnknown:               "UNKNOWN",
	StatusOK:                    "OK",
	StatusWebSocketNotAllocated: "WEBSOCKET_NOT_ALLOCATED",
	StatusTimeout:               "TIMEOUT",
	StatusNetworkError:          "NETWORK_ERROR",
	StatusWebSocketError:        "WEBSOCKET_ERROR",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	b = bytes.TrimSpace(b)
	for status, name := range statusNames {
		if name == string(b) {
			*s = status
			return nil
		}
	}
	return errors.New("unknown value")
}

// Opcode is a WebSocket frame opcode (RFC6455 s5.2)
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xa
)

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "CONT"
	case OpText:
		return "TEXT"
	case OpBinary:
		return "BINARY"
	case OpClose:
		return "CLOSE"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	default:
		return "UNDEFINED"
	}
}

// Request is the request half of an HTTP exchange
type Request struct {
	Method string `json:"method"`
	URI    string `json:"uri"`
	Body   string `json:"body,omitempty"`
}

// Response is the response half of an HTTP exchange.
//
// Header holds every response header flattened to one "name=value"
// line per value, sorted by name.
type Response struct {
	Status int    `json:"status"`
	Header string `json:"header,omitempty"`
	Body   string `json:"body,omitempty"`
}

// HTTPInfo records one HTTP exchange
type HTTPInfo struct {
	Request  Request  `json:"request"`
	Response Response `json:"response"`
}

// WebSocketInfo records one received WebSocket frame
type WebSocketInfo struct {
	Fin     bool   `json:"fin"`
	Opcode  Opcode `json:"opcode"`
	Payload []byte `json:"payload,omitempty"`
}

// Result describes one completed session operation.
//
// Exactly one of HTTP or WebSocket is non-nil, depending on the kind
// of exchange which produced the Result. Error is only set when Status
// is not StatusOK.
type Result struct {
	Status    Status         `json:"status"`
	Error     string         `json:"error,omitempty"`
	HTTP      *HTTPInfo      `json:"http,omitempty"`
	WebSocket *WebSocketInfo `json:"websocket,omitempty"`
}

// NewHTTP returns a Result for an HTTP exchange of method on uri
func NewHTTP(method, uri, body string) *Result {
	return &Result{HTTP: &HTTPInfo{Request: Request{Method: method, URI: uri, Body: body}}}
}

// NewWebSocket returns a Result for a WebSocket frame exchange
func NewWebSocket() *Result { return &Result{WebSocket: &WebSocketInfo{}} }

// OK returns true if the exchange completed at the transport level
func (r *Result) OK() bool { return r.Status == StatusOK }

// Fail sets the Result's status and diagnostic message.
// Any response information gathered before the failure is discarded.
func (r *Result) Fail(status Status, err error) {
	r.Status = status
	if err != nil {
		r.Error = err.Error()
	}
	if r.HTTP != nil {
		r.HTTP.Response = Response{}
	}
	if r.WebSocket != nil {
		*r.WebSocket = WebSocketInfo{}
	}
}

// SetResponse records the HTTP response status, headers and body
func (r *Result) SetResponse(status int, header http.Header, body string) {
	if r.HTTP == nil {
		r.HTTP = &HTTPInfo{}
	}
	r.HTTP.Response = Response{Status: status, Header: FlattenHeader(header), Body: body}
}

// SetFrame records a received WebSocket frame
func (r *Result) SetFrame(fin bool, opcode Opcode, payload []byte) {
	if r.WebSocket == nil {
		r.WebSocket = &WebSocketInfo{}
	}
	*r.WebSocket = WebSocketInfo{Fin: fin, Opcode: opcode, Payload: payload}
}

// StatusCode returns the HTTP response status code, or 0 if the
// Result carries no HTTP response
func (r *Result) StatusCode() int {
	if r.HTTP == nil {
		return 0
	}
	return r.HTTP.Response.Status
}

// String renders the Result on a single line, without response content
func (r *Result) String() string { return r.Format(false, 0) }

// Format renders the Result for diagnostics.
//
// With indent 0 the fields are separated by " | " on one line, otherwise
// each field starts a new line indented by indent spaces. The HTTP
// response body is only included when verbose is set.
func (r *Result) Format(verbose bool, indent int) string {
	sep := " | "
	if indent > 0 {
		sep = "\n" + strings.Repeat(" ", indent)
	}

	var b strings.Builder
	b.WriteString("General status: ")
	b.WriteString(r.Status.String())

	switch {
	case r.HTTP != nil && r.HTTP.Request.Method != "":
		b.WriteString(sep + "HTTP Request: " + r.HTTP.Request.Method + " " + r.HTTP.Request.URI)
		if r.OK() {
			status := r.HTTP.Response.Status
			fmt.Fprintf(&b, "%sHTTP Response: %d - %s", sep, status, http.StatusText(status))
			if verbose {
				b.WriteString(sep + "HTTP Response Content: " + r.HTTP.Response.Body)
			}
		}
	case r.OK() && r.WebSocket != nil:
		b.WriteString(sep + "WebSocket frame: " + r.WebSocket.Opcode.String())
	}
	if r.Error != "" {
		b.WriteString(sep + "Error: " + r.Error)
	}
	return b.String()
}
