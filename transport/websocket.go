package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/andaru/rws/result"
	"github.com/gobwas/ws"
	"github.com/pkg/errors"
)

const (
	// DefaultReceiveTimeout bounds the wait for each WebSocket frame
	DefaultReceiveTimeout = 60 * time.Second
	// DefaultMaxFrameSize bounds the payload of a received frame
	DefaultMaxFrameSize = 1 << 20
)

// DialOptions configure a WebSocket handshake
type DialOptions struct {
	// Protocol is the subprotocol offered in Sec-WebSocket-Protocol
	Protocol string
	// Cookie is the Cookie header value sent with the upgrade request
	Cookie string
	// ReceiveTimeout bounds the wait for each frame (DefaultReceiveTimeout if zero)
	ReceiveTimeout time.Duration
	// MaxFrameSize bounds received payloads (DefaultMaxFrameSize if zero)
	MaxFrameSize int64
	// TLSConfig is used for wss:// URLs
	TLSConfig *tls.Config
}

// WebSocket is an open WebSocket handle.
//
// A WebSocket is not safe for concurrent use; the session serializes
// access with its WebSocket lock.
type WebSocket struct {
	conn     net.Conn
	r        io.Reader
	timeout  time.Duration
	maxFrame int64
	protocol string
}

// DialWebSocket performs the WebSocket handshake against urlstr.
//
// The handshake request and the 101 response are recorded in res, which
// the caller marks OK on success.
func DialWebSocket(ctx context.Context, urlstr string, opts DialOptions, res *result.Result) (*WebSocket, error) {
	header := http.Header{}
	if opts.Cookie != "" {
		header.Set("Cookie", opts.Cookie)
	}
	respHeader := http.Header{}
	d := ws.Dialer{
		Header:    ws.HandshakeHeaderHTTP(header),
		TLSConfig: opts.TLSConfig,
		OnHeader: func(key, value []byte) error {
			respHeader.Add(string(key), string(value))
			return nil
		},
	}
	if opts.Protocol != "" {
		d.Protocols = []string{opts.Protocol}
	}
	if deadline, ok := ctx.Deadline(); ok {
		d.Timeout = time.Until(deadline)
	}

	conn, br, hs, err := d.Dial(ctx, urlstr)
	if err != nil {
		return nil, err
	}
	res.SetResponse(http.StatusSwitchingProtocols, respHeader, "")

	w := &WebSocket{
		conn:     conn,
		r:        conn,
		timeout:  opts.ReceiveTimeout,
		maxFrame: opts.MaxFrameSize,
		protocol: hs.Protocol,
	}
	if br != nil {
		// frames sent by the server along with the handshake response
		w.r = &pooledReader{br: br, conn: conn}
	}
	if w.timeout <= 0 {
		w.timeout = DefaultReceiveTimeout
	}
	if w.maxFrame <= 0 {
		w.maxFrame = DefaultMaxFrameSize
	}
	return w, nil
}

// pooledReader drains the handshake reader before reading from the
// connection, returning the reader to the pool once empty.
type pooledReader struct {
	br   *bufio.Reader
	conn net.Conn
}

func (p *pooledReader) Read(b []byte) (int, error) {
	if p.br != nil {
		if p.br.Buffered() > 0 {
			return p.br.Read(b)
		}
		ws.PutReader(p.br)
		p.br = nil
	}
	return p.conn.Read(b)
}

// Protocol returns the subprotocol selected by the server
func (w *WebSocket) Protocol() string { return w.protocol }

// ReceiveFrame waits for the next non-PING frame.
//
// Every PING received is answered with a PONG carrying the same payload
// before waiting again. The payload of a CLOSE frame is discarded, a
// normal closure is sent back and the connection is closed; the caller
// must then release the handle. Cancelling ctx aborts the wait with
// ctx.Err().
func (w *WebSocket) ReceiveFrame(ctx context.Context) (ws.Header, []byte, error) {
	for {
		hdr, payload, err := w.readFrame(ctx)
		if err != nil {
			return hdr, nil, err
		}
		switch hdr.OpCode {
		case ws.OpPing:
			if err := w.writeFrame(ws.NewPongFrame(payload)); err != nil {
				return hdr, nil, err
			}
		case ws.OpClose:
			w.Shutdown()
			return hdr, nil, nil
		default:
			return hdr, payload, nil
		}
	}
}

// readFrame reads one frame, giving up at the receive timeout, the
// context deadline or the context's cancellation, whichever comes first
func (w *WebSocket) readFrame(ctx context.Context) (ws.Header, []byte, error) {
	if err := ctx.Err(); err != nil {
		return ws.Header{}, nil, err
	}
	deadline := time.Now().Add(w.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := w.conn.SetReadDeadline(deadline); err != nil {
		return ws.Header{}, nil, err
	}
	stop := context.AfterFunc(ctx, func() { w.conn.SetReadDeadline(time.Now()) })
	defer stop()

	hdr, payload, err := w.read()
	if err != nil && ctx.Err() != nil {
		return hdr, nil, ctx.Err()
	}
	return hdr, payload, err
}

func (w *WebSocket) read() (ws.Header, []byte, error) {
	hdr, err := ws.ReadHeader(w.r)
	if err != nil {
		return hdr, nil, err
	}
	if hdr.Length > w.maxFrame {
		return hdr, nil, ws.ProtocolError("frame payload too large")
	}
	payload := make([]byte, int(hdr.Length))
	if _, err := io.ReadFull(w.r, payload); err != nil {
		return hdr, nil, err
	}
	if hdr.Masked {
		ws.Cipher(payload, hdr.Mask, 0)
	}
	return hdr, payload, nil
}

// writeFrame masks and writes f, as required of client frames
func (w *WebSocket) writeFrame(f ws.Frame) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return err
	}
	return ws.WriteFrame(w.conn, ws.MaskFrameInPlace(f))
}

// Shutdown sends a normal closure CLOSE frame and closes the connection
func (w *WebSocket) Shutdown() error {
	return w.shutdown(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
}

// Close closes the connection without a closing handshake
func (w *WebSocket) Close() error { return w.conn.Close() }

func (w *WebSocket) shutdown(f ws.Frame) error {
	werr := w.writeFrame(f)
	cerr := w.conn.Close()
	if werr != nil {
		return errors.Wrap(werr, "send close frame")
	}
	return cerr
}
