package transport

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/andaru/rws/result"
	"github.com/gobwas/ws"
)

// Classify maps an HTTP exchange error to a result status.
// Timeouts map to StatusTimeout, anything else to StatusNetworkError.
func Classify(err error) result.Status {
	if isTimeout(err) {
		return result.StatusTimeout
	}
	return result.StatusNetworkError
}

// ClassifyWebSocket maps a WebSocket handshake or framing error to a
// result status. Network level faults map to StatusNetworkError, while
// protocol violations and handshake rejections map to StatusWebSocketError.
func ClassifyWebSocket(err error) result.Status {
	var (
		pe ws.ProtocolError
		ne net.Error
	)
	switch {
	case isTimeout(err):
		return result.StatusTimeout
	case errors.As(err, &pe):
		return result.StatusWebSocketError
	case errors.As(err, &ne), isConnectionError(err):
		return result.StatusNetworkError
	default:
		return result.StatusWebSocketError
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isConnectionError(err error) bool {
	var oe *net.OpError
	return errors.As(err, &oe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.Canceled)
}
