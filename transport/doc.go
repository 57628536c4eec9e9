/*
Package transport carries RWS exchanges over the wire.

Conn owns the HTTP client used for every request of a session and can
be reset after a failure. Engine performs one HTTP exchange, answering
a digest challenge with a single authenticated retry and storing the
cookies that response sets. WebSocket is the client end of a
subscription channel: it answers PING frames, replies to CLOSE frames
and returns every other frame to the caller.
*/
package transport
