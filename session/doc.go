/*
Package session offers an RWS client Session implementation.

Session execution overview

Sessions are created using the New function, providing a Config
naming the server host and the digest authentication credentials.
A Session owns two handles: the HTTP transport connection, used
for every request/response exchange, and an optional WebSocket
handle, allocated by WebSocketConnect for the subscription channel.

HTTP exchanges

Execute (and the Get, Post, Put and Delete shortcuts) perform one
request/response cycle carrying the session cookies. If the server
answers 401 Unauthorized, the cookie store is cleared and the request
is re-issued once with digest credentials computed from the
WWW-Authenticate challenge; the cookies set by that response replace
the store. A second 401 is final and is returned with StatusOK, so
callers check the response status code for application failures.

A timeout or network failure clears the cookie store and resets the
HTTP connection, so the next call dials afresh and re-authenticates.

WebSocket channel

WebSocketReceiveFrame blocks until an application frame arrives
(or the receive timeout fires). PING frames are answered with a PONG
carrying the same payload and are never returned. A CLOSE frame is
returned without its payload and releases the channel; subsequent
calls return StatusWebSocketNotAllocated until WebSocketConnect
succeeds again.

Locking

HTTP exchanges and WebSocket operations are guarded by independent
locks, so one of each may proceed concurrently. No session call
returns an error: every outcome is reported through result.Result.
*/
package session
