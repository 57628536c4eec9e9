/*
Package rws is a set of ABB Robot Web Services (RWS) client libraries.

Doing the heavy lifting of the session layer (the digest authenticated
HTTP request cycle, cookie persistence and the WebSocket subscription
channel), these libraries allow easy development of applications which
monitor and command a robot controller.

Every session operation returns a result.Result describing the exchange
rather than an error, so that callers can log, inspect and retry without
unwrapping transport exceptions.

See the session sub-directory for more information about Session objects,
and the client sub-directory for the resource level interface.
*/
package rws
