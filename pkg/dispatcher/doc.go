// Package dispatcher implements the Request Dispatcher: it decrypts and
// parses inbound direct messages into spawn, topup or status requests,
// routes each to its handler, and sends a typed response or error back
// to the requester.
package dispatcher
