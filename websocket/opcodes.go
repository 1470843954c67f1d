// Package websocket implements a minimal, embeddable WebSocket
// server/client library operating directly over TCP (RFC 6455), built
// around an asynchronous per-client engine rather than a request/response
// HTTP handler: each accepted or dialed connection gets its own reader
// and writer goroutine, and the application pushes and pops whole
// messages through a small buffered API instead of blocking on a single
// Read/Write pair.
//
// RFC Reference: https://datatracker.ietf.org/doc/html/rfc6455
package websocket

import "github.com/coregx/tcpws/internal/frame"

// Opcode identifies a frame's type (RFC 6455 Section 5.2). It is the
// public alias of the wire-level frame.Opcode: Continuation/Text/Binary
// are data frames, Close/Ping/Pong are control frames.
type Opcode = frame.Opcode

// Opcode values used on the wire and by Client.Push/Client.Peek.
const (
	OpContinuation = frame.Continuation
	OpText         = frame.Text
	OpBinary       = frame.Binary
	OpClose        = frame.Close
	OpPing         = frame.Ping
	OpPong         = frame.Pong
)
