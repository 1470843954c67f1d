package websocket

import "errors"

// Error kinds returned by this package (RFC 6455 Section 7.4.1 gives the
// protocol-level meaning; the rest are implementation-level).

var (
	// ErrBindFailed indicates the server could not bind its listen
	// address.
	ErrBindFailed = errors.New("websocket: bind failed")

	// ErrListenFailed indicates the server's listener could not be
	// started after a successful bind.
	ErrListenFailed = errors.New("websocket: listen failed")

	// ErrHandshakeRejected indicates a client's handshake did not
	// complete; the socket is closed and no Client is registered.
	ErrHandshakeRejected = errors.New("websocket: handshake rejected")

	// ErrProtocolError indicates a frame violates RFC 6455 Section
	// 5.2 framing rules (reserved opcode).
	ErrProtocolError = errors.New("websocket: protocol error")

	// ErrPeerClosed indicates the remote end closed the TCP
	// connection or sent a Close frame.
	ErrPeerClosed = errors.New("websocket: peer closed connection")

	// ErrSocketError indicates an unexpected I/O error on the
	// underlying connection.
	ErrSocketError = errors.New("websocket: socket error")

	// ErrShortWrite indicates fewer bytes were written to the socket
	// than intended.
	ErrShortWrite = errors.New("websocket: short write")

	// ErrClosed indicates an operation was attempted on a Client that
	// is no longer connected.
	ErrClosed = errors.New("websocket: client not connected")

	// ErrServerNotRunning names the state of a Server that has not
	// been started. No function in this package returns it; Enumerate
	// and Disconnect do not check whether the server is running.
	ErrServerNotRunning = errors.New("websocket: server not running")
)
