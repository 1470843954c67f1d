package websocket

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/coregx/tcpws/internal/metrics"
	"github.com/rs/zerolog"
)

// DialOptions configures an outbound connection established by Dial.
type DialOptions struct {
	Logger  zerolog.Logger
	Metrics *metrics.Collector

	ReadBufferSize  int
	WriteBufferSize int

	OnMessage    OnMessageFunc
	OnDisconnect OnDisconnectFunc
}

// Dial connects to a WebSocket server at address ("host:port"),
// performs the client side of the RFC 6455 opening handshake, and
// returns a running Client that masks every outgoing frame as the
// protocol requires of clients. The returned Client has no owning
// Server: Disconnect closes it directly without touching any registry.
//
// ctx bounds both the TCP connect and the handshake, the same way
// UpgradeWithContext bounds an SSE upgrade: pass context.Background()
// for no deadline, or a context.WithTimeout/WithCancel to make the dial
// cancellable.
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	client, err := Dial(ctx, "example.com:8080", websocket.DialOptions{})
//
// This restores the source implementation's outbound connect capability
// (AsyncTcpClient/WebSocketClient constructed from an address and port)
// that a server-only reading of the protocol would otherwise drop.
func Dial(ctx context.Context, address string, opts DialOptions) (*Client, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSocketError, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// The handshake below does blocking reads/writes with no context
	// awareness of its own; close the conn out from under it if ctx is
	// canceled mid-handshake, the way watchContext does for an SSE Conn.
	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-handshakeDone:
		}
	}()

	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}

	handshakeErr := clientHandshake(conn, host)
	close(handshakeDone)
	if handshakeErr != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrSocketError, ctx.Err())
		}
		return nil, handshakeErr
	}

	if _, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(time.Time{})
	}

	c := newClient(conn, nil, clientConfig{
		maskOutgoing: true,
		readBufSize:  opts.ReadBufferSize,
		writeBufSize: opts.WriteBufferSize,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	})
	c.onMessage = opts.OnMessage
	c.onDisconnect = opts.OnDisconnect
	c.start()

	return c, nil
}
