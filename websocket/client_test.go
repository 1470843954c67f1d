package websocket

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"
)

// loopbackAddr rewrites a listener's bound address (typically
// "0.0.0.0:PORT") to a concrete loopback address dialable from this
// process.
func loopbackAddr(t *testing.T, addr net.Addr) string {
	t.Helper()
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected listener address type %T", addr)
	}
	return fmt.Sprintf("127.0.0.1:%d", tcpAddr.Port)
}

// startTestServer starts a Server on an ephemeral loopback port and
// returns it along with a cleanup func.
func startTestServer(t *testing.T, opts ServerOptions) *Server {
	t.Helper()
	srv := NewServer(opts)
	if err := srv.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

// dialTestClient dials srv with a 2-second bound on connect+handshake,
// the test-suite default for every case that doesn't need its own
// context.
func dialTestClient(t *testing.T, srv *Server, opts DialOptions) (*Client, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return Dial(ctx, loopbackAddr(t, srv.Addr()), opts)
}

// TestDialEchoRoundTrip reproduces scenario 7: a dialed Client completes
// the opening handshake against a real Server, and a pushed Text message
// is echoed back byte-for-byte, plus the trailing NUL the read path
// appends to every Text delivery on each side (two in all).
func TestDialEchoRoundTrip(t *testing.T) {
	srv := startTestServer(t, ServerOptions{
		OnMessage: func(c *Client, op Opcode, data []byte) {
			_ = c.PushOp(data, op)
		},
	})

	var received []byte
	done := make(chan struct{})

	client, err := dialTestClient(t, srv, DialOptions{
		OnMessage: func(c *Client, op Opcode, data []byte) {
			received = data
			close(done)
		},
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Disconnect()

	if err := client.PushText("Hello"); err != nil {
		t.Fatalf("PushText: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}

	// The server's OnMessage re-pushes the payload it received (which
	// already carries the trailing NUL the read path appends to every
	// Text delivery); the client's own read path appends a second one to
	// that echoed frame, so the round trip carries two.
	want := []byte("Hello\x00\x00")
	if string(received) != string(want) {
		t.Fatalf("received = %q, want %q", received, want)
	}
}

// TestServerPushPopWithoutOnMessage exercises the Peek/Pop polling API
// (no OnMessage hook registered server-side) alongside PushOp from a
// dialed client.
func TestServerPushPopWithoutOnMessage(t *testing.T) {
	var mu sync.Mutex
	var serverSideClient *Client
	connected := make(chan struct{})

	srv := startTestServer(t, ServerOptions{
		OnConnect: func(c *Client) {
			mu.Lock()
			serverSideClient = c
			mu.Unlock()
			close(connected)
		},
	})

	client, err := dialTestClient(t, srv, DialOptions{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Disconnect()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed the connection")
	}

	if err := client.Push([]byte("binary-payload")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	mu.Lock()
	sc := serverSideClient
	mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if length, ok := sc.Peek(); ok {
			dst := make([]byte, length)
			n := sc.Pop(dst)
			if string(dst[:n]) != "binary-payload" {
				t.Fatalf("popped = %q, want %q", dst[:n], "binary-payload")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for message to arrive")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestDisconnectNotifiesOnDisconnect reproduces scenario 6: only the
// first Disconnect call on a dialed client performs the transition, its
// IsConnected flips to false, and the server fires OnDisconnect for its
// side of the connection.
func TestDisconnectNotifiesOnDisconnect(t *testing.T) {
	fired := make(chan struct{}, 2)

	srv := startTestServer(t, ServerOptions{
		OnDisconnect: func(c *Client) { fired <- struct{}{} },
	})

	client, err := dialTestClient(t, srv, DialOptions{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if !client.IsConnected() {
		t.Fatal("expected client to be connected right after Dial")
	}

	if !client.Disconnect() {
		t.Fatal("expected first Disconnect call to perform the transition")
	}
	if client.Disconnect() {
		t.Fatal("expected second Disconnect call to be a no-op")
	}
	if client.IsConnected() {
		t.Fatal("expected IsConnected() == false after Disconnect")
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed the disconnect")
	}
}

// TestCloseFrameTriggersServerTeardown reproduces scenario 6 literally:
// the client sends a Close frame (rather than dropping the TCP
// connection), and the server's reader observes it, tears the
// server-side Client down, and fires OnDisconnect.
func TestCloseFrameTriggersServerTeardown(t *testing.T) {
	var mu sync.Mutex
	var serverSideClient *Client
	disconnected := make(chan struct{})

	srv := startTestServer(t, ServerOptions{
		OnConnect: func(c *Client) {
			mu.Lock()
			serverSideClient = c
			mu.Unlock()
		},
		OnDisconnect: func(c *Client) { close(disconnected) },
	})

	client, err := dialTestClient(t, srv, DialOptions{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Disconnect()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		sc := serverSideClient
		mu.Unlock()
		if sc != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server never observed the connection")
		}
		time.Sleep(time.Millisecond)
	}

	if err := client.PushOp(nil, OpClose); err != nil {
		t.Fatalf("PushOp(Close): %v", err)
	}

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("server never tore down the client after receiving a Close frame")
	}

	mu.Lock()
	sc := serverSideClient
	mu.Unlock()
	if sc.IsConnected() {
		t.Fatal("server-side client should be disconnected after a Close frame")
	}
}

// TestPingIsAnsweredWithPong reproduces scenario 3 end-to-end: a Ping
// pushed by the dialed client receives an automatic Pong from the
// server, observed here as a received message never surfacing through
// OnMessage (Pong carries no application payload delivery).
func TestPingIsAnsweredWithPong(t *testing.T) {
	srv := startTestServer(t, ServerOptions{})

	client, err := dialTestClient(t, srv, DialOptions{
		OnMessage: func(c *Client, op Opcode, data []byte) {
			t.Errorf("unexpected application message delivered for opcode %v", op)
		},
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Disconnect()

	if err := client.PushOp([]byte("ping-data"), OpPing); err != nil {
		t.Fatalf("PushOp(Ping): %v", err)
	}

	// The Pong is consumed internally by the read path (control frames are
	// never delivered via OnMessage/Peek); give the round trip time to
	// happen and confirm no protocol error tore the connection down.
	time.Sleep(200 * time.Millisecond)
	if !client.IsConnected() {
		t.Fatal("client was disconnected by what should have been a harmless ping/pong exchange")
	}
}
