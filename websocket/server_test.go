package websocket

import (
	"testing"
	"time"
)

// TestEnumerateReachesAllConnectedClients dials three clients against one
// server and checks Enumerate's snapshot sees all of them.
func TestEnumerateReachesAllConnectedClients(t *testing.T) {
	srv := startTestServer(t, ServerOptions{})

	const n = 3
	clients := make([]*Client, n)
	for i := range clients {
		c, err := dialTestClient(t, srv, DialOptions{})
		if err != nil {
			t.Fatalf("Dial %d: %v", i, err)
		}
		clients[i] = c
		defer c.Disconnect()
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		count := 0
		srv.Enumerate(func(cs []*Client) { count = len(cs) })
		if count == n {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Enumerate saw %d clients, want %d", count, n)
		}
		time.Sleep(time.Millisecond)
	}
}

// TestReaperRemovesDisconnectedClients confirms a disconnected client
// eventually leaves the registry once unreferenced, without Enumerate
// ever observing it mid-removal.
func TestReaperRemovesDisconnectedClients(t *testing.T) {
	srv := startTestServer(t, ServerOptions{})

	client, err := dialTestClient(t, srv, DialOptions{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		count := 0
		srv.Enumerate(func(cs []*Client) { count = len(cs) })
		if count == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server never registered the dialed client")
		}
		time.Sleep(time.Millisecond)
	}

	client.Disconnect()

	deadline = time.Now().Add(2 * time.Second)
	for {
		count := 0
		srv.Enumerate(func(cs []*Client) { count = len(cs) })
		if count == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("reaper never removed the disconnected client")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestServerDisconnectSpecificClient exercises Server.Disconnect on a
// single client obtained from Enumerate, leaving others untouched.
func TestServerDisconnectSpecificClient(t *testing.T) {
	srv := startTestServer(t, ServerOptions{})

	a, err := dialTestClient(t, srv, DialOptions{})
	if err != nil {
		t.Fatalf("Dial a: %v", err)
	}
	defer a.Disconnect()
	b, err := dialTestClient(t, srv, DialOptions{})
	if err != nil {
		t.Fatalf("Dial b: %v", err)
	}
	defer b.Disconnect()

	deadline := time.Now().Add(2 * time.Second)
	var target *Client
	for {
		srv.Enumerate(func(cs []*Client) {
			if len(cs) == 2 {
				target = cs[0]
			}
		})
		if target != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server never registered both clients")
		}
		time.Sleep(time.Millisecond)
	}

	if !srv.Disconnect(target) {
		t.Fatal("expected Disconnect to perform the transition")
	}
	if target.IsConnected() {
		t.Fatal("target should be disconnected")
	}
}

// TestStopDisconnectsEveryClient confirms Stop tears down all live
// clients and is idempotent.
func TestStopDisconnectsEveryClient(t *testing.T) {
	srv := NewServer(ServerOptions{})
	if err := srv.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client, err := dialTestClient(t, srv, DialOptions{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if client.IsConnected() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never connected")
		}
		time.Sleep(time.Millisecond)
	}

	srv.Stop()
	srv.Stop() // idempotent

	deadline = time.Now().Add(2 * time.Second)
	for {
		if !client.IsConnected() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("Stop never disconnected the client")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestServerNextClientIDSkipsZeroOnRollback(t *testing.T) {
	srv := NewServer(ServerOptions{})
	srv.nextID = 0

	id := srv.nextClientID()
	if id != 1 {
		t.Fatalf("first id = %d, want 1", id)
	}

	// rollbackClientID undoes the increment; since that would otherwise
	// leave nextID at zero, it wraps to the max uint64 instead, so the
	// next call's increment lands back on zero and is itself skipped.
	srv.rollbackClientID(id)
	if srv.nextID != ^uint64(0) {
		t.Fatalf("nextID after rollback = %d, want max uint64", srv.nextID)
	}

	id2 := srv.nextClientID()
	if id2 != 1 {
		t.Fatalf("id after rollback+reassign = %d, want 1", id2)
	}
}
