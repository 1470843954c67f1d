package websocket

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/coregx/tcpws/internal/metrics"
	"github.com/coregx/tcpws/internal/wsync"
	"github.com/rs/zerolog"
)

// clientRef is the registry's entry for one client: the client pointer
// plus a reservation count held by in-flight Enumerate calls. A client
// is only ever removed once it is both disconnected and unreferenced.
type clientRef struct {
	client   *Client
	refCount int
}

// ServerOptions configures a Server. All fields are optional.
type ServerOptions struct {
	// Logger receives structured lifecycle and error events. The zero
	// value (zerolog.Logger{}) behaves like zerolog.Nop().
	Logger zerolog.Logger

	// Metrics is the prometheus collector the server updates. If nil,
	// a private Collector is created and available via Server.Metrics,
	// but it is never registered with any prometheus.Registry
	// automatically — embedders opt in explicitly.
	Metrics *metrics.Collector

	// ReadBufferSize and WriteBufferSize set each client's initial
	// per-direction buffer size (default 4096); buffers grow as needed.
	ReadBufferSize  int
	WriteBufferSize int

	// OnConnect, OnDisconnect and OnMessage are lifecycle hooks invoked
	// from the accept goroutine (OnConnect) or a client's own reader
	// goroutine (OnMessage) / whichever goroutine disconnects it
	// (OnDisconnect).
	OnConnect    func(*Client)
	OnDisconnect OnDisconnectFunc
	OnMessage    OnMessageFunc
}

// Server accepts TCP connections, runs the WebSocket handshake on each,
// and maintains a ref-counted registry of live clients. Disconnected
// clients are not removed from the registry synchronously: a dedicated
// reaper goroutine drains them once no enumerator still references them,
// so Enumerate can safely hand out a client slice while a peer
// disconnects concurrently.
type Server struct {
	opts ServerOptions

	listener net.Listener
	running  atomic.Bool

	registryLock wsync.SpinLock
	registry     []*clientRef
	nextID       uint64

	reaperSignal *wsync.Semaphore

	logger  zerolog.Logger
	metrics *metrics.Collector

	wg sync.WaitGroup
}

// NewServer builds a Server from opts. Call Start to begin accepting.
func NewServer(opts ServerOptions) *Server {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Server{
		opts:         opts,
		reaperSignal: wsync.New(),
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}
}

// Metrics returns the server's prometheus collector.
func (s *Server) Metrics() *metrics.Collector { return s.metrics }

// Addr returns the listener's bound address. It is only valid after a
// successful Start, and is most useful with Start(0), which lets the OS
// pick an ephemeral port (e.g. in tests).
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IsRunning reports whether the server is currently accepting.
func (s *Server) IsRunning() bool { return s.running.Load() }

// Start binds 0.0.0.0:port and spawns the accept and reaper goroutines.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)

	// Go's net package does not expose a listen-backlog knob (unlike the
	// original implementation's explicit backlog of 8); the OS default
	// is used instead.
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error().Err(err).Str("addr", addr).Msg("bind/listen failed")
		return fmt.Errorf("%w: %v", ErrBindFailed, err)
	}

	s.listener = ln
	s.running.Store(true)

	s.wg.Add(2)
	go s.acceptLoop()
	go s.reaperLoop()

	s.logger.Info().Str("addr", addr).Msg("server started")
	return nil
}

// acceptLoop accepts connections until the listener is closed by Stop.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			s.logger.Debug().Err(err).Msg("transient accept error")
			continue
		}

		id := s.nextClientID()

		if err := serverHandshake(conn); err != nil {
			s.logger.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("handshake rejected")
			_ = conn.Close()
			s.rollbackClientID(id)
			continue
		}

		c := newClient(conn, s, clientConfig{
			maskOutgoing: false, // accepted connections are server role: never mask outbound
			readBufSize:  s.opts.ReadBufferSize,
			writeBufSize: s.opts.WriteBufferSize,
			logger:       s.logger,
			metrics:      s.metrics,
		})
		c.id = id
		c.onMessage = s.opts.OnMessage
		c.onDisconnect = s.opts.OnDisconnect

		s.registryLock.Lock()
		s.registry = append(s.registry, &clientRef{client: c})
		s.registryLock.Unlock()

		s.metrics.ClientConnected()
		c.start()

		s.logger.Debug().Uint64("conn_id", id).Str("remote", c.RemoteAddr()).
			Str("trace_id", c.traceID.String()).Msg("client connected")

		if s.opts.OnConnect != nil {
			s.opts.OnConnect(c)
		}
	}
}

// nextClientID returns the next non-zero, monotonically increasing id,
// skipping zero on wraparound.
func (s *Server) nextClientID() uint64 {
	s.registryLock.Lock()
	defer s.registryLock.Unlock()
	s.nextID++
	if s.nextID == 0 {
		s.nextID = 1
	}
	return s.nextID
}

// rollbackClientID undoes nextClientID's increment when a handshake is
// rejected before a Client is ever registered, again skipping zero.
func (s *Server) rollbackClientID(id uint64) {
	s.registryLock.Lock()
	defer s.registryLock.Unlock()
	if s.nextID == id {
		s.nextID--
		if s.nextID == 0 {
			s.nextID = ^uint64(0)
		}
	}
}

// reaperLoop removes disconnected, unreferenced clients from the
// registry. It wakes on reaperSignal, which every Client.disconnect call
// notifies, and which Stop also notifies once to unblock final drain.
func (s *Server) reaperLoop() {
	defer s.wg.Done()

	for {
		s.reaperSignal.Lock()
		if !s.running.Load() {
			s.reap()
			return
		}
		s.reaperSignal.Consume()
		s.reap()
	}
}

func (s *Server) reap() {
	s.registryLock.Lock()
	defer s.registryLock.Unlock()

	kept := s.registry[:0]
	for _, ref := range s.registry {
		if !ref.client.IsConnected() && ref.refCount == 0 {
			s.logger.Debug().Uint64("conn_id", ref.client.id).Msg("client reaped")
			continue
		}
		kept = append(kept, ref)
	}
	s.registry = kept
}

// Enumerate runs fn with a stable snapshot of currently registered
// clients. Every client in the snapshot is reference-counted for the
// duration of the call, so the reaper cannot remove it even if it
// disconnects mid-enumeration.
func (s *Server) Enumerate(fn func([]*Client)) {
	s.registryLock.Lock()
	snapshot := make([]*Client, len(s.registry))
	for i, ref := range s.registry {
		ref.refCount++
		snapshot[i] = ref.client
	}
	s.registryLock.Unlock()

	fn(snapshot)

	s.registryLock.Lock()
	for _, ref := range s.registry {
		for _, c := range snapshot {
			if ref.client == c {
				ref.refCount--
				break
			}
		}
	}
	s.registryLock.Unlock()

	s.reaperSignal.Notify()
}

// Disconnect disconnects a specific client that belongs to this server.
func (s *Server) Disconnect(c *Client) bool {
	return c.disconnect()
}

// Stop closes the listener, disconnects every client, and waits for the
// accept and reaper goroutines to exit. It is idempotent.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	_ = s.listener.Close()

	s.Enumerate(func(clients []*Client) {
		for _, c := range clients {
			c.disconnect()
		}
	})

	s.reaperSignal.Notify() // unblock reaperLoop's final Lock
	s.wg.Wait()

	s.logger.Info().Msg("server stopped")
}

// Close calls Stop. It always returns nil; Stop cannot fail.
func (s *Server) Close() error {
	s.Stop()
	return nil
}
