package websocket

import (
	"io"
	"net"
	"sync/atomic"

	"github.com/coregx/tcpws/internal/frame"
	"github.com/coregx/tcpws/internal/metrics"
	"github.com/coregx/tcpws/internal/msgbuf"
	"github.com/coregx/tcpws/internal/wsync"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultReadBufferSize  = 4096
	defaultWriteBufferSize = 4096
	defaultArenaSize       = 65536
)

// OnMessageFunc is invoked synchronously on the reader goroutine whenever
// a complete data message has been reassembled. If set, the message is
// delivered here instead of being left queued for Peek/Pop.
type OnMessageFunc func(c *Client, op Opcode, data []byte)

// OnDisconnectFunc is invoked once, from whichever goroutine first
// observes the disconnect, when a Client transitions to disconnected.
type OnDisconnectFunc func(c *Client)

// Client is one asynchronous WebSocket connection: a reader goroutine
// parses inbound frames into a message buffer the application drains via
// Peek/Pop, and a writer goroutine drains an outbound message buffer the
// application fills via Push, fragmenting into frames no larger than
// frame.MaxFramePayload. Both goroutines exit, and the socket closes
// exactly once, the moment Disconnect (or an I/O error) flips connected
// from true to false.
type Client struct {
	conn    net.Conn
	id      uint64
	traceID uuid.UUID
	server  *Server // nil for a Client created by Dial outside any Server

	codec   frameCodec
	logger  zerolog.Logger
	metrics *metrics.Collector

	connected atomic.Bool

	readBuf  *msgbuf.Buffer
	readLock wsync.SpinLock

	writeBuf    *msgbuf.Buffer
	writeLock   wsync.SpinLock
	writeSignal *wsync.Semaphore

	onMessage    OnMessageFunc
	onDisconnect OnDisconnectFunc

	readBufSize  int
	writeBufSize int

	done chan struct{}
}

// clientConfig bundles the construction-time knobs newClient needs,
// threaded down from ServerOptions/DialOptions.
type clientConfig struct {
	maskOutgoing bool
	readBufSize  int
	writeBufSize int
	logger       zerolog.Logger
	metrics      *metrics.Collector
}

func newClient(conn net.Conn, server *Server, cfg clientConfig) *Client {
	if cfg.readBufSize <= 0 {
		cfg.readBufSize = defaultReadBufferSize
	}
	if cfg.writeBufSize <= 0 {
		cfg.writeBufSize = defaultWriteBufferSize
	}

	c := &Client{
		conn:         conn,
		traceID:      uuid.New(),
		server:       server,
		codec:        newWSCodec(cfg.maskOutgoing),
		logger:       cfg.logger,
		metrics:      cfg.metrics,
		readBuf:      msgbuf.New(defaultArenaSize),
		writeBuf:     msgbuf.New(defaultArenaSize),
		writeSignal:  wsync.New(),
		readBufSize:  cfg.readBufSize,
		writeBufSize: cfg.writeBufSize,
		done:         make(chan struct{}),
	}
	c.logger = cfg.logger.With().Str("trace_id", c.traceID.String()).Logger()
	c.connected.Store(true)
	return c
}

// start spawns the reader and writer goroutines. Called once, after the
// Client is fully constructed and (for accepted clients) registered.
func (c *Client) start() {
	go c.readLoop()
	go c.writeLoop()
}

// ID returns the registry id assigned to this client by its Server. It
// is zero for clients created directly by Dial.
func (c *Client) ID() uint64 { return c.id }

// TraceID returns the per-connection correlation id used in log events.
func (c *Client) TraceID() uuid.UUID { return c.traceID }

// RemoteAddr returns the peer's network address.
func (c *Client) RemoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// IsConnected reports whether the client is still connected.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// Push buffers data as a Binary message for delivery.
func (c *Client) Push(data []byte) error { return c.PushOp(data, frame.Binary) }

// PushText buffers text as a Text message for delivery.
func (c *Client) PushText(text string) error { return c.PushOp([]byte(text), frame.Text) }

// PushOp buffers data as a message with a caller-chosen opcode.
func (c *Client) PushOp(data []byte, op Opcode) error {
	if !c.connected.Load() {
		return ErrClosed
	}
	c.enqueueWrite(op, data)
	return nil
}

// enqueueWrite buffers a message for the writer goroutine, used both by
// Push and internally (e.g. an automatic Pong reply to a Ping).
func (c *Client) enqueueWrite(op Opcode, data []byte) {
	c.writeLock.Lock()
	c.writeBuf.BlockBegin(msgbuf.Opcode(op))
	c.writeBuf.Write(data)
	c.writeBuf.BlockEnd()
	c.writeLock.Unlock()
	c.writeSignal.Notify()
}

// Peek reports the length of the next fully assembled message, if any.
func (c *Client) Peek() (length int, ok bool) {
	c.readLock.Lock()
	defer c.readLock.Unlock()
	_, length, ok = c.readBuf.Peek()
	return length, ok
}

// PeekOpcode reports the opcode and length of the next fully assembled
// message, if any.
func (c *Client) PeekOpcode() (op Opcode, length int, ok bool) {
	c.readLock.Lock()
	defer c.readLock.Unlock()
	mop, length, ok := c.readBuf.Peek()
	return Opcode(mop), length, ok
}

// Pop drains up to len(dst) bytes from the head message. A partial drain
// leaves the remainder available under a Continuation opcode for a
// subsequent Peek/Pop of the same logical message.
func (c *Client) Pop(dst []byte) int {
	c.readLock.Lock()
	defer c.readLock.Unlock()
	return c.readBuf.Read(dst)
}

// Disconnect closes the underlying socket. It returns true iff this call
// performed the connected-to-disconnected transition.
func (c *Client) Disconnect() bool { return c.disconnect() }

// disconnect is the single atomic CAS transition every teardown path
// (application call, reader EOF, writer error, peer Close frame) funnels
// through. It notifies the server's reaper rather than ever calling it
// synchronously, so a client never blocks on registry housekeeping.
func (c *Client) disconnect() bool {
	if !c.connected.CompareAndSwap(true, false) {
		return false
	}

	_ = c.conn.Close()
	close(c.done)

	if c.metrics != nil {
		c.metrics.ClientDisconnected()
	}
	if c.onDisconnect != nil {
		c.onDisconnect(c)
	}

	// Wake the writer (it may be parked on writeSignal.Lock with a zero
	// count) so it observes connected == false and exits.
	c.writeSignal.Notify()

	if c.server != nil {
		c.server.reaperSignal.Notify()
	}

	return true
}

func (c *Client) metricsFrameRead(n int) {
	if c.metrics != nil {
		c.metrics.FrameRead(n)
	}
}

func (c *Client) metricsFrameWritten(n int) {
	if c.metrics != nil {
		c.metrics.FrameWritten(n)
	}
}

func (c *Client) metricsProtocolError() {
	if c.metrics != nil {
		c.metrics.ProtocolError()
	}
}

// readLoop is the reader worker of the async client engine: it keeps a
// persistent byte buffer, reading more from the socket only when the
// buffer is empty or the previous pass's consumer call made no progress,
// and doubles the buffer when the consumer cannot make progress despite
// having data (a frame header or payload larger than the current
// buffer).
func (c *Client) readLoop() {
	buf := make([]byte, c.readBufSize)
	filled := 0
	needRead := true

	for {
		if filled == len(buf) {
			grown := make([]byte, len(buf)*2)
			copy(grown, buf[:filled])
			buf = grown
		}

		if needRead {
			n, err := c.conn.Read(buf[filled:])
			if n == 0 || err != nil {
				c.disconnect()
				return
			}
			filled += n
		}

		c.readLock.Lock()
		consumed, err := c.codec.consumeRead(c, buf[:filled])
		c.readLock.Unlock()

		if err != nil {
			c.logger.Warn().Uint64("conn_id", c.id).Err(err).Msg("protocol error, disconnecting")
			c.disconnect()
			return
		}

		if consumed == 0 {
			needRead = true
			continue
		}

		copy(buf, buf[consumed:filled])
		filled -= consumed
		needRead = filled == 0
	}
}

// writeLoop is the writer worker: it blocks on writeSignal.Lock (which
// does not decrement the semaphore) and, once woken, drains as much of
// the outbound message buffer as fits, growing its output buffer when a
// single frame's header plus payload does not fit, and stopping once the
// producer reports no more buffered data.
func (c *Client) writeLoop() {
	buf := make([]byte, c.writeBufSize)

	for {
		c.writeSignal.Lock()

		if !c.connected.Load() {
			return
		}

		for {
			c.writeLock.Lock()
			n, err := c.codec.produceWrite(c, buf)
			c.writeLock.Unlock()

			if err != nil {
				c.disconnect()
				return
			}

			if n > 0 {
				if werr := writeFull(c.conn, buf[:n]); werr != nil {
					c.disconnect()
					return
				}
				continue
			}

			c.writeLock.Lock()
			_, _, hasData := c.writeBuf.Peek()
			c.writeLock.Unlock()
			if !hasData {
				break
			}

			buf = make([]byte, len(buf)*2)
		}
	}
}

// writeFull writes the entirety of data to conn, looping over short
// writes, matching the async engine's write-loop contract in the spec's
// concurrency model (a single produced buffer must be fully flushed
// before the producer is asked for more).
func writeFull(conn net.Conn, data []byte) error {
	for len(data) > 0 {
		n, err := conn.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}
