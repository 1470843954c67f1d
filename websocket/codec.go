package websocket

import (
	"crypto/rand"

	"github.com/coregx/tcpws/internal/frame"
	"github.com/coregx/tcpws/internal/msgbuf"
)

// frameCodec is the interface seam that stands in for the source
// library's CRTP-based asyncReadHandler/asyncWriteHandler overrides: a
// Client is generic over its framing protocol, and wsCodec is the one
// implementation this package ships. There is no raw-TCP codec, and
// because the interface is unexported, none can be supplied from outside
// this package.
//
// consumeRead is handed whatever bytes the reader goroutine has
// available and returns how many it consumed; returning 0 with a nil
// error asks the reader to read more bytes before calling again. A
// non-nil error terminates the client.
//
// produceWrite is handed the writer goroutine's output buffer and
// returns how many bytes it filled; returning 0 with a nil error while
// the write buffer is non-empty asks the writer to grow its buffer and
// retry. A non-nil error terminates the client.
type frameCodec interface {
	consumeRead(c *Client, data []byte) (consumed int, err error)
	produceWrite(c *Client, out []byte) (produced int, err error)
}

// wsCodec implements the WebSocket read/write path (spec sections on the
// read and write paths): frame parsing/reassembly on read, fragmentation
// into <=128KiB frames on write, with the server-vs-client masking rule
// and the Ping/Pong/Close control-frame handling baked in.
type wsCodec struct {
	maskOutgoing bool // true for a dialed (client-role) connection

	// Read-path state, carried across consumeRead invocations.
	haveHeader     bool
	header         frame.Header
	remaining      uint64
	payloadWritten int
	control        []byte       // scratch accumulator for Ping/Pong/Close payloads
	dataOpcode     frame.Opcode // opcode of the data message being assembled
}

func newWSCodec(maskOutgoing bool) *wsCodec {
	return &wsCodec{maskOutgoing: maskOutgoing}
}

func (w *wsCodec) consumeRead(c *Client, data []byte) (int, error) {
	total := 0

	// A parsed header with no payload left still has to be completed,
	// even when it was the last thing in data.
	for len(data) > 0 || (w.haveHeader && w.remaining == 0) {
		if !w.haveHeader {
			h, n, err := frame.ParseHeader(data)
			if err == frame.ErrNeedMore {
				return total, nil
			}
			if err != nil {
				c.metricsProtocolError()
				return total, ErrProtocolError
			}

			parsedOpcode := h.Opcode

			// A Continuation frame carries no opcode of its own; the
			// assembled message keeps the type the first frame declared
			// (original_source/HeadSocket.h's _currentHeader.opcode =
			// prevOpcode). Control frames interleaved between fragments
			// do not change it.
			if h.Opcode == frame.Continuation {
				h.Opcode = w.dataOpcode
			} else if !h.Opcode.IsControl() {
				w.dataOpcode = h.Opcode
			}

			w.haveHeader = true
			w.header = h
			w.remaining = h.PayloadLength
			w.payloadWritten = 0
			total += n
			data = data[n:]

			if h.Opcode.IsControl() {
				w.control = w.control[:0]
			} else if parsedOpcode != frame.Continuation {
				c.readBuf.BlockBegin(msgbuf.Opcode(h.Opcode))
			}
			continue
		}

		avail := len(data)
		if uint64(avail) > w.remaining {
			avail = int(w.remaining)
		}

		if avail > 0 {
			chunk := data[:avail]
			if w.header.Opcode.IsControl() {
				w.control = append(w.control, chunk...)
			} else if w.header.Masked {
				masked := make([]byte, avail)
				copy(masked, chunk)
				frame.ApplyMask(masked, w.header.MaskKey, w.payloadWritten)
				c.readBuf.Write(masked)
			} else {
				c.readBuf.Write(chunk)
			}

			w.payloadWritten += avail
			w.remaining -= uint64(avail)
			total += avail
			data = data[avail:]
		}

		if w.remaining == 0 {
			w.haveHeader = false
			c.metricsFrameRead(w.payloadWritten)
			if w.header.Fin {
				if err := w.frameComplete(c); err != nil {
					return total, err
				}
			}
		}
	}

	return total, nil
}

// frameComplete runs once a FIN frame's payload has been fully consumed:
// control frames are dispatched immediately, data frames are closed off
// and, when the application has registered OnMessage, delivered
// synchronously.
func (w *wsCodec) frameComplete(c *Client) error {
	switch w.header.Opcode {
	case frame.Ping:
		payload := make([]byte, len(w.control))
		copy(payload, w.control)
		if w.header.Masked {
			frame.ApplyMask(payload, w.header.MaskKey, 0)
		}
		c.enqueueWrite(frame.Pong, payload)
		return nil

	case frame.Pong:
		return nil

	case frame.Close:
		payload := make([]byte, len(w.control))
		copy(payload, w.control)
		if w.header.Masked {
			frame.ApplyMask(payload, w.header.MaskKey, 0)
		}
		c.logger.Debug().Uint64("conn_id", c.id).
			Str("close_code", parseCloseCode(payload).String()).
			Msg("received close frame")
		c.disconnect()
		return nil

	default: // Text, Binary, Continuation
		if w.header.Opcode == frame.Text {
			c.readBuf.Write([]byte{0})
		}
		c.readBuf.BlockEnd()

		if c.onMessage != nil {
			data, op, ok := c.readBuf.PeekCopy()
			if ok {
				c.onMessage(c, frame.Opcode(op), data)
				c.readBuf.BlockRemove()
			}
		}
		return nil
	}
}

func (w *wsCodec) produceWrite(c *Client, out []byte) (int, error) {
	produced := 0

	for {
		op, length, ok := c.writeBuf.Peek()
		if !ok {
			return produced, nil
		}

		headroom := frame.HeaderSize(uint64(length), w.maskOutgoing)
		space := len(out) - produced - headroom
		if space <= 0 {
			return produced, nil
		}

		toSend := length
		if toSend > frame.MaxFramePayload {
			toSend = frame.MaxFramePayload
		}
		if toSend > space {
			// The next frame does not fit whole; stop here (returning 0
			// makes the writer grow its buffer).
			return produced, nil
		}

		h := frame.Header{
			Fin:           toSend == length,
			Opcode:        frame.Opcode(op),
			Masked:        w.maskOutgoing,
			PayloadLength: uint64(toSend),
		}
		if w.maskOutgoing {
			_, _ = rand.Read(h.MaskKey[:])
		}

		n, err := frame.WriteHeader(out[produced:], h)
		if err != nil {
			return produced, nil
		}
		produced += n

		drained := c.writeBuf.Read(out[produced : produced+toSend])
		if w.maskOutgoing {
			frame.ApplyMask(out[produced:produced+drained], h.MaskKey, 0)
		}
		produced += drained
		c.metricsFrameWritten(drained)

		if h.Fin {
			c.writeSignal.Consume()
		}
	}
}
