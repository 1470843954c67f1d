// Package msgbuf implements the message-block buffer used by the async
// client engine to assemble and drain WebSocket messages: an ordered list
// of logical message blocks layered over a single growing byte arena.
package msgbuf

// Opcode identifies the logical type of a message block. It mirrors the
// wire opcode space but lives here, independent of the websocket package,
// so this buffer can be reused by any framed protocol.
type Opcode byte

// Block describes one logical message occupying a span of the arena.
type Block struct {
	Opcode    Opcode
	Offset    int
	Length    int
	Completed bool
}

// Buffer is an ordered sequence of Blocks backed by a single byte arena.
//
// Invariants maintained by every exported method:
//   - Block offsets are monotonically non-decreasing.
//   - A block's [Offset, Offset+Length) lies within the arena.
//   - At most the last block is ever incomplete.
//   - Read only ever drains from the head block, and only once it is
//     Completed.
type Buffer struct {
	blocks []Block
	arena  []byte
}

// New returns an empty Buffer with its arena pre-sized to cap bytes.
func New(cap int) *Buffer {
	return &Buffer{arena: make([]byte, 0, cap)}
}

// BlockBegin opens a new incomplete block at the current arena end and
// returns a pointer to it so the caller can track it across writes.
func (b *Buffer) BlockBegin(op Opcode) *Block {
	b.blocks = append(b.blocks, Block{Opcode: op, Offset: len(b.arena)})
	return &b.blocks[len(b.blocks)-1]
}

// BlockEnd marks the most recently opened block as completed.
func (b *Buffer) BlockEnd() {
	if len(b.blocks) == 0 {
		return
	}
	b.blocks[len(b.blocks)-1].Completed = true
}

// BlockRemove discards the most recently opened block and truncates the
// arena back to where it began, used to discard a message once it has
// been handed to the application through a callback.
func (b *Buffer) BlockRemove() {
	if len(b.blocks) == 0 {
		return
	}
	last := b.blocks[len(b.blocks)-1]
	b.arena = b.arena[:last.Offset]
	b.blocks = b.blocks[:len(b.blocks)-1]
}

// Write appends data to the arena and extends the most recently opened
// block's length. It is a no-op for an empty slice.
func (b *Buffer) Write(data []byte) {
	if len(data) == 0 || len(b.blocks) == 0 {
		return
	}
	b.arena = append(b.arena, data...)
	b.blocks[len(b.blocks)-1].Length += len(data)
}

// Read copies up to len(dst) bytes out of the head block, provided it is
// completed, and returns how many bytes were copied. Bytes copied out are
// erased from the front of the arena and every later block's offset is
// shifted down to match. If the head block is fully drained it is
// removed; if only partially drained, its opcode becomes Continuation so
// a later full drain still reports the remainder as part of the same
// logical message.
func (b *Buffer) Read(dst []byte) int {
	if len(b.blocks) == 0 || !b.blocks[0].Completed {
		return 0
	}

	head := &b.blocks[0]
	n := len(dst)
	if head.Length < n {
		n = head.Length
	}

	if n > 0 {
		copy(dst, b.arena[head.Offset:head.Offset+n])
		b.arena = append(b.arena[:head.Offset], b.arena[head.Offset+n:]...)
	}

	head.Length -= n
	if head.Length == 0 {
		b.blocks = b.blocks[1:]
	} else {
		head.Opcode = ContinuationOpcode
	}

	if n > 0 {
		for i := range b.blocks {
			if b.blocks[i].Offset > head.Offset {
				b.blocks[i].Offset -= n
			}
		}
	}

	return n
}

// Peek reports the head block's opcode and remaining length without
// consuming anything. ok is false if there is no completed head block.
func (b *Buffer) Peek() (op Opcode, length int, ok bool) {
	if len(b.blocks) == 0 || !b.blocks[0].Completed {
		return 0, 0, false
	}
	return b.blocks[0].Opcode, b.blocks[0].Length, true
}

// PeekCopy returns a copy of the completed head block's bytes without
// draining them, for callers that need to hand the message to a callback
// while leaving Read/Peek semantics for everyone else untouched.
func (b *Buffer) PeekCopy() (data []byte, op Opcode, ok bool) {
	if len(b.blocks) == 0 || !b.blocks[0].Completed {
		return nil, 0, false
	}
	head := b.blocks[0]
	data = make([]byte, head.Length)
	copy(data, b.arena[head.Offset:head.Offset+head.Length])
	return data, head.Opcode, true
}

// ContinuationOpcode is the opcode a partially drained block is rewritten
// to. It is defined here (rather than imported from websocket) to keep
// this package protocol-agnostic; the websocket package's Continuation
// opcode has the same underlying value (0x0).
const ContinuationOpcode Opcode = 0x0

// Empty reports whether the buffer holds no blocks at all.
func (b *Buffer) Empty() bool {
	return len(b.blocks) == 0
}

// ArenaLen returns the current arena size, for diagnostics and tests.
func (b *Buffer) ArenaLen() int {
	return len(b.arena)
}
