package interlink

import (
	"sync"

	"github.com/google/uuid"

	"bekkernel/circbuf"
	"bekkernel/errs"
)

// Connection is one accepted Interlink channel: two independent byte
// streams (client->server and server->client), each paired with a FIFO
// queue of resolved payload items so that non-DATA items (FD, MEMORY)
// interleave with the raw bytes in the order the sender pushed them
// (§4.13, §6.5 invariant 7: "sum(data_size_of_data_items) equals the number
// of bytes currently held in the corresponding ring buffer").
type Connection struct {
	mu   sync.Mutex
	cond *sync.Cond

	// traceID identifies this connection across its whole lifetime, for
	// log correlation between the client and server ends (they otherwise
	// share no identifier a log line can join on).
	traceID uuid.UUID

	clientToServer      *circbuf.Ring
	clientToServerQueue []QueuedItem
	serverToClient      *circbuf.Ring
	serverToClientQueue []QueuedItem

	clientClosed bool
	serverClosed bool
}

func newConnection() *Connection {
	c := &Connection{
		traceID:        uuid.New(),
		clientToServer: circbuf.New(DefaultRingBufferSize),
		serverToClient: circbuf.New(DefaultRingBufferSize),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// End is one side's view of a Connection: Server.Accept returns the
// isServer=true end and AddressMap.Connect the isServer=false end;
// entity.ConnectionHandle wraps either one.
type End struct {
	conn     *Connection
	isServer bool
}

func (e *End) outboundRing() *circbuf.Ring {
	if e.isServer {
		return e.conn.serverToClient
	}
	return e.conn.clientToServer
}

func (e *End) outboundQueue() *[]QueuedItem {
	if e.isServer {
		return &e.conn.serverToClientQueue
	}
	return &e.conn.clientToServerQueue
}

func (e *End) inboundQueue() *[]QueuedItem {
	if e.isServer {
		return &e.conn.clientToServerQueue
	}
	return &e.conn.serverToClientQueue
}

// TraceID returns the identifier shared by both ends of this connection,
// suitable for correlating Send/Receive log lines across a client and its
// server.
func (e *End) TraceID() uuid.UUID { return e.conn.traceID }

func (e *End) peerClosed() bool {
	if e.isServer {
		return e.conn.clientClosed
	}
	return e.conn.serverClosed
}

// Close marks this end closed and wakes any blocked peer.
func (e *End) Close() {
	e.conn.mu.Lock()
	if e.isServer {
		e.conn.serverClosed = true
	} else {
		e.conn.clientClosed = true
	}
	e.conn.mu.Unlock()
	e.conn.cond.Broadcast()
}

// Send parses a wire-format message out of buf (§6.5) and pushes its items
// onto this end's outbound queue/ring, blocking (if blocking is true) while
// a DATA item's bytes do not yet fit in the destination ring buffer.
func (e *End) Send(buf []byte, resolver EntityResolver, space SpaceTarget, blocking bool) (int, errs.Err_t) {
	hdr, err := decodeHeader(buf)
	if err != errs.ESUCCESS {
		return 0, err
	}
	if uint64(hdr.TotalSize) > uint64(len(buf)) {
		return 0, errs.EINVAL
	}
	need := uint64(headerSize) + uint64(hdr.PayloadItemCount)*itemSize
	if need > uint64(len(buf)) {
		return 0, errs.EINVAL
	}

	items := make([]wireItem, hdr.PayloadItemCount)
	for i := range items {
		off := headerSize + i*itemSize
		items[i] = decodeItem(buf[off : off+itemSize])
	}

	e.conn.mu.Lock()
	defer e.conn.mu.Unlock()
	if e.peerClosed() {
		return 0, errs.EFAIL
	}

	ring := e.outboundRing()
	queue := e.outboundQueue()
	written := 0
	for i, it := range items {
		final := i+1 == len(items)
		switch it.Kind {
		case KindData:
			if it.A+it.B > uint64(len(buf)) {
				return written, errs.EFAULT
			}
			data := buf[it.A : it.A+it.B]
			for len(data) > 0 {
				n := ring.Write(data)
				data = data[n:]
				written += n
				if len(data) > 0 {
					if !blocking {
						return written, errs.EAGAIN
					}
					e.conn.cond.Wait()
					if e.peerClosed() {
						return written, errs.EFAIL
					}
				}
			}
			*queue = append(*queue, queuedData{final: final, msgID: hdr.MessageID, len: int(it.B)})

		case KindFD:
			h, ok := resolver.Lookup(int(it.A))
			if !ok {
				return written, errs.EBADF
			}
			h.Retain()
			*queue = append(*queue, queuedEntity{final: final, msgID: hdr.MessageID, handle: h})

		case KindMemory:
			canRead := it.Flags&flagCanRead != 0
			canWrite := it.Flags&flagCanWrite != 0
			if !space.CheckRegion(it.A, it.B, canRead, canWrite) {
				return written, errs.EFAULT
			}
			br, rerr := space.ResolveBacking(it.A, it.B)
			if rerr != errs.ESUCCESS {
				return written, rerr
			}
			*queue = append(*queue, queuedMemory{final: final, msgID: hdr.MessageID, backing: br, size: it.B, canRead: canRead, canWrite: canWrite})

		default:
			return written, errs.EINVAL
		}
	}

	e.conn.cond.Broadcast()
	return written, errs.ESUCCESS
}

// Receive walks this end's inbound queue from the head, accumulating items
// of one message (stopping at is_final), and emits a wire-format message
// into buf. EOVERFLOW if buf is too small; the queue is left untouched in
// that case so the caller can retry with a larger buffer.
func (e *End) Receive(buf []byte, resolver EntityResolver, space SpaceTarget, blocking bool) (int, errs.Err_t) {
	e.conn.mu.Lock()
	defer e.conn.mu.Unlock()

	queue := e.inboundQueue()
	for len(*queue) == 0 {
		if e.peerClosed() {
			return 0, errs.ESUCCESS
		}
		if !blocking {
			return 0, errs.EAGAIN
		}
		e.conn.cond.Wait()
	}

	// Collect one full message: consecutive items up to and including the
	// first is_final (Send always pushes a whole message before releasing
	// the lock, so the head of the queue is never a partial message).
	end := 0
	for end < len(*queue) && !(*queue)[end].isFinal() {
		end++
	}
	if end >= len(*queue) {
		end = len(*queue) - 1
	}
	msgItems := (*queue)[:end+1]

	dataLen := 0
	for _, qi := range msgItems {
		if d, ok := qi.(queuedData); ok {
			dataLen += d.len
		}
	}
	needed := headerSize + len(msgItems)*itemSize + dataLen
	if needed > len(buf) {
		return 0, errs.EOVERFLOW
	}

	inRing := e.inboundRing()
	out := make([]wireItem, len(msgItems))
	dataOffset := headerSize + len(msgItems)*itemSize
	cursor := dataOffset
	for i, qi := range msgItems {
		switch v := qi.(type) {
		case queuedData:
			chunk := buf[cursor : cursor+v.len]
			got := 0
			for got < v.len {
				n := inRing.Read(chunk[got:])
				if n == 0 {
					break
				}
				got += n
			}
			out[i] = wireItem{Kind: KindData, A: uint64(cursor), B: uint64(got)}
			cursor += v.len
		case queuedEntity:
			slot := resolver.Install(v.handle)
			out[i] = wireItem{Kind: KindFD, A: uint64(slot)}
		case queuedMemory:
			addr, perr := space.PlaceShared(v.backing, v.size, v.canRead, v.canWrite)
			if perr != errs.ESUCCESS {
				return 0, perr
			}
			var flags uint32
			if v.canRead {
				flags |= flagCanRead
			}
			if v.canWrite {
				flags |= flagCanWrite
			}
			out[i] = wireItem{Kind: KindMemory, A: addr, B: v.size, Flags: flags}
		}
	}

	hdr := Header{TotalSize: uint32(needed), PayloadItemCount: uint32(len(out)), MessageID: msgItems[0].messageID()}
	hdr.encode(buf[0:headerSize])
	for i, wi := range out {
		off := headerSize + i*itemSize
		wi.encode(buf[off : off+itemSize])
	}

	*queue = append([]QueuedItem(nil), (*queue)[end+1:]...)
	return needed, errs.ESUCCESS
}

func (e *End) inboundRing() *circbuf.Ring {
	if e.isServer {
		return e.conn.clientToServer
	}
	return e.conn.serverToClient
}
