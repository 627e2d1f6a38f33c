// Package interlink implements the local capability-passing IPC mechanism
// of §4.13/§6.5: servers advertised by address, connections with a pair of
// ring buffers, and a message-framing format that can carry raw bytes,
// entity handles, and shareable memory regions in one ordered stream.
//
// Grounded on the teacher's ipc package (pipe_t's ring-buffer-plus-waiters
// shape, generalised from a single anonymous byte stream to the spec's
// addressed server/connection model) and circbuf.Ring, reused unchanged
// for each connection's two byte streams. To avoid an entity<->interlink
// import cycle, FD items are resolved through the EntityResolver interface
// rather than a direct dependency on package entity; entity wraps
// *interlink.Server in ServerHandle and *interlink.End in ConnectionHandle,
// and satisfies EntityResolver via its handle table.
package interlink

import (
	"encoding/binary"

	"bekkernel/errs"
)

// DefaultRingBufferSize is INTERLINK_DEFAULT_RINGBUFFER_SIZE (§4.13).
const DefaultRingBufferSize = 1024

// PayloadKind tags a wire PayloadItem (§6.5).
type PayloadKind uint32

const (
	KindData PayloadKind = iota
	KindFD
	KindMemory
)

// headerSize and itemSize are the wire-format record sizes of §6.5: a
// 12-byte Header, then fixed 24-byte PayloadItem records (kind + two
// 8-byte fields + a flags word, wide enough for any of the three variants).
const (
	headerSize = 12
	itemSize   = 24
)

// Header is the wire MessageHeader of §6.5.
type Header struct {
	TotalSize        uint32
	PayloadItemCount uint32
	MessageID        uint32
}

func decodeHeader(buf []byte) (Header, errs.Err_t) {
	if len(buf) < headerSize {
		return Header{}, errs.EFAULT
	}
	return Header{
		TotalSize:        binary.LittleEndian.Uint32(buf[0:4]),
		PayloadItemCount: binary.LittleEndian.Uint32(buf[4:8]),
		MessageID:        binary.LittleEndian.Uint32(buf[8:12]),
	}, errs.ESUCCESS
}

func (h Header) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.TotalSize)
	binary.LittleEndian.PutUint32(buf[4:8], h.PayloadItemCount)
	binary.LittleEndian.PutUint32(buf[8:12], h.MessageID)
}

// wireItem is the on-the-wire PayloadItem union of §6.5, decoded generically
// before being interpreted per Kind.
type wireItem struct {
	Kind  PayloadKind
	A     uint64 // DATA.offset | FD.fd | MEMORY.ptr
	B     uint64 // DATA.len    | -     | MEMORY.size
	Flags uint32 // -           | -     | bit0=can_read bit1=can_write
}

const (
	flagCanRead  = 1 << 0
	flagCanWrite = 1 << 1
)

func decodeItem(buf []byte) wireItem {
	return wireItem{
		Kind:  PayloadKind(binary.LittleEndian.Uint32(buf[0:4])),
		A:     binary.LittleEndian.Uint64(buf[4:12]),
		B:     binary.LittleEndian.Uint64(buf[12:20]),
		Flags: binary.LittleEndian.Uint32(buf[20:24]),
	}
}

func (w wireItem) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(w.Kind))
	binary.LittleEndian.PutUint64(buf[4:12], w.A)
	binary.LittleEndian.PutUint64(buf[12:20], w.B)
	binary.LittleEndian.PutUint32(buf[20:24], w.Flags)
}

// EntityRef is the ref-counted-handle capability set an interlink FD item
// needs; entity.Entity satisfies this structurally.
type EntityRef interface {
	Retain()
	Release() bool
}

// EntityResolver looks up and installs entity-table slots on behalf of FD
// payload items, without interlink importing package entity directly.
type EntityResolver interface {
	Lookup(slot int) (EntityRef, bool)
	Install(h EntityRef) int
}

// Backing is the minimal capability set a MEMORY item's shared view needs:
// entity.Entity and backing.Region both already provide this shape, but
// interlink only needs Size for bookkeeping here; actual page-table mapping
// happens through SpaceTarget below.
type Backing interface {
	Size() uintptr
}

// SpaceTarget abstracts the sender's and receiver's SpaceManager for MEMORY
// items: CheckRegion validates the sender's claimed permissions (§4.4);
// ResolveBacking finds the BackingRegion underlying a user pointer;
// PlaceShared maps that backing into the receiver's space at a fresh
// address with the transferred permissions.
type SpaceTarget interface {
	CheckRegion(ptr uint64, size uint64, canRead, canWrite bool) bool
	ResolveBacking(ptr uint64, size uint64) (Backing, errs.Err_t)
	PlaceShared(b Backing, size uint64, canRead, canWrite bool) (uint64, errs.Err_t)
}

// QueuedItem is one payload item sitting in a Connection's per-direction
// message queue, already resolved to a live reference rather than wire
// bytes (§4.13: "push the resulting ref-counted handle into the message
// queue").
type QueuedItem interface {
	isFinal() bool
	messageID() uint32
}

type queuedData struct {
	final bool
	msgID uint32
	len   int
}

func (q queuedData) isFinal() bool     { return q.final }
func (q queuedData) messageID() uint32 { return q.msgID }

type queuedEntity struct {
	final  bool
	msgID  uint32
	handle EntityRef
}

func (q queuedEntity) isFinal() bool     { return q.final }
func (q queuedEntity) messageID() uint32 { return q.msgID }

type queuedMemory struct {
	final    bool
	msgID    uint32
	backing  Backing
	size     uint64
	canRead  bool
	canWrite bool
}

func (q queuedMemory) isFinal() bool     { return q.final }
func (q queuedMemory) messageID() uint32 { return q.msgID }
