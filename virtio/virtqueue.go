package virtio

import "sync"

const (
	descFlagNext  = 1
	descFlagWrite = 2
)

// Descriptor is one split-virtqueue descriptor-table entry (§4.8). Addr is
// not a real physical address in this host simulation — see Queue's doc
// comment — it is a synthetic token Queue.bufferFor resolves back to the
// []byte the driver submitted.
type Descriptor struct {
	Addr  uint64
	Len   uint32
	Flags uint16
	Next  uint16
}

// UsedElem is one entry of the used ring: the head descriptor index of a
// completed chain and the number of bytes the device wrote.
type UsedElem struct {
	ID  uint32
	Len uint32
}

// Queue is a split virtqueue: descriptor table, available ring, used ring,
// and the free-descriptor list threaded through Next fields (sentinel =
// size), per the "Virtio split virtqueue" data-structure description and
// §4.8.
//
// In a real virtio-mmio transport the three rings live in DMA memory the
// device reads via the guest's physical address space; this host
// simulation has no separate guest address space (the same simplification
// mem.Arena makes for physical RAM), so descriptor addresses are synthetic
// tokens resolved through bufs rather than real pointers, and the
// SimulatedDevice that binds to a Queue (via RegisterIO.BindQueue) reads
// and writes the rings directly rather than through memory-mapped access.
type Queue struct {
	mu sync.Mutex

	id   uint64
	size uint16

	desc []Descriptor
	bufs map[uint64][]byte

	availIdx  uint16
	availRing []uint16

	usedIdx  uint16
	usedRing []UsedElem

	freeHead uint16 // sentinel = size
	numFree  uint16

	lastSeenUsedIdx  uint16
	lastSeenAvailIdx uint16
	nextBufToken     uint64
	callbacks        map[uint16]func(usedLen uint32)
}

var nextQueueID uint64

func newQueue(size uint16) *Queue {
	nextQueueID++
	q := &Queue{
		id:        nextQueueID,
		size:      size,
		desc:      make([]Descriptor, size),
		bufs:      make(map[uint64][]byte),
		availRing: make([]uint16, size),
		usedRing:  make([]UsedElem, size),
		callbacks: make(map[uint16]func(uint32)),
	}
	q.resetFreeList()
	return q
}

func (q *Queue) resetFreeList() {
	for i := uint16(0); i < q.size; i++ {
		if i == q.size-1 {
			q.desc[i].Next = q.size
		} else {
			q.desc[i].Next = i + 1
		}
	}
	q.freeHead = 0
	q.numFree = q.size
}

func (q *Queue) Size() uint16 { return q.size }

func (q *Queue) bufferFor(token uint64) []byte { return q.bufs[token] }

// Chain is one element of a Submit transfer: a buffer and whether the
// device may write into it (the "DATA, IN|OUT" pair of the spec's transfer
// description).
type Chain struct {
	Buf            []byte
	DeviceWritable bool
}

// Submit implements §4.8's "Submitting a transfer": allocate one
// descriptor per chain element from the free list (failing if
// insufficient), chain them with NEXT and WRITE flags, publish the head to
// the next available-ring slot and bump avail.idx, and record the
// completion callback keyed by the head index.
func (q *Queue) Submit(chain []Chain, cb func(usedLen uint32)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(chain) == 0 || uint16(len(chain)) > q.numFree {
		return false
	}

	head := q.freeHead
	cur := head
	for i, c := range chain {
		q.nextBufToken++
		token := q.nextBufToken
		q.bufs[token] = c.Buf

		d := &q.desc[cur]
		d.Addr = token
		d.Len = uint32(len(c.Buf))
		d.Flags = 0
		if c.DeviceWritable {
			d.Flags |= descFlagWrite
		}
		next := d.Next
		if i < len(chain)-1 {
			d.Flags |= descFlagNext
			cur = next
		} else {
			q.freeHead = next
		}
	}
	q.numFree -= uint16(len(chain))

	q.availRing[q.availIdx%q.size] = head
	q.availIdx++

	q.callbacks[head] = cb
	return true
}

// nextAvail is the device side of publishing: it returns the next
// not-yet-seen entry of the available ring, for a QueueHandler to consume
// after a QUEUE_NOTIFY write.
func (q *Queue) nextAvail() (uint16, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lastSeenAvailIdx == q.availIdx {
		return 0, false
	}
	head := q.availRing[q.lastSeenAvailIdx%q.size]
	q.lastSeenAvailIdx++
	return head, true
}

// readChain returns the buffers of every descriptor in head's chain, for
// the device side to read or write directly — standing in for DMA reads
// of guest memory in this host simulation.
func (q *Queue) readChain(head uint16) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	var bufs [][]byte
	for _, idx := range q.descriptorChainLocked(head) {
		bufs = append(bufs, q.bufs[q.desc[idx].Addr])
	}
	return bufs
}

// descriptorChainLocked walks the NEXT-linked chain starting at head, for
// the device side to read/write each buffer in order. Callers must hold
// q.mu.
func (q *Queue) descriptorChainLocked(head uint16) []uint16 {
	var idxs []uint16
	idx := head
	for {
		idxs = append(idxs, idx)
		d := q.desc[idx]
		if d.Flags&descFlagNext == 0 {
			break
		}
		idx = d.Next
	}
	return idxs
}

// postUsed implements the device side of completion: append (head, len) to
// the used ring and bump used.idx. The caller (SimulatedDevice) is
// responsible for raising the interrupt afterwards.
func (q *Queue) postUsed(head uint16, length uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.usedRing[q.usedIdx%q.size] = UsedElem{ID: uint32(head), Len: length}
	q.usedIdx++
}

// drainUsed implements the driver side of §4.8's interrupt handling:
// advance last_seen_used_idx to used.idx, invoking the callback registered
// for each completed head index and returning its descriptor chain to the
// free list in O(chain length).
func (q *Queue) drainUsed() {
	q.mu.Lock()
	var completions []struct {
		head uint16
		len  uint32
		cb   func(uint32)
	}
	for q.lastSeenUsedIdx != q.usedIdx {
		elem := q.usedRing[q.lastSeenUsedIdx%q.size]
		q.lastSeenUsedIdx++

		head := uint16(elem.ID)
		cb := q.callbacks[head]
		delete(q.callbacks, head)

		tail := q.descriptorChainLocked(head)
		for _, idx := range tail {
			delete(q.bufs, q.desc[idx].Addr)
		}
		last := tail[len(tail)-1]
		q.desc[last].Next = q.freeHead
		q.desc[last].Flags = 0
		q.freeHead = head
		q.numFree += uint16(len(tail))

		completions = append(completions, struct {
			head uint16
			len  uint32
			cb   func(uint32)
		}{head, elem.Len, cb})
	}
	q.mu.Unlock()

	for _, c := range completions {
		if c.cb != nil {
			c.cb(c.len)
		}
	}
}
