package mem

import (
	"sync"

	"bekkernel/util"
)

// Heap is the kernel-heap contract of §4.2: an opaque (size, align) ->
// pointer-or-null allocator plus its matching free. The core only requires
// align <= PageSize to always be honoured.
type Heap interface {
	Alloc(size, align int) (VirtualPtr, bool)
	Free(ptr VirtualPtr, size, align int)
}

// freeBlock is one entry of a best-fit free list.
type freeBlock struct {
	start VirtualPtr
	size  int
}

// KernelHeap is a best-fit allocator over a single fixed arena; it does not
// grow. It is not a slab allocator (the core
// treats the heap as an opaque collaborator, so a best-fit free list is a
// faithful-enough stand-in for the "opaque (size,align) -> ptr" contract).
type KernelHeap struct {
	mu    sync.Mutex
	arena []byte
	base  VirtualPtr
	free  []freeBlock
	used  map[VirtualPtr]int
}

// NewKernelHeap carves a heap out of the given backing slice, which the
// caller has already obtained from the arena/page allocator.
func NewKernelHeap(base VirtualPtr, backing []byte) *KernelHeap {
	return &KernelHeap{
		arena: backing,
		base:  base,
		free:  []freeBlock{{start: base, size: len(backing)}},
		used:  make(map[VirtualPtr]int),
	}
}

func alignUp(v VirtualPtr, align int) VirtualPtr {
	return util.Roundup(v, VirtualPtr(align))
}

// Alloc finds the smallest free block that, once aligned, still has room
// for size bytes, and carves it off (best-fit).
func (h *KernelHeap) Alloc(size, align int) (VirtualPtr, bool) {
	if align <= 0 {
		align = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	best := -1
	var bestPad int
	for i, b := range h.free {
		aligned := alignUp(b.start, align)
		pad := int(aligned - b.start)
		if pad+size > b.size {
			continue
		}
		if best == -1 || b.size < h.free[best].size {
			best = i
			bestPad = pad
		}
	}
	if best == -1 {
		return 0, false
	}
	b := h.free[best]
	allocStart := b.start + VirtualPtr(bestPad)
	tailStart := allocStart + VirtualPtr(size)
	tailSize := b.size - bestPad - size

	h.free = append(h.free[:best], h.free[best+1:]...)
	if bestPad > 0 {
		h.free = append(h.free, freeBlock{start: b.start, size: bestPad})
	}
	if tailSize > 0 {
		h.free = append(h.free, freeBlock{start: tailStart, size: tailSize})
	}
	h.used[allocStart] = size
	return allocStart, true
}

// Free returns [ptr, ptr+size) to the free list. It merges with adjacent
// free blocks to bound fragmentation growth.
func (h *KernelHeap) Free(ptr VirtualPtr, size, align int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.used, ptr)
	h.free = append(h.free, freeBlock{start: ptr, size: size})
	h.coalesce()
}

func (h *KernelHeap) coalesce() {
	if len(h.free) < 2 {
		return
	}
	merged := true
	for merged {
		merged = false
		for i := 0; i < len(h.free); i++ {
			for j := i + 1; j < len(h.free); j++ {
				a, b := h.free[i], h.free[j]
				if a.start+VirtualPtr(a.size) == b.start {
					h.free[i].size += b.size
					h.free = append(h.free[:j], h.free[j+1:]...)
					merged = true
					break
				}
				if b.start+VirtualPtr(b.size) == a.start {
					h.free[j].size += a.size
					h.free[i] = h.free[j]
					h.free = append(h.free[:j], h.free[j+1:]...)
					merged = true
					break
				}
			}
			if merged {
				break
			}
		}
	}
}
