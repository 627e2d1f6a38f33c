package mem

import (
	"fmt"
	"log/slog"
	"sync"
)

// regionBitmap tracks, per page within one Memory-kind PhysicalRegion, two
// bits: reserved and end. A page is free iff reserved is clear. The end bit
// marks the final page of an allocation so FreeRegion can recover the run's
// length from its start address alone, per §4.1.
type regionBitmap struct {
	region   PhysicalRegion
	reserved []uint64
	end      []uint64
	lastFree int // page-index cursor, amortises fragmentation search
}

func newRegionBitmap(r PhysicalRegion) *regionBitmap {
	n := (r.Pages() + 63) / 64
	return &regionBitmap{region: r, reserved: make([]uint64, n), end: make([]uint64, n)}
}

func bitGet(bits []uint64, i int) bool { return bits[i/64]&(1<<uint(i%64)) != 0 }
func bitSet(bits []uint64, i int)      { bits[i/64] |= 1 << uint(i%64) }
func bitClear(bits []uint64, i int)    { bits[i/64] &^= 1 << uint(i%64) }

func (b *regionBitmap) isFree(i int) bool   { return !bitGet(b.reserved, i) }
func (b *regionBitmap) isEnd(i int) bool    { return bitGet(b.end, i) }
func (b *regionBitmap) reserve(i int)       { bitSet(b.reserved, i) }
func (b *regionBitmap) unreserve(i int)     { bitClear(b.reserved, i); bitClear(b.end, i) }
func (b *regionBitmap) markEnd(i int)       { bitSet(b.end, i) }

// findRun scans for n consecutive free pages starting at the cursor, then
// falls back to a scan from the start of the region.
func (b *regionBitmap) findRun(n int) (int, bool) {
	total := b.region.Pages()
	try := func(from int) (int, bool) {
		run := 0
		for i := from; i < total; i++ {
			if b.isFree(i) {
				run++
				if run == n {
					return i - n + 1, true
				}
			} else {
				run = 0
			}
		}
		return 0, false
	}
	if start, ok := try(b.lastFree); ok {
		return start, true
	}
	return try(0)
}

// PageAllocator is the bitmap physical page allocator of §4.1. It owns a set
// of non-overlapping physical regions and, for each Memory-kind region, a
// bitmap tracking free/reserved-not-end/reserved-end state per page.
type PageAllocator struct {
	mu      sync.Mutex
	log     *slog.Logger
	regions []*regionBitmap
	// Oom is notified (non-blocking) whenever AllocateRegion fails to find a
	// run anywhere, mirroring the teacher's oommsg signalling channel.
	Oom chan OomRequest
}

// OomRequest mirrors the teacher's Oommsg_t: a request for Need pages with a
// channel the allocator's caller can wait on if a reclaim attempt is made.
type OomRequest struct {
	Need   int
	Resume chan bool
}

// NewPageAllocator constructs an allocator over the given regions, keeping
// only Memory-kind regions; Reserved/Unknown regions are dropped and never
// allocated from.
func NewPageAllocator(log *slog.Logger, regions []struct {
	Region PhysicalRegion
	Kind   RegionKind
}) *PageAllocator {
	pa := &PageAllocator{log: log, Oom: make(chan OomRequest, 1)}
	for _, d := range regions {
		if d.Kind == KindMemory {
			pa.regions = append(pa.regions, newRegionBitmap(d.Region))
		}
	}
	return pa
}

// AllocateRegion finds and marks n contiguous free pages, returning the
// PhysicalRegion they form. Invariant 1/2 of §8: the final page of any
// allocation carries the unique end-marker for that run.
func (pa *PageAllocator) AllocateRegion(n int) (PhysicalRegion, bool) {
	if n <= 0 {
		return PhysicalRegion{}, false
	}
	pa.mu.Lock()
	defer pa.mu.Unlock()
	for _, b := range pa.regions {
		start, ok := b.findRun(n)
		if !ok {
			continue
		}
		for i := start; i < start+n; i++ {
			b.reserve(i)
		}
		b.markEnd(start + n - 1)
		b.lastFree = start + n
		region := PhysicalRegion{
			Start: b.region.Start + PhysicalPtr(start*PageSize),
			Size:  uintptr(n) * PageSize,
		}
		return region, true
	}
	select {
	case pa.Oom <- OomRequest{Need: n, Resume: make(chan bool, 1)}:
	default:
	}
	if pa.log != nil {
		pa.log.Warn("allocate_region failed", "pages", n)
	}
	return PhysicalRegion{}, false
}

// FreeRegion frees the run starting at start, discovering its length by
// scanning forward for the first end-marked page.
func (pa *PageAllocator) FreeRegion(start PhysicalPtr) error {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	for _, b := range pa.regions {
		if start < b.region.Start || start >= b.region.End() {
			continue
		}
		i := int((start - b.region.Start) / PageSize)
		if b.isFree(i) {
			return fmt.Errorf("mem: double free at %#x", start)
		}
		first := i
		for {
			end := b.isEnd(i)
			b.unreserve(i)
			if end {
				break
			}
			i++
			if i >= b.region.Pages() {
				return fmt.Errorf("mem: free_region at %#x ran off region without end marker", start)
			}
		}
		if first < b.lastFree {
			b.lastFree = first
		}
		return nil
	}
	return fmt.Errorf("mem: free_region at %#x not in any region", start)
}

// MarkAsReserved carves out region as permanently reserved (kernel image,
// device-tree blob, reserved-memory ranges) so it is never handed out by
// AllocateRegion. Idempotent: re-reserving an already-reserved run is a
// no-op rather than a double-reservation error.
func (pa *PageAllocator) MarkAsReserved(region PhysicalRegion) {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	for _, b := range pa.regions {
		if region.Start < b.region.Start || region.End() > b.region.End() {
			continue
		}
		first := int((region.Start - b.region.Start) / PageSize)
		n := region.Pages()
		for i := first; i < first+n; i++ {
			b.reserve(i)
		}
		b.markEnd(first + n - 1)
		if first <= b.lastFree && b.lastFree < first+n {
			b.lastFree = first + n
		}
		return
	}
}

// ReservedPageCount sums reserved pages across all regions; used by the
// invariant-2 property test (§8) to cross-check against outstanding
// allocation lengths.
func (pa *PageAllocator) ReservedPageCount() int {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	total := 0
	for _, b := range pa.regions {
		for i := 0; i < b.region.Pages(); i++ {
			if !b.isFree(i) {
				total++
			}
		}
	}
	return total
}
