package mem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Arena is the direct-map facility: a host-simulated slab of physical RAM,
// backed by an anonymous mmap (golang.org/x/sys/unix), that DirectMap turns
// into byte slices addressable by PhysicalPtr. On real hardware this would
// be the kernel's direct-mapped virtual window onto all of physical memory;
// under host simulation there is no physical memory to window into, so the
// arena itself plays that role.
type Arena struct {
	base  PhysicalPtr
	bytes []byte
}

// NewArena mmaps size bytes and returns an Arena addressable starting at
// base. base and size must both be page-aligned; otherwise it returns an
// error.
func NewArena(base PhysicalPtr, size uintptr) (*Arena, error) {
	if !base.PageAligned() || size%PageSize != 0 {
		return nil, fmt.Errorf("mem: arena base/size must be page-aligned")
	}
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mem: arena mmap: %w", err)
	}
	return &Arena{base: base, bytes: b}, nil
}

// Region reports the PhysicalRegion the arena covers, for feeding into
// NewPageAllocator.
func (a *Arena) Region() PhysicalRegion {
	return PhysicalRegion{Start: a.base, Size: uintptr(len(a.bytes))}
}

// DirectMap returns a byte slice of length n backed by the arena starting at
// physical address p. It panics (rather than returning an error) on an
// out-of-range request: a caller presenting an address outside the arena is
// an internal invariant violation, not a recoverable condition.
func (a *Arena) DirectMap(p PhysicalPtr, n uintptr) []byte {
	if p < a.base || uintptr(p-a.base)+n > uintptr(len(a.bytes)) {
		panic(fmt.Sprintf("mem: direct map out of range: %#x len %d", p, n))
	}
	off := uintptr(p - a.base)
	return a.bytes[off : off+n]
}

// Close releases the backing mmap. Arenas are process-wide singletons in
// normal operation; Close exists for test teardown.
func (a *Arena) Close() error {
	if a.bytes == nil {
		return nil
	}
	err := unix.Munmap(a.bytes)
	a.bytes = nil
	return err
}
