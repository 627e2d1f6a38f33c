// Package table implements the 4-level ARMv8-style page-table manager of
// spec §4.3: it maps (virt, phys, size, attrs, memtype) into translation
// tables and produces a root physical pointer per address space.
//
// Grounded on the teacher's mem.Pmap_t / PTE_* constant style (a fixed-size
// array-of-entries table type plus bitfield constants named after the
// hardware), generalised from biscuit's 4-level x86-64 page tables to an
// ARMv8 4KB-granule, 48-bit VA layout: 9 bits per level (L0..L3), 12 bits of
// page offset.
package table

import (
	"fmt"
	"sync"

	"bekkernel/mem"
)

const entriesPerLevel = 512
const levels = 4

// Entry is one descriptor in a translation table. The bit layout below is a
// simplification of the real ARMv8 block/page descriptor format, carrying
// exactly the fields the core's contract (§4.3) requires: validity, table
// vs. block/page, and the {readable,writable,executable,user,device} bits.
type Entry uint64

const (
	entryValid Entry = 1 << 0
	entryTable Entry = 1 << 1 // set on every leaf we create (4KB pages only)
	entryAF    Entry = 1 << 10
	entryUser  Entry = 1 << 6
	entryRO    Entry = 1 << 7
	entryPXN   Entry = 1 << 53 // privileged-execute-never
	entryUXN   Entry = 1 << 54 // unprivileged-execute-never
	entryDevice Entry = 1 << 2 // memtype = device-nGnRE rather than normal RAM
	addrMask   Entry = 0x0000_FFFF_FFFF_F000
)

func (e Entry) valid() bool { return e&entryValid != 0 }

func addrOf(e Entry) mem.PhysicalPtr { return mem.PhysicalPtr(e & addrMask) }

func makeLeaf(phys mem.PhysicalPtr, attrs mem.Attrs, memtype mem.MemType) Entry {
	e := entryValid | entryTable | entryAF | Entry(phys)&addrMask
	if !attrs.Has(mem.Writable) {
		e |= entryRO
	}
	if attrs.Has(mem.UserAccessible) {
		e |= entryUser
	}
	if !attrs.Has(mem.Executable) {
		e |= entryPXN | entryUXN
	}
	if memtype == mem.MMIO {
		e |= entryDevice
	}
	return e
}

func makeTableDescriptor(phys mem.PhysicalPtr) Entry {
	return entryValid | entryTable | Entry(phys)&addrMask
}

// level is a 512-entry translation table page, addressed through the arena.
type level [entriesPerLevel]Entry

// Manager owns one 4-level table rooted at a physical page it allocates
// from the page allocator. One Manager exists per address space (kernel, and
// one per process via space.Manager).
type Manager struct {
	mu    sync.Mutex
	pages *mem.PageAllocator
	arena *mem.Arena
	root  mem.PhysicalPtr
}

// New allocates a fresh root table page and returns a Manager over it.
func New(pages *mem.PageAllocator, arena *mem.Arena) (*Manager, error) {
	root, ok := pages.AllocateRegion(1)
	if !ok {
		return nil, fmt.Errorf("table: out of memory allocating root table")
	}
	zero(arena, root.Start)
	return &Manager{pages: pages, arena: arena, root: root.Start}, nil
}

func zero(arena *mem.Arena, p mem.PhysicalPtr) {
	b := arena.DirectMap(p, mem.PageSize)
	for i := range b {
		b[i] = 0
	}
}

func (m *Manager) levelAt(phys mem.PhysicalPtr) *level {
	return (*level)(levelPtr(m.arena.DirectMap(phys, mem.PageSize)))
}

// RawRootPtr returns the physical pointer to install in the architectural
// translation-table base register when this address space is scheduled.
func (m *Manager) RawRootPtr() mem.PhysicalPtr {
	return m.root
}

func indexFor(virt mem.VirtualPtr, lvl int) int {
	shift := uint(12 + 9*(levels-1-lvl))
	return int((uintptr(virt) >> shift) & (entriesPerLevel - 1))
}

// walkAlloc walks from the root to the leaf's parent table, allocating
// intermediate table pages on demand, and returns that parent table's
// physical address plus the leaf index within it.
func (m *Manager) walkAlloc(virt mem.VirtualPtr) (mem.PhysicalPtr, int, error) {
	cur := m.root
	for lvl := 0; lvl < levels-1; lvl++ {
		tbl := m.levelAt(cur)
		idx := indexFor(virt, lvl)
		e := tbl[idx]
		if !e.valid() {
			next, ok := m.pages.AllocateRegion(1)
			if !ok {
				return 0, 0, fmt.Errorf("table: out of memory allocating level %d", lvl+1)
			}
			zero(m.arena, next.Start)
			tbl[idx] = makeTableDescriptor(next.Start)
			cur = next.Start
		} else {
			cur = addrOf(e)
		}
	}
	return cur, indexFor(virt, levels-1), nil
}

// walkFind walks without allocating, returning ok=false if any intermediate
// table is missing.
func (m *Manager) walkFind(virt mem.VirtualPtr) (mem.PhysicalPtr, int, bool) {
	cur := m.root
	for lvl := 0; lvl < levels-1; lvl++ {
		tbl := m.levelAt(cur)
		idx := indexFor(virt, lvl)
		e := tbl[idx]
		if !e.valid() {
			return 0, 0, false
		}
		cur = addrOf(e)
	}
	return cur, indexFor(virt, levels-1), true
}

// MapRegion maps [virt, virt+size) to a matching run of physical pages
// starting at phys, with the given permissions and memory type. Mappings
// must be page-aligned; remapping an already-mapped virtual address fails
// (§4.3 invariant: "the same virtual address may be remapped only after
// unmap").
func (m *Manager) MapRegion(virt mem.VirtualPtr, phys mem.PhysicalPtr, size uintptr, attrs mem.Attrs, memtype mem.MemType) bool {
	if !virt.PageAligned() || !phys.PageAligned() || size%mem.PageSize != 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int(size / mem.PageSize)
	// Pre-check: refuse if any page in range is already mapped, so a
	// partial failure never leaves a half-mapped region.
	for i := 0; i < n; i++ {
		v := virt + mem.VirtualPtr(i*mem.PageSize)
		if parent, idx, ok := m.walkFind(v); ok {
			if m.levelAt(parent)[idx].valid() {
				return false
			}
		}
	}
	for i := 0; i < n; i++ {
		v := virt + mem.VirtualPtr(i*mem.PageSize)
		p := phys + mem.PhysicalPtr(i*mem.PageSize)
		parent, idx, err := m.walkAlloc(v)
		if err != nil {
			return false
		}
		m.levelAt(parent)[idx] = makeLeaf(p, attrs, memtype)
	}
	return true
}

// UnmapRegion clears [virt, virt+size) of its leaf mappings. It does not
// currently reclaim now-empty intermediate table pages back to the page
// allocator (the core only requires unmap-then-remap to succeed, per §4.3).
func (m *Manager) UnmapRegion(virt mem.VirtualPtr, size uintptr) bool {
	if !virt.PageAligned() || size%mem.PageSize != 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int(size / mem.PageSize)
	for i := 0; i < n; i++ {
		v := virt + mem.VirtualPtr(i*mem.PageSize)
		parent, idx, ok := m.walkFind(v)
		if !ok || !m.levelAt(parent)[idx].valid() {
			return false
		}
	}
	for i := 0; i < n; i++ {
		v := virt + mem.VirtualPtr(i*mem.PageSize)
		parent, idx, _ := m.walkFind(v)
		m.levelAt(parent)[idx] = 0
	}
	return true
}

// Translate resolves a mapped virtual address to its physical address plus
// the attrs it was mapped with, used by UserBuffer validation fast paths and
// by tests.
func (m *Manager) Translate(virt mem.VirtualPtr) (mem.PhysicalPtr, mem.Attrs, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	parent, idx, ok := m.walkFind(virt)
	if !ok {
		return 0, 0, false
	}
	e := m.levelAt(parent)[idx]
	if !e.valid() {
		return 0, 0, false
	}
	attrs := mem.Readable
	if e&entryRO == 0 {
		attrs |= mem.Writable
	}
	if e&entryUser != 0 {
		attrs |= mem.UserAccessible
	}
	if e&entryUXN == 0 {
		attrs |= mem.Executable
	}
	base := addrOf(e)
	off := mem.PhysicalPtr(uintptr(virt) & (mem.PageSize - 1))
	return base + off, attrs, true
}
