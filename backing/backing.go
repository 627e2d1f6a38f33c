// Package backing implements the BackingRegion variants of §3/§4.4: the
// kernel objects that know how to map themselves into a page table with
// given permissions, and how to produce a clone (alias or eager copy) for a
// forking child.
//
// Grounded on the teacher's vm.Vmregion_t / Vm_t anonymous-vs-file-backed
// region split (buffer/as.go, Vmadd_anon/Vmadd_file/Vmadd_shareanon),
// generalised into the spec's closed three-variant tagged design (§9:
// "model each as a tagged enum when the variant set is closed").
package backing

import (
	"fmt"
	"sync/atomic"

	"bekkernel/mem"
	"bekkernel/table"
	"bekkernel/util"
)

// Region is the capability set every backing-region variant implements.
type Region interface {
	MapIntoTable(t *table.Manager, virt mem.VirtualPtr, perms mem.Attrs) bool
	UnmapFromTable(t *table.Manager, virt mem.VirtualPtr) bool
	Size() uintptr
	CloneForFork(perms mem.Attrs) (Region, error)
	Retain()
	Release() bool // true if this was the last reference
}

// refcount is embedded by every variant for the ref-counted ownership model
// of §5 ("the sole owners; when the last reference drops, destruction is
// immediate and recursive").
type refcount struct {
	n int32
}

func (r *refcount) Retain() { atomic.AddInt32(&r.n, 1) }
func (r *refcount) Release() bool {
	return atomic.AddInt32(&r.n, -1) == 0
}

// UserOwnedAllocation is a contiguous run of kernel-allocated physical
// pages, with a kernel-virtual direct-mapped view so the kernel can memcpy
// into the pages directly (e.g. to populate argv/env on exec, or to service
// a FileHandle::read into an anonymous region).
type UserOwnedAllocation struct {
	refcount
	pages  *mem.PageAllocator
	arena  *mem.Arena
	region mem.PhysicalRegion
	memtype mem.MemType
}

// NewUserOwnedAllocation allocates size bytes (rounded up to whole pages)
// from pages and returns the backing region with one reference held.
func NewUserOwnedAllocation(pages *mem.PageAllocator, arena *mem.Arena, size uintptr) (*UserOwnedAllocation, error) {
	n := int(util.Roundup(size, uintptr(mem.PageSize)) / mem.PageSize)
	r, ok := pages.AllocateRegion(n)
	if !ok {
		return nil, fmt.Errorf("backing: out of memory allocating %d pages", n)
	}
	u := &UserOwnedAllocation{pages: pages, arena: arena, region: r, memtype: mem.NormalRAM}
	u.n = 1
	return u, nil
}

func (u *UserOwnedAllocation) Size() uintptr { return u.region.Size }

func (u *UserOwnedAllocation) MapIntoTable(t *table.Manager, virt mem.VirtualPtr, perms mem.Attrs) bool {
	return t.MapRegion(virt, u.region.Start, u.region.Size, perms, u.memtype)
}

func (u *UserOwnedAllocation) UnmapFromTable(t *table.Manager, virt mem.VirtualPtr) bool {
	return t.UnmapRegion(virt, u.region.Size)
}

// KernelView returns a byte slice over the allocation's pages, for kernel
// code (exec argv/env setup, Interlink memory-item staging) that needs to
// populate the pages directly without going through a TransactionalBuffer.
func (u *UserOwnedAllocation) KernelView() []byte {
	return u.arena.DirectMap(u.region.Start, u.region.Size)
}

// CloneForFork implements §4.4: a read-only region is aliased (the clone
// shares physical pages, ref-counted); a writable region is eagerly copied,
// since this design does not implement copy-on-write (§1 Non-goals).
func (u *UserOwnedAllocation) CloneForFork(perms mem.Attrs) (Region, error) {
	if !perms.Has(mem.Writable) {
		u.Retain()
		return u, nil
	}
	clone, err := NewUserOwnedAllocation(u.pages, u.arena, u.region.Size)
	if err != nil {
		return nil, err
	}
	copy(clone.KernelView(), u.KernelView())
	return clone, nil
}

// Free returns the backing pages to the allocator. Callers must only call
// this after Release() reports the last reference dropped.
func (u *UserOwnedAllocation) Free() error {
	return u.pages.FreeRegion(u.region.Start)
}

// DeviceBackedRegion is a fixed PhysicalRegion of device MMIO: it is never
// allocated or freed by the page allocator, and forking always aliases it
// (a device has exactly one physical location regardless of which process
// maps it).
type DeviceBackedRegion struct {
	refcount
	region  mem.PhysicalRegion
	memtype mem.MemType
}

// NewDeviceBackedRegion wraps an MMIO physical range discovered by the
// device-tree probe pipeline.
func NewDeviceBackedRegion(region mem.PhysicalRegion) *DeviceBackedRegion {
	d := &DeviceBackedRegion{region: region, memtype: mem.MMIO}
	d.n = 1
	return d
}

func (d *DeviceBackedRegion) Size() uintptr { return d.region.Size }

func (d *DeviceBackedRegion) MapIntoTable(t *table.Manager, virt mem.VirtualPtr, perms mem.Attrs) bool {
	return t.MapRegion(virt, d.region.Start, d.region.Size, perms, d.memtype)
}

func (d *DeviceBackedRegion) UnmapFromTable(t *table.Manager, virt mem.VirtualPtr) bool {
	return t.UnmapRegion(virt, d.region.Size)
}

func (d *DeviceBackedRegion) CloneForFork(mem.Attrs) (Region, error) {
	d.Retain()
	return d, nil
}

// Shareable wraps any Region to hand it to another process (via Interlink's
// MEMORY payload item) without disturbing the original owner's backing.
// Mapping a Shareable maps the same underlying physical pages; forking a
// Shareable always aliases, regardless of permissions, since the whole
// point of a Shareable is that it is jointly owned.
type Shareable struct {
	refcount
	inner Region
}

// NewShareable wraps inner, retaining a reference to it for the lifetime of
// the Shareable.
func NewShareable(inner Region) *Shareable {
	inner.Retain()
	s := &Shareable{inner: inner}
	s.n = 1
	return s
}

func (s *Shareable) Size() uintptr { return s.inner.Size() }

func (s *Shareable) MapIntoTable(t *table.Manager, virt mem.VirtualPtr, perms mem.Attrs) bool {
	return s.inner.MapIntoTable(t, virt, perms)
}

func (s *Shareable) UnmapFromTable(t *table.Manager, virt mem.VirtualPtr) bool {
	return s.inner.UnmapFromTable(t, virt)
}

func (s *Shareable) CloneForFork(mem.Attrs) (Region, error) {
	s.Retain()
	return s, nil
}

// Unwrap returns the region shared through this Shareable, for callers
// (Interlink receive) that need to re-wrap it in a fresh Shareable for a
// third party.
func (s *Shareable) Unwrap() Region { return s.inner }
