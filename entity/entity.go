// Package entity implements the Entity capability set and per-process
// handle table of §3 ("Entities and handles"): the polymorphic subject of
// file-descriptor-like operations, covering FileHandle, PipeHandle,
// DeviceHandle, Null, ServerHandle, and ConnectionHandle.
//
// Grounded on the teacher's fd.Fd_t/Cwd_t (entity/fd.go): Fd_t's
// Fops-plus-Perms shape generalises into the Entity interface plus a
// BaseHandle default set (the object-safe-trait-with-reference-counted-
// handles design §9 calls for, since the handle-variant set here is
// extensible by device class); Cwd_t generalises into proc's
// UserspaceState.Cwd, not this package, since cwd is a per-process concept
// rather than a handle-table slot.
package entity

import (
	"sync"
	"sync/atomic"

	"bekkernel/abi"
	"bekkernel/errs"
)

// Entity is the capability set every handle-table slot implements:
// read, write, seek and message, plus Close and reference counting. There
// is no configure operation.
type Entity interface {
	Read(buf []byte, offset int64) (int, errs.Err_t)
	Write(buf []byte, offset int64) (int, errs.Err_t)
	Seek(loc abi.SeekLocation, offset int64) (int64, errs.Err_t)
	// Message forwards a device- or protocol-defined command (DeviceHandle's
	// CommandDevice, or Interlink's send/receive); id and buf are opaque to
	// the Entity interface itself.
	Message(id uint64, buf []byte) (int, errs.Err_t)
	Close() errs.Err_t
	Retain()
	Release() bool
}

// BaseHandle supplies ENOTSUP for every operation a concrete Entity variant
// does not support, the same default-everything-unsupported shape as
// fs.BaseEntry.
type BaseHandle struct {
	refcount int32
}

func (h *BaseHandle) Retain() { atomic.AddInt32(&h.refcount, 1) }
func (h *BaseHandle) Release() bool {
	return atomic.AddInt32(&h.refcount, -1) == 0
}

func (BaseHandle) Read([]byte, int64) (int, errs.Err_t)         { return 0, errs.ENOTSUP }
func (BaseHandle) Write([]byte, int64) (int, errs.Err_t)        { return 0, errs.ENOTSUP }
func (BaseHandle) Seek(abi.SeekLocation, int64) (int64, errs.Err_t) { return 0, errs.ENOTSUP }
func (BaseHandle) Message(uint64, []byte) (int, errs.Err_t)     { return 0, errs.ENOTSUP }
func (BaseHandle) Close() errs.Err_t                            { return errs.ESUCCESS }

// Null is /dev/null's Entity: reads report EOF, writes discard and report
// success.
type Null struct{ BaseHandle }

func NewNull() *Null { n := &Null{}; n.refcount = 1; return n }

func (*Null) Read([]byte, int64) (int, errs.Err_t)  { return 0, errs.ESUCCESS }
func (*Null) Write(buf []byte, _ int64) (int, errs.Err_t) { return len(buf), errs.ESUCCESS }

// Slot is one entry of a process's handle table: the handle plus its
// duplication group (§3: "{handle, group} pairs").
type Slot struct {
	Handle Entity
	Group  int
}

// Table is a process's sparse FD table, indexed by small non-negative
// integers.
type Table struct {
	mu    sync.Mutex
	slots map[int]Slot
	next  int
}

// NewTable returns an empty handle table.
func NewTable() *Table {
	return &Table{slots: make(map[int]Slot)}
}

// Install allocates the lowest free slot for h (retaining a reference) and
// returns its index.
func (t *Table) Install(h Entity, group int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	h.Retain()
	for idx := 0; ; idx++ {
		if _, used := t.slots[idx]; !used {
			t.slots[idx] = Slot{Handle: h, Group: group}
			return idx
		}
	}
}

// InstallAt installs h at a specific slot index, failing EEXIST if occupied.
func (t *Table) InstallAt(idx int, h Entity, group int) errs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, used := t.slots[idx]; used {
		return errs.EEXIST
	}
	h.Retain()
	t.slots[idx] = Slot{Handle: h, Group: group}
	return errs.ESUCCESS
}

// Get looks up slot idx.
func (t *Table) Get(idx int) (Entity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[idx]
	if !ok {
		return nil, false
	}
	return s.Handle, true
}

// Close releases slot idx, closing and releasing the underlying handle if
// this was its last reference.
func (t *Table) Close(idx int) errs.Err_t {
	t.mu.Lock()
	s, ok := t.slots[idx]
	if !ok {
		t.mu.Unlock()
		return errs.EBADF
	}
	delete(t.slots, idx)
	t.mu.Unlock()

	if s.Handle.Release() {
		return s.Handle.Close()
	}
	return errs.ESUCCESS
}

// Duplicate creates a new slot (at newIdx, or the lowest free slot if
// newIdx is abi.InvalidEntityID) referencing the same handle as oldIdx
// (§3: "duplication creates a new slot pointing at the same handle").
func (t *Table) Duplicate(oldIdx int, newIdx int, group int) (int, errs.Err_t) {
	t.mu.Lock()
	s, ok := t.slots[oldIdx]
	t.mu.Unlock()
	if !ok {
		return 0, errs.EBADF
	}
	if newIdx == int(abi.InvalidEntityID) {
		return t.Install(s.Handle, group), errs.ESUCCESS
	}
	if err := t.InstallAt(newIdx, s.Handle, group); err != errs.ESUCCESS {
		return 0, err
	}
	return newIdx, errs.ESUCCESS
}

// CloseAll releases every slot, for process exit.
func (t *Table) CloseAll() {
	t.mu.Lock()
	idxs := make([]int, 0, len(t.slots))
	for idx := range t.slots {
		idxs = append(idxs, idx)
	}
	t.mu.Unlock()
	for _, idx := range idxs {
		t.Close(idx)
	}
}

// CloneForFork duplicates every slot into a fresh table, ref-counting each
// handle (§4.10 Fork: "duplicates the open-entities table, ref-counting
// each handle").
func (t *Table) CloneForFork() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	child := NewTable()
	for idx, s := range t.slots {
		s.Handle.Retain()
		child.slots[idx] = s
	}
	child.next = t.next
	return child
}
