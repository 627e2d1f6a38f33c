package buffer

import (
	"bekkernel/errs"
	"bekkernel/mem"
	"bekkernel/table"
)

// spaceChecker is the subset of space.Manager that UserBuffer needs,
// satisfied by *space.Manager; kept as an interface so tests can substitute
// a fake without constructing a full address space.
type spaceChecker interface {
	CheckRegion(ptr mem.UserPtr, size uintptr, op mem.Attrs) bool
	Table() *table.Manager
}

// UserBuffer is a TransactionalBuffer over a range of a process's user
// virtual address space. Every WriteFrom/ReadTo call re-validates the
// requested range against the owning process's space.Manager before
// touching memory, per §4.5 and tested by scenario S5 (a write through a
// read-only mapping must fail EFAULT without perturbing the region).
type UserBuffer struct {
	Space spaceChecker
	Arena *mem.Arena
	Ptr   mem.UserPtr
	Len   uintptr
}

func (u UserBuffer) Size() uintptr { return u.Len }

// WriteFrom requires Writable permission on the covered range: the kernel
// is writing data (e.g. file contents) into user memory.
func (u UserBuffer) WriteFrom(src []byte, offset uintptr) (int, errs.Err_t) {
	n := uintptr(len(src))
	if offset+n > u.Len {
		return 0, errs.EFAULT
	}
	if !u.Space.CheckRegion(u.Ptr+mem.UserPtr(offset), n, mem.Writable) {
		return 0, errs.EFAULT
	}
	return u.copyThroughPages(src, offset, true)
}

// ReadTo requires Readable permission on the covered range: the kernel is
// reading caller-supplied data (e.g. write(2) payload) out of user memory.
func (u UserBuffer) ReadTo(dst []byte, offset uintptr) (int, errs.Err_t) {
	n := uintptr(len(dst))
	if offset+n > u.Len {
		return 0, errs.EFAULT
	}
	if !u.Space.CheckRegion(u.Ptr+mem.UserPtr(offset), n, mem.Readable) {
		return 0, errs.EFAULT
	}
	return u.copyThroughPages(dst, offset, false)
}

// copyThroughPages walks the virtual range page by page, translating each
// page through the table manager and memcpying against the arena's direct
// map. toUser selects direction: true copies buf into user memory, false
// copies user memory into buf.
func (u UserBuffer) copyThroughPages(buf []byte, offset uintptr, toUser bool) (int, errs.Err_t) {
	remaining := len(buf)
	bufOff := 0
	virt := u.Ptr + mem.UserPtr(offset)

	for remaining > 0 {
		pageOff := uintptr(virt) & (mem.PageSize - 1)
		chunk := int(mem.PageSize - pageOff)
		if chunk > remaining {
			chunk = remaining
		}
		phys, _, ok := u.Space.Table().Translate(virt)
		if !ok {
			return bufOff, errs.EFAULT
		}
		page := u.Arena.DirectMap(phys, uintptr(chunk))
		if toUser {
			copy(page, buf[bufOff:bufOff+chunk])
		} else {
			copy(buf[bufOff:bufOff+chunk], page)
		}
		remaining -= chunk
		bufOff += chunk
		virt += mem.VirtualPtr(chunk)
	}
	return bufOff, errs.ESUCCESS
}
