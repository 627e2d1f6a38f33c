// Package buffer implements the TransactionalBuffer family of §4.5: the
// mediator for every kernel<->user memory transfer. KernelBuffer is
// trusted; UserBuffer validates every access against the calling process's
// space.Manager; Subset windows zero-copy; BitwiseObjectBuffer exposes a
// single Go value as a fixed-size buffer.
//
// Grounded on the teacher's Userbuf_t/Fakeubuf_t family (buffer/userbuf.go,
// renamed from vm/userbuf.go): ub_init/_tx/Uioread/Uiowrite generalise
// directly into WriteFrom/ReadTo here, with the teacher's raw-pointer
// user-address walk replaced by table.Manager-mediated page translation.
package buffer

import "bekkernel/errs"

// TransactionalBuffer mediates a length-bounded memory region that the
// kernel writes into or reads out of without knowing, at the call site,
// whether the memory is kernel-trusted or must be validated against a
// process's address space.
type TransactionalBuffer interface {
	// Size reports the buffer's total length in bytes.
	Size() uintptr
	// WriteFrom copies up to len(src) bytes from src into the buffer
	// starting at offset, returning the number of bytes written.
	WriteFrom(src []byte, offset uintptr) (int, errs.Err_t)
	// ReadTo copies up to len(dst) bytes from the buffer starting at
	// offset into dst, returning the number of bytes read.
	ReadTo(dst []byte, offset uintptr) (int, errs.Err_t)
}

// KernelBuffer is a trusted buffer directly backed by a kernel byte slice:
// raw memcpy, no permission check.
type KernelBuffer struct {
	Bytes []byte
}

func (b KernelBuffer) Size() uintptr { return uintptr(len(b.Bytes)) }

func (b KernelBuffer) WriteFrom(src []byte, offset uintptr) (int, errs.Err_t) {
	if offset > uintptr(len(b.Bytes)) {
		return 0, errs.EFAULT
	}
	n := copy(b.Bytes[offset:], src)
	return n, errs.ESUCCESS
}

func (b KernelBuffer) ReadTo(dst []byte, offset uintptr) (int, errs.Err_t) {
	if offset > uintptr(len(b.Bytes)) {
		return 0, errs.EFAULT
	}
	n := copy(dst, b.Bytes[offset:])
	return n, errs.ESUCCESS
}

// ReadObject is the read_object<T>-equivalent convenience wrapper: it reads
// exactly n bytes at offset into dst (which must already be sized to n),
// failing EFAULT on any short read.
func ReadObject(b TransactionalBuffer, dst []byte, offset uintptr) errs.Err_t {
	n, err := b.ReadTo(dst, offset)
	if !err.Ok() {
		return err
	}
	if n != len(dst) {
		return errs.EFAULT
	}
	return errs.ESUCCESS
}

// WriteObject is the write_object<T>-equivalent convenience wrapper.
func WriteObject(b TransactionalBuffer, src []byte, offset uintptr) errs.Err_t {
	n, err := b.WriteFrom(src, offset)
	if !err.Ok() {
		return err
	}
	if n != len(src) {
		return errs.EFAULT
	}
	return errs.ESUCCESS
}
