package buffer

import "bekkernel/errs"

// Subset is a zero-copy window onto another TransactionalBuffer, covering
// [offset, offset+length) of the inner buffer.
type Subset struct {
	Inner  TransactionalBuffer
	Offset uintptr
	Length uintptr
}

func (s Subset) Size() uintptr { return s.Length }

func (s Subset) WriteFrom(src []byte, offset uintptr) (int, errs.Err_t) {
	if offset+uintptr(len(src)) > s.Length {
		return 0, errs.EFAULT
	}
	return s.Inner.WriteFrom(src, s.Offset+offset)
}

func (s Subset) ReadTo(dst []byte, offset uintptr) (int, errs.Err_t) {
	if offset+uintptr(len(dst)) > s.Length {
		return 0, errs.EFAULT
	}
	return s.Inner.ReadTo(dst, s.Offset+offset)
}
