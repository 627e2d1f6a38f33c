package buffer

import (
	"unsafe"

	"bekkernel/errs"
)

// BitwiseObjectBuffer holds a value of T and exposes it as a
// TransactionalBuffer of exactly sizeof(T) bytes; only whole-object
// reads/writes from offset 0 are accepted (§4.5, §8 invariant 8: a
// write-then-read round trip through a BitwiseObjectBuffer[T] yields the
// original T for any T whose size equals the buffer size).
//
// T must not embed pointers, slices, maps, or interfaces: the reinterpret
// is a raw byte view, the same caveat the teacher's unsafe.Pointer-based
// page/struct reinterpretation carries throughout mem.go and util.go.
type BitwiseObjectBuffer[T any] struct {
	Value *T
}

// NewBitwiseObjectBuffer wraps v.
func NewBitwiseObjectBuffer[T any](v *T) BitwiseObjectBuffer[T] {
	return BitwiseObjectBuffer[T]{Value: v}
}

func (b BitwiseObjectBuffer[T]) Size() uintptr {
	var zero T
	return unsafe.Sizeof(zero)
}

func (b BitwiseObjectBuffer[T]) bytes() []byte {
	size := b.Size()
	return unsafe.Slice((*byte)(unsafe.Pointer(b.Value)), size)
}

func (b BitwiseObjectBuffer[T]) WriteFrom(src []byte, offset uintptr) (int, errs.Err_t) {
	if offset != 0 || uintptr(len(src)) != b.Size() {
		return 0, errs.EFAULT
	}
	copy(b.bytes(), src)
	return len(src), errs.ESUCCESS
}

func (b BitwiseObjectBuffer[T]) ReadTo(dst []byte, offset uintptr) (int, errs.Err_t) {
	if offset != 0 || uintptr(len(dst)) != b.Size() {
		return 0, errs.EFAULT
	}
	copy(dst, b.bytes())
	return len(dst), errs.ESUCCESS
}
