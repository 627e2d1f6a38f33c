package syscall

import (
	"bekkernel/buffer"
	"bekkernel/errs"
	"bekkernel/kstr"
	"bekkernel/mem"
	"bekkernel/proc"
)

// writeUserObject serialises v as raw bytes (via buffer.BitwiseObjectBuffer)
// and copies them into the caller's buffer at ptr, for fixed-layout output
// parameters like CreatePipe's out_handles_ptr.
func writeUserObject[T any](k *Kernel, us *proc.UserspaceState, ptr uint64, v *T) errs.Err_t {
	kb := buffer.NewBitwiseObjectBuffer(v)
	raw := make([]byte, kb.Size())
	if _, err := kb.ReadTo(raw, 0); !err.Ok() {
		return err
	}
	return writeUserBytes(k, us, ptr, uint64(len(raw)), raw)
}

// userBuffer builds a buffer.UserBuffer over [ptr, ptr+length) in us's
// address space, the constructor every handler uses before touching a
// pointer/length argument pair (§4.11).
func userBuffer(k *Kernel, us *proc.UserspaceState, ptr uint64, length uint64) buffer.UserBuffer {
	return buffer.UserBuffer{Space: us.Space, Arena: k.Arena, Ptr: mem.UserPtr(ptr), Len: uintptr(length)}
}

// readUserPath copies pathLen bytes from the caller's (ptr, len) argument
// pair into a kstr.Str, failing EFBIG on absurd lengths before allocating.
func readUserPath(k *Kernel, us *proc.UserspaceState, ptr uint64, pathLen uint64) (kstr.Str, errs.Err_t) {
	const maxPath = 4096
	if pathLen > maxPath {
		return nil, errs.EFBIG
	}
	buf := make([]byte, pathLen)
	ub := userBuffer(k, us, ptr, pathLen)
	if err := buffer.ReadObject(ub, buf, 0); !err.Ok() {
		return nil, err
	}
	return kstr.MkStrSlice(buf), errs.ESUCCESS
}

// writeUserBytes copies src into the caller's (ptr, len) argument pair,
// failing EOVERFLOW if src does not fit.
func writeUserBytes(k *Kernel, us *proc.UserspaceState, ptr uint64, capacity uint64, src []byte) errs.Err_t {
	if uint64(len(src)) > capacity {
		return errs.EOVERFLOW
	}
	ub := userBuffer(k, us, ptr, uint64(len(src)))
	n, err := ub.WriteFrom(src, 0)
	if !err.Ok() {
		return err
	}
	if n != len(src) {
		return errs.EFAULT
	}
	return errs.ESUCCESS
}
