package buffer

import "bekkernel/errs"

// IovecBuffer presents a sequence of TransactionalBuffers as a single
// logical buffer, read or written in order. It grounds the split
// virtqueue's "ordered list of (buffer, IN|OUT)" transfer shape (§3 Virtio
// split virtqueue) on the teacher's Useriovec_t, which walked a sequence of
// per-segment Userbuf_t the same way.
type IovecBuffer struct {
	Segments []TransactionalBuffer
}

func (v IovecBuffer) Size() uintptr {
	var total uintptr
	for _, s := range v.Segments {
		total += s.Size()
	}
	return total
}

// locate finds which segment offset falls in and the offset within it.
func (v IovecBuffer) locate(offset uintptr) (int, uintptr, bool) {
	for i, s := range v.Segments {
		if offset < s.Size() {
			return i, offset, true
		}
		offset -= s.Size()
	}
	return 0, 0, false
}

func (v IovecBuffer) WriteFrom(src []byte, offset uintptr) (int, errs.Err_t) {
	total := 0
	for len(src) > 0 {
		idx, segOff, ok := v.locate(offset)
		if !ok {
			if total == 0 {
				return 0, errs.EFAULT
			}
			break
		}
		seg := v.Segments[idx]
		chunk := src
		if avail := seg.Size() - segOff; uintptr(len(chunk)) > avail {
			chunk = chunk[:avail]
		}
		n, err := seg.WriteFrom(chunk, segOff)
		total += n
		if !err.Ok() {
			return total, err
		}
		src = src[n:]
		offset += uintptr(n)
		if n == 0 {
			break
		}
	}
	return total, errs.ESUCCESS
}

func (v IovecBuffer) ReadTo(dst []byte, offset uintptr) (int, errs.Err_t) {
	total := 0
	for len(dst) > 0 {
		idx, segOff, ok := v.locate(offset)
		if !ok {
			if total == 0 {
				return 0, errs.EFAULT
			}
			break
		}
		seg := v.Segments[idx]
		chunk := dst
		if avail := seg.Size() - segOff; uintptr(len(chunk)) > avail {
			chunk = chunk[:avail]
		}
		n, err := seg.ReadTo(chunk, segOff)
		total += n
		if !err.Ok() {
			return total, err
		}
		dst = dst[n:]
		offset += uintptr(n)
		if n == 0 {
			break
		}
	}
	return total, errs.ESUCCESS
}
