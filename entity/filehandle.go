package entity

import (
	"sync"

	"bekkernel/abi"
	"bekkernel/errs"
	fspkg "bekkernel/fs"
)

// FileHandle wraps an fs.Entry plus a seek cursor (§3).
type FileHandle struct {
	BaseHandle
	mu     sync.Mutex
	Entry  fspkg.Entry
	cursor int64
}

func NewFileHandle(e fspkg.Entry) *FileHandle {
	h := &FileHandle{Entry: e}
	h.refcount = 1
	return h
}

func (f *FileHandle) Read(buf []byte, offset int64) (int, errs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at := offset
	if offset == abi.InvalidOffset {
		at = f.cursor
	}
	n, err := f.Entry.ReadBytes(buf, uint64(at))
	if err != errs.ESUCCESS {
		return 0, err
	}
	if offset == abi.InvalidOffset {
		f.cursor += int64(n)
	}
	return n, errs.ESUCCESS
}

func (f *FileHandle) Write(buf []byte, offset int64) (int, errs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at := offset
	if offset == abi.InvalidOffset {
		at = f.cursor
	}
	n, err := f.Entry.WriteBytes(buf, uint64(at))
	if err != errs.ESUCCESS {
		return 0, err
	}
	if offset == abi.InvalidOffset {
		f.cursor += int64(n)
	}
	return n, errs.ESUCCESS
}

func (f *FileHandle) Seek(loc abi.SeekLocation, offset int64) (int64, errs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var base int64
	switch loc {
	case abi.SeekSet:
		base = 0
	case abi.SeekCurrent:
		base = f.cursor
	case abi.SeekEnd:
		base = int64(f.Entry.Size())
	default:
		return 0, errs.EINVAL
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, errs.ESPIPE
	}
	f.cursor = newPos
	return newPos, errs.ESUCCESS
}

func (f *FileHandle) Close() errs.Err_t {
	return f.Entry.Flush()
}
