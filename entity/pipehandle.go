package entity

import (
	"bekkernel/abi"
	"bekkernel/errs"
	"bekkernel/pipe"
)

// PipeHandle wraps a shared Pipe as either the reader or the writer end
// (§3, §4.12): "one PipeHandle with the reader capability and one with the
// writer".
type PipeHandle struct {
	BaseHandle
	Pipe     *pipe.Pipe
	IsWriter bool
	Blocking bool
}

func NewPipeHandle(p *pipe.Pipe, isWriter, blocking bool) *PipeHandle {
	p.Retain()
	h := &PipeHandle{Pipe: p, IsWriter: isWriter, Blocking: blocking}
	h.refcount = 1
	return h
}

func (p *PipeHandle) Read(buf []byte, _ int64) (int, errs.Err_t) {
	if p.IsWriter {
		return 0, errs.ENOTSUP
	}
	return p.Pipe.Read(buf, p.Blocking)
}

func (p *PipeHandle) Write(buf []byte, _ int64) (int, errs.Err_t) {
	if !p.IsWriter {
		return 0, errs.ENOTSUP
	}
	return p.Pipe.Write(buf, p.Blocking)
}

func (p *PipeHandle) Seek(abi.SeekLocation, int64) (int64, errs.Err_t) {
	return 0, errs.ESPIPE
}

func (p *PipeHandle) Close() errs.Err_t {
	if p.IsWriter {
		p.Pipe.CloseWriter()
	} else {
		p.Pipe.CloseReader()
	}
	if p.Pipe.Release() {
		// Nothing to free explicitly; the ring buffer and Pipe value are
		// reclaimed by the garbage collector once both handles drop it.
	}
	return errs.ESUCCESS
}
