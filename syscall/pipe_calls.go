package syscall

import (
	"bekkernel/abi"
	"bekkernel/entity"
	"bekkernel/errs"
	"bekkernel/pipe"
	"bekkernel/proc"
)

// pipeFds is the two-word record CreatePipe writes back: reader fd then
// writer fd.
type pipeFds struct {
	Reader int64
	Writer int64
}

// sysCreatePipe implements §6.1 CreatePipe: (out_handles_ptr, flags_u64) ->
// 0 or -errno (§4.12).
func sysCreatePipe(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}

	if k.Limits != nil && !k.Limits.Pipes.Take() {
		return errs.EAGAIN.Negated()
	}

	flags := abi.CreatePipeHandleFlags(a.A2)
	pp := pipe.New(pipe.DefaultSize)
	if k.Limits != nil {
		pp.SetOnReleased(func() { k.Limits.Pipes.Give() })
	}

	reader := entity.NewPipeHandle(pp, false, flags.Has(abi.PipeReaderBlocking))
	writer := entity.NewPipeHandle(pp, true, flags.Has(abi.PipeWriterBlocking))
	pp.Release() // both handles retained pp themselves; drop the constructor's own reference.

	readerFD := us.OpenEntities.Install(reader, 0)
	reader.Release()
	writerFD := us.OpenEntities.Install(writer, 0)
	writer.Release()

	out := pipeFds{Reader: int64(readerFD), Writer: int64(writerFD)}
	if werr := writeUserObject(k, us, a.A1, &out); !werr.Ok() {
		us.OpenEntities.Close(readerFD)
		us.OpenEntities.Close(writerFD)
		return werr.Negated()
	}
	return errs.ESUCCESS.Negated()
}
