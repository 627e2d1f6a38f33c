package syscall

import (
	"bekkernel/buffer"
	"bekkernel/entity"
	"bekkernel/errs"
	"bekkernel/proc"
	"bekkernel/space"
)

// sysInterlinkAdvertise implements §6.1 InterlinkAdvertise: (addr, addr_len,
// group) -> fd or -errno. group is accepted for ABI symmetry with the other
// Interlink calls but unused: this AddressMap has no separate namespaces.
func sysInterlinkAdvertise(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}
	addr, perr := readUserPath(k, us, a.A1, a.A2)
	if !perr.Ok() {
		return perr.Negated()
	}

	srv, err := k.Addresses.Advertise(addr.String())
	if !err.Ok() {
		return err.Negated()
	}
	h := entity.NewServerHandle(k.Addresses, srv, addr.String())
	fd := us.OpenEntities.Install(h, 0)
	h.Release()
	return int64(fd)
}

// sysInterlinkConnect implements §6.1 InterlinkConnect: (addr, addr_len,
// group) -> fd or -errno.
func sysInterlinkConnect(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}
	addr, perr := readUserPath(k, us, a.A1, a.A2)
	if !perr.Ok() {
		return perr.Negated()
	}

	end, err := k.Addresses.Connect(addr.String())
	if !err.Ok() {
		return err.Negated()
	}
	h := entity.NewConnectionHandle(end, us.OpenEntities, space.InterlinkTarget{M: us.Space}, true)
	fd := us.OpenEntities.Install(h, 0)
	h.Release()
	return int64(fd)
}

// sysInterlinkAccept implements §6.1 InterlinkAccept: (server_fd, group,
// blocking) -> fd or -errno.
func sysInterlinkAccept(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}
	raw, ok := us.OpenEntities.Get(int(int64(a.A1)))
	if !ok {
		return errs.EBADF.Negated()
	}
	sh, ok := raw.(*entity.ServerHandle)
	if !ok {
		return errs.ENOTSUP.Negated()
	}

	end, err := sh.Accept()
	if !err.Ok() {
		return err.Negated()
	}
	blocking := a.A3 != 0
	h := entity.NewConnectionHandle(end, us.OpenEntities, space.InterlinkTarget{M: us.Space}, blocking)
	fd := us.OpenEntities.Install(h, 0)
	h.Release()
	return int64(fd)
}

// sysInterlinkSend implements §6.1 InterlinkSend: (conn_fd, data, len) ->
// bytes sent or -errno.
func sysInterlinkSend(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}
	ch, cerr := connectionHandle(us, a.A1)
	if !cerr.Ok() {
		return cerr.Negated()
	}

	length := a.A3
	kbuf := make([]byte, length)
	ub := userBuffer(k, us, a.A2, length)
	if err := buffer.ReadObject(ub, kbuf, 0); !err.Ok() {
		return err.Negated()
	}

	n, werr := ch.Write(kbuf, 0)
	if !werr.Ok() {
		return werr.Negated()
	}
	return int64(n)
}

// sysInterlinkReceive implements §6.1 InterlinkReceive: (conn_fd, buf,
// max_len) -> bytes received or -errno.
func sysInterlinkReceive(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}
	ch, cerr := connectionHandle(us, a.A1)
	if !cerr.Ok() {
		return cerr.Negated()
	}

	length := a.A3
	kbuf := make([]byte, length)
	n, rerr := ch.Read(kbuf, 0)
	if !rerr.Ok() {
		return rerr.Negated()
	}
	if werr := writeUserBytes(k, us, a.A2, length, kbuf[:n]); !werr.Ok() {
		return werr.Negated()
	}
	return int64(n)
}

func connectionHandle(us *proc.UserspaceState, fd uint64) (*entity.ConnectionHandle, errs.Err_t) {
	raw, ok := us.OpenEntities.Get(int(int64(fd)))
	if !ok {
		return nil, errs.EBADF
	}
	ch, ok := raw.(*entity.ConnectionHandle)
	if !ok {
		return nil, errs.ENOTSUP
	}
	return ch, errs.ESUCCESS
}
