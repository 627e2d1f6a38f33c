package syscall

import (
	"bekkernel/buffer"
	"bekkernel/entity"
	"bekkernel/errs"
	"bekkernel/proc"
)

// sysListDevices implements §6.1 ListDevices: (buf, len, protocol_filter)
// -> 0 or -errno (EOVERFLOW if too small).
func sysListDevices(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}
	items := k.Devices.List(errs.DeviceProtocol(a.A3))

	var raw []byte
	for _, item := range items {
		kb := buffer.NewBitwiseObjectBuffer(&item)
		rec := make([]byte, kb.Size())
		kb.ReadTo(rec, 0)
		raw = append(raw, rec...)
	}

	if uint64(len(raw)) > a.A2 {
		return errs.EOVERFLOW.Negated()
	}
	return writeUserBytes(k, us, a.A1, a.A2, raw).Negated()
}

// sysOpenDevice implements §6.1 OpenDevice: (path_ptr, path_len) -> fd or
// -errno. "path" here names a device-registry entry, e.g. "blk0".
func sysOpenDevice(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}
	name, perr := readUserPath(k, us, a.A1, a.A2)
	if !perr.Ok() {
		return perr.Negated()
	}
	dev, ok := k.Devices.Get(name.String())
	if !ok {
		return errs.ENODEV.Negated()
	}
	handle := entity.NewDeviceHandle(dev)
	fd := us.OpenEntities.Install(handle, 0)
	handle.Release()
	return int64(fd)
}

// sysCommandDevice implements §6.1 CommandDevice: (fd, id, buf, len) ->
// device-defined or -errno. buf/len is an in/out buffer: the device's
// response, if any, overwrites the first n bytes the command returns.
func sysCommandDevice(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}
	h, ok := us.OpenEntities.Get(int(int64(a.A1)))
	if !ok {
		return errs.EBADF.Negated()
	}

	length := a.A4
	kbuf := make([]byte, length)
	ub := userBuffer(k, us, a.A3, length)
	if err := buffer.ReadObject(ub, kbuf, 0); !err.Ok() {
		return err.Negated()
	}

	n, merr := h.Message(a.A2, kbuf)
	if !merr.Ok() {
		return merr.Negated()
	}
	if werr := writeUserBytes(k, us, a.A3, length, kbuf[:n]); !werr.Ok() {
		return werr.Negated()
	}
	return int64(n)
}
