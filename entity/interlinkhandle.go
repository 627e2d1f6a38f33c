package entity

import (
	"bekkernel/abi"
	"bekkernel/errs"
	"bekkernel/interlink"
)

// resolverAdapter exposes a Table as an interlink.EntityResolver, so FD
// payload items can cross between two processes' handle tables without
// package interlink importing package entity (see interlink/message.go's
// EntityResolver doc comment).
type resolverAdapter struct{ t *Table }

func (r resolverAdapter) Lookup(slot int) (interlink.EntityRef, bool) {
	h, ok := r.t.Get(slot)
	return h, ok
}

func (r resolverAdapter) Install(h interlink.EntityRef) int {
	e, ok := h.(Entity)
	if !ok {
		return -1
	}
	return r.t.Install(e, 0)
}

// ServerHandle wraps an advertised Interlink server, exposing Accept
// directly for the syscall layer (§3, §4.13); its Message is BaseHandle's
// ENOTSUP default.
type ServerHandle struct {
	BaseHandle
	Server  *interlink.Server
	Address string
	Map     *interlink.AddressMap
}

func NewServerHandle(m *interlink.AddressMap, s *interlink.Server, address string) *ServerHandle {
	h := &ServerHandle{Server: s, Address: address, Map: m}
	h.refcount = 1
	return h
}

// Accept pops the oldest pending connection and returns a ready-to-wrap
// server-side interlink.End; EAGAIN if none pending.
func (s *ServerHandle) Accept() (*interlink.End, errs.Err_t) {
	return s.Server.Accept()
}

func (*ServerHandle) Seek(abi.SeekLocation, int64) (int64, errs.Err_t) {
	return 0, errs.ESPIPE
}

func (s *ServerHandle) Close() errs.Err_t {
	s.Map.Withdraw(s.Address)
	return errs.ESUCCESS
}

// ConnectionHandle wraps one end of an Interlink connection. Write sends a
// wire-format message (§6.5); Read receives one. Both honor Blocking.
type ConnectionHandle struct {
	BaseHandle
	End      *interlink.End
	Table    *Table
	Space    interlink.SpaceTarget
	Blocking bool
}

func NewConnectionHandle(end *interlink.End, t *Table, space interlink.SpaceTarget, blocking bool) *ConnectionHandle {
	h := &ConnectionHandle{End: end, Table: t, Space: space, Blocking: blocking}
	h.refcount = 1
	return h
}

func (c *ConnectionHandle) Write(buf []byte, _ int64) (int, errs.Err_t) {
	return c.End.Send(buf, resolverAdapter{c.Table}, c.Space, c.Blocking)
}

func (c *ConnectionHandle) Read(buf []byte, _ int64) (int, errs.Err_t) {
	return c.End.Receive(buf, resolverAdapter{c.Table}, c.Space, c.Blocking)
}

func (*ConnectionHandle) Seek(abi.SeekLocation, int64) (int64, errs.Err_t) {
	return 0, errs.ESPIPE
}

func (c *ConnectionHandle) Close() errs.Err_t {
	c.End.Close()
	return errs.ESUCCESS
}
