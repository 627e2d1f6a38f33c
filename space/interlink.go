package space

import (
	"bekkernel/backing"
	"bekkernel/errs"
	"bekkernel/interlink"
	"bekkernel/mem"
)

// InterlinkTarget exposes a Manager as an interlink.SpaceTarget, bridging
// the wire format's raw (ptr, size) fields to this package's mem.UserPtr
// API for the MEMORY payload item of §4.13/§6.5.
type InterlinkTarget struct{ M *Manager }

func (a InterlinkTarget) CheckRegion(ptr, size uint64, canRead, canWrite bool) bool {
	var want mem.Attrs
	if canRead {
		want |= mem.Readable
	}
	if canWrite {
		want |= mem.Writable
	}
	return a.M.CheckRegion(mem.UserPtr(ptr), uintptr(size), want)
}

func (a InterlinkTarget) ResolveBacking(ptr, size uint64) (interlink.Backing, errs.Err_t) {
	br, err := a.M.FindBacking(mem.UserPtr(ptr), uintptr(size))
	if err != errs.ESUCCESS {
		return nil, err
	}
	br.Retain()
	return br, errs.ESUCCESS
}

// PlaceShared maps b into the receiver's space at a fresh virtual address
// with the transferred permissions (§4.13: "place the shared backing into
// the receiver's space manager at a fresh virtual address").
func (a InterlinkTarget) PlaceShared(b interlink.Backing, size uint64, canRead, canWrite bool) (uint64, errs.Err_t) {
	region, ok := b.(backing.Region)
	if !ok {
		return 0, errs.EFAULT
	}
	var perms mem.Attrs
	if canRead {
		perms |= mem.Readable
	}
	if canWrite {
		perms |= mem.Writable
	}
	perms |= mem.UserAccessible
	ur, err := a.M.PlaceRegion(nil, perms, "interlink-shared", region)
	if err != errs.ESUCCESS {
		return 0, err
	}
	return uint64(ur.Start), errs.ESUCCESS
}
