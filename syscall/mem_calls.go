package syscall

import (
	"bekkernel/abi"
	"bekkernel/mem"
	"bekkernel/proc"
)

// sysAllocate implements §6.1 Allocate: (addr_hint, size, flags) -> user
// addr or -errno; hint = INVALID_ADDRESS_VAL means kernel-chosen. flags is
// a mem.Attrs bit set (Readable/Writable/Executable); UserAccessible is
// always implied since the mapping serves a user process.
func sysAllocate(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}

	perms := mem.Attrs(a.A3) | mem.UserAccessible
	var hint *mem.UserPtr
	if a.A1 != abi.InvalidAddress {
		h := mem.UserPtr(a.A1)
		hint = &h
	}

	if hint != nil {
		if _, err := us.Space.AllocatePlacedRegion(mem.UserRegion{Start: *hint, Size: uintptr(a.A2)}, perms, "user-alloc"); !err.Ok() {
			return err.Negated()
		}
		return int64(*hint)
	}

	region, err := us.Space.AllocateFlexibleRegion(uintptr(a.A2), perms, "user-alloc", nil)
	if !err.Ok() {
		return err.Negated()
	}
	return int64(region.Start)
}

// sysDeallocate implements §6.1 Deallocate: (addr, size) -> 0 or -errno.
func sysDeallocate(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}
	return us.Space.DeallocateRegion(mem.UserPtr(a.A1), uintptr(a.A2)).Negated()
}
