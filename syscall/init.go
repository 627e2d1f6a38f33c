package syscall

import (
	"bekkernel/entity"
	"bekkernel/errs"
	fspkg "bekkernel/fs"
	"bekkernel/kstr"
	"bekkernel/proc"
)

// Boot loads initPath off the mounted root filesystem and spawns it as pid
// 1, the first user process every other process is eventually re-parented
// to (§4.10's "re-parenting to init"). It is the one caller of loadELF
// outside sysExec itself, since bringing up the very first process can't
// go through a syscall trap — there is no process yet to trap from.
func Boot(k *Kernel, initPath string) (*proc.Process, errs.Err_t) {
	root := k.FS.Root()
	if root == nil {
		return nil, errs.ENODEV
	}
	rootEntry := root.GetRoot()

	found, rerr := fspkg.Resolve(rootEntry, rootEntry, kstr.MkStrSlice([]byte(initPath)), nil)
	if !rerr.Ok() {
		return nil, rerr
	}
	if found.Kind() != fspkg.KindFile {
		return nil, errs.ENOEXEC
	}

	sm, entryPoint, lerr := loadELF(k, found)
	if !lerr.Ok() {
		return nil, lerr
	}
	stackTop, serr := pushInitialStack(k, sm, []string{initPath}, nil)
	if !serr.Ok() {
		return nil, serr
	}

	handles := entity.NewTable()
	init := k.Procs.SpawnUserProcess("init", sm, rootEntry, handles, stackTop, func(p *proc.Process) {
		// A real trap return would jump to p.Userspace().EntryPoint in
		// userspace; this host simulation has no userspace CPU mode to
		// jump into, so the loaded entry point is recorded for
		// inspection (tests, cmd/bekctl) rather than executed.
	})
	init.Userspace().EntryPoint = entryPoint
	return init, errs.ESUCCESS
}
