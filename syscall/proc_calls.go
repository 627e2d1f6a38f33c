package syscall

import (
	"bekkernel/errs"
	fspkg "bekkernel/fs"
	"bekkernel/proc"
)

// sysGetPid implements §6.1 GetPid: () -> pid.
func sysGetPid(k *Kernel, p *proc.Process, a Args) int64 {
	return p.Pid()
}

// sysFork implements §6.1 Fork: () -> child pid in parent, 0 in child, or
// -errno. The "0 in the child" half of this contract is not this
// handler's return value: proc.Manager.Fork stores it in the child's
// SavedRegisters.ReturnValue, where it is recorded only, since this
// simulation has no scheduler that restores saved registers (§9: a
// parameter threaded through dispatch, not a literal second return from
// this call, since Go cannot clone a running goroutine's stack).
func sysFork(k *Kernel, p *proc.Process, a Args) int64 {
	if a.FromInterrupt {
		return errs.ENOTSUP.Negated()
	}
	child, err := k.Procs.Fork(p, func(*proc.Process) {})
	if !err.Ok() {
		return err.Negated()
	}
	return child.Pid()
}

// sysExit implements §6.1 Exit: (code) -> never returns. The dispatcher
// still returns a value to keep Number -> handlerFunc uniform; callers
// must treat any return from the process after this handler runs as
// unreachable.
func sysExit(k *Kernel, p *proc.Process, a Args) int64 {
	if us, uerr := userspaceOf(p); uerr.Ok() {
		us.OpenEntities.CloseAll()
	}
	k.Procs.ReparentOrphans(p)
	p.QuitProcess(int(int32(a.A1)))
	return 0
}

// sysWait implements §6.1 Wait: (pid, status_out) -> pid or -errno.
func sysWait(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}
	if a.FromInterrupt {
		return errs.EAGAIN.Negated()
	}

	childPid, code, werr := k.Procs.Wait(p, int64(a.A1))
	if !werr.Ok() {
		return werr.Negated()
	}

	if a.A2 != 0 {
		status := int64(code)
		if serr := writeUserObject(k, us, a.A2, &status); !serr.Ok() {
			return serr.Negated()
		}
	}
	return childPid
}

// sysChangeWorkingDirectory implements §6.1 ChangeWorkingDirectory:
// (path, path_len) -> 0 or -errno.
func sysChangeWorkingDirectory(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}
	path, perr := readUserPath(k, us, a.A1, a.A2)
	if !perr.Ok() {
		return perr.Negated()
	}
	found, rerr := fspkg.Resolve(currentRoot(k), us.Cwd, path, nil)
	if !rerr.Ok() {
		return rerr.Negated()
	}
	if found.Kind() != fspkg.KindDirectory {
		return errs.ENOTDIR.Negated()
	}
	us.Cwd = found
	return errs.ESUCCESS.Negated()
}
