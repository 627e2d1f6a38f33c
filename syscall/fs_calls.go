package syscall

import (
	"bekkernel/abi"
	"bekkernel/buffer"
	"bekkernel/entity"
	"bekkernel/errs"
	fspkg "bekkernel/fs"
	"bekkernel/kstr"
	"bekkernel/proc"
	"bekkernel/stat"
)

// sysOpen implements §6.1 Open: (path_ptr, path_len, flags, parent_fd,
// out_stat_ptr) -> fd or -errno.
func sysOpen(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}

	path, err := readUserPath(k, us, a.A1, a.A2)
	if !err.Ok() {
		return err.Negated()
	}
	flags := abi.OpenFlags(a.A3)

	cwd, rootErr := resolveCwd(k, us, int64(a.A4))
	if !rootErr.Ok() {
		return rootErr.Negated()
	}

	root := currentRoot(k)
	var parent fspkg.Entry
	found, lookErr := fspkg.Resolve(root, cwd, path, &parent)

	if lookErr == errs.ENOENT {
		if !flags.Has(abi.OpenCreateIfMissing) && !flags.Has(abi.OpenCreateOnly) {
			return errs.ENOENT.Negated()
		}
		if parent == nil {
			return errs.ENOENT.Negated()
		}
		kind := fspkg.KindFile
		if flags.Has(abi.OpenDirectory) {
			kind = fspkg.KindDirectory
		}
		name := lastComponent(path)
		created, cerr := parent.AddChild(name, kind)
		if !cerr.Ok() {
			return cerr.Negated()
		}
		found = created
	} else if !lookErr.Ok() {
		return lookErr.Negated()
	} else if flags.Has(abi.OpenCreateOnly) {
		return errs.EEXIST.Negated()
	}

	if flags.Has(abi.OpenDirectory) && found.Kind() != fspkg.KindDirectory {
		return errs.ENOTDIR.Negated()
	}

	handle := entity.NewFileHandle(found)
	fd := us.OpenEntities.Install(handle, 0)
	handle.Release() // Install retained its own reference; drop the constructor's.

	if a.A5 != abi.InvalidAddress {
		var res stat.Result
		res.FromEntry(found)
		if werr := writeStatResult(k, us, a.A5, &res); !werr.Ok() {
			us.OpenEntities.Close(fd)
			return werr.Negated()
		}
	}

	return int64(fd)
}

// lastComponent returns the final path component of path, for AddChild.
func lastComponent(path kstr.Str) kstr.Str {
	comps := kstr.Split(path)
	if len(comps) == 0 {
		return kstr.MkStr()
	}
	return comps[len(comps)-1]
}

func resolveCwd(k *Kernel, us *proc.UserspaceState, parentFD int64) (fspkg.Entry, errs.Err_t) {
	if parentFD == abi.InvalidEntityID {
		return us.Cwd, errs.ESUCCESS
	}
	h, ok := us.OpenEntities.Get(int(parentFD))
	if !ok {
		return nil, errs.EBADF
	}
	fh, ok := h.(*entity.FileHandle)
	if !ok {
		return nil, errs.ENOTDIR
	}
	return fh.Entry, errs.ESUCCESS
}

func currentRoot(k *Kernel) fspkg.Entry {
	if k.FS == nil {
		return nil
	}
	fsys := k.FS.Root()
	if fsys == nil {
		return nil
	}
	return fsys.GetRoot()
}

// sysClose implements §6.1 Close: (fd) -> 0 or -errno.
func sysClose(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}
	return us.OpenEntities.Close(int(int64(a.A1))).Negated()
}

// sysRead implements §6.1 Read: (fd, offset, buf, len) -> bytes or -errno;
// offset = INVALID_OFFSET_VAL uses the fd's own cursor.
func sysRead(k *Kernel, p *proc.Process, a Args) int64 {
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
	n, rerr := h.Read(kbuf, int64(a.A2))
	if !rerr.Ok() {
		return rerr.Negated()
	}
	if werr := writeUserBytes(k, us, a.A3, length, kbuf[:n]); !werr.Ok() {
		return werr.Negated()
	}
	return int64(n)
}

// sysWrite implements §6.1 Write: (fd, offset, buf, len) -> bytes or -errno.
func sysWrite(k *Kernel, p *proc.Process, a Args) int64 {
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

	n, werr := h.Write(kbuf, int64(a.A2))
	if !werr.Ok() {
		return werr.Negated()
	}
	return int64(n)
}

// sysSeek implements §6.1 Seek: (fd, SeekLocation, offset) -> new cursor or
// -errno.
func sysSeek(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}
	h, ok := us.OpenEntities.Get(int(int64(a.A1)))
	if !ok {
		return errs.EBADF.Negated()
	}
	pos, serr := h.Seek(abi.SeekLocation(a.A2), int64(a.A3))
	if !serr.Ok() {
		return serr.Negated()
	}
	return pos
}

// sysStat implements §6.1 Stat: (fd_or_-1, path_ptr, path_len,
// follow_symlinks, out) -> 0 or -errno. This filesystem never produces
// symlinks, so follow_symlinks is accepted and ignored.
func sysStat(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}

	var target fspkg.Entry
	fd := int64(a.A1)
	if fd != abi.InvalidEntityID {
		h, ok := us.OpenEntities.Get(int(fd))
		if !ok {
			return errs.EBADF.Negated()
		}
		fh, ok := h.(*entity.FileHandle)
		if !ok {
			return errs.ENOTSUP.Negated()
		}
		target = fh.Entry
	} else {
		path, perr := readUserPath(k, us, a.A2, a.A3)
		if !perr.Ok() {
			return perr.Negated()
		}
		found, rerr := fspkg.Resolve(currentRoot(k), us.Cwd, path, nil)
		if !rerr.Ok() {
			return rerr.Negated()
		}
		target = found
	}

	var res stat.Result
	res.FromEntry(target)
	return writeStatResult(k, us, a.A5, &res).Negated()
}

func writeStatResult(k *Kernel, us *proc.UserspaceState, ptr uint64, res *stat.Result) errs.Err_t {
	return writeUserObject(k, us, ptr, res)
}

// dirEntryRecord is the fixed-size on-the-wire shape GetDirEntries copies
// per child: a 55-byte, NUL-padded name, the entry kind, and its size.
type dirEntryRecord struct {
	Name [55]byte
	Kind uint8
	Size uint64
}

// sysGetDirEntries implements §6.1 GetDirEntries: (fd, offset, buf, len) ->
// bytes written or -errno. offset is the child index to resume from (a
// directory-stream cursor), not a byte offset.
func sysGetDirEntries(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}
	h, ok := us.OpenEntities.Get(int(int64(a.A1)))
	if !ok {
		return errs.EBADF.Negated()
	}
	fh, ok := h.(*entity.FileHandle)
	if !ok {
		return errs.ENOTDIR.Negated()
	}
	if fh.Entry.Kind() != fspkg.KindDirectory {
		return errs.ENOTDIR.Negated()
	}

	children, cerr := fh.Entry.AllChildren()
	if !cerr.Ok() {
		return cerr.Negated()
	}

	start := int(a.A2)
	if start > len(children) {
		start = len(children)
	}

	var raw []byte
	recordSize := recordByteSize()
	capacity := a.A4
	for _, child := range children[start:] {
		if uint64(len(raw)+recordSize) > capacity {
			break
		}
		var rec dirEntryRecord
		copy(rec.Name[:], child.Name())
		if child.Kind() == fspkg.KindDirectory {
			rec.Kind = 1
		}
		rec.Size = child.Size()
		raw = append(raw, encodeDirEntry(rec)...)
	}

	if werr := writeUserBytes(k, us, a.A3, capacity, raw); !werr.Ok() {
		return werr.Negated()
	}
	return int64(len(raw))
}

func recordByteSize() int {
	var rec dirEntryRecord
	return len(encodeDirEntry(rec))
}

func encodeDirEntry(rec dirEntryRecord) []byte {
	kb := buffer.NewBitwiseObjectBuffer(&rec)
	raw := make([]byte, kb.Size())
	kb.ReadTo(raw, 0)
	return raw
}

// sysDuplicate implements §6.1 Duplicate: (old_slot, new_slot, group) ->
// new fd or -errno.
func sysDuplicate(k *Kernel, p *proc.Process, a Args) int64 {
	us, uerr := userspaceOf(p)
	if !uerr.Ok() {
		return uerr.Negated()
	}
	newIdx, derr := us.OpenEntities.Duplicate(int(int64(a.A1)), int(int64(a.A2)), int(a.A3))
	if !derr.Ok() {
		return derr.Negated()
	}
	return int64(newIdx)
}
