package syscall

import (
	"debug/elf"
	"io"

	"bekkernel/buffer"
	"bekkernel/entity"
	"bekkernel/errs"
	fspkg "bekkernel/fs"
	"bekkernel/mem"
	"bekkernel/proc"
	"bekkernel/space"
)

// userStackSize is the fixed size given to a freshly exec'd process's
// stack; real bekOS grows stacks lazily, but this rewrite's backing
// regions are fixed-size, so a generous flat allocation stands in (16
// user stack pages).
const userStackSize = 16 * mem.PageSize

// entryReaderAt adapts an fs.Entry to io.ReaderAt, the shape debug/elf
// needs to parse a section-table-driven format without reading the whole
// file up front.
type entryReaderAt struct{ e fspkg.Entry }

func (r entryReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.e.ReadBytes(p, uint64(off))
	if !err.Ok() {
		return n, errs.ErrorFor(err)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// sysExec implements §6.1 Exec: (path, path_len, argv_ptr, argc, envp_ptr,
// envc) -> does not return on success.
//
// Grounded on gokvm's Machine.LoadKernel (debug/elf.NewFile, PT_LOAD
// program-header walk, per-segment ReadAt into the destination address
// space): the same ELF64-load shape, retargeted from a VMM's flat guest
// memory array to this kernel's page-table-backed space.Manager, since no
// third-party ELF-parsing library appears anywhere in the retrieved
// corpus and even gokvm — a real production VMM — reaches for the
// standard library's debug/elf for exactly this job.
func sysExec(k *Kernel, p *proc.Process, a Args) int64 {
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
	if found.Kind() != fspkg.KindFile {
		return errs.ENOEXEC.Negated()
	}

	argv, aerr := readStringVector(k, us, a.A3, a.A4)
	if !aerr.Ok() {
		return aerr.Negated()
	}
	envp, eerr := readStringVector(k, us, a.A5, a.A6)
	if !eerr.Ok() {
		return eerr.Negated()
	}

	newSpace, entryPoint, lerr := loadELF(k, found)
	if !lerr.Ok() {
		return lerr.Negated()
	}

	stackTop, serr := pushInitialStack(k, newSpace, argv, envp)
	if !serr.Ok() {
		return serr.Negated()
	}

	newUS := &proc.UserspaceState{
		UserStackTop: stackTop,
		Cwd:          us.Cwd,
		Space:        newSpace,
		OpenEntities: entity.NewTable(),
		EntryPoint:   entryPoint,
	}
	p.ReplaceUserspace(newUS)
	return errs.ESUCCESS.Negated()
}

// loadELF maps every PT_LOAD segment of the ELF64 executable backing
// entry into a fresh space.Manager, returning the manager and the
// program's entry point.
func loadELF(k *Kernel, entry fspkg.Entry) (*space.Manager, mem.UserPtr, errs.Err_t) {
	f, err := elf.NewFile(entryReaderAt{e: entry})
	if err != nil {
		return nil, 0, errs.ENOEXEC
	}
	defer f.Close()
	if f.Class != elf.ELFCLASS64 {
		return nil, 0, errs.ENOEXEC
	}

	sm, merr := space.New(k.Pages, k.Arena)
	if merr != nil {
		return nil, 0, errs.ENOMEM
	}

	for _, seg := range f.Progs {
		if seg.Type != elf.PT_LOAD {
			continue
		}

		memsz := alignUp(seg.Memsz + (seg.Vaddr & (mem.PageSize - 1)))
		base := mem.UserPtr(seg.Vaddr &^ (mem.PageSize - 1))

		var perms mem.Attrs = mem.UserAccessible
		if seg.Flags&elf.PF_R != 0 {
			perms |= mem.Readable
		}
		if seg.Flags&elf.PF_W != 0 {
			perms |= mem.Writable
		}
		if seg.Flags&elf.PF_X != 0 {
			perms |= mem.Executable
		}

		// Mapped writable regardless of PF_W so the copy below can always
		// go through the same UserBuffer path; a later mprotect-style call
		// to tighten read-only/exec segments back down is future work, not
		// exercised by anything in this rewrite yet.
		region := mem.UserRegion{Start: base, Size: memsz}
		if _, perr := sm.AllocatePlacedRegion(region, perms|mem.Writable, "exec-segment"); !perr.Ok() {
			return nil, 0, perr
		}

		data := make([]byte, seg.Filesz)
		if _, rerr := seg.ReadAt(data, 0); rerr != nil && rerr != io.EOF {
			return nil, 0, errs.ENOEXEC
		}

		ub := buffer.UserBuffer{Space: sm, Arena: k.Arena, Ptr: base, Len: memsz}
		off := uintptr(seg.Vaddr & (mem.PageSize - 1))
		if _, werr := ub.WriteFrom(data, off); !werr.Ok() {
			return nil, 0, werr
		}
	}

	return sm, mem.UserPtr(f.Entry), errs.ESUCCESS
}

func alignUp(n uint64) uintptr {
	const mask = mem.PageSize - 1
	return uintptr((n + mask) &^ mask)
}

// readStringVector reads an argc/envc-style NUL-terminated string array
// out of user memory: vecPtr points to an array of count user pointers,
// each in turn pointing at a NUL-terminated string.
func readStringVector(k *Kernel, us *proc.UserspaceState, vecPtr uint64, count uint64) ([]string, errs.Err_t) {
	if count == 0 {
		return nil, errs.ESUCCESS
	}
	const maxCount = 4096
	if count > maxCount {
		return nil, errs.EFBIG
	}

	ptrs := make([]uint64, count)
	ptrBytes := make([]byte, count*8)
	ub := userBuffer(k, us, vecPtr, count*8)
	if err := buffer.ReadObject(ub, ptrBytes, 0); !err.Ok() {
		return nil, err
	}
	for i := range ptrs {
		ptrs[i] = leUint64(ptrBytes[i*8 : i*8+8])
	}

	const maxStringLen = 4096
	out := make([]string, count)
	for i, sp := range ptrs {
		strBuf := make([]byte, maxStringLen)
		sub := userBuffer(k, us, sp, maxStringLen)
		n, _ := sub.ReadTo(strBuf, 0)
		nul := n
		for j := 0; j < n; j++ {
			if strBuf[j] == 0 {
				nul = j
				break
			}
		}
		out[i] = string(strBuf[:nul])
	}
	return out, errs.ESUCCESS
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// pushInitialStack allocates the exec'd process's stack and writes argv
// and envp strings plus their pointer arrays near its top, POSIX-style.
func pushInitialStack(k *Kernel, sm *space.Manager, argv, envp []string) (mem.UserPtr, errs.Err_t) {
	alloc, err := sm.AllocateFlexibleRegion(userStackSize, mem.Readable|mem.Writable|mem.UserAccessible, "exec-stack", nil)
	if err != errs.ESUCCESS {
		return 0, err
	}

	top := alloc.Start + mem.UserPtr(userStackSize)
	cursor := top

	writeString := func(s string) mem.UserPtr {
		bytes := append([]byte(s), 0)
		cursor -= mem.UserPtr(len(bytes))
		ub := buffer.UserBuffer{Space: sm, Arena: k.Arena, Ptr: cursor, Len: uintptr(len(bytes))}
		ub.WriteFrom(bytes, 0)
		return cursor
	}

	envPtrs := make([]mem.UserPtr, len(envp))
	for i, s := range envp {
		envPtrs[i] = writeString(s)
	}
	argvPtrs := make([]mem.UserPtr, len(argv))
	for i, s := range argv {
		argvPtrs[i] = writeString(s)
	}

	cursor &^= mem.UserPtr(7) // 8-byte align before the pointer arrays

	writePtrArray := func(ptrs []mem.UserPtr) mem.UserPtr {
		n := len(ptrs) + 1 // NULL-terminated
		cursor -= mem.UserPtr(n * 8)
		buf := make([]byte, n*8)
		for i, pv := range ptrs {
			putLEUint64(buf[i*8:i*8+8], uint64(pv))
		}
		ub := buffer.UserBuffer{Space: sm, Arena: k.Arena, Ptr: cursor, Len: uintptr(len(buf))}
		ub.WriteFrom(buf, 0)
		return cursor
	}

	writePtrArray(envPtrs)
	writePtrArray(argvPtrs)

	countBuf := make([]byte, 8)
	putLEUint64(countBuf, uint64(len(argv)))
	cursor -= 8
	ub := buffer.UserBuffer{Space: sm, Arena: k.Arena, Ptr: cursor, Len: 8}
	ub.WriteFrom(countBuf, 0)

	return cursor, errs.ESUCCESS
}

func putLEUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

