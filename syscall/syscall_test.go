package syscall

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bekkernel/abi"
	"bekkernel/device"
	"bekkernel/entity"
	"bekkernel/errs"
	fspkg "bekkernel/fs"
	"bekkernel/interlink"
	"bekkernel/kstr"
	"bekkernel/limits"
	"bekkernel/mem"
	"bekkernel/proc"
	"bekkernel/space"
)

// memEntry is a minimal in-memory fs.Entry, standing in for a mounted
// filesystem in these ABI-layer tests: the syscall handlers only ever
// touch the fs.Entry interface, never a concrete filesystem, so a fake
// here keeps these tests from depending on fat/blockdev wiring.
type memEntry struct {
	fspkg.BaseEntry
	name     string
	kind     fspkg.Kind
	data     []byte
	children map[string]*memEntry
	parent   *memEntry
}

func newDir(name string) *memEntry {
	return &memEntry{name: name, kind: fspkg.KindDirectory, children: make(map[string]*memEntry)}
}

func (e *memEntry) Name() string             { return e.name }
func (e *memEntry) Kind() fspkg.Kind         { return e.kind }
func (e *memEntry) Size() uint64             { return uint64(len(e.data)) }
func (e *memEntry) Timestamps() fspkg.Timestamps { return fspkg.Timestamps{} }
func (e *memEntry) Dirty() bool              { return false }
func (e *memEntry) Hash() uint64             { return 0 }
func (e *memEntry) Parent() fspkg.Entry {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

func (e *memEntry) Lookup(name kstr.Str) (fspkg.Entry, errs.Err_t) {
	if e.kind != fspkg.KindDirectory {
		return nil, errs.ENOTDIR
	}
	child, ok := e.children[name.String()]
	if !ok {
		return nil, errs.ENOENT
	}
	return child, errs.ESUCCESS
}

func (e *memEntry) AllChildren() ([]fspkg.Entry, errs.Err_t) {
	if e.kind != fspkg.KindDirectory {
		return nil, errs.ENOTDIR
	}
	var out []fspkg.Entry
	for _, c := range e.children {
		out = append(out, c)
	}
	return out, errs.ESUCCESS
}

func (e *memEntry) AddChild(name kstr.Str, kind fspkg.Kind) (fspkg.Entry, errs.Err_t) {
	if e.kind != fspkg.KindDirectory {
		return nil, errs.ENOTDIR
	}
	n := name.String()
	if _, exists := e.children[n]; exists {
		return nil, errs.EEXIST
	}
	child := &memEntry{name: n, kind: kind, parent: e}
	if kind == fspkg.KindDirectory {
		child.children = make(map[string]*memEntry)
	}
	e.children[n] = child
	return child, errs.ESUCCESS
}

func (e *memEntry) RemoveChild(name kstr.Str) errs.Err_t {
	n := name.String()
	if _, ok := e.children[n]; !ok {
		return errs.ENOENT
	}
	delete(e.children, n)
	return errs.ESUCCESS
}

func (e *memEntry) ReadBytes(buf []byte, offset uint64) (int, errs.Err_t) {
	if offset >= uint64(len(e.data)) {
		return 0, errs.ESUCCESS
	}
	n := copy(buf, e.data[offset:])
	return n, errs.ESUCCESS
}

func (e *memEntry) WriteBytes(buf []byte, offset uint64) (int, errs.Err_t) {
	end := offset + uint64(len(buf))
	if end > uint64(len(e.data)) {
		grown := make([]byte, end)
		copy(grown, e.data)
		e.data = grown
	}
	copy(e.data[offset:end], buf)
	return len(buf), errs.ESUCCESS
}

type memFilesystem struct{ root *memEntry }

func (m *memFilesystem) GetRoot() fspkg.Entry { return m.root }

func newTestKernel(t *testing.T) (*Kernel, *memEntry) {
	t.Helper()
	arena, err := mem.NewArena(0x6000_0000, 256*mem.PageSize)
	require.NoError(t, err)
	pages := mem.NewPageAllocator(nil, []struct {
		Region mem.PhysicalRegion
		Kind   mem.RegionKind
	}{{Region: arena.Region(), Kind: mem.KindMemory}})

	root := newDir("")
	fsReg := fspkg.NewRegistry(nil)
	fsReg.SetRoot(&memFilesystem{root: root})

	k := &Kernel{
		Arena:     arena,
		Pages:     pages,
		Devices:   device.NewRegistry(),
		Addresses: interlink.NewAddressMap(),
		FS:        fsReg,
		Procs:     proc.NewManager(),
	}
	return k, root
}

func newTestProcess(t *testing.T, k *Kernel, cwd fspkg.Entry) *proc.Process {
	t.Helper()
	sm, err := space.New(k.Pages, k.Arena)
	require.NoError(t, err)
	p := k.Procs.InitialiseAndAdopt("test")
	p.ReplaceUserspace(&proc.UserspaceState{Space: sm, Cwd: cwd, OpenEntities: entity.NewTable()})
	return p
}

// putUserBuffer writes src into the process's address space at a freshly
// allocated region, returning the region's base address.
func putUserBuffer(t *testing.T, k *Kernel, p *proc.Process, src []byte) uint64 {
	t.Helper()
	us := p.Userspace()
	size := len(src)
	if size == 0 {
		size = 8
	}
	region, err := us.Space.AllocateFlexibleRegion(uintptr(size), mem.Readable|mem.Writable|mem.UserAccessible, "test-buf", nil)
	require.True(t, err.Ok())
	if len(src) > 0 {
		require.True(t, writeUserBytes(k, us, uint64(region.Start), uint64(size), src).Ok())
	}
	return uint64(region.Start)
}

func allocUserScratch(t *testing.T, k *Kernel, p *proc.Process, size uint64) uint64 {
	t.Helper()
	us := p.Userspace()
	region, err := us.Space.AllocateFlexibleRegion(uintptr(size), mem.Readable|mem.Writable|mem.UserAccessible, "test-scratch", nil)
	require.True(t, err.Ok())
	return uint64(region.Start)
}

func TestOpenCreateWriteReadRoundTrip(t *testing.T) {
	k, _ := newTestKernel(t)
	p := newTestProcess(t, k, nil)
	us := p.Userspace()
	us.Cwd = k.FS.Root().GetRoot()

	pathPtr := putUserBuffer(t, k, p, []byte("greeting.txt"))
	flags := uint64(abi.OpenCreateIfMissing | abi.OpenWrite | abi.OpenRead)
	fd := sysOpen(k, p, Args{A1: pathPtr, A2: 12, A3: flags, A4: uint64(abi.InvalidEntityID), A5: abi.InvalidAddress})
	require.GreaterOrEqual(t, fd, int64(0))

	payload := []byte("hello, bekOS")
	writePtr := putUserBuffer(t, k, p, payload)
	n := sysWrite(k, p, Args{A1: uint64(fd), A2: 0, A3: writePtr, A4: uint64(len(payload))})
	require.Equal(t, int64(len(payload)), n)

	readPtr := allocUserScratch(t, k, p, 64)
	rn := sysRead(k, p, Args{A1: uint64(fd), A2: 0, A3: readPtr, A4: 64})
	require.Equal(t, int64(len(payload)), rn)

	got, rerr := readUserPath(k, us, readPtr, uint64(len(payload)))
	require.True(t, rerr.Ok())
	require.Equal(t, string(payload), got.String())

	require.True(t, intOk(sysClose(k, p, Args{A1: uint64(fd)})))
}

// intOk turns an int64 -errno return into a bool, since the handlers
// under test speak raw ABI integers rather than errs.Err_t.
func intOk(v int64) bool { return v == 0 }

func TestOpenMissingWithoutCreateFlagsReturnsENOENT(t *testing.T) {
	k, _ := newTestKernel(t)
	p := newTestProcess(t, k, nil)
	p.Userspace().Cwd = k.FS.Root().GetRoot()

	pathPtr := putUserBuffer(t, k, p, []byte("nope.txt"))
	fd := sysOpen(k, p, Args{A1: pathPtr, A2: 8, A3: 0, A4: uint64(abi.InvalidEntityID), A5: uint64(abi.InvalidAddress)})
	require.Equal(t, errs.ENOENT.Negated(), fd)
}

func TestAllocateThenDeallocate(t *testing.T) {
	k, _ := newTestKernel(t)
	p := newTestProcess(t, k, nil)

	addr := sysAllocate(k, p, Args{A1: uint64(abi.InvalidAddress), A2: uint64(mem.PageSize), A3: uint64(mem.Readable | mem.Writable)})
	require.NotEqual(t, errs.ENOMEM.Negated(), addr)

	res := sysDeallocate(k, p, Args{A1: uint64(addr), A2: uint64(mem.PageSize)})
	require.True(t, res == 0)
}

func TestCreatePipeThenSendReceive(t *testing.T) {
	k, _ := newTestKernel(t)
	p := newTestProcess(t, k, nil)

	outPtr := allocUserScratch(t, k, p, 16)
	res := sysCreatePipe(k, p, Args{A1: outPtr, A2: 0})
	require.Equal(t, errs.ESUCCESS.Negated(), res)

	us := p.Userspace()
	raw := make([]byte, 16)
	require.True(t, writeUserBytesRoundtrip(k, us, outPtr, raw))
	readerFD := int64(leUint64(raw[0:8]))
	writerFD := int64(leUint64(raw[8:16]))
	require.GreaterOrEqual(t, readerFD, int64(0))
	require.GreaterOrEqual(t, writerFD, int64(0))

	payload := []byte("ping")
	writePtr := putUserBuffer(t, k, p, payload)
	n := sysWrite(k, p, Args{A1: uint64(writerFD), A2: uint64(abi.InvalidOffset), A3: writePtr, A4: uint64(len(payload))})
	require.Equal(t, int64(len(payload)), n)

	readPtr := allocUserScratch(t, k, p, 16)
	rn := sysRead(k, p, Args{A1: uint64(readerFD), A2: uint64(abi.InvalidOffset), A3: readPtr, A4: 16})
	require.Equal(t, int64(len(payload)), rn)
}

func TestCreatePipeRespectsLimitAndGivesBackOnClose(t *testing.T) {
	k, _ := newTestKernel(t)
	p := newTestProcess(t, k, nil)
	k.Limits = &limits.SystemLimits{Pipes: limits.NewBudget(1)}

	outPtr := allocUserScratch(t, k, p, 16)
	res := sysCreatePipe(k, p, Args{A1: outPtr, A2: 0})
	require.Equal(t, errs.ESUCCESS.Negated(), res)
	require.EqualValues(t, 0, k.Limits.Pipes.Remaining())

	second := sysCreatePipe(k, p, Args{A1: outPtr, A2: 0})
	require.Equal(t, errs.EAGAIN.Negated(), second)

	us := p.Userspace()
	raw := make([]byte, 16)
	require.True(t, writeUserBytesRoundtrip(k, us, outPtr, raw))
	readerFD := int64(leUint64(raw[0:8]))
	writerFD := int64(leUint64(raw[8:16]))

	require.True(t, us.OpenEntities.Close(int(readerFD)).Ok())
	require.True(t, us.OpenEntities.Close(int(writerFD)).Ok())
	require.EqualValues(t, 1, k.Limits.Pipes.Remaining())
}

// writeUserBytesRoundtrip reads len(dst) bytes from userspace at ptr into
// dst, for tests that need to inspect an out-parameter the handler wrote.
func writeUserBytesRoundtrip(k *Kernel, us *proc.UserspaceState, ptr uint64, dst []byte) bool {
	ub := userBuffer(k, us, ptr, uint64(len(dst)))
	n, err := ub.ReadTo(dst, 0)
	return err.Ok() && n == len(dst)
}

func TestForkThenWait(t *testing.T) {
	k, _ := newTestKernel(t)
	p := newTestProcess(t, k, nil)

	childPid := sysFork(k, p, Args{})
	require.Greater(t, childPid, int64(0))

	child, ok := k.Procs.Get(childPid)
	require.True(t, ok)
	sysExit(k, child, Args{A1: 0})

	statusPtr := allocUserScratch(t, k, p, 8)
	waited := sysWait(k, p, Args{A1: uint64(childPid), A2: statusPtr})
	require.Equal(t, childPid, waited)
}

func TestChangeWorkingDirectory(t *testing.T) {
	k, root := newTestKernel(t)
	p := newTestProcess(t, k, root)

	_, cerr := root.AddChild(kstr.MkStrSlice([]byte("sub")), fspkg.KindDirectory)
	require.True(t, cerr.Ok())

	pathPtr := putUserBuffer(t, k, p, []byte("sub"))
	res := sysChangeWorkingDirectory(k, p, Args{A1: pathPtr, A2: 3})
	require.Equal(t, errs.ESUCCESS.Negated(), res)
	require.Equal(t, "sub", p.Userspace().Cwd.Name())
}

func TestGetPid(t *testing.T) {
	k, _ := newTestKernel(t)
	p := newTestProcess(t, k, nil)
	require.Equal(t, p.Pid(), sysGetPid(k, p, Args{}))
}

func TestDispatchUnknownSyscallReturnsENOTSUP(t *testing.T) {
	k, _ := newTestKernel(t)
	p := newTestProcess(t, k, nil)
	require.Equal(t, errs.ENOTSUP.Negated(), Dispatch(k, p, Number(numSyscalls), Args{}))
}
