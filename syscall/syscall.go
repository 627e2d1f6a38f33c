// Package syscall implements the syscall ABI dispatcher of §4.11/§6.1: the
// 27-call surface every user process reaches the kernel through.
//
// Grounded on the teacher's syscall dispatch table (kernel/chentry.go's
// giant switch over syscall numbers, each case unpacking Trapframe
// registers and calling into the matching subsystem) and on
// original_source/kernel/syscalls.cpp's expected<long> dispatch(long
// syscall_no, ...) contract, which fixes this package's signature:
// handlers take raw integer arguments, build a buffer.UserBuffer per
// pointer/length pair, and every fallible step returns errs.Err_t, negated
// into the caller's return register at the end by Dispatch.
package syscall

import (
	"time"

	"bekkernel/device"
	"bekkernel/errs"
	"bekkernel/fs"
	"bekkernel/interlink"
	"bekkernel/limits"
	"bekkernel/mem"
	"bekkernel/proc"
)

// Number is a stable, 0-based syscall ID, in exactly the §6.1 table order.
type Number int

const (
	Open Number = iota
	Close
	Read
	Write
	Seek
	Stat
	GetDirEntries
	Duplicate
	ListDevices
	OpenDevice
	CommandDevice
	Allocate
	Deallocate
	CreatePipe
	GetPid
	Fork
	Exec
	Exit
	Wait
	ChangeWorkingDirectory
	InterlinkAdvertise
	InterlinkConnect
	InterlinkAccept
	InterlinkSend
	InterlinkReceive
	Sleep
	GetTicks

	numSyscalls
)

// Args is the raw (a1..a7) register file a trap frame hands the
// dispatcher; individual handlers interpret each word as a pointer,
// length, flags bit set, or signed integer as their ABI entry dictates.
// FromInterrupt mirrors §4.11's interrupt_context parameter: it is true
// when a syscall-shaped request is being serviced without a schedulable
// calling process behind it, in which case every handler that would
// otherwise block returns EAGAIN/ENOTSUP instead (§5: "Interrupt handlers
// run to completion without preemption").
type Args struct {
	A1, A2, A3, A4, A5, A6, A7 uint64
	FromInterrupt              bool
}

// Clock is the tick source GetTicks reads; intc.ARMGenericTimer and
// intc.KernelTime both satisfy it structurally.
type Clock interface {
	GetTicks() uint64
}

// Kernel bundles every process-wide singleton a syscall handler may need,
// mirroring §5's "Shared resources" list. boot.Boot constructs one of
// these once at startup and hands it to Dispatch on every trap.
type Kernel struct {
	Arena     *mem.Arena
	Pages     *mem.PageAllocator
	Devices   *device.Registry
	Addresses *interlink.AddressMap
	FS        *fs.Registry
	Procs     *proc.Manager
	Clock     Clock
	Limits    *limits.SystemLimits
}

// handlerFunc is the uniform shape every syscall case implements: given the
// kernel singletons, the calling process, and its raw arguments, return the
// value to place in the caller's return register (already negated on
// failure via errs.Err_t.Negated(), or the non-negative success value).
type handlerFunc func(k *Kernel, p *proc.Process, a Args) int64

var table [numSyscalls]handlerFunc

func init() {
	table[Open] = sysOpen
	table[Close] = sysClose
	table[Read] = sysRead
	table[Write] = sysWrite
	table[Seek] = sysSeek
	table[Stat] = sysStat
	table[GetDirEntries] = sysGetDirEntries
	table[Duplicate] = sysDuplicate
	table[ListDevices] = sysListDevices
	table[OpenDevice] = sysOpenDevice
	table[CommandDevice] = sysCommandDevice
	table[Allocate] = sysAllocate
	table[Deallocate] = sysDeallocate
	table[CreatePipe] = sysCreatePipe
	table[GetPid] = sysGetPid
	table[Fork] = sysFork
	table[Exec] = sysExec
	table[Exit] = sysExit
	table[Wait] = sysWait
	table[ChangeWorkingDirectory] = sysChangeWorkingDirectory
	table[InterlinkAdvertise] = sysInterlinkAdvertise
	table[InterlinkConnect] = sysInterlinkConnect
	table[InterlinkAccept] = sysInterlinkAccept
	table[InterlinkSend] = sysInterlinkSend
	table[InterlinkReceive] = sysInterlinkReceive
	table[Sleep] = sysSleep
	table[GetTicks] = sysGetTicks
}

// Dispatch is the syscall entry point of §4.11: "(syscall_no, a1..a7,
// interrupt_context) -> expected<long>". An out-of-range syscall number is
// ENOSYS's closest analogue in this spec's closed error set, surfaced as
// ENOTSUP. Time spent inside the handler is charged to p as system time
// (§4.10 accounting), the same split the teacher's Accnt_t.Finish made
// around its own syscall entry/exit.
func Dispatch(k *Kernel, p *proc.Process, num Number, a Args) int64 {
	if num < 0 || num >= numSyscalls || table[num] == nil {
		return errs.ENOTSUP.Negated()
	}
	start := time.Now()
	ret := table[num](k, p, a)
	if p != nil {
		p.ChargeSystemTime(time.Since(start).Nanoseconds())
	}
	return ret
}

// userspaceOf returns p's UserspaceState, or ENOTSUP if p has none (a
// kernel task reached the dispatcher, which should never happen through
// the real trap path but is guarded here defensively).
func userspaceOf(p *proc.Process) (*proc.UserspaceState, errs.Err_t) {
	if p == nil || !p.HasUserspace() {
		return nil, errs.ENOTSUP
	}
	return p.Userspace(), errs.ESUCCESS
}

