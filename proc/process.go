// Package proc implements the Process type and scheduling bookkeeping of
// §4.10: process state, parent/child relations, the per-process userspace
// state (stack top, working directory, address space, open entities), and
// Fork/Exit/Wait semantics.
//
// Grounded on original_source/kernel/include/process/process.h's Process
// and ProcessManager classes: same field layout (m_name, m_pid, m_parent,
// m_children, m_userspace_state as an optional UserspaceState, processor
// time/preempt counters, running state) translated from shared_ptr/raw
// back-pointer ownership into Go values plus explicit *Process pointers,
// per §9's "child holds a pointer to the parent, parent holds weak
// references to children" guidance (here: parent's m_children is plain
// []*Process, reaped on exit, never the sole owner).
//
// This simulation has no single-CPU cooperative scheduler to port: each
// Process's "execution" is a goroutine, and Go's own scheduler multiplexes
// them, so the per-process critical-section counter is kept for fidelity,
// but there is no current-process field: the current process is threaded
// explicitly as a *Process parameter through syscall dispatch,
// per §9's "parameters threaded through a Kernel context" alternative.
package proc

import (
	"sync"
	"sync/atomic"

	"bekkernel/accnt"
	"bekkernel/entity"
	fspkg "bekkernel/fs"
	"bekkernel/mem"
	"bekkernel/space"
)

// State mirrors ProcessState (process.h).
type State int

const (
	Unready State = iota
	Stopped
	Running
	Waiting
	AwaitingDeath
)

func (s State) String() string {
	switch s {
	case Unready:
		return "Unready"
	case Stopped:
		return "Stopped"
	case Running:
		return "Running"
	case Waiting:
		return "Waiting"
	case AwaitingDeath:
		return "AwaitingDeath"
	default:
		return "Unknown"
	}
}

// SavedRegisters is the architecture register file preserved across a
// context switch or synthesized fresh for a forked child's return path.
// The host simulation never actually restores these into real CPU
// registers; Fork only uses it to record the child's return value (0) and
// leaves the parent's untouched, so a small general-purpose slice is
// enough to stand in for arch::SavedRegisters.
type SavedRegisters struct {
	GPRs       [31]uint64
	ReturnValue int64
}

// UserspaceState is the optional per-process userspace context
// (process.h's UserspaceState): present for user processes, absent for
// kernel tasks.
type UserspaceState struct {
	UserStackTop mem.UserPtr
	Cwd          fspkg.Entry
	Space        *space.Manager
	OpenEntities *entity.Table
	// EntryPoint is the loaded executable's entry address, set by Exec
	// (§6.1) and by init loading when they install a fresh address space.
	// It is recorded only: no code in this simulation jumps to it.
	EntryPoint mem.UserPtr
}

// Process is one schedulable unit (§4.10).
type Process struct {
	mu sync.Mutex

	name string
	pid  int64

	parent   *Process
	children []*Process

	saved SavedRegisters

	userspace *UserspaceState

	accounting     accnt.Accounting
	preemptCounter int32
	state          State
	consumedSlot   bool

	exitCode   *int
	waitSignal chan struct{}
}

func (p *Process) Name() string { return p.name }
func (p *Process) Pid() int64   { return p.pid }

func (p *Process) Parent() *Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parent
}

func (p *Process) Children() []*Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Process(nil), p.children...)
}

// SetState transitions p's running state, returning the previous one
// (process.h: "ProcessState set_state(ProcessState new_state)").
func (p *Process) SetState(s State) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.state
	p.state = s
	return old
}

func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// HasUserspace reports whether this is a user process (has a userspace
// state) rather than a kernel task.
func (p *Process) HasUserspace() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userspace != nil
}

// Userspace returns the per-process userspace state; callers must only
// call this when HasUserspace is true.
func (p *Process) Userspace() *UserspaceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userspace
}

// ReplaceUserspace discards p's current address space and handle table in
// favour of us (§6.1 Exec: "does not return on success" — the process
// resumes execution in a wholly new address space at us.EntryPoint).
func (p *Process) ReplaceUserspace(us *UserspaceState) {
	p.mu.Lock()
	old := p.userspace
	p.userspace = us
	p.mu.Unlock()
	if old != nil {
		old.OpenEntities.CloseAll()
	}
}

// ChargeUserTime adds ns nanoseconds of userspace execution to p's
// accounting totals.
func (p *Process) ChargeUserTime(ns int64) {
	p.accounting.AddUser(ns)
}

// ChargeSystemTime adds ns nanoseconds of kernel-side execution on p's
// behalf to its accounting totals (syscall handling, time blocked in
// Sleep, and so on).
func (p *Process) ChargeSystemTime(ns int64) {
	p.accounting.AddSystem(ns)
}

// Usage returns p's accumulated (userNS, sysNS) CPU-time totals.
func (p *Process) Usage() (int64, int64) {
	return p.accounting.Snapshot()
}

// Rusage encodes p's accounting totals in the wire layout the stat/wait
// syscalls copy to userspace.
func (p *Process) Rusage() []byte {
	return p.accounting.Rusage()
}

// EnterCritical/ExitCritical disable/enable preemption for p (process.h's
// preempt counter, mirrored per-process here rather than globally since
// each process is its own goroutine).
func (p *Process) EnterCritical() { atomic.AddInt32(&p.preemptCounter, 1) }
func (p *Process) ExitCritical()  { atomic.AddInt32(&p.preemptCounter, -1) }
func (p *Process) IsCritical() bool { return atomic.LoadInt32(&p.preemptCounter) > 0 }

// QuitProcess records the exit code, marks the process AwaitingDeath, and
// wakes any waiter (§4.10 Exit/Wait).
func (p *Process) QuitProcess(code int) {
	p.mu.Lock()
	p.exitCode = &code
	p.state = AwaitingDeath
	parent := p.parent
	p.mu.Unlock()
	if parent != nil {
		parent.accounting.Merge(&p.accounting)
	}
	close(p.waitSignal)
}

// ExitCode returns the recorded exit code, if the process has exited.
func (p *Process) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitCode == nil {
		return 0, false
	}
	return *p.exitCode, true
}
