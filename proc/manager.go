package proc

import (
	"sync"

	"bekkernel/entity"
	"bekkernel/errs"
	fspkg "bekkernel/fs"
	"bekkernel/limits"
	"bekkernel/mem"
	"bekkernel/space"
)

// Manager is the process-wide ProcessManager singleton (§4.10, §5): pid
// allocation, the process table, and Fork/Wait bookkeeping. Grounded on
// process.h's ProcessManager; register_process/initialise_and_adopt become
// Register/InitialiseAndAdopt, schedule()'s single-CPU round-robin walk is
// not reproduced (Go's own scheduler multiplexes the per-process
// goroutines), but EnterCritical/ExitCritical are kept per-Process for
// interrupt-handler fidelity.
type Manager struct {
	mu        sync.Mutex
	processes map[int64]*Process
	nextPid   int64

	slots *limits.Budget
}

// NewManager returns an empty ProcessManager, capped at
// limits.Default().Processes live processes.
func NewManager() *Manager {
	return NewManagerWithLimit(limits.Default().Processes)
}

// NewManagerWithLimit returns an empty ProcessManager capped by the given
// process-count budget (tests and embedders that want a tighter ceiling
// than limits.Default use this directly).
func NewManagerWithLimit(slots *limits.Budget) *Manager {
	return &Manager{processes: make(map[int64]*Process), slots: slots}
}

// InitialiseAndAdopt registers the calling goroutine's own execution
// context as the first process ("ktask"), mirroring
// ProcessManager::initialise_and_adopt.
func (m *Manager) InitialiseAndAdopt(name string) *Process {
	p := &Process{name: name, state: Running, waitSignal: make(chan struct{})}
	m.mu.Lock()
	m.nextPid++
	p.pid = m.nextPid
	m.processes[p.pid] = p
	m.mu.Unlock()
	return p
}

// SpawnKernelProcess creates a process with no userspace state and runs fn
// in a new goroutine (process.h's spawn_kernel_process).
func (m *Manager) SpawnKernelProcess(name string, fn func(*Process)) *Process {
	p := &Process{name: name, state: Unready, waitSignal: make(chan struct{})}
	m.register(p)
	p.SetState(Running)
	go fn(p)
	return p
}

// SpawnUserProcess creates a process with a fresh userspace state over the
// given address-space manager, cwd, and pre-populated handle table
// (process.h's spawn_user_process), then runs fn (representing execution
// of the loaded executable) in a new goroutine.
func (m *Manager) SpawnUserProcess(name string, sm *space.Manager, cwd fspkg.Entry, handles *entity.Table, userStackTop mem.UserPtr, fn func(*Process)) *Process {
	p := &Process{
		name:  name,
		state: Unready,
		userspace: &UserspaceState{
			UserStackTop: userStackTop,
			Cwd:          cwd,
			Space:        sm,
			OpenEntities: handles,
		},
		waitSignal: make(chan struct{}),
	}
	m.register(p)
	p.SetState(Running)
	go fn(p)
	return p
}

func (m *Manager) register(p *Process) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPid++
	p.pid = m.nextPid
	m.processes[p.pid] = p
}

// Get looks up a live process by pid.
func (m *Manager) Get(pid int64) (*Process, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.processes[pid]
	return p, ok
}

// Fork duplicates parent's address space and open-entities table
// (ref-counting each handle, §4.10: "duplicates the open-entities table,
// ref-counting each handle"), registers a new child Process, and runs
// childFn — representing the child's continuation from the fork point —
// in a new goroutine. It returns the child Process, whose Pid is sys_fork's
// parent-side result; the child's SavedRegisters.ReturnValue is set to 0
// before childFn runs. The parent's SavedRegisters are not touched.
func (m *Manager) Fork(parent *Process, childFn func(*Process)) (*Process, errs.Err_t) {
	if !parent.HasUserspace() {
		return nil, errs.ENOTSUP
	}
	if m.slots != nil && !m.slots.Take() {
		return nil, errs.EAGAIN
	}
	us := parent.Userspace()

	childSpace, err := us.Space.CloneForFork()
	if err != nil {
		if m.slots != nil {
			m.slots.Give()
		}
		return nil, errs.ENOMEM
	}
	childEntities := us.OpenEntities.CloneForFork()

	child := &Process{
		name:         parent.name,
		parent:       parent,
		state:        Unready,
		consumedSlot: m.slots != nil,
		userspace: &UserspaceState{
			UserStackTop: us.UserStackTop,
			Cwd:          us.Cwd,
			Space:        childSpace,
			OpenEntities: childEntities,
		},
		waitSignal: make(chan struct{}),
	}
	child.saved.ReturnValue = 0

	m.register(child)

	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()

	child.SetState(Running)
	go childFn(child)

	return child, errs.ESUCCESS
}

// Wait blocks until the child with the given pid reaches AwaitingDeath,
// reaps it from the process table, and returns its pid and exit code
// (§4.10 Wait; §6.1 Wait returns "pid or −errno"). If pid is 0 it picks
// the first child in parent's children list and waits for that one; it
// does not return early when a different child exits first.
// ECHILD if the parent has no matching child.
func (m *Manager) Wait(parent *Process, pid int64) (int64, int, errs.Err_t) {
	parent.mu.Lock()
	var target *Process
	for _, c := range parent.children {
		if pid == 0 || c.pid == pid {
			target = c
			break
		}
	}
	parent.mu.Unlock()
	if target == nil {
		return 0, 0, errs.ECHILD
	}

	<-target.waitSignal
	code, _ := target.ExitCode()

	parent.mu.Lock()
	for i, c := range parent.children {
		if c == target {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	parent.mu.Unlock()

	m.mu.Lock()
	delete(m.processes, target.pid)
	m.mu.Unlock()

	if target.consumedSlot && m.slots != nil {
		m.slots.Give()
	}

	return target.pid, code, errs.ESUCCESS
}

// ReparentOrphans moves every child of p to init (pid 1), per §4.10's
// "re-parenting to init" on process exit.
func (m *Manager) ReparentOrphans(p *Process) {
	init, ok := m.Get(1)
	if !ok {
		return
	}
	p.mu.Lock()
	orphans := p.children
	p.children = nil
	p.mu.Unlock()

	init.mu.Lock()
	init.children = append(init.children, orphans...)
	init.mu.Unlock()

	for _, o := range orphans {
		o.mu.Lock()
		o.parent = init
		o.mu.Unlock()
	}
}

// Count returns the number of live processes, for diagnostics/tests.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.processes)
}
