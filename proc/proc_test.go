package proc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bekkernel/entity"
	"bekkernel/errs"
	"bekkernel/limits"
	"bekkernel/mem"
	"bekkernel/space"
)

func newTestSpace(t *testing.T) *space.Manager {
	t.Helper()
	arena, err := mem.NewArena(0x5000_0000, 64*mem.PageSize)
	require.NoError(t, err)
	pages := mem.NewPageAllocator(nil, []struct {
		Region mem.PhysicalRegion
		Kind   mem.RegionKind
	}{{Region: arena.Region(), Kind: mem.KindMemory}})
	sm, err := space.New(pages, arena)
	require.NoError(t, err)
	return sm
}

func TestInitialiseAndAdoptAssignsPidOne(t *testing.T) {
	m := NewManager()
	p := m.InitialiseAndAdopt("ktask")
	require.EqualValues(t, 1, p.Pid())
	require.Equal(t, Running, p.State())
}

func TestSpawnKernelProcessRuns(t *testing.T) {
	m := NewManager()
	done := make(chan struct{})
	p := m.SpawnKernelProcess("worker", func(self *Process) {
		close(done)
		self.QuitProcess(0)
	})
	<-done
	require.False(t, p.HasUserspace())
}

func TestForkThenWaitReapsChild(t *testing.T) {
	m := NewManager()
	sm := newTestSpace(t)
	parent := m.InitialiseAndAdopt("init")
	parent.mu.Lock()
	parent.userspace = &UserspaceState{Space: sm, OpenEntities: entity.NewTable()}
	parent.mu.Unlock()

	child, err := m.Fork(parent, func(c *Process) {
		c.QuitProcess(7)
	})
	require.True(t, err.Ok())
	require.NotNil(t, child)

	pid, code, werr := m.Wait(parent, child.Pid())
	require.True(t, werr.Ok())
	require.Equal(t, child.Pid(), pid)
	require.Equal(t, 7, code)
	require.Empty(t, parent.Children())
}

func TestWaitWithNoMatchingChildReturnsECHILD(t *testing.T) {
	m := NewManager()
	p := m.InitialiseAndAdopt("solo")
	_, _, err := m.Wait(p, 99)
	require.Equal(t, "ECHILD", err.String())
}

func TestChildAccountingMergesIntoParentOnExit(t *testing.T) {
	m := NewManager()
	sm := newTestSpace(t)
	parent := m.InitialiseAndAdopt("init")
	parent.mu.Lock()
	parent.userspace = &UserspaceState{Space: sm, OpenEntities: entity.NewTable()}
	parent.mu.Unlock()
	parent.ChargeUserTime(1000)

	child, err := m.Fork(parent, func(c *Process) {
		c.ChargeUserTime(500)
		c.ChargeSystemTime(250)
		c.QuitProcess(0)
	})
	require.True(t, err.Ok())

	_, _, werr := m.Wait(parent, child.Pid())
	require.True(t, werr.Ok())

	userNS, sysNS := parent.Usage()
	require.EqualValues(t, 1500, userNS)
	require.EqualValues(t, 250, sysNS)
}

func TestForkRespectsProcessBudget(t *testing.T) {
	m := NewManagerWithLimit(limits.NewBudget(0))
	sm := newTestSpace(t)
	parent := m.InitialiseAndAdopt("init")
	parent.mu.Lock()
	parent.userspace = &UserspaceState{Space: sm, OpenEntities: entity.NewTable()}
	parent.mu.Unlock()

	_, err := m.Fork(parent, func(c *Process) { c.QuitProcess(0) })
	require.Equal(t, errs.EAGAIN, err)
}

func TestForkGivesBackBudgetSlotOnReap(t *testing.T) {
	budget := limits.NewBudget(1)
	m := NewManagerWithLimit(budget)
	sm := newTestSpace(t)
	parent := m.InitialiseAndAdopt("init")
	parent.mu.Lock()
	parent.userspace = &UserspaceState{Space: sm, OpenEntities: entity.NewTable()}
	parent.mu.Unlock()

	child, err := m.Fork(parent, func(c *Process) { c.QuitProcess(0) })
	require.True(t, err.Ok())
	require.EqualValues(t, 0, budget.Remaining())

	_, _, werr := m.Wait(parent, child.Pid())
	require.True(t, werr.Ok())
	require.EqualValues(t, 1, budget.Remaining())
}
