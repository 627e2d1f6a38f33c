package table

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bekkernel/mem"
)

func newTestManager(t *testing.T) (*Manager, *mem.PageAllocator, *mem.Arena) {
	t.Helper()
	arena, err := mem.NewArena(0x4000_0000, 256*mem.PageSize)
	require.NoError(t, err)
	pages := mem.NewPageAllocator(nil, []struct {
		Region mem.PhysicalRegion
		Kind   mem.RegionKind
	}{{Region: arena.Region(), Kind: mem.KindMemory}})
	m, err := New(pages, arena)
	require.NoError(t, err)
	return m, pages, arena
}

func TestMapThenUnmapThenRemapSucceeds(t *testing.T) {
	m, pages, _ := newTestManager(t)
	phys, ok := pages.AllocateRegion(1)
	require.True(t, ok)

	virt := mem.VirtualPtr(0x1_0000_0000)
	require.True(t, m.MapRegion(virt, phys.Start, mem.PageSize, mem.Readable|mem.Writable|mem.UserAccessible, mem.NormalRAM))
	// remap without unmap must fail
	require.False(t, m.MapRegion(virt, phys.Start, mem.PageSize, mem.Readable, mem.NormalRAM))
	require.True(t, m.UnmapRegion(virt, mem.PageSize))
	require.True(t, m.MapRegion(virt, phys.Start, mem.PageSize, mem.Readable, mem.NormalRAM))
}

func TestTranslateRoundTrip(t *testing.T) {
	m, pages, _ := newTestManager(t)
	phys, ok := pages.AllocateRegion(2)
	require.True(t, ok)
	virt := mem.VirtualPtr(0x2_0000_0000)
	require.True(t, m.MapRegion(virt, phys.Start, 2*mem.PageSize, mem.Readable|mem.Writable, mem.NormalRAM))

	got, attrs, ok := m.Translate(virt + 10)
	require.True(t, ok)
	require.Equal(t, phys.Start+10, got)
	require.True(t, attrs.Has(mem.Readable))
	require.True(t, attrs.Has(mem.Writable))
}

func TestUnmapUnmappedFails(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.False(t, m.UnmapRegion(mem.VirtualPtr(0x3_0000_0000), mem.PageSize))
}
