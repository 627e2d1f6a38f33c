package mem

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, pages int) *PageAllocator {
	t.Helper()
	region, err := NewPhysicalRegion(0x4000_0000, uintptr(pages)*PageSize)
	require.NoError(t, err)
	return NewPageAllocator(nil, []struct {
		Region PhysicalRegion
		Kind   RegionKind
	}{{Region: region, Kind: KindMemory}})
}

func TestAllocateFreeRoundTrip(t *testing.T) {
	pa := newTestAllocator(t, 16)
	r, ok := pa.AllocateRegion(4)
	require.True(t, ok)
	require.EqualValues(t, 4*PageSize, r.Size)
	require.Equal(t, 4, pa.ReservedPageCount())
	require.NoError(t, pa.FreeRegion(r.Start))
	require.Equal(t, 0, pa.ReservedPageCount())
}

func TestFreeRegionRecoversLength(t *testing.T) {
	pa := newTestAllocator(t, 16)
	a, ok := pa.AllocateRegion(3)
	require.True(t, ok)
	b, ok := pa.AllocateRegion(2)
	require.True(t, ok)
	require.Equal(t, 5, pa.ReservedPageCount())
	require.NoError(t, pa.FreeRegion(a.Start))
	require.Equal(t, 2, pa.ReservedPageCount())
	require.NoError(t, pa.FreeRegion(b.Start))
	require.Equal(t, 0, pa.ReservedPageCount())
}

func TestDoubleFreeFails(t *testing.T) {
	pa := newTestAllocator(t, 4)
	r, ok := pa.AllocateRegion(4)
	require.True(t, ok)
	require.NoError(t, pa.FreeRegion(r.Start))
	require.Error(t, pa.FreeRegion(r.Start))
}

func TestAllocateRegionExhaustion(t *testing.T) {
	pa := newTestAllocator(t, 4)
	_, ok := pa.AllocateRegion(5)
	require.False(t, ok)
}

// TestReservedPagesMatchOutstanding is invariant 2 of spec §8, exercised
// under a bounded randomised workload of allocate/free calls (no
// property-testing library is available in the retrieved pack; see
// DESIGN.md).
func TestReservedPagesMatchOutstanding(t *testing.T) {
	const totalPages = 256
	pa := newTestAllocator(t, totalPages)
	rng := rand.New(rand.NewSource(1))

	type outstanding struct {
		start PhysicalPtr
		n     int
	}
	var live []outstanding
	sum := 0

	for i := 0; i < 2000; i++ {
		if len(live) == 0 || rng.Intn(2) == 0 {
			n := 1 + rng.Intn(8)
			r, ok := pa.AllocateRegion(n)
			if ok {
				live = append(live, outstanding{start: r.Start, n: n})
				sum += n
			}
		} else {
			idx := rng.Intn(len(live))
			victim := live[idx]
			require.NoError(t, pa.FreeRegion(victim.start))
			sum -= victim.n
			live = append(live[:idx], live[idx+1:]...)
		}
		require.Equal(t, sum, pa.ReservedPageCount())
	}
}

func TestMarkAsReservedIsIdempotent(t *testing.T) {
	pa := newTestAllocator(t, 8)
	region := PhysicalRegion{Start: pa.regions[0].region.Start, Size: 2 * PageSize}
	pa.MarkAsReserved(region)
	pa.MarkAsReserved(region)
	require.Equal(t, 2, pa.ReservedPageCount())
}
