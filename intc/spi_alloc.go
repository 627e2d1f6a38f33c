// Package intc implements the interrupt-controller and timer abstractions
// of §4.9: a controller-agnostic Handle/register/enable/disable surface
// with a GIC-400 implementation, an ARM generic timer, and a kernel timing
// facility layered on top.
package intc

import "sync"

// SPIVector identifies one GIC-400 shared peripheral interrupt line.
//
// Grounded on the teacher's msi.Msivec_t/Msivecs_t (an MSI vector pool with
// Msi_alloc/Msi_free): the same alloc/free-from-a-fixed-pool design,
// renamed and repurposed from PCI MSI vectors to GIC SPI IDs, since
// GIC-400's register_interrupt needs exactly this "allocate an unused ID
// from a bounded range" primitive for shared (non-per-core) interrupt
// sources.
type SPIVector uint32

// spiAllocator tracks available SPI IDs for one GIC-400 instance.
type spiAllocator struct {
	mu    sync.Mutex
	avail map[SPIVector]bool
}

// newSPIAllocator seeds the pool with SPI IDs [32, 32+count), the
// conventional GIC-400 shared-peripheral-interrupt range (PPIs 16-31 are
// per-core and handled separately by RegisterInterrupt's PPI branch).
func newSPIAllocator(count int) *spiAllocator {
	a := &spiAllocator{avail: make(map[SPIVector]bool, count)}
	for i := 0; i < count; i++ {
		a.avail[SPIVector(32+i)] = true
	}
	return a
}

func (a *spiAllocator) alloc() (SPIVector, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for v := range a.avail {
		delete(a.avail, v)
		return v, true
	}
	return 0, false
}

func (a *spiAllocator) free(v SPIVector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.avail[v] = true
}
