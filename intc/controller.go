package intc

import (
	"encoding/binary"
	"sync"

	"bekkernel/errs"
)

// Handle is an opaque registered-interrupt handle returned by
// RegisterInterrupt (§4.9).
type Handle struct {
	id  uint32
	ppi bool
}

// Controller is the interrupt-controller capability set every
// implementation provides (§4.9): "register_interrupt(selection_bytes) ->
// Handle, register_handler(id, fn), enable(id), disable(id),
// handle_interrupt()".
type Controller interface {
	RegisterInterrupt(selectionBytes []byte) (Handle, errs.Err_t)
	RegisterHandler(h Handle, fn func())
	Enable(h Handle) errs.Err_t
	Disable(h Handle) errs.Err_t
	HandleInterrupt()
}

// GIC400 implements Controller. selection_bytes for this controller is a
// big-endian (is_ppi, id, flags) triple of u32s (§4.9): is_ppi nonzero
// selects one of the 16 fixed per-core private peripheral interrupts (IDs
// 16-31), zero requests an SPI, in which case id is ignored and a fresh one
// is allocated from spiAllocator; flags' low bit selects edge- (1) versus
// level- (0) triggered.
type GIC400 struct {
	mu       sync.Mutex
	spis     *spiAllocator
	handlers map[uint32]func()
	enabled  map[uint32]bool
	flags    map[uint32]uint32
	pending  []uint32 // simulated IRQ line assertions, drained by HandleInterrupt
}

const (
	gicFlagEdge = 1 << 0
)

// NewGIC400 constructs a controller with spiCount allocatable SPI lines.
func NewGIC400(spiCount int) *GIC400 {
	return &GIC400{
		spis:     newSPIAllocator(spiCount),
		handlers: make(map[uint32]func()),
		enabled:  make(map[uint32]bool),
		flags:    make(map[uint32]uint32),
	}
}

func decodeSelection(selectionBytes []byte) (isPPI bool, id uint32, flags uint32, ok bool) {
	if len(selectionBytes) != 12 {
		return false, 0, 0, false
	}
	isPPI = binary.BigEndian.Uint32(selectionBytes[0:4]) != 0
	id = binary.BigEndian.Uint32(selectionBytes[4:8])
	flags = binary.BigEndian.Uint32(selectionBytes[8:12])
	return isPPI, id, flags, true
}

func (g *GIC400) RegisterInterrupt(selectionBytes []byte) (Handle, errs.Err_t) {
	isPPI, id, flags, ok := decodeSelection(selectionBytes)
	if !ok {
		return Handle{}, errs.EINVAL
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if isPPI {
		if id < 16 || id > 31 {
			return Handle{}, errs.EINVAL
		}
		g.flags[id] = flags
		return Handle{id: id, ppi: true}, errs.ESUCCESS
	}

	spi, ok := g.spis.alloc()
	if !ok {
		return Handle{}, errs.ENOMEM
	}
	g.flags[uint32(spi)] = flags
	return Handle{id: uint32(spi), ppi: false}, errs.ESUCCESS
}

func (g *GIC400) RegisterHandler(h Handle, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[h.id] = fn
}

func (g *GIC400) Enable(h Handle) errs.Err_t {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.handlers[h.id]; !ok {
		return errs.EINVAL
	}
	g.enabled[h.id] = true
	return errs.ESUCCESS
}

func (g *GIC400) Disable(h Handle) errs.Err_t {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled[h.id] = false
	return errs.ESUCCESS
}

// Assert simulates a peripheral asserting its IRQ line; a real platform's
// device model calls this instead of a physical wire.
func (g *GIC400) Assert(h Handle) {
	g.mu.Lock()
	if g.enabled[h.id] {
		g.pending = append(g.pending, h.id)
	}
	g.mu.Unlock()
}

// HandleInterrupt runs every pending handler to completion without
// preemption, per §5: "Interrupt handlers run to completion without
// preemption".
func (g *GIC400) HandleInterrupt() {
	g.mu.Lock()
	pending := g.pending
	g.pending = nil
	g.mu.Unlock()

	for _, id := range pending {
		g.mu.Lock()
		fn := g.handlers[id]
		edge := g.flags[id]&gicFlagEdge != 0
		g.mu.Unlock()
		if fn != nil {
			fn()
		}
		_ = edge // level-triggered re-assertion is the device model's responsibility
	}
}

// Free releases an SPI vector previously returned by RegisterInterrupt,
// for device teardown.
func (g *GIC400) Free(h Handle) {
	if h.ppi {
		return
	}
	g.spis.free(SPIVector(h.id))
}
