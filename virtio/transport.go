// Package virtio implements the MMIO transport and split virtqueue driver
// core of §4.8/§6.4: feature negotiation, queue setup, descriptor
// submission, and interrupt-driven completion, layered under a
// virtio-blk device that backs blockdev.Registry.
//
// Grounded on the retrieved tinyrange-cc virtio-mmio and virtio-blk
// reference files (register layout, descriptor/avail/used ring shapes,
// request header and status codes); translated from "guest reads/writes
// an MMIO region a hypervisor emulates" into "kernel driver calls methods
// on a RegisterIO implementation", since this module's host simulation has
// no separate guest physical address space to fault MMIO accesses into
// (the same simplification mem.Arena already makes for physical RAM).
package virtio

import "bekkernel/errs"

// Register offsets, §6.4 / virtio 1.x.
const (
	RegMagicValue        = 0x000
	RegVersion           = 0x004
	RegDeviceID          = 0x008
	RegVendorID          = 0x00c
	RegDeviceFeatures    = 0x010
	RegDeviceFeaturesSel = 0x014
	RegDriverFeatures    = 0x020
	RegDriverFeaturesSel = 0x024
	RegQueueSel          = 0x030
	RegQueueNumMax       = 0x034
	RegQueueNum          = 0x038
	RegQueueReady        = 0x044
	RegQueueNotify       = 0x050
	RegInterruptStatus   = 0x060
	RegInterruptACK      = 0x064
	RegStatus            = 0x070
	RegQueueDescLow      = 0x080
	RegQueueDescHigh     = 0x084
	RegQueueAvailLow     = 0x090
	RegQueueAvailHigh    = 0x094
	RegQueueUsedLow      = 0x0a0
	RegQueueUsedHigh     = 0x0a4
	RegConfigGeneration  = 0x0fc
	RegConfig            = 0x100
)

const magicValue = 0x74726976 // "virt", little-endian u32 (§6.4)
const requiredVersion = 2

// Status register bits.
const (
	StatusAcknowledge = 1 << 0
	StatusDriver      = 1 << 1
	StatusDriverOK    = 1 << 2
	StatusFeaturesOK  = 1 << 3
	StatusFailed      = 1 << 7
)

// Feature bits named in §6.4.
const (
	FeatureVersion1       = 32
	FeatureIndirect       = 28
	FeatureAccessPlatform = 33
	FeatureRingPacked     = 34
)

// RequiredFeatures and SupportedFeatures are the driver's offered feature
// set for Negotiate: VERSION_1 is mandatory, the other three are accepted
// if the device offers them but never required (§6.4).
const RequiredFeatures = uint64(1) << FeatureVersion1

const SupportedFeatures = RequiredFeatures |
	uint64(1)<<FeatureIndirect |
	uint64(1)<<FeatureAccessPlatform |
	uint64(1)<<FeatureRingPacked

// RegisterIO is the register-level access a Transport drives. A real port
// would implement this over memory-mapped IO; the host simulation
// implements it over SimulatedDevice, and BindQueue stands in for
// publishing a DMA-capable physical address (there being no separate
// guest memory to publish one into).
type RegisterIO interface {
	ReadReg(offset uint32) uint32
	WriteReg(offset uint32, value uint32)
	BindQueue(idx int, q *Queue)
}

// Transport drives feature negotiation and queue registration for one
// virtio-mmio device (§4.8).
type Transport struct {
	io RegisterIO
}

func NewTransport(io RegisterIO) *Transport { return &Transport{io: io} }

// Probe validates the magic value and version (§6.4).
func (t *Transport) Probe() errs.Err_t {
	if t.io.ReadReg(RegMagicValue) != magicValue {
		return errs.ENODEV
	}
	if t.io.ReadReg(RegVersion) != requiredVersion {
		return errs.ENODEV
	}
	return errs.ESUCCESS
}

func (t *Transport) DeviceID() uint32 { return t.io.ReadReg(RegDeviceID) }

// Negotiate implements §4.8's feature negotiation: write 0 to status, then
// ACK|DRIVER; read the device features; intersect with required∪supported,
// failing if a required bit is missing; write the negotiated set back and
// set FEATURES_OK; abort if the device clears it.
func (t *Transport) Negotiate(required, supported uint64) (uint64, errs.Err_t) {
	t.io.WriteReg(RegStatus, 0)
	t.io.WriteReg(RegStatus, StatusAcknowledge|StatusDriver)

	deviceFeatures := t.readFeatures64()

	negotiated := deviceFeatures & (required | supported)
	if negotiated&required != required {
		t.fail()
		return 0, errs.ENOTSUP
	}

	t.writeFeatures64(negotiated)
	t.io.WriteReg(RegStatus, StatusAcknowledge|StatusDriver|StatusFeaturesOK)
	if t.io.ReadReg(RegStatus)&StatusFeaturesOK == 0 {
		t.fail()
		return 0, errs.ENOTSUP
	}
	return negotiated, errs.ESUCCESS
}

// DriverReady sets DRIVER_OK, the final step after every queue is set up.
func (t *Transport) DriverReady() {
	t.io.WriteReg(RegStatus, t.io.ReadReg(RegStatus)|StatusDriverOK)
}

func (t *Transport) fail() {
	t.io.WriteReg(RegStatus, t.io.ReadReg(RegStatus)|StatusFailed)
}

func (t *Transport) readFeatures64() uint64 {
	t.io.WriteReg(RegDeviceFeaturesSel, 0)
	lo := t.io.ReadReg(RegDeviceFeatures)
	t.io.WriteReg(RegDeviceFeaturesSel, 1)
	hi := t.io.ReadReg(RegDeviceFeatures)
	return uint64(lo) | uint64(hi)<<32
}

func (t *Transport) writeFeatures64(features uint64) {
	t.io.WriteReg(RegDriverFeaturesSel, 0)
	t.io.WriteReg(RegDriverFeatures, uint32(features))
	t.io.WriteReg(RegDriverFeaturesSel, 1)
	t.io.WriteReg(RegDriverFeatures, uint32(features>>32))
}

// SetupQueue implements §4.8's setup_vqueue(idx): select the queue, read
// QUEUE_NUM_MAX, clamp to maxQueueSize, build the three rings, bind them,
// and set QUEUE_READY.
func (t *Transport) SetupQueue(idx int, maxQueueSize uint16) (*Queue, errs.Err_t) {
	t.io.WriteReg(RegQueueSel, uint32(idx))
	deviceMax := uint16(t.io.ReadReg(RegQueueNumMax))
	if deviceMax == 0 {
		return nil, errs.ENODEV
	}
	size := deviceMax
	if size > maxQueueSize {
		size = maxQueueSize
	}
	t.io.WriteReg(RegQueueNum, uint32(size))

	q := newQueue(size)
	t.io.WriteReg(RegQueueDescLow, uint32(q.id))
	t.io.WriteReg(RegQueueDescHigh, uint32(q.id>>32))
	t.io.BindQueue(idx, q)
	t.io.WriteReg(RegQueueReady, 1)

	return q, errs.ESUCCESS
}

// Notify writes QUEUE_NOTIFY, step 5 of "Submitting a transfer".
func (t *Transport) Notify(idx int) { t.io.WriteReg(RegQueueNotify, uint32(idx)) }

// HandleInterrupt implements §4.8's interrupt handling: if INTERRUPT_STATUS
// has the used-ring bit set, ACK it and report which conditions fired so
// the caller can drain every queue's used ring and/or reread config.
func (t *Transport) HandleInterrupt() (usedRing bool, configChange bool) {
	status := t.io.ReadReg(RegInterruptStatus)
	if status == 0 {
		return false, false
	}
	t.io.WriteReg(RegInterruptACK, status)
	return status&0x1 != 0, status&0x2 != 0
}
