package virtio

import "sync"

// QueueHandler is the device-side reaction to a QUEUE_NOTIFY write: given
// the queue index and the Queue bound to it, process every newly-available
// descriptor chain and post completions via q.postUsed, returning whether
// an interrupt should be raised.
type QueueHandler func(idx int, q *Queue) bool

// SimulatedDevice is a virtio-mmio device's register file and queue
// bindings, standing in for the hypervisor-emulated device a real
// virtio-mmio transport talks to — the same host-simulation role
// mem.Arena plays for physical RAM and FileDevice plays for a disk
// controller.
//
// Grounded on the retrieved tinyrange-cc virtio-mmio reference file's
// mmioDevice register switch (readRegister/writeRegister), reduced to the
// register set this module's Transport actually drives and restructured
// around a single QueueHandler callback instead of a deviceHandler
// interface, since here there is exactly one device behind each
// SimulatedDevice.
type SimulatedDevice struct {
	mu sync.Mutex

	deviceID uint32
	vendorID uint32

	deviceFeatures       uint64
	deviceFeatureSel     uint32
	driverFeatures       [2]uint32
	driverFeatureSel     uint32

	queueSel        uint32
	queueMaxSize    uint16
	status          uint32
	interruptStatus uint32
	configGen       uint32

	queues  map[int]*Queue
	handler QueueHandler

	onInterrupt func()
}

// NewSimulatedDevice builds a device backend exposing deviceFeatures and
// dispatching QUEUE_NOTIFY to handler. queueMaxSize is reported via
// QUEUE_NUM_MAX for every queue index, matching this rewrite's one-size
// virtqueue pool (§4.8: "clamps down to a kernel maximum, e.g. 32").
func NewSimulatedDevice(deviceID, vendorID uint32, deviceFeatures uint64, queueMaxSize uint16, handler QueueHandler) *SimulatedDevice {
	return &SimulatedDevice{
		deviceID:     deviceID,
		vendorID:     vendorID,
		deviceFeatures: deviceFeatures,
		queueMaxSize: queueMaxSize,
		queues:       make(map[int]*Queue),
		handler:      handler,
	}
}

// OnInterrupt registers the callback SimulatedDevice invokes whenever it
// raises the used-ring interrupt bit, e.g. to assert an intc.GIC400 SPI.
func (d *SimulatedDevice) OnInterrupt(fn func()) { d.onInterrupt = fn }

func (d *SimulatedDevice) BindQueue(idx int, q *Queue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queues[idx] = q
}

func (d *SimulatedDevice) ReadReg(offset uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch offset {
	case RegMagicValue:
		return magicValue
	case RegVersion:
		return requiredVersion
	case RegDeviceID:
		return d.deviceID
	case RegVendorID:
		return d.vendorID
	case RegDeviceFeatures:
		if d.deviceFeatureSel == 0 {
			return uint32(d.deviceFeatures)
		}
		return uint32(d.deviceFeatures >> 32)
	case RegQueueNumMax:
		return uint32(d.queueMaxSize)
	case RegInterruptStatus:
		return d.interruptStatus
	case RegStatus:
		return d.status
	case RegConfigGeneration:
		return d.configGen
	default:
		return 0
	}
}

func (d *SimulatedDevice) WriteReg(offset uint32, value uint32) {
	d.mu.Lock()
	switch offset {
	case RegDeviceFeaturesSel:
		d.deviceFeatureSel = value
	case RegDriverFeaturesSel:
		d.driverFeatureSel = value
	case RegDriverFeatures:
		if d.driverFeatureSel < 2 {
			d.driverFeatures[d.driverFeatureSel] = value
		}
	case RegQueueSel:
		d.queueSel = value
	case RegStatus:
		d.status = value
	case RegInterruptACK:
		d.interruptStatus &^= value
	case RegQueueNotify:
		idx := int(value)
		q := d.queues[idx]
		handler := d.handler
		d.mu.Unlock()
		if q != nil && handler != nil {
			// Real virtio devices complete transfers asynchronously and
			// signal completion via IRQ; a goroutine stands in for that
			// asynchrony the same way ARMGenericTimer's ticker goroutine
			// stands in for a real hardware timer.
			go func() {
				if handler(idx, q) {
					d.raiseInterrupt()
				}
			}()
		}
		return
	}
	d.mu.Unlock()
}

func (d *SimulatedDevice) raiseInterrupt() {
	d.mu.Lock()
	d.interruptStatus |= 0x1
	cb := d.onInterrupt
	d.mu.Unlock()
	if cb != nil {
		cb()
	}
}
