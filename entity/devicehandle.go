package entity

import (
	"bekkernel/abi"
	"bekkernel/device"
	"bekkernel/errs"
)

// DeviceHandle wraps a device.Device, forwarding Message to its
// protocol-specific command handler (§3: "DeviceHandle... forwards
// message").
type DeviceHandle struct {
	BaseHandle
	Dev device.Device
}

func NewDeviceHandle(d device.Device) *DeviceHandle {
	h := &DeviceHandle{Dev: d}
	h.refcount = 1
	return h
}

func (d *DeviceHandle) Message(id uint64, buf []byte) (int, errs.Err_t) {
	return d.Dev.Command(id, buf)
}

func (*DeviceHandle) Seek(abi.SeekLocation, int64) (int64, errs.Err_t) {
	return 0, errs.ESPIPE
}
