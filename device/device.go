// Package device implements the generic (non-block) device registry of
// §4.11/§6.1: ListDevices/OpenDevice/CommandDevice surface any Device
// behind a name and DeviceProtocol, independent of the block-device
// registry blockdev already owns.
//
// Grounded on the teacher's console_t (fat/driver.go, since deleted — see
// DESIGN.md) for the "forward a protocol-specific command" Device shape,
// generalised from a single hardwired console stub to a registrable
// interface any protocol (console, framebuffer, keyboard) implements.
package device

import (
	"fmt"
	"sync"

	"bekkernel/errs"
)

// Device is the capability set a DeviceHandle forwards Message calls to
// (§3: "DeviceHandle... forwards message").
type Device interface {
	Protocol() errs.DeviceProtocol
	Command(id uint64, buf []byte) (int, errs.Err_t)
}

// ListItem mirrors original_source's packed DeviceListItem record for the
// ListDevices syscall (§12): a fixed-width name field plus protocol tag.
type ListItem struct {
	Name     [32]byte
	Protocol errs.DeviceProtocol
}

// Registry is the process-wide name -> Device singleton.
type Registry struct {
	mu      sync.Mutex
	devices map[string]Device
	suffix  map[string]int
}

func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]Device), suffix: make(map[string]int)}
}

// Register assigns dev a name under prefix (same per-prefix suffix scheme
// as blockdev.Registry) and returns it.
func (r *Registry) Register(prefix string, dev Device) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.suffix[prefix]
	r.suffix[prefix] = n + 1
	name := fmt.Sprintf("%s%d", prefix, n)
	r.devices[name] = dev
	return name
}

func (r *Registry) Get(name string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[name]
	return d, ok
}

// List returns every registered device matching protocol (ProtocolNone
// matches all), packed as ListItem records for the ListDevices syscall.
func (r *Registry) List(protocol errs.DeviceProtocol) []ListItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ListItem
	for name, d := range r.devices {
		if protocol != errs.ProtocolNone && d.Protocol() != protocol {
			continue
		}
		var item ListItem
		copy(item.Name[:], name)
		item.Protocol = d.Protocol()
		out = append(out, item)
	}
	return out
}

// Console is a minimal console Device registered by boot for the
// arm,pl011 node (§4.14): it reports ProtocolConsole and answers every
// command with ENOTSUP.
type Console struct{}

func (Console) Protocol() errs.DeviceProtocol { return errs.ProtocolConsole }
func (Console) Command(uint64, []byte) (int, errs.Err_t) { return 0, errs.ENOTSUP }
