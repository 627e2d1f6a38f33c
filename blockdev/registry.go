package blockdev

import (
	"fmt"
	"log/slog"
	"sync"

	"bekkernel/hashtable"
)

// Registry is the singleton mapping device names to BlockDevices. Names are
// allocated by prefix with a per-prefix monotonically increasing suffix
// (e.g. "virtioblk0", "virtioblk1").
type Registry struct {
	mu       sync.Mutex
	suffixes map[string]int
	devices  *hashtable.Table[string, BlockDevice]
	log      *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		suffixes: make(map[string]int),
		devices:  hashtable.New[string, BlockDevice](64, hashtable.FNV32AString),
		log:      log,
	}
}

// Register assigns dev a name under prefix, reads its sector 0, parses any
// MBR partition table found there, and registers each non-zero-length
// partition with a FAT type code as a PartitionProxyDevice sibling of the
// raw device (§4.7); partitions of any other type are not registered.
func (r *Registry) Register(prefix string, dev BlockDevice) string {
	r.mu.Lock()
	suffix := r.suffixes[prefix]
	r.suffixes[prefix] = suffix + 1
	r.mu.Unlock()

	name := fmt.Sprintf("%s%d", prefix, suffix)
	r.devices.Set(name, dev)

	sector := make([]byte, 512)
	dev.ScheduleRead(0, sector, func(res TransferResult) {
		if res != Success {
			if r.log != nil {
				r.log.Warn("blockdev: sector 0 read failed", "device", name, "result", res)
			}
			return
		}
		entries, ok := ParseMBR(sector)
		if !ok {
			return
		}
		for i, e := range entries {
			if !e.Type.IsFAT() {
				continue
			}
			proxy := &PartitionProxyDevice{Base: dev, SectorOffset: uint64(e.LBABegin), SectorCount: uint64(e.SectorCount)}
			pname := fmt.Sprintf("%sp%d", name, i+1)
			r.devices.Set(pname, proxy)
			if r.log != nil {
				r.log.Info("blockdev: partition registered", "name", pname, "type", e.Type)
			}
		}
	})
	return name
}

// Get looks up a registered device by name.
func (r *Registry) Get(name string) (BlockDevice, bool) {
	return r.devices.Get(name)
}

// All returns a snapshot of every registered (name, device) pair — raw
// devices and partition proxies alike — for the filesystem mount-root
// probe to iterate.
func (r *Registry) All() []hashtable.Pair[string, BlockDevice] {
	return r.devices.Elems()
}
