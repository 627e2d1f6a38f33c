package blockdev

import (
	"os"
	"sync"
)

// FileDevice presents a host file as a BlockDevice, standing in for a real
// disk under host simulation the same way mem.Arena stands in for physical
// RAM. Every transfer completes synchronously before ScheduleRead/Write
// returns, which every caller in this codebase already tolerates (the
// callback-based API exists for the virtio-backed devices that complete
// asynchronously, not because every BlockDevice must be async).
//
// Grounded on the teacher's ahci_disk_t (fat/driver.go, now deleted): same
// "lock, seek, read/write the whole file" shape, generalised from a single
// hardwired AHCI stand-in to the general-purpose BlockDevice interface.
type FileDevice struct {
	mu            sync.Mutex
	f             *os.File
	logicalBlockSize int
	readOnly      bool
}

// OpenFileDevice opens path as a block device with the given logical block
// size (typically 512).
func OpenFileDevice(path string, logicalBlockSize int, readOnly bool) (*FileDevice, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, err
	}
	return &FileDevice{f: f, logicalBlockSize: logicalBlockSize, readOnly: readOnly}, nil
}

// CreateFileDevice creates (or truncates) path to sizeBytes and opens it as
// a block device, for mkbekfs-style image construction.
func CreateFileDevice(path string, sizeBytes int64, logicalBlockSize int) (*FileDevice, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(sizeBytes); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, logicalBlockSize: logicalBlockSize}, nil
}

func (d *FileDevice) LogicalBlockSize() int { return d.logicalBlockSize }

func (d *FileDevice) Capacity() uint64 {
	info, err := d.f.Stat()
	if err != nil {
		return 0
	}
	return uint64(info.Size()) / uint64(d.logicalBlockSize)
}

func (d *FileDevice) IsReadOnly() bool { return d.readOnly }

func (d *FileDevice) ScheduleRead(offset uint64, buf []byte, cb TransferCallback) {
	CheckedTransfer(nil, d, offset, buf, cb, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		n, err := d.f.ReadAt(buf, int64(offset))
		if err != nil || n != len(buf) {
			cb(Failure)
			return
		}
		cb(Success)
	})
}

func (d *FileDevice) ScheduleWrite(offset uint64, buf []byte, cb TransferCallback) {
	if d.readOnly {
		cb(Failure)
		return
	}
	CheckedTransfer(nil, d, offset, buf, cb, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		n, err := d.f.WriteAt(buf, int64(offset))
		if err != nil || n != len(buf) {
			cb(Failure)
			return
		}
		cb(Success)
	})
}

// Sync flushes the host file to stable storage.
func (d *FileDevice) Sync() error { return d.f.Sync() }

// Close closes the underlying host file.
func (d *FileDevice) Close() error { return d.f.Close() }
