package fs

import (
	"log/slog"
	"sync"
	"time"

	"bekkernel/errs"
)

// Registry maps the mounted root filesystem, per §4.7's "Filesystem
// registry" component.
type Registry struct {
	mu   sync.Mutex
	root Filesystem
	log  *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{log: log}
}

func (r *Registry) Root() Filesystem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.root
}

func (r *Registry) SetRoot(fsys Filesystem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.root = fsys
}

// Prober attempts to mount a root filesystem from whatever devices are
// currently registered. It returns ENODEV if no candidate device is ready
// yet, EINVAL if every ready device failed FAT recognition, or ESUCCESS
// with the mounted Filesystem.
type Prober func() (Filesystem, errs.Err_t)

// TryMountRoot retries prober up to 5 times with a 1-second spin delay
// (§4.7), tolerating the asynchronous device-tree probe pipeline still
// discovering block devices after boot.
func (r *Registry) TryMountRoot(prober Prober) errs.Err_t {
	const maxAttempts = 5
	const delay = time.Second

	var last errs.Err_t = errs.ENODEV
	for attempt := 0; attempt < maxAttempts; attempt++ {
		fsys, err := prober()
		if err.Ok() {
			r.SetRoot(fsys)
			return errs.ESUCCESS
		}
		last = err
		if r.log != nil {
			r.log.Warn("try_mount_root attempt failed", "attempt", attempt, "err", err)
		}
		if attempt < maxAttempts-1 {
			time.Sleep(delay)
		}
	}
	return last
}
