package fat

import (
	"sync"
	"sync/atomic"

	"bekkernel/errs"
	fspkg "bekkernel/fs"
	"bekkernel/kstr"
)

// fatEntryCommon is embedded by both FATDirectoryEntry and FATFileEntry: the
// fields and accessors every FAT-backed fs.Entry shares (§4.6's Entry base:
// "name, timestamps, size, a dirty flag... parent()").
type fatEntryCommon struct {
	fs   *FATFilesystem
	name string

	mu       sync.Mutex
	parent   fspkg.Entry
	dirty    int32 // atomic bool
	dirIndex int
}

func (e *fatEntryCommon) Name() string           { return e.name }
func (e *fatEntryCommon) Timestamps() fspkg.Timestamps { return fspkg.Timestamps{} }
func (e *fatEntryCommon) Dirty() bool             { return atomic.LoadInt32(&e.dirty) != 0 }
func (e *fatEntryCommon) Parent() fspkg.Entry      { return e.parent }
func (e *fatEntryCommon) markDirty()              { atomic.StoreInt32(&e.dirty, 1) }
func (e *fatEntryCommon) clearDirty()             { atomic.StoreInt32(&e.dirty, 0) }

func (e *fatEntryCommon) Hash() uint64 {
	parentHash := fspkg.RootHash
	if e.parent != nil {
		parentHash = e.parent.Hash()
	}
	return fspkg.CombineHash(parentHash, e.name)
}

// FATFileEntry is a file's in-memory Entry, backed by a cluster chain
// starting at startCluster (§4.6).
type FATFileEntry struct {
	fspkg.BaseEntry
	fatEntryCommon
	startCluster uint32
	size         uint64
}

func newFATFileEntry(fs *FATFilesystem, name string, parent fspkg.Entry, startCluster uint32, size uint32, dirIndex int) *FATFileEntry {
	return &FATFileEntry{
		fatEntryCommon: fatEntryCommon{fs: fs, name: name, parent: parent, dirIndex: dirIndex},
		startCluster:   startCluster,
		size:           uint64(size),
	}
}

func (f *FATFileEntry) Kind() fspkg.Kind { return fspkg.KindFile }
func (f *FATFileEntry) Size() uint64      { return f.size }

// ReadBytes reads from the file's cluster chain starting at offset,
// computing the starting cluster via a cluster-offset walk and stopping at
// end-of-file or end-of-chain (§4.6 Read/write).
func (f *FATFileEntry) ReadBytes(buf []byte, offset uint64) (int, errs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if offset >= f.size {
		return 0, errs.ESUCCESS
	}
	n := len(buf)
	if uint64(n) > f.size-offset {
		n = int(f.size - offset)
	}
	clusterSize := uint64(f.fs.geo.BytesPerCluster())
	clusterIdx := offset / clusterSize
	inClusterOff := offset % clusterSize

	cluster, cerr := f.fs.clusterAt(f.startCluster, clusterIdx)
	if cerr != errs.ESUCCESS {
		return 0, cerr
	}

	read := 0
	for read < n {
		entry, err := f.fs.clusters.get(cluster)
		if err != nil {
			return read, errs.EIO
		}
		chunk := int(clusterSize) - int(inClusterOff)
		if chunk > n-read {
			chunk = n - read
		}
		copy(buf[read:read+chunk], entry.data[inClusterOff:int(inClusterOff)+chunk])
		read += chunk
		inClusterOff = 0

		if read < n {
			class, next, err := f.fs.table.GetNextCluster(cluster)
			if err != nil || class != NextPointer {
				break
			}
			cluster = next
		}
	}
	return read, errs.ESUCCESS
}

// WriteBytes writes to the file's cluster chain, allocating new clusters
// past the current end via allocateNextCluster, and marking the dirty
// range within each touched cluster (§4.6 Read/write).
func (f *FATFileEntry) WriteBytes(buf []byte, offset uint64) (int, errs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clusterSize := uint64(f.fs.geo.BytesPerCluster())
	if f.startCluster == 0 {
		c, err := f.fs.table.AllocateNextCluster(0)
		if err != nil {
			return 0, errs.EIO
		}
		f.startCluster = c
	}

	clusterIdx := offset / clusterSize
	inClusterOff := offset % clusterSize

	cluster, cerr := f.fs.extendClusterChainTo(f.startCluster, clusterIdx)
	if cerr != errs.ESUCCESS {
		return 0, cerr
	}

	written := 0
	for written < len(buf) {
		var entry *cacheEntry
		var err error
		if inClusterOff == 0 && len(buf)-written >= int(clusterSize) {
			entry, err = f.fs.clusters.getForWrite(cluster)
		} else {
			entry, err = f.fs.clusters.get(cluster)
		}
		if err != nil {
			return written, errs.EIO
		}
		chunk := int(clusterSize) - int(inClusterOff)
		if chunk > len(buf)-written {
			chunk = len(buf) - written
		}
		copy(entry.data[inClusterOff:int(inClusterOff)+chunk], buf[written:written+chunk])
		entry.markDirty(int(inClusterOff), int(inClusterOff)+chunk)
		written += chunk
		inClusterOff = 0

		if written < len(buf) {
			class, next, err := f.fs.table.GetNextCluster(cluster)
			if err != nil {
				return written, errs.EIO
			}
			if class != NextPointer {
				next, err = f.fs.table.AllocateNextCluster(cluster)
				if err != nil {
					return written, errs.EIO
				}
			}
			cluster = next
		}
	}

	if newEnd := offset + uint64(written); newEnd > f.size {
		f.size = newEnd
	}
	f.markDirty()
	return written, errs.ESUCCESS
}

// Resize truncates or extends the file's reported size; shrinking does not
// free trailing clusters (reclaiming a shrunk tail is left for a future
// compaction pass, not exercised by this spec's scenarios).
func (f *FATFileEntry) Resize(newSize uint64) errs.Err_t {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.size = newSize
	f.markDirty()
	return errs.ESUCCESS
}

func (f *FATFileEntry) Flush() errs.Err_t {
	if !f.Dirty() {
		return errs.ESUCCESS
	}
	if err := f.fs.clusters.flush(); err != nil {
		return errs.EIO
	}
	f.clearDirty()
	return errs.ESUCCESS
}

// FATDirectoryEntry is a directory's in-memory Entry: children are resolved
// lazily by re-enumerating the underlying directory record stream on every
// Lookup/AllChildren call, matching the spec's note that the source "already
// does [this] for FAT" rather than maintaining a cached child list (§9).
type FATDirectoryEntry struct {
	fspkg.BaseEntry
	fatEntryCommon
	startCluster uint32
	fixedRoot    bool
}

func newFATDirectoryEntry(fs *FATFilesystem, name string, parent fspkg.Entry, startCluster uint32, fixedRoot bool, dirIndex int) *FATDirectoryEntry {
	return &FATDirectoryEntry{
		fatEntryCommon: fatEntryCommon{fs: fs, name: name, parent: parent, dirIndex: dirIndex},
		startCluster:   startCluster,
		fixedRoot:      fixedRoot,
	}
}

func (d *FATDirectoryEntry) Kind() fspkg.Kind { return fspkg.KindDirectory }
func (d *FATDirectoryEntry) Size() uint64      { return 0 }

func (d *FATDirectoryEntry) location() *dirLocation {
	return &dirLocation{fs: d.fs, fixedRoot: d.fixedRoot, startCluster: d.startCluster}
}

func (d *FATDirectoryEntry) toEntry(self fspkg.Entry, raw BasicFATEntry) fspkg.Entry {
	if raw.IsDir {
		return newFATDirectoryEntry(d.fs, raw.Name, self, raw.Cluster, false, raw.DirIndex)
	}
	return newFATFileEntry(d.fs, raw.Name, self, raw.Cluster, raw.Size, raw.DirIndex)
}

func (d *FATDirectoryEntry) Lookup(name kstr.Str) (fspkg.Entry, errs.Err_t) {
	children, err := d.location().Enumerate(d.fs.log)
	if err != nil {
		return nil, errs.EIO
	}
	want := string(name)
	for _, c := range children {
		if equalFold(c.Name, want) {
			return d.toEntry(d, c), errs.ESUCCESS
		}
	}
	return nil, errs.ENOENT
}

func (d *FATDirectoryEntry) AllChildren() ([]fspkg.Entry, errs.Err_t) {
	children, err := d.location().Enumerate(d.fs.log)
	if err != nil {
		return nil, errs.EIO
	}
	out := make([]fspkg.Entry, 0, len(children))
	for _, c := range children {
		out = append(out, d.toEntry(d, c))
	}
	return out, errs.ESUCCESS
}

func (d *FATDirectoryEntry) AddChild(name kstr.Str, kind fspkg.Kind) (fspkg.Entry, errs.Err_t) {
	loc := d.location()
	children, err := loc.Enumerate(d.fs.log)
	if err != nil {
		return nil, errs.EIO
	}
	want := string(name)
	for _, c := range children {
		if equalFold(c.Name, want) {
			return nil, errs.EEXIST
		}
	}

	var startCluster uint32
	if kind == fspkg.KindDirectory {
		c, aerr := d.fs.table.AllocateNextCluster(0)
		if aerr != nil {
			return nil, errs.EIO
		}
		if zerr := d.fs.zeroCluster(c); zerr != errs.ESUCCESS {
			return nil, zerr
		}
		startCluster = c
	}

	if werr := loc.AddEntry(want, kind == fspkg.KindDirectory, startCluster); werr != errs.ESUCCESS {
		return nil, werr
	}
	if kind == fspkg.KindDirectory {
		return newFATDirectoryEntry(d.fs, want, d, startCluster, false, 0), errs.ESUCCESS
	}
	return newFATFileEntry(d.fs, want, d, 0, 0, 0), errs.ESUCCESS
}

func (d *FATDirectoryEntry) RemoveChild(name kstr.Str) errs.Err_t {
	loc := d.location()
	children, err := loc.Enumerate(d.fs.log)
	if err != nil {
		return errs.EIO
	}
	want := string(name)
	for _, c := range children {
		if equalFold(c.Name, want) {
			return loc.RemoveEntry(c.DirIndex)
		}
	}
	return errs.ENOENT
}

func (d *FATDirectoryEntry) Flush() errs.Err_t {
	if err := d.fs.clusters.flush(); err != nil {
		return errs.EIO
	}
	d.clearDirty()
	return errs.ESUCCESS
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'a' && ca <= 'z' {
			ca -= 32
		}
		if cb >= 'a' && cb <= 'z' {
			cb -= 32
		}
		if ca != cb {
			return false
		}
	}
	return true
}
