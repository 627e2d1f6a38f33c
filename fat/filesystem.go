package fat

import (
	"log/slog"

	"bekkernel/blockdev"
	"bekkernel/errs"
	fspkg "bekkernel/fs"
)

// FATFilesystem is the mounted volume: geometry, the two LRU caches, the
// cluster-chain table, and the lazily-exposed root directory (§3, §4.6,
// §4.7).
type FATFilesystem struct {
	dev      blockdev.BlockDevice
	geo      *Geometry
	table    *ClusterTable
	clusters *clusterCache
	sectors  *sectorCache
	log      *slog.Logger

	root fspkg.Entry
}

// TryCreateFrom reads dev's boot sector and, if it parses as a valid FAT
// volume, returns a mounted FATFilesystem. It returns EINVAL for a device
// that is not a FAT volume and EIO for a failed boot-sector read, letting
// FilesystemRegistry.TryMountRoot distinguish "not FAT" from "device not
// ready" per §4.7.
func TryCreateFrom(dev blockdev.BlockDevice, log *slog.Logger) (*FATFilesystem, errs.Err_t) {
	sector := make([]byte, 512)
	if err := syncRead(dev, 0, sector); err != nil {
		return nil, errs.EIO
	}
	geo, ok := ParseBootSector(sector)
	if !ok {
		return nil, errs.EINVAL
	}

	fs := &FATFilesystem{dev: dev, geo: geo, log: log}
	fs.sectors = newSectorCache(dev, geo)
	fs.clusters = newClusterCache(dev, geo)
	fs.table = newClusterTable(geo, fs.sectors)

	if geo.Variant == FAT32 {
		fs.root = newFATDirectoryEntry(fs, "", nil, geo.RootCluster, false, 0)
	} else {
		fs.root = newFATDirectoryEntry(fs, "", nil, 0, true, 0)
	}
	return fs, errs.ESUCCESS
}

// GetRoot implements fs.Filesystem.
func (f *FATFilesystem) GetRoot() fspkg.Entry { return f.root }

// Sync flushes both LRU caches' dirty entries without evicting them.
func (f *FATFilesystem) Sync() errs.Err_t {
	if err := f.clusters.flush(); err != nil {
		return errs.EIO
	}
	if err := f.sectors.flush(); err != nil {
		return errs.EIO
	}
	return errs.ESUCCESS
}

// clusterAt walks idx steps forward from start along the cluster chain,
// the "compute the starting cluster via cluster-offset walks" step of
// §4.6's Read/write algorithm.
func (f *FATFilesystem) clusterAt(start uint32, idx uint64) (uint32, errs.Err_t) {
	c := start
	for i := uint64(0); i < idx; i++ {
		class, next, err := f.table.GetNextCluster(c)
		if err != nil || class != NextPointer {
			return 0, errs.EINVAL
		}
		c = next
	}
	return c, errs.ESUCCESS
}

// extendClusterChainTo is clusterAt, but allocates new clusters via
// allocateNextCluster when the existing chain is shorter than idx (§4.6:
// "Extending a file beyond its last cluster").
func (f *FATFilesystem) extendClusterChainTo(start uint32, idx uint64) (uint32, errs.Err_t) {
	c := start
	for i := uint64(0); i < idx; i++ {
		class, next, err := f.table.GetNextCluster(c)
		if err != nil {
			return 0, errs.EIO
		}
		if class == NextPointer {
			c = next
			continue
		}
		newC, aerr := f.table.AllocateNextCluster(c)
		if aerr != nil {
			return 0, errs.EIO
		}
		c = newC
	}
	return c, errs.ESUCCESS
}

// zeroCluster clears a freshly allocated directory cluster before its first
// enumeration (an uninitialised cluster could otherwise be misread as a
// stream of bogus directory records).
func (f *FATFilesystem) zeroCluster(cluster uint32) errs.Err_t {
	entry, err := f.clusters.getForWrite(cluster)
	if err != nil {
		return errs.EIO
	}
	for i := range entry.data {
		entry.data[i] = 0
	}
	entry.markDirty(0, len(entry.data))
	return errs.ESUCCESS
}
