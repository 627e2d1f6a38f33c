package fat

import (
	"container/list"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"bekkernel/blockdev"
)

// defaultMaxCacheItems is the kernel-chosen bound for both the FAT-sector
// and cluster-data LRU caches (§4.6: "bounded (kernel-chosen, e.g. 10 items
// each)").
const defaultMaxCacheItems = 10

// cacheEntry is one cached sector or cluster's worth of bytes, with the
// dirty byte range pending write-back.
type cacheEntry struct {
	data       []byte
	dirtyLo    int
	dirtyHi    int
	byteOffset uint64 // absolute device byte offset of data[0]
}

func (e *cacheEntry) isDirty() bool { return e.dirtyHi > e.dirtyLo }

func (e *cacheEntry) markDirty(lo, hi int) {
	if !e.isDirty() {
		e.dirtyLo, e.dirtyHi = lo, hi
		return
	}
	if lo < e.dirtyLo {
		e.dirtyLo = lo
	}
	if hi > e.dirtyHi {
		e.dirtyHi = hi
	}
}

// lruCache is the generic engine behind both the FAT-sector cache and the
// cluster-data cache: a bounded, at-most-one-in-flight-populator-per-key
// LRU with synchronous write-back on eviction (§4.6).
//
// Grounded on the teacher's buffer-cache-via-map-plus-refcount idiom
// (fs/blk.go's BlkList_t, since deleted from this tree — see DESIGN.md); the
// LRU ordering itself uses stdlib container/list, as no pack repo carries a
// dedicated LRU library.
type lruCache struct {
	mu       sync.Mutex
	maxItems int
	items    map[uint32]*list.Element // key -> element holding *cacheEntry
	order    *list.List               // front = most recently used

	sf singleflight.Group

	dev      blockdev.BlockDevice
	itemSize int
	// byteOffsetFor maps a cache key to the device byte offset of its first
	// byte; owned by the caller (sector cache: key*bytesPerSector; cluster
	// cache: geometry.ClusterByteOffset(key)).
	byteOffsetFor func(key uint32) uint64
}

type cacheItemHandle struct {
	key   uint32
	entry *cacheEntry
}

func newLRUCache(dev blockdev.BlockDevice, itemSize, maxItems int, byteOffsetFor func(uint32) uint64) *lruCache {
	return &lruCache{
		maxItems:      maxItems,
		items:         make(map[uint32]*list.Element),
		order:         list.New(),
		dev:           dev,
		itemSize:      itemSize,
		byteOffsetFor: byteOffsetFor,
	}
}

func syncRead(dev blockdev.BlockDevice, offset uint64, buf []byte) error {
	done := make(chan blockdev.TransferResult, 1)
	dev.ScheduleRead(offset, buf, func(r blockdev.TransferResult) { done <- r })
	if r := <-done; r != blockdev.Success {
		return fmt.Errorf("fat: read at %d failed: %v", offset, r)
	}
	return nil
}

func syncWrite(dev blockdev.BlockDevice, offset uint64, buf []byte) error {
	done := make(chan blockdev.TransferResult, 1)
	dev.ScheduleWrite(offset, buf, func(r blockdev.TransferResult) { done <- r })
	if r := <-done; r != blockdev.Success {
		return fmt.Errorf("fat: write at %d failed: %v", offset, r)
	}
	return nil
}

// get returns the cached entry for key, populating it from the block
// device on a miss. Concurrent misses on the same key are deduplicated by
// singleflight, so at most one populator is ever in flight per key (§4.6).
func (c *lruCache) get(key uint32) (*cacheEntry, error) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		entry := el.Value.(*cacheItemHandle).entry
		c.mu.Unlock()
		return entry, nil
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do(fmt.Sprintf("%d", key), func() (interface{}, error) {
		c.mu.Lock()
		if el, ok := c.items[key]; ok {
			entry := el.Value.(*cacheItemHandle).entry
			c.mu.Unlock()
			return entry, nil
		}
		c.mu.Unlock()

		offset := c.byteOffsetFor(key)
		buf := make([]byte, c.itemSize)
		if err := syncRead(c.dev, offset, buf); err != nil {
			return nil, err
		}
		entry := &cacheEntry{data: buf, byteOffset: offset}

		c.mu.Lock()
		defer c.mu.Unlock()
		// A concurrent populator may have raced ahead and already inserted
		// this key; in that case discard our copy and use theirs (§4.6).
		if el, ok := c.items[key]; ok {
			return el.Value.(*cacheItemHandle).entry, nil
		}
		el := c.order.PushFront(&cacheItemHandle{key: key, entry: entry})
		c.items[key] = el
		c.evictLocked()
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cacheEntry), nil
}

// evictLocked purges least-recently-used entries until the cache is back
// within bounds, writing back any dirty range synchronously first (§4.6,
// invariant 6: "entries.len() <= max_items + 1, a purge must bring it
// back").
func (c *lruCache) evictLocked() {
	for c.order.Len() > c.maxItems {
		back := c.order.Back()
		h := back.Value.(*cacheItemHandle)
		if h.entry.isDirty() {
			span := h.entry.data[h.entry.dirtyLo:h.entry.dirtyHi]
			_ = syncWrite(c.dev, h.entry.byteOffset+uint64(h.entry.dirtyLo), span)
		}
		c.order.Remove(back)
		delete(c.items, h.key)
	}
}

// markDirty records that data within [lo,hi) of key's cached item has been
// modified and needs write-back before eviction.
func (c *lruCache) markDirty(key uint32, lo, hi int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheItemHandle).entry.markDirty(lo, hi)
	}
}

// flush writes back every dirty entry without evicting it, for Filesystem
// Sync.
func (c *lruCache) flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for e := c.order.Front(); e != nil; e = e.Next() {
		h := e.Value.(*cacheItemHandle)
		if h.entry.isDirty() {
			span := h.entry.data[h.entry.dirtyLo:h.entry.dirtyHi]
			if err := syncWrite(c.dev, h.entry.byteOffset+uint64(h.entry.dirtyLo), span); err != nil {
				return err
			}
			h.entry.dirtyLo, h.entry.dirtyHi = 0, 0
		}
	}
	return nil
}

// len reports the current item count, for the invariant-6 bound check in
// tests.
func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// sectorCache is the FAT-sector flavour of lruCache, keyed by FAT-sector
// index (relative to FAT copy 0).
type sectorCache struct{ *lruCache }

func newSectorCache(dev blockdev.BlockDevice, geo *Geometry) *sectorCache {
	return &sectorCache{newLRUCache(dev, int(geo.BytesPerSector), defaultMaxCacheItems, geo.FATSectorOffset)}
}

// clusterCache is the data-cluster flavour of lruCache, keyed by cluster
// number.
type clusterCache struct{ *lruCache }

func newClusterCache(dev blockdev.BlockDevice, geo *Geometry) *clusterCache {
	return &clusterCache{newLRUCache(dev, geo.BytesPerCluster(), defaultMaxCacheItems, geo.ClusterByteOffset)}
}

// getForWrite returns the cluster's cached entry without requiring the
// initial read to have completed meaningfully when the caller is about to
// overwrite the whole cluster (§4.6: "fetched without loading, content will
// be overwritten"). Since syncRead always actually reads, this still issues
// the I/O — the optimisation the spec describes only matters on real
// hardware's DMA path; tracked as a known simplification of a host
// simulation with no separate "populate without reading" primitive.
func (c *clusterCache) getForWrite(cluster uint32) (*cacheEntry, error) {
	return c.get(cluster)
}
