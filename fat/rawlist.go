package fat

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"bekkernel/errs"
)

// BasicFATEntry is one fully reassembled directory entry: a short-name
// record paired with its (possibly empty) LFN run, after checksum
// verification (§4.6).
type BasicFATEntry struct {
	Name       string
	IsDir      bool
	Cluster    uint32
	Size       uint32
	DirCluster uint32 // 0 for the FAT12/16 fixed root directory
	DirIndex   int    // index of the short-name record within the directory
}

// dirLocation addresses a directory's raw byte stream, either the FAT12/16
// fixed root region or an ordinary cluster chain (§4.6, §6.2).
type dirLocation struct {
	fs           *FATFilesystem
	fixedRoot    bool
	startCluster uint32
}

func (d *dirLocation) readAll() ([]byte, error) {
	if d.fixedRoot {
		start, count, ok := d.fs.geo.RootDirRegion()
		if !ok {
			return nil, fmt.Errorf("fat: fixed root requested on FAT32 volume")
		}
		buf := make([]byte, uint64(count)*uint64(d.fs.geo.BytesPerSector))
		if err := syncRead(d.fs.dev, uint64(start)*uint64(d.fs.geo.BytesPerSector), buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	var out []byte
	c := d.startCluster
	seen := map[uint32]bool{}
	for c != 0 && !seen[c] {
		seen[c] = true
		entry, err := d.fs.clusters.get(c)
		if err != nil {
			return nil, err
		}
		out = append(out, entry.data...)
		class, next, err := d.fs.table.GetNextCluster(c)
		if err != nil {
			return nil, err
		}
		if class != NextPointer {
			break
		}
		c = next
	}
	return out, nil
}

// writeAll rewrites the directory's full byte stream, extending the
// cluster chain with freshly allocated clusters if data grew (or returning
// an out-of-space error for the fixed root region, which cannot grow).
func (d *dirLocation) writeAll(data []byte) errs.Err_t {
	if d.fixedRoot {
		start, count, ok := d.fs.geo.RootDirRegion()
		if !ok {
			return errs.EINVAL
		}
		max := int(count) * int(d.fs.geo.BytesPerSector)
		if len(data) > max {
			return errs.EFBIG
		}
		if err := syncWrite(d.fs.dev, uint64(start)*uint64(d.fs.geo.BytesPerSector), data); err != nil {
			return errs.EIO
		}
		return errs.ESUCCESS
	}

	clusterSize := d.fs.geo.BytesPerCluster()
	c := d.startCluster
	written := 0
	var lastCluster uint32
	for written < len(data) {
		if c == 0 {
			next, err := d.fs.table.AllocateNextCluster(lastCluster)
			if err != nil {
				return errs.EIO
			}
			if d.startCluster == 0 {
				d.startCluster = next
			}
			c = next
		}
		entry, err := d.fs.clusters.get(c)
		if err != nil {
			return errs.EIO
		}
		end := written + clusterSize
		if end > len(data) {
			end = len(data)
		}
		n := copy(entry.data, data[written:end])
		entry.markDirty(0, n)
		written = end
		lastCluster = c

		class, next, err := d.fs.table.GetNextCluster(c)
		if err != nil {
			return errs.EIO
		}
		if written < len(data) {
			if class == NextPointer {
				c = next
			} else {
				c = 0
			}
		}
	}
	return errs.ESUCCESS
}

// Enumerate walks the directory's raw 32-byte record stream, reassembling
// LFN runs per §4.6's checksum/ordering rule, and returns every valid
// entry in on-disk order.
func (d *dirLocation) Enumerate(log *slog.Logger) ([]BasicFATEntry, error) {
	raw, err := d.readAll()
	if err != nil {
		return nil, err
	}
	var out []BasicFATEntry
	var pendingRun []*rawDirEntry

	discardRun := func(reason string) {
		if len(pendingRun) > 0 && log != nil {
			log.Warn("fat: discarding partial LFN run", "reason", reason)
		}
		pendingRun = nil
	}

	for i := 0; i+rawEntrySize <= len(raw); i += rawEntrySize {
		var rec rawDirEntry
		copy(rec.raw[:], raw[i:i+rawEntrySize])

		if rec.isFree() {
			break
		}
		if rec.isDeleted() {
			discardRun("deleted record interrupts LFN run")
			continue
		}
		if rec.isLFN() {
			n, last := rec.lfnOrder()
			if last {
				if len(pendingRun) != 0 {
					discardRun("unexpected last-flag mid-run")
				}
				pendingRun = []*rawDirEntry{&rec}
			} else if len(pendingRun) > 0 {
				expect, _ := pendingRun[len(pendingRun)-1].lfnOrder()
				if n != expect-1 {
					discardRun("out-of-order LFN sequence number")
					continue
				}
				pendingRun = append(pendingRun, &rec)
			} else {
				discardRun("LFN continuation with no preceding last record")
			}
			continue
		}

		recCopy := rec
		name, ok := reassembleLFN(pendingRun, &recCopy)
		if !ok {
			discardRun("LFN checksum mismatch")
			name = recCopy.shortName()
		}
		pendingRun = nil
		if name == "" {
			name = recCopy.shortName()
		}
		if recCopy.attr()&attrVolumeID != 0 {
			continue
		}
		out = append(out, BasicFATEntry{
			Name:       name,
			IsDir:      recCopy.isDirectory(),
			Cluster:    recCopy.cluster(d.fs.geo.Variant),
			Size:       recCopy.size(),
			DirCluster: d.startCluster,
			DirIndex:   i / rawEntrySize,
		})
	}
	return out, nil
}

// existingShortNames collects the short names already present, for
// generateShortName's collision check.
func (d *dirLocation) existingShortNames() (map[string]bool, error) {
	raw, err := d.readAll()
	if err != nil {
		return nil, err
	}
	names := map[string]bool{}
	for i := 0; i+rawEntrySize <= len(raw); i += rawEntrySize {
		var rec rawDirEntry
		copy(rec.raw[:], raw[i:i+rawEntrySize])
		if rec.isFree() {
			break
		}
		if rec.isDeleted() || rec.isLFN() {
			continue
		}
		names[rec.shortName()] = true
	}
	return names, nil
}

// AddEntry appends a new short-name record (with an LFN run ahead of it
// when name doesn't fit 8.3) for a file or directory whose first cluster is
// startCluster (0 for a file with no data yet); it allocates no cluster.
func (d *dirLocation) AddEntry(name string, isDir bool, startCluster uint32) errs.Err_t {
	raw, err := d.readAll()
	if err != nil {
		return errs.EIO
	}
	existing, err := d.existingShortNames()
	if err != nil {
		return errs.EIO
	}
	short := generateShortName(name, existing)

	records := buildLFNRecords(name, short)
	var shortRec rawDirEntry
	encodeShortName(&shortRec, short)
	if isDir {
		shortRec.raw[11] = attrDirectory
	} else {
		shortRec.raw[11] = attrArchive
	}
	binary.LittleEndian.PutUint16(shortRec.raw[20:22], uint16(startCluster>>16))
	binary.LittleEndian.PutUint16(shortRec.raw[26:28], uint16(startCluster))
	records = append(records, shortRec)

	// Insert at the first end-of-directory (0x00) record, else append at
	// the tail; deleted (0xE5) records are not reused.
	insertAt := len(raw)
	for i := 0; i+rawEntrySize <= len(raw); i += rawEntrySize {
		if raw[i] == firstByteFree {
			insertAt = i
			break
		}
	}

	out := make([]byte, 0, insertAt+len(records)*rawEntrySize)
	out = append(out, raw[:insertAt]...)
	for _, r := range records {
		out = append(out, r.raw[:]...)
	}
	if insertAt+len(records)*rawEntrySize < len(raw) {
		out = append(out, raw[insertAt+len(records)*rawEntrySize:]...)
	}
	return d.writeAll(out)
}

// RemoveEntry marks the short-name record at shortIndex (and any LFN run
// immediately preceding it) as deleted (§4.6).
func (d *dirLocation) RemoveEntry(shortIndex int) errs.Err_t {
	raw, err := d.readAll()
	if err != nil {
		return errs.EIO
	}
	base := shortIndex * rawEntrySize
	if base+rawEntrySize > len(raw) {
		return errs.EINVAL
	}
	raw[base] = firstByteDeleted

	// Walk backward over any LFN run immediately preceding this record.
	for i := base - rawEntrySize; i >= 0; i -= rawEntrySize {
		var rec rawDirEntry
		copy(rec.raw[:], raw[i:i+rawEntrySize])
		if !rec.isLFN() || rec.isDeleted() {
			break
		}
		raw[i] = firstByteDeleted
	}
	return d.writeAll(raw)
}

func buildLFNRecords(longName, shortName string) []rawDirEntry {
	if longName == shortName {
		return nil
	}
	checksum := func() byte {
		var s rawDirEntry
		encodeShortName(&s, shortName)
		return s.shortNameChecksum()
	}()

	units := make([]uint16, 0, len(longName)+1)
	for _, r := range longName {
		units = append(units, uint16(r))
	}
	units = append(units, 0x0000)
	for len(units)%13 != 0 {
		units = append(units, 0xFFFF)
	}
	total := len(units) / 13

	recs := make([]rawDirEntry, total)
	for i := 0; i < total; i++ {
		order := total - i
		var rec rawDirEntry
		b := order
		if i == 0 {
			b |= lfnLastFlag
		}
		rec.raw[0] = byte(b)
		rec.raw[11] = attrLFN
		rec.raw[13] = checksum
		chunk := units[i*13 : i*13+13]
		putRange := func(off int, n int, chars []uint16) {
			for j := 0; j < n; j++ {
				binary.LittleEndian.PutUint16(rec.raw[off+2*j:], chars[j])
			}
		}
		putRange(1, 5, chunk[0:5])
		putRange(14, 6, chunk[5:11])
		putRange(28, 2, chunk[11:13])
		recs[i] = rec
	}
	// recs are emitted highest-order-first (on-disk order): recs[0] carries
	// the last-in-sequence flag and the first 13 characters, the order in
	// which reassembleLFN concatenates them.
	return recs
}

func encodeShortName(rec *rawDirEntry, short string) {
	for i := range rec.raw[0:11] {
		rec.raw[i] = ' '
	}
	base, ext := short, ""
	if dot := indexByte(short, '.'); dot >= 0 {
		base, ext = short[:dot], short[dot+1:]
	}
	copy(rec.raw[0:8], base)
	copy(rec.raw[8:11], ext)
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
