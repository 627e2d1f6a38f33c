package fat

import (
	"encoding/binary"
	"log/slog"

	"bekkernel/blockdev"
	"bekkernel/errs"
)

// FormatOptions parameterises Format's minimal FAT volume layout.
type FormatOptions struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
}

// DefaultFormatOptions is the layout mkbekfs uses for freshly created
// images: 512-byte sectors, 2KB clusters, a single reserved boot sector,
// two FAT copies, and a 512-entry (16KB) fixed root directory.
func DefaultFormatOptions() FormatOptions {
	return FormatOptions{
		BytesPerSector:    512,
		SectorsPerCluster: 4,
		ReservedSectors:   1,
		NumFATs:           2,
		RootEntryCount:    512,
	}
}

// Format writes a minimal FAT boot sector, FAT tables sized for 16-bit
// entries, and a zeroed root directory region to dev, then mounts and
// returns it. The mount path derives the variant from the cluster count, so
// a volume of fewer than 4085 clusters (under about 8MB with
// DefaultFormatOptions) mounts as FAT12. This is
// the image-construction half of §4.6/§6.2 that mkbekfs needs and that a
// read-only "mount an existing image" path (TryCreateFrom) does not cover.
func Format(dev blockdev.BlockDevice, opts FormatOptions, log *slog.Logger) (*FATFilesystem, errs.Err_t) {
	bps := uint64(opts.BytesPerSector)
	totalSectors := dev.Capacity() * uint64(dev.LogicalBlockSize()) / bps
	rootDirSectors := (uint64(opts.RootEntryCount)*32 + bps - 1) / bps

	// Solve sectorsPerFAT iteratively: it depends on countOfClusters, which
	// depends on sectorsPerFAT, so converge over a few rounds starting from
	// a single sector.
	sectorsPerFAT := uint32(1)
	for i := 0; i < 8; i++ {
		dataSectors := totalSectors - uint64(opts.ReservedSectors) - uint64(opts.NumFATs)*uint64(sectorsPerFAT) - rootDirSectors
		clusters := dataSectors / uint64(opts.SectorsPerCluster)
		need := (clusters + 2) * 2 // FAT16: 2 bytes/entry
		newSPF := uint32((need + bps - 1) / bps)
		if newSPF == sectorsPerFAT {
			break
		}
		sectorsPerFAT = newSPF
	}

	boot := make([]byte, bps)
	binary.LittleEndian.PutUint16(boot[11:13], opts.BytesPerSector)
	boot[13] = opts.SectorsPerCluster
	binary.LittleEndian.PutUint16(boot[14:16], opts.ReservedSectors)
	boot[0x10] = opts.NumFATs
	binary.LittleEndian.PutUint16(boot[17:19], opts.RootEntryCount)
	if totalSectors < 0x10000 {
		binary.LittleEndian.PutUint16(boot[19:21], uint16(totalSectors))
	} else {
		binary.LittleEndian.PutUint32(boot[32:36], uint32(totalSectors))
	}
	binary.LittleEndian.PutUint16(boot[22:24], uint16(sectorsPerFAT))
	binary.LittleEndian.PutUint16(boot[bootSignatureOffset:], bootSignature)

	if err := syncWrite(dev, 0, boot); err != nil {
		return nil, errs.EIO
	}

	fatTable := make([]byte, bps)
	// First two FAT entries are reserved; mark them per convention (media
	// descriptor byte in entry 0, all-ones in entry 1). On a volume that
	// mounts as FAT12 the two 12-bit entries span three bytes.
	clusterCount := (totalSectors - uint64(opts.ReservedSectors) - uint64(opts.NumFATs)*uint64(sectorsPerFAT) - rootDirSectors) / uint64(opts.SectorsPerCluster)
	binary.LittleEndian.PutUint16(fatTable[0:2], 0xFFF8)
	if clusterCount < 4085 {
		fatTable[2] = 0xFF
	} else {
		binary.LittleEndian.PutUint16(fatTable[2:4], 0xFFFF)
	}
	for fatIdx := uint8(0); fatIdx < opts.NumFATs; fatIdx++ {
		fatStart := uint64(opts.ReservedSectors) + uint64(fatIdx)*uint64(sectorsPerFAT)
		if err := syncWrite(dev, fatStart*bps, fatTable); err != nil {
			return nil, errs.EIO
		}
		zero := make([]byte, bps)
		for s := uint64(1); s < uint64(sectorsPerFAT); s++ {
			if err := syncWrite(dev, (fatStart+s)*bps, zero); err != nil {
				return nil, errs.EIO
			}
		}
	}

	rootStart := uint64(opts.ReservedSectors) + uint64(opts.NumFATs)*uint64(sectorsPerFAT)
	zeroSector := make([]byte, bps)
	for s := uint64(0); s < rootDirSectors; s++ {
		if err := syncWrite(dev, (rootStart+s)*bps, zeroSector); err != nil {
			return nil, errs.EIO
		}
	}

	return TryCreateFrom(dev, log)
}
