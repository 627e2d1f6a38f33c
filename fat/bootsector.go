// Package fat implements the FAT12/16/32 filesystem engine of §4.6/§6.2:
// boot-sector parsing, the cluster-chain FAT table, LRU cluster and
// FAT-sector caches with write-back eviction, directory enumeration with
// long-filename reassembly, and the fs.Entry implementations that expose
// all of it to the rest of the kernel.
//
// Grounded on the teacher's ufs.Ufs_t (fat/ufs.go) for the overall
// boot/mount/read/write API shape, and fat/driver.go's ahci_disk_t for the
// block-device-as-file-backed-simulation idiom (superseded here by
// blockdev.BlockDevice, a real interface rather than a single hardwired
// struct).
package fat

import "encoding/binary"

// Variant distinguishes the three on-disk FAT table widths (§6.2).
type Variant int

const (
	FAT12 Variant = iota
	FAT16
	FAT32
)

func (v Variant) String() string {
	switch v {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// bootSignatureOffset/bootSignature are the trailing 0xAA55 marker every
// FAT (and MBR) boot sector carries.
const bootSignatureOffset = 0x1FE
const bootSignature = 0xAA55

// Geometry holds the parsed BIOS Parameter Block fields needed to compute
// cluster-to-sector mappings (§6.2).
type Geometry struct {
	Variant Variant

	BytesPerSector   uint16
	SectorsPerCluster uint8
	ReservedSectors  uint16
	NumFATs          uint8
	RootEntryCount   uint16
	SectorsPerFAT    uint32
	TotalSectors     uint32
	RootCluster      uint32 // FAT32 only; 0 for FAT12/16

	rootDirSectors  uint32
	firstDataSector uint32
	firstFATSector  uint32
	countOfClusters uint32
}

// BytesPerCluster is the size in bytes of one data cluster.
func (g *Geometry) BytesPerCluster() int {
	return int(g.SectorsPerCluster) * int(g.BytesPerSector)
}

// ParseBootSector parses a 512-byte (or BytesPerSector-byte) boot sector
// image per §6.2's field table, deriving the FAT variant from the resulting
// cluster count per the classic Microsoft rule (§4.6: "value < 2 or >
// 0x0FFFFFEF interpreted per §4.6").
func ParseBootSector(sector []byte) (*Geometry, bool) {
	if len(sector) < 512 {
		return nil, false
	}
	if binary.LittleEndian.Uint16(sector[bootSignatureOffset:]) != bootSignature {
		return nil, false
	}

	g := &Geometry{
		BytesPerSector:    binary.LittleEndian.Uint16(sector[11:13]),
		SectorsPerCluster: sector[13],
		ReservedSectors:   binary.LittleEndian.Uint16(sector[14:16]),
		NumFATs:           sector[0x10],
		RootEntryCount:    binary.LittleEndian.Uint16(sector[17:19]),
	}
	totalSectors16 := binary.LittleEndian.Uint16(sector[19:21])
	sectorsPerFAT16 := binary.LittleEndian.Uint16(sector[22:24])
	totalSectors32 := binary.LittleEndian.Uint32(sector[32:36])
	sectorsPerFAT32 := binary.LittleEndian.Uint32(sector[36:40])

	if g.BytesPerSector == 0 || g.SectorsPerCluster == 0 {
		return nil, false
	}

	if sectorsPerFAT16 != 0 {
		g.SectorsPerFAT = uint32(sectorsPerFAT16)
	} else {
		g.SectorsPerFAT = sectorsPerFAT32
		g.RootCluster = binary.LittleEndian.Uint32(sector[44:48])
	}
	if totalSectors16 != 0 {
		g.TotalSectors = uint32(totalSectors16)
	} else {
		g.TotalSectors = totalSectors32
	}
	if g.SectorsPerFAT == 0 || g.NumFATs == 0 || g.TotalSectors == 0 {
		return nil, false
	}

	g.rootDirSectors = (uint32(g.RootEntryCount)*32 + uint32(g.BytesPerSector) - 1) / uint32(g.BytesPerSector)
	g.firstFATSector = uint32(g.ReservedSectors)
	g.firstDataSector = uint32(g.ReservedSectors) + uint32(g.NumFATs)*g.SectorsPerFAT + g.rootDirSectors

	if g.firstDataSector > g.TotalSectors {
		return nil, false
	}
	dataSectors := g.TotalSectors - g.firstDataSector
	g.countOfClusters = dataSectors / uint32(g.SectorsPerCluster)

	switch {
	case g.countOfClusters < 4085:
		g.Variant = FAT12
	case g.countOfClusters < 65525:
		g.Variant = FAT16
	default:
		g.Variant = FAT32
	}
	return g, true
}

// ClusterToSector converts a data-cluster number (first valid cluster is 2)
// to an absolute sector number.
func (g *Geometry) ClusterToSector(cluster uint32) uint64 {
	return uint64(g.firstDataSector) + uint64(cluster-2)*uint64(g.SectorsPerCluster)
}

// ClusterByteOffset is ClusterToSector expressed in bytes, the unit the
// blockdev.BlockDevice transfer API uses.
func (g *Geometry) ClusterByteOffset(cluster uint32) uint64 {
	return g.ClusterToSector(cluster) * uint64(g.BytesPerSector)
}

// RootDirRegion reports the fixed root-directory sector range for FAT12/16
// (ok is false for FAT32, whose root directory is an ordinary cluster chain
// starting at RootCluster).
func (g *Geometry) RootDirRegion() (startSector uint32, sectorCount uint32, ok bool) {
	if g.Variant == FAT32 {
		return 0, 0, false
	}
	return uint32(g.ReservedSectors) + uint32(g.NumFATs)*g.SectorsPerFAT, g.rootDirSectors, true
}

// FATSectorOffset returns the byte offset of FAT-table sector index s
// (within FAT copy 0) from the start of the volume.
func (g *Geometry) FATSectorOffset(s uint32) uint64 {
	return uint64(g.firstFATSector+s) * uint64(g.BytesPerSector)
}

// CountOfClusters is the total number of data clusters, used to bound
// allocateNextCluster's scan and free_cluster_hint wraparound (§4.6).
func (g *Geometry) CountOfClusters() uint32 { return g.countOfClusters }
