package boot

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"bekkernel/blockdev"
	"bekkernel/fat"
	fspkg "bekkernel/fs"
	"bekkernel/kstr"
)

// buildMinimalELF64 hand-assembles the smallest ELF64 executable
// debug/elf will parse: one PT_LOAD segment covering payload, entered at
// vaddr. There is no assembler in this rewrite's dependency graph, so the
// test's "init" binary is just a header plus a handful of payload bytes —
// loadELF never executes them, only maps and copies them.
func buildMinimalELF64(vaddr uint64, payload []byte) []byte {
	const ehdrSize = 64
	const phdrSize = 56
	fileOff := uint64(ehdrSize + phdrSize)

	buf := make([]byte, fileOff+uint64(len(payload)))

	// e_ident
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT

	le := binary.LittleEndian
	le.PutUint16(buf[16:18], 2)            // e_type = ET_EXEC
	le.PutUint16(buf[18:20], 183)          // e_machine = EM_AARCH64
	le.PutUint32(buf[20:24], 1)            // e_version
	le.PutUint64(buf[24:32], vaddr)        // e_entry
	le.PutUint64(buf[32:40], ehdrSize)     // e_phoff
	le.PutUint64(buf[40:48], 0)            // e_shoff
	le.PutUint32(buf[48:52], 0)            // e_flags
	le.PutUint16(buf[52:54], ehdrSize)     // e_ehsize
	le.PutUint16(buf[54:56], phdrSize)     // e_phentsize
	le.PutUint16(buf[56:58], 1)            // e_phnum
	le.PutUint16(buf[58:60], 0)            // e_shentsize
	le.PutUint16(buf[60:62], 0)            // e_shnum
	le.PutUint16(buf[62:64], 0)            // e_shstrndx

	ph := buf[ehdrSize : ehdrSize+phdrSize]
	le.PutUint32(ph[0:4], 1)                    // p_type = PT_LOAD
	le.PutUint32(ph[4:8], 5)                     // p_flags = PF_R|PF_X
	le.PutUint64(ph[8:16], fileOff)              // p_offset
	le.PutUint64(ph[16:24], vaddr)               // p_vaddr
	le.PutUint64(ph[24:32], vaddr)               // p_paddr
	le.PutUint64(ph[32:40], uint64(len(payload))) // p_filesz
	le.PutUint64(ph[40:48], uint64(len(payload))) // p_memsz
	le.PutUint64(ph[48:56], 0x1000)              // p_align

	copy(buf[fileOff:], payload)
	return buf
}

// buildTestImage formats a 4MB FAT disk image (FAT12 by cluster count) at
// path with /sbin/init
// containing a minimal ELF64 binary, returning the entry point used.
func buildTestImage(t *testing.T, path string) uint64 {
	t.Helper()
	const entry = uint64(0x10000)

	dev, err := blockdev.CreateFileDevice(path, 4*1024*1024, 512)
	require.NoError(t, err)

	volume, ferr := fat.Format(dev, fat.DefaultFormatOptions(), nil)
	require.True(t, ferr.Ok())

	root := volume.GetRoot()
	sbin, serr := root.AddChild(kstr.Str("SBIN"), fspkg.KindDirectory)
	require.True(t, serr.Ok())
	init, ierr := sbin.AddChild(kstr.Str("INIT"), fspkg.KindFile)
	require.True(t, ierr.Ok())

	elfBytes := buildMinimalELF64(entry, []byte{0xde, 0xad, 0xbe, 0xef})
	_, werr := init.WriteBytes(elfBytes, 0)
	require.True(t, werr.Ok())

	require.True(t, volume.Sync().Ok())
	require.NoError(t, dev.Close())
	return entry
}

func TestBootWiresKernelAndLoadsInit(t *testing.T) {
	path := t.TempDir() + "/disk.img"
	entry := buildTestImage(t, path)

	cfg := &Config{
		DiskImage: path,
		MemoryMB:  8,
		TimerHz:   1_000_000,
		SPICount:  4,
		InitPath:  "/sbin/init",
		LogLevel:  "error",
	}

	sys, err := Boot(cfg)
	require.NoError(t, err)
	require.NotNil(t, sys.Kernel)
	require.NotNil(t, sys.Interrupts)
	require.NotNil(t, sys.Timer)
	defer sys.Timer.Stop()

	require.NotNil(t, sys.Init)
	require.Equal(t, int64(1), sys.Init.Pid())
	require.EqualValues(t, entry, sys.Init.Userspace().EntryPoint)

	require.NotNil(t, sys.Kernel.FS.Root())
	_, ok := sys.Kernel.Pages.AllocateRegion(1)
	require.True(t, ok)
}

func TestParseConfigRequiresDisk(t *testing.T) {
	_, err := ParseConfig([]string{"--mem-mb", "16"})
	require.Error(t, err)
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]string{"--disk", "/tmp/whatever.img"})
	require.NoError(t, err)
	require.Equal(t, 64, cfg.MemoryMB)
	require.Equal(t, "/sbin/init", cfg.InitPath)
	require.Equal(t, "info", cfg.LogLevel)
}
