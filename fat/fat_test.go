package fat

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"bekkernel/blockdev"
	fspkg "bekkernel/fs"
	"bekkernel/kstr"
)

func TestGenerateShortNameCollision(t *testing.T) {
	existing := map[string]bool{"LONGFILE.TXT": true, "LONGFI~1.TXT": true}
	got := generateShortName("longfilename.txt", existing)
	require.Equal(t, "LONGFI~2.TXT", got)
}

func TestGenerateShortNameNoCollision(t *testing.T) {
	got := generateShortName("hello.txt", map[string]bool{})
	require.Equal(t, "HELLO.TXT", got)
}

func TestClassifyRawFAT16(t *testing.T) {
	c, next, err := classifyRaw(FAT16, 0)
	require.NoError(t, err)
	require.Equal(t, Free, c)

	c, next, err = classifyRaw(FAT16, 5)
	require.NoError(t, err)
	require.Equal(t, NextPointer, c)
	require.EqualValues(t, 5, next)

	c, _, err = classifyRaw(FAT16, 0xFFF8)
	require.NoError(t, err)
	require.Equal(t, EndOfChain, c)

	c, _, err = classifyRaw(FAT16, 0xFFF7)
	require.NoError(t, err)
	require.Equal(t, Corrupt, c)
}

func newTempFATImage(t *testing.T) blockdev.BlockDevice {
	t.Helper()
	path := t.TempDir() + "/image.bin"
	dev, err := blockdev.CreateFileDevice(path, 2*1024*1024, 512)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestFormatThenMountRoundTrip(t *testing.T) {
	dev := newTempFATImage(t)
	volume, ferr := Format(dev, DefaultFormatOptions(), nil)
	require.True(t, ferr.Ok())

	root := volume.GetRoot()
	entry, eerr := root.AddChild(kstr.Str("HELLO.TXT"), fspkg.KindFile)
	require.True(t, eerr.Ok())

	payload := []byte("Hello, world!\n")
	n, werr := entry.WriteBytes(payload, 0)
	require.True(t, werr.Ok())
	require.Equal(t, len(payload), n)
	require.True(t, volume.Sync().Ok())

	remounted, merr := TryCreateFrom(dev, nil)
	require.True(t, merr.Ok())

	found, lerr := remounted.GetRoot().Lookup(kstr.Str("HELLO.TXT"))
	require.True(t, lerr.Ok())
	require.EqualValues(t, len(payload), found.Size())

	buf := make([]byte, 32)
	n, rerr := found.ReadBytes(buf, 0)
	require.True(t, rerr.Ok())
	require.Equal(t, payload, buf[:n])
}

func TestDirectoryAddAndLookup(t *testing.T) {
	dev := newTempFATImage(t)
	volume, ferr := Format(dev, DefaultFormatOptions(), nil)
	require.True(t, ferr.Ok())

	root := volume.GetRoot()
	dir, derr := root.AddChild(kstr.Str("SUBDIR"), fspkg.KindDirectory)
	require.True(t, derr.Ok())

	_, found := dir.Lookup(kstr.Str("SUBDIR"))
	require.False(t, found.Ok())

	children, lerr := root.AllChildren()
	require.True(t, lerr.Ok())
	require.Len(t, children, 1)
	require.Equal(t, "SUBDIR", children[0].Name())
}

func TestLFNReassembly(t *testing.T) {
	var last, first rawDirEntry
	checksumOf := func(short string) byte {
		var s rawDirEntry
		encodeShortName(&s, short)
		return s.shortNameChecksum()
	}
	sum := checksumOf("GOODBY~1.TXT")

	encodeLFN := func(rec *rawDirEntry, order int, last bool, text string) {
		b := order
		if last {
			b |= lfnLastFlag
		}
		rec.raw[0] = byte(b)
		rec.raw[11] = attrLFN
		rec.raw[13] = sum
		units := make([]uint16, 13)
		for i := range units {
			units[i] = 0xFFFF
		}
		for i, r := range text {
			if i < 13 {
				units[i] = uint16(r)
			}
		}
		putRange := func(off, n int, chars []uint16) {
			for j := 0; j < n; j++ {
				binary.LittleEndian.PutUint16(rec.raw[off+2*j:], chars[j])
			}
		}
		putRange(1, 5, units[0:5])
		putRange(14, 6, units[5:11])
		putRange(28, 2, units[11:13])
	}
	encodeLFN(&last, 2, true, "GoodbyeC")
	encodeLFN(&first, 1, false, "ruel Wor")

	var short rawDirEntry
	encodeShortName(&short, "GOODBY~1.TXT")

	name, ok := reassembleLFN([]*rawDirEntry{&last, &first}, &short)
	require.True(t, ok)
	require.Equal(t, "GoodbyeCruel Wor", name)
}
