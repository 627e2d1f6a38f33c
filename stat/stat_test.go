package stat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bekkernel/fs"
)

type fakeDirEntry struct {
	fs.BaseEntry
	kind fs.Kind
	size uint64
	ts   fs.Timestamps
}

func (f fakeDirEntry) Name() string             { return "x" }
func (f fakeDirEntry) Kind() fs.Kind            { return f.kind }
func (f fakeDirEntry) Size() uint64             { return f.size }
func (f fakeDirEntry) Timestamps() fs.Timestamps { return f.ts }
func (f fakeDirEntry) Dirty() bool              { return false }
func (f fakeDirEntry) Parent() fs.Entry         { return nil }
func (f fakeDirEntry) Hash() uint64             { return 0 }

func TestFromEntryFile(t *testing.T) {
	e := fakeDirEntry{kind: fs.KindFile, size: 42, ts: fs.Timestamps{Created: 1, Modified: 2, Accessed: 3}}
	var r Result
	r.FromEntry(e)
	require.Equal(t, KindFile, r.ResultKind)
	require.Equal(t, uint64(42), r.Size)
	require.Equal(t, int64(1), r.Created)
	require.Equal(t, int64(2), r.Modified)
	require.Equal(t, int64(3), r.Accessed)
}

func TestFromEntryDirectory(t *testing.T) {
	e := fakeDirEntry{kind: fs.KindDirectory}
	var r Result
	r.FromEntry(e)
	require.Equal(t, KindDirectory, r.ResultKind)
}
