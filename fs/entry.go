// Package fs implements the filesystem Entry DAG, path resolution, and the
// FilesystemRegistry of §3/§4.6.
//
// Grounded on the teacher's fs.Inode_t-via-shared_ptr dispatch shape, but
// since the spec's Entry capability set is open-ended across filesystem
// implementations (§9: "an object-safe trait with reference-counted
// handles when extensibility matters"), Entry is an interface rather than a
// closed tagged union, with BaseEntry supplying the ENOTSUP defaults the
// spec calls for ("the base class returns this for everything").
package fs

import "bekkernel/errs"
import "bekkernel/kstr"

// Kind distinguishes a file entry from a directory entry.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

// Timestamps holds the three FAT-resolution timestamps every Entry reports,
// regardless of backing filesystem (non-FAT future backends would simply
// carry finer resolution truncated to these fields).
type Timestamps struct {
	Created  int64
	Modified int64
	Accessed int64
}

// Entry is a ref-counted, polymorphic node in a filesystem DAG: either a
// file or a directory, carrying name, timestamps, size, and a dirty flag.
type Entry interface {
	Name() string
	Kind() Kind
	Size() uint64
	Timestamps() Timestamps
	Dirty() bool
	Parent() Entry

	// Flush writes back any pending metadata/dirty ranges.
	Flush() errs.Err_t

	// Hash is stable across calls and depends only on the path from root
	// (§8 invariant 4); directory entries use it as their child-table key
	// family, file entries expose it for caching keyed lookups.
	Hash() uint64

	// Directory operations; the base implementation returns ENOTSUP.
	Lookup(name kstr.Str) (Entry, errs.Err_t)
	AllChildren() ([]Entry, errs.Err_t)
	AddChild(name kstr.Str, kind Kind) (Entry, errs.Err_t)
	RemoveChild(name kstr.Str) errs.Err_t

	// File operations; the base implementation returns ENOTSUP.
	ReadBytes(buf []byte, offset uint64) (int, errs.Err_t)
	WriteBytes(buf []byte, offset uint64) (int, errs.Err_t)
	Resize(newSize uint64) errs.Err_t
}

// BaseEntry supplies ENOTSUP for every operation a concrete Entry does not
// implement; concrete types embed it and override only what they support.
type BaseEntry struct{}

func (BaseEntry) Lookup(kstr.Str) (Entry, errs.Err_t)         { return nil, errs.ENOTSUP }
func (BaseEntry) AllChildren() ([]Entry, errs.Err_t)          { return nil, errs.ENOTSUP }
func (BaseEntry) AddChild(kstr.Str, Kind) (Entry, errs.Err_t) { return nil, errs.ENOTSUP }
func (BaseEntry) RemoveChild(kstr.Str) errs.Err_t             { return errs.ENOTSUP }
func (BaseEntry) ReadBytes([]byte, uint64) (int, errs.Err_t)  { return 0, errs.ENOTSUP }
func (BaseEntry) WriteBytes([]byte, uint64) (int, errs.Err_t) { return 0, errs.ENOTSUP }
func (BaseEntry) Resize(uint64) errs.Err_t                    { return errs.ENOTSUP }
func (BaseEntry) Flush() errs.Err_t                           { return errs.ESUCCESS }
