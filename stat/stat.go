// Package stat implements the fixed-layout Result the Stat syscall (§6.1)
// writes into a caller's out_stat_ptr buffer.
//
// Grounded on the teacher's Stat_t (stat/stat.go): a plain value struct
// with Wxxx setters and a Bytes() raw-byte view, adapted from POSIX's
// dev/ino/mode/size/rdev fields to the entries this kernel's fs.Entry
// actually reports (Kind, Size, the three FAT-resolution Timestamps), and
// with Bytes() replaced by buffer.BitwiseObjectBuffer so the wire transfer
// goes through the same TransactionalBuffer path as every other
// kernel<->user copy rather than a bespoke unsafe slice at the call site.
package stat

import "bekkernel/fs"

// Kind mirrors fs.Kind on the wire; kept as its own type (rather than
// reusing fs.Kind directly) so Result's layout never shifts if fs.Kind
// grows non-uint64-sized constants later.
type Kind uint64

const (
	KindFile Kind = iota
	KindDirectory
)

// Result is the fixed-size, pointer-free record copied verbatim into a
// caller's stat buffer. Every field is a plain integer so
// buffer.BitwiseObjectBuffer's raw reinterpret is safe (§4.5, §8
// invariant 8).
type Result struct {
	ResultKind Kind
	Size       uint64
	Created    int64
	Modified   int64
	Accessed   int64
}

// Wkind records the entry kind.
func (r *Result) Wkind(k Kind) { r.ResultKind = k }

// Wsize records the entry's byte size.
func (r *Result) Wsize(v uint64) { r.Size = v }

// Wtimestamps records the three FAT-resolution timestamps.
func (r *Result) Wtimestamps(t fs.Timestamps) {
	r.Created = t.Created
	r.Modified = t.Modified
	r.Accessed = t.Accessed
}

// FromEntry fills r from a live fs.Entry (the Stat syscall's common path).
func (r *Result) FromEntry(e fs.Entry) {
	if e.Kind() == fs.KindDirectory {
		r.Wkind(KindDirectory)
	} else {
		r.Wkind(KindFile)
	}
	r.Wsize(e.Size())
	r.Wtimestamps(e.Timestamps())
}
