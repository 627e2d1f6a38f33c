// Package kstr provides the kernel's immutable path/string helper type and
// path-splitting support used by path resolution (§4.6).
//
// Grounded on the teacher's ustr.Ustr (ustr/ustr.go, renamed kstr/kstr.go):
// Isdot/Isdotdot/Eq/Extend/IsAbsolute carry over near verbatim; Split is new,
// built fresh in the teacher's idiom since biscuit's own path-splitting
// lived in the unused bpath stub (no source in this retrieval pack).
package kstr

// Str is an immutable byte-slice path or string value.
type Str []byte

func (s Str) Isdot() bool {
	return len(s) == 1 && s[0] == '.'
}

func (s Str) Isdotdot() bool {
	return len(s) == 2 && s[0] == '.' && s[1] == '.'
}

// Eq compares two Str values for byte equality.
func (s Str) Eq(o Str) bool {
	if len(s) != len(o) {
		return false
	}
	for i, v := range s {
		if v != o[i] {
			return false
		}
	}
	return true
}

func MkStr() Str      { return Str{} }
func MkStrDot() Str    { return Str(".") }
func MkStrRoot() Str   { return Str("/") }

// DotDot is a reusable Str containing "..".
var DotDot = Str{'.', '.'}

// MkStrSlice converts a NUL-terminated byte slice (as crosses the user
// boundary via a TransactionalBuffer) to a Str, truncating at the first NUL.
func MkStrSlice(buf []byte) Str {
	for i, b := range buf {
		if b == 0 {
			return Str(buf[:i])
		}
	}
	return Str(buf)
}

// Extend appends '/' and p as a new path component.
func (s Str) Extend(p Str) Str {
	out := make(Str, 0, len(s)+1+len(p))
	out = append(out, s...)
	out = append(out, '/')
	out = append(out, p...)
	return out
}

func (s Str) ExtendStr(p string) Str {
	return s.Extend(Str(p))
}

func (s Str) IsAbsolute() bool {
	return len(s) > 0 && s[0] == '/'
}

func (s Str) IndexByte(b byte) int {
	for i, v := range s {
		if v == b {
			return i
		}
	}
	return -1
}

func (s Str) String() string { return string(s) }

// Split breaks a path into its '/'-separated components, skipping empty
// components (so "a//b/" and "a/b" split identically) but preserving "."
// and ".." components for the caller's resolver to interpret per §4.6
// (skip "." entries, follow the parent pointer on "..").
func Split(path Str) []Str {
	var parts []Str
	start := -1
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if start >= 0 {
				parts = append(parts, path[start:i])
			}
			start = -1
		} else if start < 0 {
			start = i
		}
	}
	return parts
}
