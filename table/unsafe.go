package table

import "unsafe"

// levelPtr reinterprets a page-sized byte slice from the arena's direct map
// as a translation-table level. This is one of the three loci of
// memory-unsafe operation the spec calls out in §9 (page-table
// manipulation); it is confined to this file and Manager's unexported walk
// helpers never leak raw *level values outward.
func levelPtr(b []byte) unsafe.Pointer {
	if len(b) < entriesPerLevel*8 {
		panic("table: direct-mapped slice too short for a table level")
	}
	return unsafe.Pointer(&b[0])
}
